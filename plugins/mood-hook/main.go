// Package main provides a hook plugin that reacts to emotion changes.
// It appends changes to a log file and can raise a desktop notification.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action  string `json:"action"`
	Event   string `json:"event"`
	Emotion struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"emotion"`
	Previous string          `json:"previous"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the per-binding configuration.
type Config struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

type actionHandler func(req Request, cfg Config) error

var actionHandlers = map[string]actionHandler{
	"log":             appendLog,
	"emotion_changed": appendLog,
	"notify":          notify,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	handler, ok := actionHandlers[req.Action]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	if req.Emotion.Label == "" {
		writeErrorResponse("emotion label is required")
		return
	}

	if err := handler(req, cfg); err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	writeSuccessResponse()
}

// appendLog writes one JSON line per change.
func appendLog(req Request, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = "mood.log"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(map[string]any{
		"time":       time.Now().UTC().Format(time.RFC3339),
		"label":      req.Emotion.Label,
		"confidence": req.Emotion.Confidence,
		"previous":   req.Previous,
	})
}

// notify raises a desktop notification.
func notify(req Request, cfg Config) error {
	title := cfg.Title
	if title == "" {
		title = "moodlens"
	}
	body := fmt.Sprintf("%s (%.0f%%)", req.Emotion.Label, req.Emotion.Confidence*100)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("osascript", "-e",
			fmt.Sprintf(`display notification %q with title %q`, body, title))
	case "linux":
		cmd = exec.Command("notify-send", title, body)
	default:
		return fmt.Errorf("notifications not supported on %s", runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
