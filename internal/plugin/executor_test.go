package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable shell plugin in a temp dir.
func writeScript(t *testing.T, name, body string) *Plugin {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Plugin{
		Manifest: Manifest{
			Name:       strings.TrimSuffix(name, ".sh"),
			Version:    "1.0.0",
			Executable: name,
			Actions:    []string{"notify"},
			Events:     []string{EventEmotionChanged},
		},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := writeScript(t, "test-plugin.sh", `echo '{"success":true,"data":{"message":"hello world"}}'
`)

	request := &Request{
		Action:  "notify",
		Event:   EventEmotionChanged,
		Emotion: Emotion{Label: "happy", Confidence: 0.9},
		Config:  json.RawMessage(`{"key":"value"}`),
		Params:  json.RawMessage(`{"param1":"value1"}`),
	}

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}
	if response.Error != "" {
		t.Errorf("expected empty error, got %q", response.Error)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "hello world" {
		t.Errorf("expected message 'hello world', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	plugin := writeScript(t, "echo-plugin.sh", `INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)

	request := &Request{
		Action:   "notify",
		Event:    EventEmotionChanged,
		Emotion:  Emotion{Label: "surprise", Confidence: 0.75},
		Previous: "neutral",
		Config:   json.RawMessage(`{"setting":"enabled"}`),
		Params:   json.RawMessage(`{"count":42}`),
	}

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}

	var data struct {
		Received Request `json:"received"`
	}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	got := data.Received
	if got.Action != "notify" || got.Event != EventEmotionChanged {
		t.Errorf("received action/event = %q/%q", got.Action, got.Event)
	}
	if got.Emotion.Label != "surprise" || got.Emotion.Confidence != 0.75 {
		t.Errorf("received emotion = %+v", got.Emotion)
	}
	if got.Previous != "neutral" {
		t.Errorf("received previous = %q, want neutral", got.Previous)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	plugin := writeScript(t, "slow-plugin.sh", `sleep 10
echo '{"success":true}'
`)

	executor := NewExecutor(100 * time.Millisecond)
	start := time.Now()
	_, err := executor.Execute(context.Background(), plugin, &Request{Action: "notify"})

	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Execute() took %s, plugin was not killed", elapsed)
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	plugin := writeScript(t, "slow-plugin.sh", `sleep 10
echo '{"success":true}'
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewExecutor(5*time.Second).Execute(ctx, plugin, &Request{Action: "notify"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	plugin := writeScript(t, "error-plugin.sh", `echo '{"success":false,"error":"something went wrong"}'
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{Action: "notify"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if response.Success {
		t.Errorf("expected success=false, got true")
	}
	if response.Error != "something went wrong" {
		t.Errorf("expected error 'something went wrong', got %q", response.Error)
	}
}

func TestExecutor_Execute_BadOutput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"non-json stdout", "echo 'not json'\n", "failed to parse plugin response"},
		{"non-zero exit with stderr", "echo 'broken' >&2\nexit 3\n", "broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := writeScript(t, "bad-plugin.sh", tt.body)

			_, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{Action: "notify"})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestNewExecutor_DefaultTimeout(t *testing.T) {
	if e := NewExecutor(0); e.timeout != DefaultTimeout {
		t.Errorf("timeout = %s, want %s", e.timeout, DefaultTimeout)
	}
}
