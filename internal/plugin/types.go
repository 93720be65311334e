// Package plugin discovers external hook programs and runs them when the
// detected emotion changes.
package plugin

import "encoding/json"

// EventEmotionChanged is sent to plugins that subscribe to label changes.
const EventEmotionChanged = "emotion_changed"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	Events       []string        `json:"events,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Emotion is the classification carried in a Request.
type Emotion struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action   string          `json:"action"`
	Event    string          `json:"event,omitempty"`
	Emotion  Emotion         `json:"emotion"`
	Previous string          `json:"previous,omitempty"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// HasAction reports whether the plugin declares action.
func (p *Plugin) HasAction(action string) bool {
	for _, a := range p.Manifest.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Subscribes reports whether the plugin listens for event.
func (p *Plugin) Subscribes(event string) bool {
	for _, e := range p.Manifest.Events {
		if e == event {
			return true
		}
	}
	return false
}
