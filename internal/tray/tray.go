// Package tray provides a system tray menu showing readiness and the
// current emotion.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/present"
	"github.com/ayusman/moodlens/internal/readiness"
)

// Tray represents the system tray application. It is a present.Sink:
// readiness changes and fresh outcomes update the menu.
type Tray struct {
	onToggle   func(enabled bool)
	onSettings func()
	onQuit     func()
	enabled    bool
	mu         sync.RWMutex

	status string
	mood   string

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
	menuMood   *systray.MenuItem
}

// New creates a new Tray instance with the given enabled state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
		status:  statusText(readiness.Status{Stage: readiness.Uninitialized}),
		mood:    moodText(nil, false),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("moodlens")
	systray.SetTooltip("moodlens emotion recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleText(t.enabled), "Pause or resume recognition")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(t.status, "Model status")
	t.menuStatus.Disable()
	t.menuMood = systray.AddMenuItem(t.mood, "Current emotion")
	t.menuMood.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit moodlens")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleText(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// PublishStatus shows the readiness message in the menu.
func (t *Tray) PublishStatus(st readiness.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = statusText(st)
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(t.status)
	}
}

// PublishFrame shows the frame's outcome in the menu. The menu is only
// touched when the text changes.
func (t *Tray) PublishFrame(f present.Frame) {
	text := moodText(f.Outcome, f.Stale)

	t.mu.Lock()
	defer t.mu.Unlock()

	if text == t.mood {
		return
	}
	t.mood = text
	if t.menuMood != nil {
		t.menuMood.SetTitle(text)
	}
}

// SetEnabled updates the toggle without firing the callback.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleText(enabled))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Text returns the current status and mood lines.
func (t *Tray) Text() (status, mood string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, t.mood
}

func toggleText(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Paused"
}

func statusText(st readiness.Status) string {
	switch st.Stage {
	case readiness.Ready:
		return "Status: ready"
	case readiness.Failed:
		return "Status: failed: " + st.Reason
	case readiness.Uninitialized:
		return "Status: starting"
	default:
		if st.Message != "" {
			return "Status: " + st.Message
		}
		return "Status: " + st.Stage.String()
	}
}

func moodText(o *classifier.Outcome, stale bool) string {
	if o == nil {
		return "Mood: none"
	}
	text := fmt.Sprintf("Mood: %s (%.0f%%)", o.Label, o.Confidence*100)
	if stale {
		text += " ·"
	}
	return text
}
