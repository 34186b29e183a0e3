// Package tray provides a system tray menu for a running tonelight
// pipeline.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onReset  func()
	onOpen   func()
	onQuit   func()
	enabled  bool
	mu       sync.RWMutex

	menuToggle   *systray.MenuItem
	menuLastTone *systray.MenuItem
	menuMode     *systray.MenuItem
}

// New creates a Tray with the given initial enabled state.
func New(enabled bool) *Tray {
	return &Tray{enabled: enabled}
}

// OnToggle sets the callback invoked when detection is switched on or off.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReset sets the callback invoked by the reset menu item.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnOpen sets the callback invoked by the status page menu item. The item
// is hidden when no callback is set before Run.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback invoked when quit is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It blocks until Quit is called and must run
// on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Tonelight")
	systray.SetTooltip("Tonelight skin tone lighting")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle tone detection")
	systray.AddSeparator()
	t.menuLastTone = systray.AddMenuItem(lastToneTitle("", ""), "Last finalized tone")
	t.menuLastTone.Disable()
	t.menuMode = systray.AddMenuItem(modeTitle(""), "Capture mode")
	t.menuMode.Disable()
	hasOpen := t.onOpen != nil
	t.mu.Unlock()
	systray.AddSeparator()

	menuReset := systray.AddMenuItem("Reset", "Clear stabilization and send the reset command")
	menuOpen := systray.AddMenuItem("Open Status Page...", "Open the status page in a browser")
	if !hasOpen {
		menuOpen.Hide()
	}
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Tonelight")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.call(func(t *Tray) func() { return t.onReset })
			case <-menuOpen.ClickedCh:
				t.call(func(t *Tray) func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.call(func(t *Tray) func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// call runs the callback picked under the read lock.
func (t *Tray) call(pick func(*Tray) func()) {
	t.mu.RLock()
	fn := pick(t)
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// outside the lock: the callback may call back into the tray
	if callback != nil {
		callback(enabled)
	}
}

// SetEnabled updates the toggle without invoking OnToggle.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetLastTone shows the last finalized label and its command.
func (t *Tray) SetLastTone(label, command string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuLastTone != nil {
		t.menuLastTone.SetTitle(lastToneTitle(label, command))
	}
}

// SetMode shows the capture mode.
func (t *Tray) SetMode(mode string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuMode != nil {
		t.menuMode.SetTitle(modeTitle(mode))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func lastToneTitle(label, command string) string {
	switch {
	case label == "":
		return "Last: none"
	case command == "":
		return "Last: " + label
	default:
		return "Last: " + label + " → " + command
	}
}

func modeTitle(mode string) string {
	if mode == "" {
		return "Mode: idle"
	}
	return "Mode: " + mode
}
