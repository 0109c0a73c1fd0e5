// Package tray provides a system tray menu for the hand locator.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onMaskView func(on bool)
	onViewer   func()
	onQuit     func()
	enabled    bool
	maskView   bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuMask     *systray.MenuItem
	menuPosition *systray.MenuItem
}

// New creates a new Tray instance with tracking enabled and mask view off.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback function to be called when tracking is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnMaskView sets the callback function to be called when mask view is toggled.
func (t *Tray) OnMaskView(fn func(on bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMaskView = fn
}

// OnViewer sets the callback function to be called when the viewer menu item is clicked.
func (t *Tray) OnViewer(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onViewer = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Hand")
	systray.SetTooltip("Hand Locator")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle hand tracking")
	t.menuMask = systray.AddMenuItemCheckbox("Show mask", "Show the skin mask instead of the camera", t.maskView)
	systray.AddSeparator()

	t.menuPosition = systray.AddMenuItem(PositionTitle(false, 0, 0), "Last hand position")
	t.menuPosition.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuViewer := systray.AddMenuItem("Open viewer...", "Open the live view in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Hand Locator")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuMask.ClickedCh:
				t.handleMaskView()
			case <-menuViewer.ClickedCh:
				t.handleViewer()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Tracking"
	}
	return "○ Paused"
}

// PositionTitle formats the position menu entry.
func PositionTitle(found bool, x, y float64) string {
	if !found {
		return "Hand: not found"
	}
	return fmt.Sprintf("Hand: %.0f, %.0f", x, y)
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleMaskView handles the mask view menu item click.
func (t *Tray) handleMaskView() {
	t.mu.Lock()
	t.maskView = !t.maskView
	on := t.maskView
	if t.menuMask != nil {
		if on {
			t.menuMask.Check()
		} else {
			t.menuMask.Uncheck()
		}
	}
	callback := t.onMaskView
	t.mu.Unlock()

	if callback != nil {
		callback(on)
	}
}

// handleViewer handles the viewer menu item click.
func (t *Tray) handleViewer() {
	t.mu.RLock()
	callback := t.onViewer
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

// SetPosition updates the position display in the menu.
func (t *Tray) SetPosition(found bool, x, y float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuPosition != nil {
		t.menuPosition.SetTitle(PositionTitle(found, x, y))
	}
}

// SetEnabled updates the tracking state shown in the menu without calling
// the toggle callback. Use it to follow changes made elsewhere.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetMaskView updates the mask view checkbox without calling the callback.
func (t *Tray) SetMaskView(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maskView = on
	if t.menuMask != nil {
		if on {
			t.menuMask.Check()
		} else {
			t.menuMask.Uncheck()
		}
	}
}

// Follow polls state every interval and mirrors it into the menu until stop
// is closed. state reports the tracking and mask view flags of the owner.
func (t *Tray) Follow(stop <-chan struct{}, interval time.Duration, state func() (enabled, maskView bool)) {
	mirror := func() {
		enabled, maskView := state()
		if enabled != t.IsEnabled() {
			t.SetEnabled(enabled)
		}
		if maskView != t.MaskView() {
			t.SetMaskView(maskView)
		}
	}
	mirror()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			mirror()
		}
	}
}

// IsEnabled returns the current tracking state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// MaskView returns the current mask view state.
func (t *Tray) MaskView() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maskView
}
