package tray

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTray_Toggle(t *testing.T) {
	tr := New()

	if !tr.IsEnabled() {
		t.Fatal("tracking should be enabled by default")
	}

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.handleToggle()
	tr.handleToggle()

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("toggle callbacks = %v, want [false true]", got)
	}
	if !tr.IsEnabled() {
		t.Error("two toggles should restore the enabled state")
	}
}

func TestTray_MaskView(t *testing.T) {
	tr := New()

	var got bool
	tr.OnMaskView(func(on bool) { got = on })

	tr.handleMaskView()

	if !got || !tr.MaskView() {
		t.Error("mask view should be on after one toggle")
	}
}

func TestTray_Viewer(t *testing.T) {
	tr := New()

	// No callback should not panic
	tr.handleViewer()

	called := false
	tr.OnViewer(func() { called = true })
	tr.handleViewer()

	if !called {
		t.Error("viewer callback should be called")
	}
}

func TestPositionTitle(t *testing.T) {
	tests := []struct {
		found bool
		x, y  float64
		want  string
	}{
		{found: false, want: "Hand: not found"},
		{found: true, x: -120.4, y: 33.6, want: "Hand: -120, 34"},
	}

	for _, tt := range tests {
		if got := PositionTitle(tt.found, tt.x, tt.y); got != tt.want {
			t.Errorf("PositionTitle(%v, %v, %v) = %q, want %q", tt.found, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestTray_SetPosition_BeforeRun(t *testing.T) {
	tr := New()
	// Menu items do not exist before Run; this should not panic
	tr.SetPosition(true, 1, 2)
}

func TestTray_SetEnabled_FollowsExternalChange(t *testing.T) {
	tr := New()

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	// Tracking paused through the HTTP API
	tr.SetEnabled(false)
	if tr.IsEnabled() {
		t.Fatal("SetEnabled(false) should update the tray state")
	}
	if len(got) != 0 {
		t.Fatalf("SetEnabled should not call the toggle callback, got %v", got)
	}

	// One click resumes tracking
	tr.handleToggle()
	if len(got) != 1 || !got[0] {
		t.Errorf("toggle callbacks = %v, want [true]", got)
	}
}

func TestTray_SetMaskView_FollowsExternalChange(t *testing.T) {
	tr := New()

	var got []bool
	tr.OnMaskView(func(on bool) { got = append(got, on) })

	tr.SetMaskView(true)
	if !tr.MaskView() {
		t.Fatal("SetMaskView(true) should update the tray state")
	}

	tr.handleMaskView()
	if len(got) != 1 || got[0] {
		t.Errorf("mask view callbacks = %v, want [false]", got)
	}
}

func TestTray_Follow(t *testing.T) {
	tr := New()

	var enabled, maskView atomic.Bool
	enabled.Store(true)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Follow(stop, 5*time.Millisecond, func() (bool, bool) {
			return enabled.Load(), maskView.Load()
		})
	}()

	enabled.Store(false)
	maskView.Store(true)

	deadline := time.Now().Add(2 * time.Second)
	for tr.IsEnabled() || !tr.MaskView() {
		if time.Now().After(deadline) {
			t.Fatal("tray did not follow the tracker state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after stop")
	}
}
