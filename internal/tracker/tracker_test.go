package tracker

import (
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handlocator/internal/capture"
	"github.com/ayusman/handlocator/internal/locator"
	"github.com/ayusman/handlocator/testdata"
)

func bgrLocatorConfig() locator.Config {
	cfg := locator.DefaultConfig()
	cfg.Order = locator.OrderBGR
	cfg.ReuseBuffers = true
	return cfg
}

func closeAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

func newTestTracker(t *testing.T, frames []*gocv.Mat, loop bool) (*Tracker, *capture.MockCamera) {
	t.Helper()
	cam := capture.NewMockCamera(frames, loop)
	cam.SetFPS(100)

	tr, err := New(Config{Camera: cam, Locator: bgrLocatorConfig()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, cam
}

func TestNew(t *testing.T) {
	t.Run("requires a camera", func(t *testing.T) {
		if _, err := New(Config{}); err == nil {
			t.Error("expected error without camera")
		}
	})

	t.Run("rejects invalid locator config", func(t *testing.T) {
		cam := capture.NewMockCamera(nil, false)
		if _, err := New(Config{Camera: cam, Locator: locator.Config{Connectivity: 5}}); err == nil {
			t.Error("expected error for connectivity 5")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		tr, _ := newTestTracker(t, nil, false)

		if !tr.IsEnabled() {
			t.Error("tracking should start enabled")
		}
		if tr.MaskView() {
			t.Error("mask view should start off")
		}
		if tr.IsRunning() {
			t.Error("tracker should not be running before Start")
		}
		if _, ok := tr.Latest(); ok {
			t.Error("Latest should be empty before any frame")
		}
		if tr.Metrics() == nil {
			t.Error("metrics should be created when not configured")
		}
	})
}

func TestTracker_ProcessFrame(t *testing.T) {
	rect := image.Rect(200, 100, 280, 200)
	frames := testdata.Sequence(640, 480, true, rect)
	defer closeAll(frames)

	tr, _ := newTestTracker(t, frames, false)
	tr.processFrame(frames[0])

	pos, ok := tr.Latest()
	if !ok {
		t.Fatal("expected a position after processing a frame")
	}
	if !pos.Found {
		t.Fatal("expected the hand to be found")
	}

	wantX, wantY := testdata.Center(rect)
	if math.Abs(pos.Pixel.X-wantX) > 1 || math.Abs(pos.Pixel.Y-wantY) > 1 {
		t.Errorf("Pixel = %v, want (%.1f, %.1f)", pos.Pixel, wantX, wantY)
	}
	if math.Abs(pos.World.X-(wantX-320)) > 1 || math.Abs(pos.World.Y-(240-wantY)) > 1 {
		t.Errorf("World = %v, want (%.1f, %.1f)", pos.World, wantX-320, 240-wantY)
	}
	if pos.Width != 640 || pos.Height != 480 {
		t.Errorf("frame size = %dx%d, want 640x480", pos.Width, pos.Height)
	}
	if pos.Bounds != (Box{X: 200, Y: 100, W: 80, H: 100}) {
		t.Errorf("Bounds = %+v", pos.Bounds)
	}
	if pos.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", pos.Sequence)
	}

	if got := tr.Metrics().FramesFound.Load(); got != 1 {
		t.Errorf("FramesFound = %d, want 1", got)
	}

	jpeg, ok, err := tr.Snapshot()
	if err != nil || !ok {
		t.Fatalf("Snapshot() = %v, %v", ok, err)
	}
	if len(jpeg) < 2 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
		t.Error("Snapshot should return JPEG data")
	}
}

func TestTracker_ProcessFrame_NotFound(t *testing.T) {
	frame := testdata.Frame{Width: 64, Height: 48, BGR: true}.Mat()
	defer frame.Close()

	tr, _ := newTestTracker(t, nil, false)
	tr.processFrame(&frame)

	pos, ok := tr.Latest()
	if !ok {
		t.Fatal("NotFound frames still publish a position")
	}
	if pos.Found {
		t.Error("expected Found to be false")
	}
	if got := tr.Metrics().FramesNotFound.Load(); got != 1 {
		t.Errorf("FramesNotFound = %d, want 1", got)
	}
}

func TestTracker_ProcessFrame_InvalidInput(t *testing.T) {
	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC2)
	defer frame.Close()

	tr, _ := newTestTracker(t, nil, false)
	tr.processFrame(&frame)

	if _, ok := tr.Latest(); ok {
		t.Error("invalid frames should be skipped")
	}
	if got := tr.Metrics().FramesInvalid.Load(); got != 1 {
		t.Errorf("FramesInvalid = %d, want 1", got)
	}
}

func TestTracker_ProcessFrame_SizeChange(t *testing.T) {
	small := testdata.Frame{Width: 64, Height: 48, BGR: true}.Mat()
	defer small.Close()
	large := testdata.Frame{Width: 128, Height: 96, BGR: true, Rects: []image.Rectangle{image.Rect(0, 0, 10, 10)}}.Mat()
	defer large.Close()

	tr, _ := newTestTracker(t, nil, false)
	tr.processFrame(&small)
	tr.processFrame(&large)

	pos, ok := tr.Latest()
	if !ok || !pos.Found {
		t.Fatal("frame after a size change should be located after a reset")
	}
	if pos.Width != 128 {
		t.Errorf("Width = %d, want 128", pos.Width)
	}
	if got := tr.Metrics().DimensionResets.Load(); got != 1 {
		t.Errorf("DimensionResets = %d, want 1", got)
	}
}

func TestTracker_MaskView(t *testing.T) {
	rect := image.Rect(10, 10, 30, 30)
	frames := testdata.Sequence(64, 48, true, rect)
	defer closeAll(frames)

	tr, _ := newTestTracker(t, frames, false)
	tr.SetMaskView(true)
	tr.processFrame(frames[0])

	if _, ok, err := tr.Snapshot(); err != nil || !ok {
		t.Fatalf("Snapshot() in mask view = %v, %v", ok, err)
	}

	// The display is the mask from Locate: white skin on black.
	tr.displayMu.Lock()
	skin := tr.display.GetVecbAt(20, 20)
	background := tr.display.GetVecbAt(40, 50)
	tr.displayMu.Unlock()

	if skin[0] != 255 || skin[1] != 255 || skin[2] != 255 {
		t.Errorf("display at skin = %v, want white", skin)
	}
	if background[0] != 0 || background[1] != 0 || background[2] != 0 {
		t.Errorf("display at background = %v, want black", background)
	}

	// Leaving mask view stops the per-frame mask copy.
	tr.SetMaskView(false)
	tr.processFrame(frames[0])
	if tr.locator.Config().KeepMask {
		t.Error("locator should not keep masks outside mask view")
	}
}

func TestTracker_StartAfterClose(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	cfg := bgrLocatorConfig()
	cfg.Denoise = true

	tr, err := New(Config{Camera: cam, Locator: cfg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
	if cam.IsOpen() {
		t.Error("camera should stay closed")
	}

	// Close twice is a no-op
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestTracker_StartStop(t *testing.T) {
	frames := testdata.Sequence(64, 48, true,
		image.Rect(0, 0, 10, 10),
		image.Rect(40, 30, 60, 40),
	)
	defer closeAll(frames)

	tr, cam := newTestTracker(t, frames, true)

	positions, cancel := tr.Subscribe()
	defer cancel()

	if err := tr.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !tr.IsRunning() || !cam.IsOpen() {
		t.Fatal("tracker and camera should be running after Start")
	}
	session := tr.Session()
	if session == "" {
		t.Error("Start should assign a session ID")
	}

	var got []Position
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case pos := <-positions:
			got = append(got, pos)
		case <-timeout:
			t.Fatalf("received %d positions before timeout", len(got))
		}
	}

	tr.Stop()

	if tr.IsRunning() || cam.IsOpen() {
		t.Error("tracker and camera should be stopped after Stop")
	}

	for i, pos := range got {
		if pos.Session != session {
			t.Errorf("position %d session = %s, want %s", i, pos.Session, session)
		}
		if pos.Sequence != uint64(i+1) {
			t.Errorf("position %d sequence = %d, want %d", i, pos.Sequence, i+1)
		}
		if !pos.Found {
			t.Errorf("position %d should be found", i)
		}
	}
	if got[0].Area != 100 || got[1].Area != 200 {
		t.Errorf("areas = %d, %d, want 100, 200 (frames in order)", got[0].Area, got[1].Area)
	}

	// Stop twice should not panic
	tr.Stop()
}

func TestTracker_Disabled(t *testing.T) {
	frames := testdata.Sequence(32, 32, true, image.Rect(0, 0, 4, 4))
	defer closeAll(frames)

	tr, cam := newTestTracker(t, frames, true)
	tr.SetEnabled(false)

	if err := tr.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	tr.Stop()

	if cam.Reads() != 0 {
		t.Errorf("camera read %d frames while tracking was disabled", cam.Reads())
	}
}

func TestTracker_Subscribe_Cancel(t *testing.T) {
	tr, _ := newTestTracker(t, nil, false)

	ch, cancel := tr.Subscribe()
	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Error("channel should be closed after cancel")
	}

	tr.publish(Position{Sequence: 1})
}

func TestTracker_SlowSubscriberDrops(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	tr, err := New(Config{Camera: cam, Locator: bgrLocatorConfig(), SubscriberBuffer: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tr.Close()

	_, cancel := tr.Subscribe()
	defer cancel()

	tr.publish(Position{Sequence: 1})
	tr.publish(Position{Sequence: 2})

	if got := tr.Metrics().SubscriberDropped.Load(); got != 1 {
		t.Errorf("SubscriberDropped = %d, want 1", got)
	}
	if pos, _ := tr.Latest(); pos.Sequence != 2 {
		t.Errorf("Latest().Sequence = %d, want 2", pos.Sequence)
	}
}
