// Package tracker drives the hand locator from a frame source and publishes
// the located positions.
package tracker

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/handlocator/internal/capture"
	"github.com/ayusman/handlocator/internal/locator"
	"github.com/ayusman/handlocator/internal/metrics"
)

// DefaultSubscriberBuffer is the channel capacity of each subscriber.
const DefaultSubscriberBuffer = 16

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("tracker is closed")

// Box is an axis-aligned rectangle in pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func boxOf(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Position is the located hand for one frame.
type Position struct {
	Session   string        `json:"session"`
	Sequence  uint64        `json:"sequence"`
	Found     bool          `json:"found"`
	World     locator.Point `json:"world"`
	Pixel     locator.Point `json:"pixel"`
	Area      int           `json:"area"`
	Bounds    Box           `json:"bounds"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Timestamp int64         `json:"timestamp"`
}

// Config holds configuration options for the tracker.
type Config struct {
	Camera           capture.Camera
	Locator          locator.Config
	Metrics          *metrics.Metrics
	SubscriberBuffer int
}

// Tracker reads frames from a camera on a single goroutine, locates the hand
// in each and fans the result out to subscribers.
type Tracker struct {
	config  Config
	camera  capture.Camera
	locator *locator.Locator
	metrics *metrics.Metrics

	mu       sync.RWMutex
	closed   bool
	enabled  bool
	maskView bool
	stopCh   chan struct{}
	done     chan struct{}
	session  string
	sequence uint64
	latest   *Position
	subs     map[chan Position]struct{}

	displayMu sync.Mutex
	display   gocv.Mat
}

// New creates a Tracker. Tracking starts enabled.
func New(config Config) (*Tracker, error) {
	if config.Camera == nil {
		return nil, fmt.Errorf("tracker: camera is required")
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = DefaultSubscriberBuffer
	}

	loc, err := locator.New(config.Locator)
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}

	return &Tracker{
		config:  config,
		camera:  config.Camera,
		locator: loc,
		metrics: config.Metrics,
		enabled: true,
		subs:    make(map[chan Position]struct{}),
		display: gocv.NewMat(),
	}, nil
}

// Start opens the camera, begins a new session and starts the tracking loop.
// Calling Start on a running tracker is a no-op.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.stopCh != nil {
		return nil
	}

	if err := t.camera.Open(); err != nil {
		return err
	}

	t.session = uuid.NewString()
	t.sequence = 0
	t.latest = nil
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stopCh, t.done)

	log.Printf("Tracking session %s started", t.session)
	return nil
}

// Stop halts the tracking loop and closes the camera. It waits for the loop
// to exit so the locator is never used concurrently.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stopCh, done := t.stopCh, t.done
	t.stopCh, t.done = nil, nil
	t.mu.Unlock()

	if stopCh == nil {
		return
	}

	close(stopCh)
	<-done

	if err := t.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	t.locator.Reset()

	log.Println("Tracking stopped")
}

// Close stops the tracker and releases the locator, the display frame and
// all subscriptions. A closed tracker cannot be started again.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.Stop()

	t.mu.Lock()
	for ch := range t.subs {
		delete(t.subs, ch)
		close(ch)
	}
	t.mu.Unlock()

	t.displayMu.Lock()
	t.display.Close()
	t.display = gocv.NewMat()
	t.displayMu.Unlock()

	return t.locator.Close()
}

// IsRunning reports whether the tracking loop is running.
func (t *Tracker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopCh != nil
}

// SetEnabled enables or disables tracking. Frames are not read while disabled.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// IsEnabled returns whether tracking is currently enabled.
func (t *Tracker) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetMaskView switches the display frame between the annotated camera frame
// and the rendered skin mask.
func (t *Tracker) SetMaskView(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maskView = on
}

// MaskView reports whether the display frame shows the skin mask.
func (t *Tracker) MaskView() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maskView
}

// Session returns the ID of the current or last tracking session.
func (t *Tracker) Session() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session
}

// Latest returns the most recent position, if any frame was located in the
// current session.
func (t *Tracker) Latest() (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return Position{}, false
	}
	return *t.latest, true
}

// Subscribe returns a channel receiving every new position and a function
// that cancels the subscription. Positions are dropped for subscribers that
// fall behind.
func (t *Tracker) Subscribe() (<-chan Position, func()) {
	ch := make(chan Position, t.config.SubscriberBuffer)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.subs[ch]; ok {
				delete(t.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Snapshot encodes the latest display frame as JPEG. It returns false when no
// frame has been displayed yet.
func (t *Tracker) Snapshot() ([]byte, bool, error) {
	t.displayMu.Lock()
	defer t.displayMu.Unlock()

	if t.display.Empty() {
		return nil, false, nil
	}

	buf, err := gocv.IMEncode(".jpg", t.display)
	if err != nil {
		return nil, false, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), true, nil
}

// Metrics returns the tracker metrics.
func (t *Tracker) Metrics() *metrics.Metrics {
	return t.metrics
}

// Camera returns the frame source.
func (t *Tracker) Camera() capture.Camera {
	return t.camera
}

// publish records pos as the latest position and hands it to subscribers.
func (t *Tracker) publish(pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.latest = &pos
	for ch := range t.subs {
		select {
		case ch <- pos:
		default:
			t.metrics.SubscriberDropped.Add(1)
		}
	}
}

// setDisplay replaces the display frame, taking ownership of frame.
func (t *Tracker) setDisplay(frame gocv.Mat) {
	t.displayMu.Lock()
	defer t.displayMu.Unlock()

	t.display.Close()
	t.display = frame
}

func (t *Tracker) nextPosition(r locator.Result, now time.Time) Position {
	t.mu.Lock()
	t.sequence++
	seq, session := t.sequence, t.session
	t.mu.Unlock()

	return Position{
		Session:   session,
		Sequence:  seq,
		Found:     r.Found,
		World:     r.World,
		Pixel:     r.Pixel,
		Area:      r.Area,
		Bounds:    boxOf(r.Bounds),
		Width:     r.FrameSize.X,
		Height:    r.FrameSize.Y,
		Timestamp: now.UnixMilli(),
	}
}
