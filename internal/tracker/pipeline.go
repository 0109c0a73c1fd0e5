package tracker

import (
	"errors"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handlocator/internal/locator"
)

// run is the tracking loop. It is the only goroutine that touches the
// locator while a session is active.
//
// Loop logic:
// 1. Tick at the camera FPS
// 2. Skip the tick while tracking is disabled
// 3. Read a frame; on error count it and wait for the next tick
// 4. Locate the hand and publish the position
// 5. Refresh the display frame
func (t *Tracker) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := t.camera.FPS()
	if fps <= 0 {
		fps = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var lastErr error

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !t.IsEnabled() {
				continue
			}

			frame, err := t.camera.ReadFrame()
			if err != nil {
				t.metrics.ReadErrors.Add(1)
				// Log once per run of identical errors
				if lastErr == nil || lastErr.Error() != err.Error() {
					log.Printf("Error reading frame: %v", err)
				}
				lastErr = err
				continue
			}
			lastErr = nil
			t.metrics.FramesRead.Add(1)

			t.processFrame(frame)
			frame.Close()
		}
	}
}

// processFrame locates the hand in one frame and publishes the result. The
// frame stays owned by the caller.
func (t *Tracker) processFrame(frame *gocv.Mat) {
	maskView := t.MaskView()
	t.locator.SetKeepMask(maskView)

	start := time.Now()
	result, err := t.locator.Locate(frame)

	if errors.Is(err, locator.ErrDimensionMismatch) {
		log.Printf("Frame size changed, resetting locator: %v", err)
		t.metrics.DimensionResets.Add(1)
		t.locator.Reset()
		start = time.Now()
		result, err = t.locator.Locate(frame)
	}

	if err != nil {
		if errors.Is(err, locator.ErrInvalidInput) {
			t.metrics.FramesInvalid.Add(1)
		}
		log.Printf("Error locating hand: %v", err)
		return
	}
	defer result.Close()

	t.metrics.ObserveLocate(result.Found, time.Since(start))

	t.publish(t.nextPosition(result, time.Now()))
	t.refreshDisplay(frame, result, maskView)
}

// refreshDisplay builds the frame shown by Snapshot: the skin mask kept by
// Locate in mask view, otherwise the camera frame with the centroid marked.
func (t *Tracker) refreshDisplay(frame *gocv.Mat, result locator.Result, maskView bool) {
	if maskView && result.Mask != nil {
		mask := locator.MaskToRGBA(*result.Mask)
		display := gocv.NewMat()
		gocv.CvtColor(mask, &display, gocv.ColorBGRAToBGR)
		mask.Close()
		t.setDisplay(display)
		return
	}

	display := frame.Clone()
	if display.Channels() == 4 {
		bgr := gocv.NewMat()
		gocv.CvtColor(display, &bgr, gocv.ColorBGRAToBGR)
		display.Close()
		display = bgr
	}
	locator.DrawMarker(&display, result)
	t.setDisplay(display)
}
