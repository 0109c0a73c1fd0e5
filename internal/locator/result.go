package locator

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

var (
	// ErrInvalidInput is returned for frames that are empty or do not have
	// 3 or 4 8-bit channels. The caller should skip the frame.
	ErrInvalidInput = errors.New("invalid input frame")

	// ErrDimensionMismatch is returned when buffer reuse is enabled and a
	// frame's size differs from the first frame's. The caller should Reset
	// the locator.
	ErrDimensionMismatch = errors.New("frame dimensions changed")
)

// Point is a 2D point with floating-point coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result is the outcome of a Locate call.
type Result struct {
	// Found is false when the frame contains no skin-colored component.
	Found bool

	// World is the centroid in center-origin, y-up coordinates.
	World Point

	// Pixel is the centroid in image coordinates (origin top-left, y down).
	Pixel Point

	// Label is the component id of the selected region.
	Label int

	// Area is the pixel count of the selected region.
	Area int

	// Bounds is the bounding box of the selected region.
	Bounds image.Rectangle

	// FrameSize is the width and height of the located frame.
	FrameSize image.Point

	// Mask is a copy of the single-channel skin mask, set only when
	// Config.KeepMask is true. The caller owns it and must Close it.
	Mask *gocv.Mat
}

// Close releases the mask copy, if any.
func (r *Result) Close() {
	if r.Mask != nil {
		r.Mask.Close()
		r.Mask = nil
	}
}

// ToWorld maps a pixel coordinate of a width x height frame to a coordinate
// system with the origin at the frame center and y pointing up.
func ToWorld(p Point, width, height int) Point {
	return Point{
		X: p.X - float64(width)/2,
		Y: float64(height)/2 - p.Y,
	}
}

// checkFrame validates a frame and returns its size.
func checkFrame(frame *gocv.Mat) (image.Point, error) {
	if frame == nil {
		return image.Point{}, fmt.Errorf("%w: nil frame", ErrInvalidInput)
	}

	width, height := frame.Cols(), frame.Rows()
	if width <= 0 || height <= 0 {
		return image.Point{}, fmt.Errorf("%w: size %dx%d", ErrInvalidInput, width, height)
	}

	switch frame.Type() {
	case gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4:
	default:
		return image.Point{}, fmt.Errorf("%w: %d channels of type %v, want 3 or 4 8-bit channels",
			ErrInvalidInput, frame.Channels(), frame.Type())
	}

	return image.Pt(width, height), nil
}
