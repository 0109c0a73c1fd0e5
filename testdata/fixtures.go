// Package testdata builds synthetic frames for locator, tracker and server tests.
package testdata

import (
	"image"

	"gocv.io/x/gocv"
)

// Skin is an RGB color inside the default skin range (HSV 11,102,200).
var Skin = [3]float64{200, 150, 120}

// Background is an RGB color outside the skin range (HSV 120,255,255).
var Background = [3]float64{0, 0, 255}

// Frame describes a synthetic frame: a background with skin rectangles.
type Frame struct {
	Width    int
	Height   int
	Channels int  // 3 or 4
	BGR      bool // store channels as BGR(A) instead of RGB(A)
	Rects    []image.Rectangle
}

func (f Frame) scalar(rgb [3]float64) gocv.Scalar {
	if f.BGR {
		return gocv.NewScalar(rgb[2], rgb[1], rgb[0], 255)
	}
	return gocv.NewScalar(rgb[0], rgb[1], rgb[2], 255)
}

// Mat renders the frame. The caller must Close the returned Mat.
func (f Frame) Mat() gocv.Mat {
	channels := f.Channels
	if channels == 0 {
		channels = 3
	}
	mt := gocv.MatTypeCV8UC3
	if channels == 4 {
		mt = gocv.MatTypeCV8UC4
	}

	mat := gocv.NewMatWithSize(f.Height, f.Width, mt)
	mat.SetTo(f.scalar(Background))

	for _, r := range f.Rects {
		region := mat.Region(r)
		region.SetTo(f.scalar(Skin))
		region.Close()
	}

	return mat
}

// Center returns the geometric center of r in pixel coordinates, i.e. the
// mean of its member pixel coordinates.
func Center(r image.Rectangle) (x, y float64) {
	return float64(r.Min.X+r.Max.X-1) / 2, float64(r.Min.Y+r.Max.Y-1) / 2
}

// Sequence renders one frame per rectangle, each holding that single
// rectangle. The caller must Close every returned Mat.
func Sequence(width, height int, bgr bool, rects ...image.Rectangle) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, len(rects))
	for _, r := range rects {
		m := Frame{Width: width, Height: height, BGR: bgr, Rects: []image.Rectangle{r}}.Mat()
		frames = append(frames, &m)
	}
	return frames
}
