package locator

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"runtime"

	"gocv.io/x/gocv"
)

// markerColor is the color of the centroid marker drawn by DrawMarker.
var markerColor = color.RGBA{R: 255, G: 64, B: 0, A: 255}

// RenderMask runs the segmentation stages of the pipeline on frame and
// returns the skin mask as a 4-channel image of the same size: skin pixels
// are opaque white, everything else opaque black. The caller must Close the
// returned Mat.
func (l *Locator) RenderMask(frame *gocv.Mat) (gocv.Mat, error) {
	size, err := checkFrame(frame)
	if err != nil {
		return gocv.NewMat(), err
	}

	s, release, err := l.acquire(size)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer release()

	l.segment(*frame, s)

	return MaskToRGBA(s.mask), nil
}

// MaskToRGBA expands a single-channel mask into an opaque 4-channel image.
// The caller must Close the returned Mat.
func MaskToRGBA(mask gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	// Gray to 4 channels sets alpha to 255 and is identical for RGBA and BGRA.
	gocv.CvtColor(mask, &out, gocv.ColorGrayToBGRA)
	return out
}

// DrawMarker draws a filled circle at the pixel centroid of r onto img.
// It does nothing when r is not Found.
func DrawMarker(img *gocv.Mat, r Result) {
	if !r.Found {
		return
	}
	center := image.Pt(int(r.Pixel.X+0.5), int(r.Pixel.Y+0.5))
	gocv.Circle(img, center, 8, markerColor, -1)
	gocv.Rectangle(img, r.Bounds, markerColor, 2)
}

// FromImage converts a Go image into a 4-channel RGBA frame suitable for
// Locate with OrderRGB. The caller must Close the returned Mat.
func FromImage(img image.Image) (gocv.Mat, error) {
	if img == nil || img.Bounds().Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	view, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("convert image: %w", err)
	}
	defer view.Close()

	// The view borrows rgba.Pix; the clone owns its own pixels.
	mat := view.Clone()
	runtime.KeepAlive(rgba)
	return mat, nil
}
