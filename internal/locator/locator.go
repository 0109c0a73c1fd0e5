// Package locator finds the largest skin-colored region in a video frame.
package locator

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ChannelOrder identifies the byte order of a frame's color channels.
type ChannelOrder int

const (
	// OrderRGB covers RGB and RGBA frames.
	OrderRGB ChannelOrder = iota
	// OrderBGR covers BGR and BGRA frames, as delivered by OpenCV captures.
	OrderBGR
)

// HSV is a hue/saturation/value triple in OpenCV's 8-bit convention
// (hue in [0,180], saturation and value in [0,255]).
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

func (c HSV) scalar() gocv.Scalar {
	return gocv.NewScalar(c.H, c.S, c.V, 0)
}

// Default skin range bounds.
var (
	DefaultSkinLower = HSV{H: 0, S: 70, V: 90}
	DefaultSkinUpper = HSV{H: 35, S: 255, V: 255}
)

// denoiseRadius is the radius of the elliptical structuring element used
// for the optional open/close pass.
const denoiseRadius = 3

// Config holds configuration options for the locator.
type Config struct {
	// Denoise applies a morphological opening followed by a closing to the
	// skin mask. Off by default since it costs latency.
	Denoise bool

	// Connectivity is 4 or 8 (default: 8).
	Connectivity int

	// SkinLower and SkinUpper bound the closed HSV box treated as skin.
	SkinLower HSV
	SkinUpper HSV

	// Order is the channel order of incoming frames (default: OrderRGB).
	Order ChannelOrder

	// ReuseBuffers keeps scratch buffers sized to the first frame across
	// calls. A frame of a different size then fails with ErrDimensionMismatch.
	ReuseBuffers bool

	// KeepMask copies the skin mask into Result.Mask.
	KeepMask bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Denoise:      false,
		Connectivity: 8,
		SkinLower:    DefaultSkinLower,
		SkinUpper:    DefaultSkinUpper,
		Order:        OrderRGB,
	}
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.Connectivity != 4 && c.Connectivity != 8 {
		return fmt.Errorf("connectivity must be 4 or 8, got %d", c.Connectivity)
	}
	if c.SkinLower.H > c.SkinUpper.H || c.SkinLower.S > c.SkinUpper.S || c.SkinLower.V > c.SkinUpper.V {
		return fmt.Errorf("skin range lower bound %v exceeds upper bound %v", c.SkinLower, c.SkinUpper)
	}
	if c.Order != OrderRGB && c.Order != OrderBGR {
		return fmt.Errorf("unknown channel order %d", c.Order)
	}
	return nil
}

// scratch holds the intermediate mats of one Locate call.
type scratch struct {
	rgb       gocv.Mat
	hsv       gocv.Mat
	mask      gocv.Mat
	labels    gocv.Mat
	stats     gocv.Mat
	centroids gocv.Mat
}

func newScratch() *scratch {
	return &scratch{
		rgb:       gocv.NewMat(),
		hsv:       gocv.NewMat(),
		mask:      gocv.NewMat(),
		labels:    gocv.NewMat(),
		stats:     gocv.NewMat(),
		centroids: gocv.NewMat(),
	}
}

func (s *scratch) Close() {
	s.rgb.Close()
	s.hsv.Close()
	s.mask.Close()
	s.labels.Close()
	s.stats.Close()
	s.centroids.Close()
}

// Locator runs the skin segmentation pipeline on frames.
// A Locator is not safe for concurrent use.
type Locator struct {
	config    Config
	kernel    gocv.Mat
	hasKernel bool
	scratch   *scratch
	size      image.Point
}

// New creates a Locator. Zero-valued Connectivity and skin bounds fall back to
// the defaults.
func New(config Config) (*Locator, error) {
	if config.Connectivity == 0 {
		config.Connectivity = 8
	}
	if config.SkinLower == (HSV{}) && config.SkinUpper == (HSV{}) {
		config.SkinLower = DefaultSkinLower
		config.SkinUpper = DefaultSkinUpper
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &Locator{config: config}
	if config.Denoise {
		size := 2*denoiseRadius + 1
		l.kernel = gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(size, size))
		l.hasKernel = true
	}
	return l, nil
}

// Config returns the locator configuration.
func (l *Locator) Config() Config {
	return l.config
}

// Locate finds the largest skin-colored component of frame and returns its
// centroid. A frame without skin yields a Result with Found set to false and
// a nil error. The frame is never modified.
func (l *Locator) Locate(frame *gocv.Mat) (Result, error) {
	size, err := checkFrame(frame)
	if err != nil {
		return Result{}, err
	}

	s, release, err := l.acquire(size)
	if err != nil {
		return Result{}, err
	}
	defer release()

	l.segment(*frame, s)

	n := gocv.ConnectedComponentsWithStatsWithParams(
		s.mask, &s.labels, &s.stats, &s.centroids,
		l.config.Connectivity, gocv.MatTypeCV32S, gocv.CCL_DEFAULT,
	)

	result := Result{FrameSize: size}

	label, area := largestComponent(s.stats, n)
	if label != 0 {
		pixel := Point{
			X: s.centroids.GetDoubleAt(label, 0),
			Y: s.centroids.GetDoubleAt(label, 1),
		}
		result.Found = true
		result.Pixel = pixel
		result.World = ToWorld(pixel, size.X, size.Y)
		result.Label = label
		result.Area = area
		result.Bounds = componentBounds(s.stats, label)
	}

	if l.config.KeepMask {
		mask := s.mask.Clone()
		result.Mask = &mask
	}

	return result, nil
}

// SetKeepMask switches whether Locate copies the skin mask into
// Result.Mask. Like Locate, it must not be called concurrently.
func (l *Locator) SetKeepMask(on bool) {
	l.config.KeepMask = on
}

// Reset releases reused scratch buffers so the next frame may have a
// different size.
func (l *Locator) Reset() {
	if l.scratch != nil {
		l.scratch.Close()
		l.scratch = nil
	}
	l.size = image.Point{}
}

// Close releases resources held by the locator.
func (l *Locator) Close() error {
	l.Reset()
	if l.hasKernel {
		l.kernel.Close()
		l.hasKernel = false
	}
	return nil
}

// acquire returns the scratch buffers for a frame of the given size and a
// function to call once the caller is done with them.
func (l *Locator) acquire(size image.Point) (*scratch, func(), error) {
	if !l.config.ReuseBuffers {
		s := newScratch()
		return s, s.Close, nil
	}

	if l.scratch == nil {
		l.scratch = newScratch()
		l.size = size
	} else if l.size != size {
		return nil, nil, fmt.Errorf("%w: initialized for %dx%d, got %dx%d",
			ErrDimensionMismatch, l.size.X, l.size.Y, size.X, size.Y)
	}
	return l.scratch, func() {}, nil
}

// segment writes the binary skin mask of frame into s.mask.
//
// Pipeline:
// 1. Drop alpha if present
// 2. Convert to HSV
// 3. Threshold against the skin box
// 4. Optionally open then close the mask
func (l *Locator) segment(frame gocv.Mat, s *scratch) {
	src := frame
	if frame.Channels() == 4 {
		// Dropping the fourth channel does not depend on channel order.
		gocv.CvtColor(frame, &s.rgb, gocv.ColorBGRAToBGR)
		src = s.rgb
	}

	code := gocv.ColorRGBToHSV
	if l.config.Order == OrderBGR {
		code = gocv.ColorBGRToHSV
	}
	gocv.CvtColor(src, &s.hsv, code)

	gocv.InRangeWithScalar(s.hsv, l.config.SkinLower.scalar(), l.config.SkinUpper.scalar(), &s.mask)

	if l.hasKernel {
		gocv.MorphologyEx(s.mask, &s.mask, gocv.MorphOpen, l.kernel)
		gocv.MorphologyEx(s.mask, &s.mask, gocv.MorphClose, l.kernel)
	}
}

// largestComponent scans the stats rows of a labeling with n labels and
// returns the label with the largest area. Label 0 is background and is
// skipped; a strict comparison keeps the lowest label on ties. Returns 0 when
// there is no foreground component.
func largestComponent(stats gocv.Mat, n int) (label, area int) {
	for i := 1; i < n; i++ {
		a := int(stats.GetIntAt(i, int(gocv.CC_STAT_AREA)))
		if a > area {
			area = a
			label = i
		}
	}
	return label, area
}

func componentBounds(stats gocv.Mat, label int) image.Rectangle {
	left := int(stats.GetIntAt(label, int(gocv.CC_STAT_LEFT)))
	top := int(stats.GetIntAt(label, int(gocv.CC_STAT_TOP)))
	width := int(stats.GetIntAt(label, int(gocv.CC_STAT_WIDTH)))
	height := int(stats.GetIntAt(label, int(gocv.CC_STAT_HEIGHT)))
	return image.Rect(left, top, left+width, top+height)
}
