package fractal

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
)

// Default viewport bounds of the Mandelbrot set.
const (
	DefaultXMin    = -2.0
	DefaultXMax    = 1.0
	DefaultYMin    = -1.5
	DefaultYMax    = 1.5
	DefaultMaxIter = 500

	DefaultWidth  = 800
	DefaultHeight = 800
)

// Viewport is the rectangular region of the complex plane mapped onto the
// image, plus the iteration cap used for every pixel.
type Viewport struct {
	XMin, XMax float64 // real axis
	YMin, YMax float64 // imaginary axis
	MaxIter    int
}

// DefaultViewport returns x in [-2, 1], y in [-1.5, 1.5] with
// DefaultMaxIter iterations.
func DefaultViewport() Viewport {
	return Viewport{
		XMin: DefaultXMin, XMax: DefaultXMax,
		YMin: DefaultYMin, YMax: DefaultYMax,
		MaxIter: DefaultMaxIter,
	}
}

// WithBounds returns a copy of v with the bounds of r and v's iteration cap.
func (v Viewport) WithBounds(r Viewport) Viewport {
	r.MaxIter = v.MaxIter
	return r
}

// Validate reports whether v can be rendered. Bounds need not be ordered:
// swapped bounds mirror the image and equal bounds repeat one coordinate
// along that axis.
func (v Viewport) Validate() error {
	for _, f := range [...]float64{v.XMin, v.XMax, v.YMin, v.YMax} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite viewport bound %v", ErrInvalidRequest, f)
		}
	}
	if v.MaxIter < 0 || v.MaxIter > math.MaxInt32 {
		return fmt.Errorf("%w: max_iter %d out of range", ErrInvalidRequest, v.MaxIter)
	}
	return nil
}

// Resolution is the pixel size of an iteration grid.
type Resolution struct {
	Width, Height int
}

// DefaultResolution returns the 800x800 window resolution.
func DefaultResolution() Resolution {
	return Resolution{Width: DefaultWidth, Height: DefaultHeight}
}

// Pixels returns Width*Height.
func (r Resolution) Pixels() int { return r.Width * r.Height }

// Validate reports whether r describes a non-empty grid whose pixel count
// fits a 32-bit kernel index.
func (r Resolution) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d must be positive", ErrInvalidRequest, r.Width, r.Height)
	}
	if int64(r.Width)*int64(r.Height) > math.MaxInt32 {
		return fmt.Errorf("%w: resolution %dx%d exceeds kernel index range", ErrInvalidRequest, r.Width, r.Height)
	}
	return nil
}

// Precision selects the floating point width of the per-pixel arithmetic.
//
// Viewport bounds are always stored as float64. With PrecisionFloat32 they
// are narrowed before reaching the kernel, which limits useful zoom depth
// to roughly 1e-6 of the default viewport width.
type Precision uint8

const (
	// PrecisionFloat32 is the kernel contract and the default.
	PrecisionFloat32 Precision = iota

	// PrecisionFloat64 is available on devices that support it.
	PrecisionFloat64
)

func (p Precision) String() string {
	switch p {
	case PrecisionFloat32:
		return "float32"
	case PrecisionFloat64:
		return "float64"
	default:
		return fmt.Sprintf("Precision(%d)", uint8(p))
	}
}

// ParsePrecision parses "float32" or "float64" (also "f32", "f64").
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "float32", "f32", "":
		return PrecisionFloat32, nil
	case "float64", "f64":
		return PrecisionFloat64, nil
	}
	return 0, fmt.Errorf("fractal: unknown precision %q", s)
}

// Request is a single dispatcher invocation.
type Request struct {
	Viewport   Viewport
	Resolution Resolution
	Precision  Precision
}

// Validate checks the dispatcher contract: width, height > 0, max_iter >= 0
// and a non-empty viewport.
func (r Request) Validate() error {
	if r.Precision > PrecisionFloat64 {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, r.Precision)
	}
	return errors.Join(r.Resolution.Validate(), r.Viewport.Validate())
}

// Coord returns the complex coordinate of pixel (col, row). Pixel (0, 0)
// maps to (XMin, YMin) and pixel (Width-1, Height-1) to (XMax, YMax).
// A single-pixel axis maps to its min bound.
func (r Request) Coord(col, row int) (re, im float64) {
	v := r.Viewport
	return lerp(v.XMin, v.XMax, col, r.Resolution.Width), lerp(v.YMin, v.YMax, row, r.Resolution.Height)
}

// Bounds32 returns the viewport bounds narrowed to float32, as passed to
// the kernel.
func (r Request) Bounds32() (xMin, xMax, yMin, yMax float32) {
	v := r.Viewport
	return float32(v.XMin), float32(v.XMax), float32(v.YMin), float32(v.YMax)
}

func lerp(lo, hi float64, i, n int) float64 {
	if n <= 1 {
		return lo
	}
	t := float64(i) / float64(n-1)
	return lo*(1-t) + hi*t
}

// Landmarks are well known regions of the Mandelbrot set, keyed by name.
// Their MaxIter is zero; combine them with a cap via Viewport.WithBounds.
var Landmarks = map[string]Viewport{
	"default": {XMin: DefaultXMin, XMax: DefaultXMax, YMin: DefaultYMin, YMax: DefaultYMax},

	// Dense filaments and repeating curls.
	"seahorse-valley": {XMin: -0.8, XMax: -0.7, YMin: 0.05, YMax: 0.15},

	// Large bulb with trunk-like tendrils.
	"elephant-valley": {XMin: -1.85, XMax: -1.75, YMin: -0.10, YMax: -0.02},

	"spiral-minibrot": {XMin: -0.7435, XMax: -0.7420, YMin: 0.1310, YMax: 0.1325},
	"triple-spiral":   {XMin: -0.7480, XMax: -0.7450, YMin: 0.0950, YMax: 0.0980},
	"dragon-valley":   {XMin: -0.7400, XMax: -0.7350, YMin: 0.1800, YMax: 0.1850},
	"mini-spiral":     {XMin: -1.7390, XMax: -1.7375, YMin: -0.0235, YMax: -0.0220},
}

// LandmarkNames returns the sorted landmark keys.
func LandmarkNames() []string {
	return slices.Sorted(maps.Keys(Landmarks))
}
