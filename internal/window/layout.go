package window

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/fractal"
	"github.com/gogpu/gpucontext"
)

// Layout of the window: the fractal image on top, a control bar below.
const (
	controlBarHeight = 48
	buttonWidth      = 180
	buttonHeight     = 32
	buttonRadius     = 6
	fontSize         = 15
)

// ResetLabel is the text of the reset control.
const ResetLabel = "Reset View  [R]"

// rect is an axis-aligned rectangle in window pixels.
type rect struct {
	X, Y, W, H float64
}

// contains reports whether (x, y) lies inside r. The right and bottom
// edges are exclusive.
func (r rect) contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// layout computes element positions for an image of size res.
type layout struct {
	Width, Height int // whole window
	Image         rect
	Bar           rect
	Button        rect
}

func newLayout(res fractal.Resolution) layout {
	w, h := float64(res.Width), float64(res.Height)
	bw := min(float64(buttonWidth), w-8)
	return layout{
		Width:  res.Width,
		Height: res.Height + controlBarHeight,
		Image:  rect{0, 0, w, h},
		Bar:    rect{0, h, w, controlBarHeight},
		Button: rect{
			X: (w - bw) / 2,
			Y: h + (controlBarHeight-buttonHeight)/2,
			W: bw,
			H: buttonHeight,
		},
	}
}

// hitReset reports whether a mouse release at (x, y) activates the reset
// button.
func (l layout) hitReset(button gpucontext.MouseButton, x, y float64) bool {
	return button == gpucontext.MouseButtonLeft && l.Button.contains(x, y)
}

// statusText formats the control bar status for the shell state.
func statusText(sh *fractal.Shell) string {
	if sh.State() == fractal.StateRendering {
		return "rendering..."
	}
	v := sh.Viewport()
	return fmt.Sprintf("x [%.4g, %.4g]  y [%.4g, %.4g]  iter %d",
		v.XMin, v.XMax, v.YMin, v.YMax, v.MaxIter)
}

// errorText formats a render failure for the on-screen banner. It names
// the failure class first so the banner stays readable when truncated.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	class := "render failed"
	switch {
	case errors.Is(err, fractal.ErrDeviceUnavailable):
		class = "no compute device"
	case errors.Is(err, fractal.ErrKernelCompilation):
		class = "kernel compilation failed"
	case errors.Is(err, fractal.ErrAllocation):
		class = "device allocation failed"
	case errors.Is(err, fractal.ErrLaunch):
		class = "kernel launch failed"
	case errors.Is(err, fractal.ErrInvalidRequest):
		class = "invalid viewport"
	}
	msg := strings.ReplaceAll(err.Error(), "\n", "; ")
	return class + ": " + msg
}
