package fractal

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// State is the render state of a Shell.
type State uint8

const (
	// StateIdle means the shell is displaying its last good frame (or
	// nothing, before the first successful render).
	StateIdle State = iota

	// StateRendering means a dispatcher call is in flight.
	StateRendering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Shell holds the viewport, drives the dispatcher and keeps the most
// recent displayable frame. It does not know about windows: a UI layer
// calls Render/ResetView and paints Frame.
//
// Render is synchronous. Only one render may be in flight; a concurrent
// Render or ResetView returns ErrRenderInProgress without side effects.
type Shell struct {
	mu sync.Mutex

	dispatcher Dispatcher
	resolution Resolution
	precision  Precision

	home     Viewport
	viewport Viewport

	state      State
	frame      *image.Gray
	err        error
	generation uint64
}

// NewShell creates a shell rendering at res through d. No render happens
// until Render is called.
func NewShell(d Dispatcher, res Resolution, opts ...ShellOption) *Shell {
	o := defaultShellOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Shell{
		dispatcher: d,
		resolution: res,
		precision:  o.precision,
		home:       o.home,
		viewport:   o.initial,
	}
}

// Render computes the current viewport and replaces the frame.
//
// On failure the previous frame is kept, the error is recorded (see Err)
// and returned. The shell always ends in StateIdle.
func (s *Shell) Render(ctx context.Context) error {
	req, err := s.begin(false)
	if err != nil {
		return err
	}
	return s.render(ctx, req)
}

// begin moves the shell into StateRendering and snapshots the request.
// With reset set the viewport is first restored to the home bounds. Both
// happen under one lock, so a rejected call changes nothing.
func (s *Shell) begin(reset bool) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRendering {
		return Request{}, ErrRenderInProgress
	}
	if reset {
		s.viewport = s.home
	}
	s.state = StateRendering
	return Request{Viewport: s.viewport, Resolution: s.resolution, Precision: s.precision}, nil
}

func (s *Shell) render(ctx context.Context, req Request) error {
	start := time.Now()
	img, err := s.renderFrame(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	if err != nil {
		s.err = err
		Logger().Warn("render failed", "device", s.dispatcher.Name(), "err", err)
		return err
	}
	s.frame = img
	s.err = nil
	s.generation++
	Logger().Debug("render complete",
		"device", s.dispatcher.Name(),
		"width", req.Resolution.Width, "height", req.Resolution.Height,
		"max_iter", req.Viewport.MaxIter,
		"elapsed", time.Since(start))
	return nil
}

func (s *Shell) renderFrame(ctx context.Context, req Request) (*image.Gray, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	grid, err := s.dispatcher.Compute(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := grid.Validate(req); err != nil {
		return nil, NewDeviceError(ErrLaunch, s.dispatcher.Name(), "validate result", err)
	}
	return Normalize(grid)
}

// ResetView restores the default viewport bounds and renders. While a
// render is in flight it returns ErrRenderInProgress and leaves the
// viewport untouched.
func (s *Shell) ResetView(ctx context.Context) error {
	req, err := s.begin(true)
	if err != nil {
		return err
	}
	Logger().Debug("viewport reset",
		"x_min", req.Viewport.XMin, "x_max", req.Viewport.XMax,
		"y_min", req.Viewport.YMin, "y_max", req.Viewport.YMax)
	return s.render(ctx, req)
}

// Viewport returns the current viewport.
func (s *Shell) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Resolution returns the fixed render resolution.
func (s *Shell) Resolution() Resolution { return s.resolution }

// Frame returns the last successfully rendered image, or nil before the
// first successful render. Callers must not modify it.
func (s *Shell) Frame() *image.Gray {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Err returns the error of the most recent render, or nil if it succeeded.
func (s *Shell) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current render state.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation counts successful renders. The UI compares it against the
// last painted generation to decide whether to re-upload the frame.
func (s *Shell) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}
