// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package window presents a fractal.Shell in a gogpu desktop window.
//
// The data flow per frame is:
//
//	Shell.Frame (*image.Gray) -> gg.ImageBuf -> ggcanvas.Canvas -> gogpu window
//
// Rendering is event-driven: the window redraws on startup, on resize and
// after the reset control. The reset control is a button in the control
// bar, released with the primary mouse button, or the R key; the bar also
// shows the current viewport and, after a failed render, the error. A failed render keeps the last good frame on screen.
package window

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/integration/ggcanvas"
	"github.com/gogpu/gg/text"
	"github.com/gogpu/gogpu"
	"github.com/gogpu/gpucontext"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/fractal"
)

// Title is the window title.
const Title = "Fractal Explorer (GPU)"

// Window owns the gogpu app and paints the shell's frame.
//
// All methods run on the gogpu UI thread; renders block it until the
// dispatcher returns.
type Window struct {
	app    *gogpu.App
	shell  *fractal.Shell
	layout layout
	logger *slog.Logger

	// onProvider is called once with the window's GPU context provider,
	// e.g. to share the device with the dispatcher.
	onProvider func(provider any)

	canvas *ggcanvas.Canvas
	face   text.Face

	image          *gg.ImageBuf
	imageGen       uint64
	started        bool
	resetRequested bool
	anim           *gogpu.AnimationToken
}

// Option configures a Window.
type Option func(*Window)

// WithLogger sets the window logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Window) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithProviderHook registers fn to receive the GPU context provider once
// the window is up.
func WithProviderHook(fn func(provider any)) Option {
	return func(w *Window) {
		w.onProvider = fn
	}
}

// New creates a window sized for the shell's resolution plus the control
// bar. The window opens when Run is called.
func New(sh *fractal.Shell, opts ...Option) *Window {
	w := &Window{
		shell:  sh,
		layout: newLayout(sh.Resolution()),
		logger: fractal.Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.face = loadFace(w.logger)

	w.app = gogpu.NewApp(gogpu.DefaultConfig().
		WithTitle(Title).
		WithSize(w.layout.Width, w.layout.Height).
		WithContinuousRender(false))

	w.app.OnDraw(w.draw)
	w.app.EventSource().OnKeyPress(func(key gpucontext.Key, _ gpucontext.Modifiers) {
		if key == gpucontext.KeyR {
			w.requestReset()
		}
	})
	w.app.EventSource().OnMouseRelease(func(button gpucontext.MouseButton, x, y float64) {
		if w.layout.hitReset(button, x, y) {
			w.requestReset()
		}
	})
	w.app.OnClose(func() {
		w.stopAnimation()
		if w.canvas != nil {
			if err := w.canvas.Close(); err != nil {
				w.logger.Warn("close canvas", "err", err)
			}
		}
	})
	return w
}

// Run opens the window and blocks until it is closed.
func (w *Window) Run() error {
	return w.app.Run()
}

// loadFace returns the UI font, or nil when it cannot be parsed (text is
// then skipped).
func loadFace(logger *slog.Logger) text.Face {
	source, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		logger.Warn("load UI font", "err", err)
		return nil
	}
	return source.Face(fontSize)
}

// requestReset schedules a reset for the next draw and wakes the event
// loop.
func (w *Window) requestReset() {
	if w.resetRequested {
		return
	}
	w.resetRequested = true
	if w.anim == nil {
		w.anim = w.app.StartAnimation()
	}
}

func (w *Window) stopAnimation() {
	if w.anim != nil {
		w.anim.Stop()
		w.anim = nil
	}
}

func (w *Window) draw(dc *gogpu.Context) {
	defer w.stopAnimation()

	width, height := dc.Width(), dc.Height()
	if width <= 0 || height <= 0 {
		return
	}
	if !w.ensureCanvas(width, height) {
		return
	}

	ctx := context.Background()
	switch {
	case !w.started:
		w.started = true
		w.report(w.shell.Render(ctx))
	case w.resetRequested:
		w.resetRequested = false
		w.report(w.shell.ResetView(ctx))
	}

	if err := w.canvas.Draw(w.paint); err != nil {
		w.logger.Warn("draw canvas", "err", err)
		return
	}
	if err := w.canvas.RenderTo(dc.AsTextureDrawer()); err != nil {
		w.logger.Warn("present canvas", "err", err)
	}
}

func (w *Window) ensureCanvas(width, height int) bool {
	if w.canvas == nil {
		provider := w.app.GPUContextProvider()
		if provider == nil {
			return false
		}
		if w.onProvider != nil {
			w.onProvider(provider)
		}
		c, err := ggcanvas.New(provider, width, height)
		if err != nil {
			w.logger.Error("create canvas", "err", err)
			return false
		}
		w.canvas = c
		return true
	}
	if cw, ch := w.canvas.Size(); cw != width || ch != height {
		if err := w.canvas.Resize(width, height); err != nil {
			w.logger.Warn("resize canvas", "err", err)
		}
	}
	return true
}

// report logs render failures. The shell keeps the error for the banner.
func (w *Window) report(err error) {
	if err == nil || errors.Is(err, fractal.ErrRenderInProgress) {
		return
	}
	w.logger.Warn("render failed", "err", err)
}

// paint composes the frame, the control bar and the error banner.
func (w *Window) paint(cc *gg.Context) {
	cc.ClearWithColor(gg.RGB(0.08, 0.08, 0.1))

	if gen := w.shell.Generation(); gen != w.imageGen || w.image == nil {
		if frame := w.shell.Frame(); frame != nil {
			w.image = gg.ImageBufFromImage(frame)
			w.imageGen = gen
		}
	}
	if w.image != nil {
		cc.DrawImage(w.image, w.layout.Image.X, w.layout.Image.Y)
	}

	bar, btn := w.layout.Bar, w.layout.Button
	cc.SetRGB(0.16, 0.16, 0.19)
	cc.DrawRectangle(bar.X, bar.Y, bar.W, bar.H)
	_ = cc.Fill()

	cc.SetRGB(0.26, 0.42, 0.72)
	cc.DrawRoundedRectangle(btn.X, btn.Y, btn.W, btn.H, buttonRadius)
	_ = cc.Fill()

	if w.face == nil {
		return
	}
	cc.SetFont(w.face)
	cc.SetRGB(1, 1, 1)
	cc.DrawStringAnchored(ResetLabel, btn.X+btn.W/2, btn.Y+btn.H/2, 0.5, 0.5)

	cc.SetRGB(0.7, 0.7, 0.75)
	cc.DrawString(statusText(w.shell), 10, bar.Y+bar.H-8)

	if msg := errorText(w.shell.Err()); msg != "" {
		cc.SetRGBA(0.55, 0.05, 0.05, 0.85)
		cc.DrawRectangle(0, 0, w.layout.Image.W, 28)
		_ = cc.Fill()
		cc.SetRGB(1, 1, 1)
		cc.DrawString(msg, 10, 19)
	}
}
