// Command fractal-explorer renders the Mandelbrot set on a compute device
// and shows it in a window with a reset control.
//
// Usage:
//
//	fractal-explorer [flags]
//
// With -output the set is rendered once to a PNG file and no window is
// opened. See -help for all flags; each flag can also be set through a
// FRACTAL_* environment variable.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/gg"

	"github.com/gogpu/fractal"
	"github.com/gogpu/fractal/gpu"
	"github.com/gogpu/fractal/internal/config"
	"github.com/gogpu/fractal/internal/window"
	_ "github.com/gogpu/fractal/software" // register the cpu device
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse("fractal-explorer", args, os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	fractal.SetLogger(logger)
	gg.SetLogger(logger)

	d, err := fractal.Open(cfg.Device, cfg.DeviceOptions()...)
	if err != nil {
		logger.Error("open compute device", "device", cfg.Device, "err", err)
		return 1
	}
	defer d.Close()
	if ft, ok := d.(interface{ SetFenceTimeout(time.Duration) }); ok {
		ft.SetFenceTimeout(cfg.FenceTimeout)
	}

	sh := fractal.NewShell(d, cfg.Resolution(),
		fractal.WithViewport(cfg.Viewport()),
		fractal.WithMaxIter(cfg.MaxIter),
		fractal.WithPrecision(cfg.Precision))

	if cfg.Output != "" {
		return renderOnce(logger, sh, cfg.Output)
	}

	w := window.New(sh,
		window.WithLogger(logger),
		window.WithProviderHook(func(provider any) {
			if err := gpu.SetDeviceProvider(d, provider); err != nil {
				logger.Debug("device sharing unavailable, keeping own device", "err", err)
			}
		}))
	if err := w.Run(); err != nil {
		logger.Error("window", "err", err)
		return 1
	}
	return 0
}

// renderOnce renders the initial viewport and writes it to path.
func renderOnce(logger *slog.Logger, sh *fractal.Shell, path string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := sh.Render(ctx); err != nil {
		logger.Error("render", "err", err)
		return 1
	}
	if err := window.Snapshot(sh.Frame(), path); err != nil {
		logger.Error("save frame", "err", err)
		return 1
	}
	res := sh.Resolution()
	logger.Info("frame saved", "path", path, "width", res.Width, "height", res.Height,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return 0
}
