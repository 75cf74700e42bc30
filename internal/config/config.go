// Package config parses the fractal-explorer command line.
//
// Every flag can also be set through an environment variable named
// FRACTAL_<FLAG> with dashes replaced by underscores (e.g.,
// FRACTAL_MAX_ITER=1000). Flags win over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/fractal"
)

// EnvPrefix is prepended to upper-cased flag names to form environment keys.
const EnvPrefix = "FRACTAL_"

// Config holds the startup configuration.
type Config struct {
	Device       string
	Width        int
	Height       int
	MaxIter      int
	Region       string
	Precision    fractal.Precision
	KernelFile   string
	FenceTimeout time.Duration
	Workers      int
	Output       string
	LogLevel     slog.Level
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Device:       "gpu",
		Width:        fractal.DefaultWidth,
		Height:       fractal.DefaultHeight,
		MaxIter:      fractal.DefaultMaxIter,
		Region:       "default",
		Precision:    fractal.PrecisionFloat32,
		FenceTimeout: 5 * time.Second,
		LogLevel:     slog.LevelInfo,
	}
}

// Parse reads flags from args, falling back to getenv and then to Default.
// getenv may be nil. Usage output goes to stderr.
func Parse(name string, args []string, getenv func(string) string, stderr io.Writer) (Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	cfg := Default()
	env := envSource{getenv: getenv}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var precision, logLevel string
	fs.StringVar(&cfg.Device, "device", env.str("device", cfg.Device), "compute device (gpu or cpu)")
	fs.IntVar(&cfg.Width, "width", env.int("width", cfg.Width), "image width in pixels")
	fs.IntVar(&cfg.Height, "height", env.int("height", cfg.Height), "image height in pixels")
	fs.IntVar(&cfg.MaxIter, "max-iter", env.int("max-iter", cfg.MaxIter), "iteration cap per pixel")
	fs.StringVar(&cfg.Region, "region", env.str("region", cfg.Region),
		"initial region: "+strings.Join(fractal.LandmarkNames(), ", "))
	fs.StringVar(&precision, "precision", env.str("precision", cfg.Precision.String()), "kernel arithmetic: float32 or float64 (cpu only)")
	fs.StringVar(&cfg.KernelFile, "kernel", env.str("kernel", ""), "WGSL kernel file (default: built-in kernel)")
	fs.DurationVar(&cfg.FenceTimeout, "timeout", env.duration("timeout", cfg.FenceTimeout), "maximum GPU wait per render")
	fs.IntVar(&cfg.Workers, "workers", env.int("workers", 0), "cpu device goroutines (0 = GOMAXPROCS)")
	fs.StringVar(&cfg.Output, "output", env.str("output", ""), "render once to this PNG file instead of opening a window")
	fs.StringVar(&logLevel, "log-level", env.str("log-level", "info"), "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("config: unexpected arguments %q", fs.Args())
	}

	var errs []error
	errs = append(errs, env.errs...)
	p, err := fractal.ParsePrecision(precision)
	if err != nil {
		errs = append(errs, fmt.Errorf("config: -precision: %w", err))
	}
	cfg.Precision = p
	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		errs = append(errs, fmt.Errorf("config: -log-level: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(fractal.Devices(), c.Device) {
		errs = append(errs, fmt.Errorf("config: unknown device %q (available: %v)", c.Device, fractal.Devices()))
	}
	if _, ok := fractal.Landmarks[c.Region]; !ok {
		errs = append(errs, fmt.Errorf("config: unknown region %q", c.Region))
	}
	if c.Precision == fractal.PrecisionFloat64 && c.Device != "cpu" {
		errs = append(errs, fmt.Errorf("config: float64 precision requires the cpu device"))
	}
	if c.FenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: timeout must be positive, got %v", c.FenceTimeout))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: workers must not be negative, got %d", c.Workers))
	}
	res := c.Resolution()
	if err := res.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if err := c.Viewport().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	return errors.Join(errs...)
}

// Resolution returns the configured render size.
func (c Config) Resolution() fractal.Resolution {
	return fractal.Resolution{Width: c.Width, Height: c.Height}
}

// Viewport returns the configured initial viewport.
func (c Config) Viewport() fractal.Viewport {
	base := fractal.Viewport{MaxIter: c.MaxIter}
	region, ok := fractal.Landmarks[c.Region]
	if !ok {
		region = fractal.Landmarks["default"]
	}
	return base.WithBounds(region)
}

// DeviceOptions returns the options passed to fractal.Open.
func (c Config) DeviceOptions() []fractal.DeviceOption {
	opts := []fractal.DeviceOption{fractal.WithWorkers(c.Workers)}
	if c.KernelFile != "" {
		opts = append(opts, fractal.WithKernelFile(c.KernelFile))
	}
	return opts
}

// envSource resolves flag defaults from the environment and remembers
// malformed values.
type envSource struct {
	getenv func(string) string
	errs   []error
}

// Key returns the environment variable name for a flag.
func Key(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func (e *envSource) str(name, def string) string {
	if v := e.getenv(Key(name)); v != "" {
		return v
	}
	return def
}

func (e *envSource) int(name string, def int) int {
	v := e.getenv(Key(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", Key(name), err))
		return def
	}
	return n
}

func (e *envSource) duration(name string, def time.Duration) time.Duration {
	v := e.getenv(Key(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", Key(name), err))
		return def
	}
	return d
}
