// Package software registers the "cpu" compute device.
//
// The device executes the per-pixel Mandelbrot kernel on a goroutine
// pool with the same arithmetic as the GPU kernel: float32 coordinates
// and iteration, bailout at |z|^2 > 4. It also supports float64
// precision, which the GPU kernel does not.
//
// Usage:
//
//	import _ "github.com/gogpu/fractal/software"
//
//	d, err := fractal.Open("cpu")
package software

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/fractal"
	"github.com/gogpu/fractal/internal/parallel"
)

// DeviceName is the registry name of the CPU device.
const DeviceName = "cpu"

func init() {
	fractal.RegisterDevice(DeviceName, func(opts fractal.DeviceOptions) (fractal.Dispatcher, error) {
		d, err := New(opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// Dispatcher runs the kernel on host goroutines, one work item per row.
type Dispatcher struct {
	mu     sync.Mutex
	pool   *parallel.WorkerPool
	logger *slog.Logger
	closed bool
}

var _ fractal.Dispatcher = (*Dispatcher)(nil)

// New creates a CPU dispatcher. A kernel file cannot be honored by this
// device and is rejected with ErrKernelCompilation.
func New(opts fractal.DeviceOptions) (*Dispatcher, error) {
	if opts.KernelFile != "" {
		return nil, fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "load kernel",
			fmt.Errorf("%s: the cpu device only runs its built-in kernel", opts.KernelFile))
	}
	return &Dispatcher{
		pool:   parallel.NewWorkerPool(opts.Workers),
		logger: fractal.Logger(),
	}, nil
}

func (d *Dispatcher) Name() string { return DeviceName }

// SetLogger replaces the device logger.
func (d *Dispatcher) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = l
}

// Compute implements fractal.Dispatcher.
func (d *Dispatcher) Compute(ctx context.Context, req fractal.Request) (*fractal.IterationGrid, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "compute", fractal.ErrClosed)
	}

	grid := fractal.NewIterationGrid(req.Resolution)
	row := rowKernel32(req, grid)
	if req.Precision == fractal.PrecisionFloat64 {
		row = rowKernel64(req, grid)
	}

	d.logger.Debug("cpu dispatch",
		"width", req.Resolution.Width, "height", req.Resolution.Height,
		"precision", req.Precision, "workers", d.pool.Workers())

	if err := d.pool.ForEach(ctx, req.Resolution.Height, row); err != nil {
		if errors.Is(err, parallel.ErrPoolClosed) {
			err = fractal.ErrClosed
		}
		return nil, fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "execute kernel", err)
	}
	return grid, nil
}

// Close stops the worker pool.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.pool.Close()
	fractal.Detach(d)
}
