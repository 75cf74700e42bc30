//go:build nogpu

package gpu

import (
	"context"
	"errors"

	"github.com/gogpu/fractal"
)

// Dispatcher is unavailable in nogpu builds.
type Dispatcher struct{}

// New always fails with fractal.ErrDeviceUnavailable in nogpu builds.
func New(fractal.DeviceOptions) (*Dispatcher, error) {
	return nil, fractal.NewDeviceError(fractal.ErrDeviceUnavailable, DeviceName, "open",
		errors.New("built with -tags nogpu"))
}

func (*Dispatcher) Name() string { return DeviceName }

func (*Dispatcher) Compute(context.Context, fractal.Request) (*fractal.IterationGrid, error) {
	return nil, fractal.NewDeviceError(fractal.ErrDeviceUnavailable, DeviceName, "compute", nil)
}

func (*Dispatcher) Close() {}
