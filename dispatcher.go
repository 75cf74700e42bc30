package fractal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Dispatcher computes iteration grids on a compute device.
//
// A Dispatcher is constructed once (see Open) and owns its device,
// queue and compiled kernel. Compute is a pure function of the request:
// it never caches results and never returns a partial grid together with
// an error.
//
// Implementations are provided by device packages and made available
// through a blank import:
//
//	import _ "github.com/gogpu/fractal/gpu" // registers the "gpu" device
type Dispatcher interface {
	// Name returns the device name (e.g., "gpu", "cpu").
	Name() string

	// Compute runs the kernel for req and returns a grid of exactly
	// req.Resolution pixels with every count in [0, req.Viewport.MaxIter].
	Compute(ctx context.Context, req Request) (*IterationGrid, error)

	// Close releases device resources. Close is safe to call twice.
	Close()
}

// DeviceProviderAware is an optional interface for dispatchers that can
// run on a GPU device owned by someone else (e.g., a gogpu window).
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

// DeviceOptions configures dispatcher construction.
type DeviceOptions struct {
	// KernelFile overrides the compiled-in kernel source. Empty means the
	// embedded kernel.
	KernelFile string

	// Workers bounds host parallelism for CPU devices. 0 means GOMAXPROCS.
	Workers int
}

// DeviceFactory constructs a dispatcher from options.
type DeviceFactory func(opts DeviceOptions) (Dispatcher, error)

var (
	devicesMu sync.RWMutex
	devices   = map[string]DeviceFactory{}
)

// RegisterDevice makes a dispatcher implementation available to Open.
// Registering the same name twice replaces the previous factory.
//
// Typical usage in device packages:
//
//	func init() {
//	    fractal.RegisterDevice("gpu", New)
//	}
func RegisterDevice(name string, factory DeviceFactory) {
	if name == "" || factory == nil {
		panic("fractal: RegisterDevice requires a name and a factory")
	}
	devicesMu.Lock()
	devices[name] = factory
	devicesMu.Unlock()
}

// Devices returns the sorted names of the registered devices.
func Devices() []string {
	devicesMu.RLock()
	defer devicesMu.RUnlock()
	return slices.Sorted(maps.Keys(devices))
}

// Open constructs the named dispatcher. There is no fallback: an unknown
// name fails with ErrDeviceUnavailable and a factory failure is returned
// unchanged.
func Open(name string, opts ...DeviceOption) (Dispatcher, error) {
	devicesMu.RLock()
	factory, ok := devices[name]
	devicesMu.RUnlock()
	if !ok {
		return nil, NewDeviceError(ErrDeviceUnavailable, name, "open",
			fmt.Errorf("not registered (available: %v)", Devices()))
	}

	o := DeviceOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	d, err := factory(o)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, NewDeviceError(ErrDeviceUnavailable, name, "open", errors.New("factory returned nil"))
	}
	propagateLogger(d, Logger())
	track(d)
	Logger().Info("compute device opened", "device", d.Name())
	return d, nil
}

// live holds the dispatchers opened through Open that accept a logger, so
// SetLogger reaches them after they are opened.
var (
	liveMu sync.Mutex
	live   = map[Dispatcher]struct{}{}
)

func track(d Dispatcher) {
	if _, ok := d.(loggerSetter); !ok {
		return
	}
	liveMu.Lock()
	live[d] = struct{}{}
	liveMu.Unlock()
}

// Detach stops SetLogger from reaching d. Device packages call it from
// Close. Detaching an untracked dispatcher is a no-op.
func Detach(d Dispatcher) {
	liveMu.Lock()
	delete(live, d)
	liveMu.Unlock()
}

func liveDispatchers() []Dispatcher {
	liveMu.Lock()
	defer liveMu.Unlock()
	return slices.Collect(maps.Keys(live))
}
