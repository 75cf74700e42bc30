// Package gpu registers the "gpu" compute device.
//
// The device runs the Mandelbrot kernel as a wgpu/hal compute shader: one
// invocation per pixel, 8x8 workgroups, an int32 storage buffer copied to
// a staging buffer, mapped and read back once the queue reports the
// submission complete.
//
// The kernel is WGSL, compiled to SPIR-V through naga when the dispatcher
// is constructed. It can be replaced by a file with fractal.WithKernelFile
// as long as it keeps the binding layout of shaders/mandelbrot.wgsl.
//
// Building with -tags nogpu keeps the device registered but makes Open
// fail with fractal.ErrDeviceUnavailable.
//
// Usage:
//
//	import _ "github.com/gogpu/fractal/gpu" // register the gpu device
package gpu

import (
	"github.com/gogpu/fractal"
)

// DeviceName is the registry name of the GPU device.
const DeviceName = "gpu"

func init() {
	fractal.RegisterDevice(DeviceName, func(opts fractal.DeviceOptions) (fractal.Dispatcher, error) {
		d, err := New(opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// SetDeviceProvider makes d run on a GPU device shared with an external
// provider (e.g., a gogpu window). It is a no-op for dispatchers that do
// not support device sharing.
//
// The provider should implement HalDevice() any and HalQueue() any
// returning wgpu/hal types.
func SetDeviceProvider(d fractal.Dispatcher, provider any) error {
	if dpa, ok := d.(fractal.DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
