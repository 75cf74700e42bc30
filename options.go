package fractal

// DeviceOption configures a dispatcher during Open.
//
// Example:
//
//	d, err := fractal.Open("gpu", fractal.WithKernelFile("kernels/mandelbrot.wgsl"))
type DeviceOption func(*DeviceOptions)

// WithKernelFile loads the kernel source from path instead of the
// compiled-in kernel. The file is read and compiled when the dispatcher
// is constructed; failures surface as ErrKernelCompilation.
func WithKernelFile(path string) DeviceOption {
	return func(o *DeviceOptions) {
		o.KernelFile = path
	}
}

// WithWorkers bounds the number of host goroutines used by CPU devices.
func WithWorkers(n int) DeviceOption {
	return func(o *DeviceOptions) {
		o.Workers = n
	}
}

// ShellOption configures a Shell during creation.
//
// Example:
//
//	sh := fractal.NewShell(d, fractal.DefaultResolution(),
//	    fractal.WithMaxIter(1000),
//	    fractal.WithPrecision(fractal.PrecisionFloat32))
type ShellOption func(*shellOptions)

type shellOptions struct {
	initial   Viewport
	home      Viewport
	precision Precision
}

func defaultShellOptions() shellOptions {
	return shellOptions{
		initial:   DefaultViewport(),
		home:      DefaultViewport(),
		precision: PrecisionFloat32,
	}
}

// WithViewport sets the viewport of the first render. ResetView still
// returns to the default bounds.
func WithViewport(v Viewport) ShellOption {
	return func(o *shellOptions) {
		o.initial = v
	}
}

// WithMaxIter sets the iteration cap for the initial and reset viewports.
func WithMaxIter(n int) ShellOption {
	return func(o *shellOptions) {
		o.initial.MaxIter = n
		o.home.MaxIter = n
	}
}

// WithPrecision selects the kernel arithmetic width.
func WithPrecision(p Precision) ShellOption {
	return func(o *shellOptions) {
		o.precision = p
	}
}
