// Package fractal renders the Mandelbrot set on a compute device.
//
// # Overview
//
// The package is split into two cooperating parts:
//
//   - A Dispatcher owns a compute device, a compiled per-pixel kernel and
//     the buffers of a single launch. It turns a Request (viewport,
//     resolution, precision) into an IterationGrid.
//   - A Shell owns the viewport state, calls the dispatcher synchronously,
//     normalizes the grid to an 8-bit grayscale image and keeps the last
//     good frame for display.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/fractal"
//	    _ "github.com/gogpu/fractal/gpu" // registers the "gpu" device
//	)
//
//	d, err := fractal.Open("gpu")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	sh := fractal.NewShell(d, fractal.DefaultResolution())
//	if err := sh.Render(ctx); err != nil {
//	    log.Printf("render: %v", err)
//	}
//	img := sh.Frame() // *image.Gray
//
// # Devices
//
// Devices register themselves on import:
//   - gpu: wgpu/hal compute shader (Vulkan)
//   - cpu: goroutine worker pool running the same arithmetic
//
// Open never falls back from one device to another.
//
// # Coordinate Mapping
//
// Pixel (col, row) maps to
//
//	re = XMin + col/(Width-1)  * (XMax-XMin)
//	im = YMin + row/(Height-1) * (YMax-YMin)
//
// so pixel (0, 0) is (XMin, YMin) and the last pixel is (XMax, YMax).
// Rows grow along the imaginary axis.
//
// # Errors
//
// Dispatcher failures are reported as *DeviceError values matching one of
// ErrDeviceUnavailable, ErrKernelCompilation, ErrAllocation or ErrLaunch.
// They are never retried. A failed render leaves the shell's previous
// frame untouched.
package fractal
