package fractal

import (
	"errors"
	"fmt"
)

// Error taxonomy of a single render attempt. None of these are retried:
// each one is fatal to the render call that produced it.
var (
	// ErrDeviceUnavailable indicates that no compute device or platform
	// could be enumerated, or that the requested device is not registered.
	ErrDeviceUnavailable = errors.New("fractal: compute device unavailable")

	// ErrKernelCompilation indicates that the kernel source could not be
	// loaded or failed to build for the selected device.
	ErrKernelCompilation = errors.New("fractal: kernel compilation failed")

	// ErrAllocation indicates that device memory could not be reserved.
	ErrAllocation = errors.New("fractal: device allocation failed")

	// ErrLaunch indicates that dispatch or readback failed at runtime.
	ErrLaunch = errors.New("fractal: kernel launch failed")

	// ErrInvalidRequest indicates a request that violates the dispatcher
	// contract (non-positive resolution, negative iteration cap, empty
	// or inverted viewport).
	ErrInvalidRequest = errors.New("fractal: invalid render request")

	// ErrRenderInProgress is returned by Shell.Render when another render
	// has not finished yet.
	ErrRenderInProgress = errors.New("fractal: render already in progress")

	// ErrClosed is returned when a closed dispatcher is used.
	ErrClosed = errors.New("fractal: dispatcher closed")
)

// DeviceError describes a failure inside a dispatcher. It matches both its
// Kind sentinel and the underlying cause with errors.Is.
type DeviceError struct {
	Kind   error  // one of the Err* sentinels above
	Device string // dispatcher name, e.g. "gpu"
	Op     string // failing step, e.g. "create output buffer"
	Err    error  // underlying cause, may be nil
}

// NewDeviceError builds a DeviceError. It is used by dispatcher packages.
func NewDeviceError(kind error, device, op string, err error) *DeviceError {
	return &DeviceError{Kind: kind, Device: device, Op: op, Err: err}
}

func (e *DeviceError) Error() string {
	msg := e.Kind.Error()
	if e.Device != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Device)
	}
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
