//go:build !nogpu

package gpu

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/gogpu/naga"

	"github.com/gogpu/fractal"
)

//go:embed shaders/mandelbrot.wgsl
var mandelbrotShaderWGSL string

// Kernel workgroup size; must match @workgroup_size in mandelbrot.wgsl.
const (
	workgroupX = 8
	workgroupY = 8
)

// paramsSize is the byte size of the Params uniform block.
const paramsSize = 32

// KernelSource returns the WGSL source of the compiled-in kernel.
func KernelSource() string { return mandelbrotShaderWGSL }

// LoadKernel returns the kernel source at path, or the compiled-in kernel
// when path is empty. A read failure is reported as ErrKernelCompilation so
// that a bad configuration never surfaces as a generic I/O error.
func LoadKernel(path string) (string, error) {
	if path == "" {
		return mandelbrotShaderWGSL, nil
	}
	// #nosec G304 -- kernel path is provided by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "read kernel "+path, err)
	}
	if len(data) == 0 {
		return "", fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "read kernel "+path,
			errors.New("empty kernel source"))
	}
	return string(data), nil
}

// CompileKernel compiles WGSL source to SPIR-V words.
func CompileKernel(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "compile kernel", err)
	}
	if len(spirvBytes) == 0 || len(spirvBytes)%4 != 0 {
		return nil, fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "compile kernel",
			fmt.Errorf("SPIR-V output of %d bytes is not word aligned", len(spirvBytes)))
	}

	// SPIR-V is little-endian 32-bit words.
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return spirv, nil
}

// encodeParams packs the kernel arguments into the Params uniform layout:
//
//	width i32, height i32, x_min f32, x_max f32,
//	y_min f32, y_max f32, max_iter i32, pad i32
//
// Bounds are narrowed to float32 here.
func encodeParams(req fractal.Request) []byte {
	xMin, xMax, yMin, yMax := req.Bounds32()
	buf := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(req.Resolution.Width)))  //nolint:gosec // bounded by Resolution.Validate
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(req.Resolution.Height))) //nolint:gosec // bounded by Resolution.Validate
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(xMin))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(xMax))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(yMin))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(yMax))
	binary.LittleEndian.PutUint32(buf[24:], uint32(int32(req.Viewport.MaxIter))) //nolint:gosec // bounded by Viewport.Validate
	return buf
}

// decodeCounts unpacks little-endian int32 counts into dst.
func decodeCounts(src []byte, dst []int32) {
	for i := range dst {
		dst[i] = int32(binary.LittleEndian.Uint32(src[i*4:])) //nolint:gosec // two's complement reinterpretation
	}
}

// workgroups returns the dispatch size covering n invocations.
func workgroups(n, size int) uint32 {
	return uint32((n + size - 1) / size) //nolint:gosec // n bounded by Resolution.Validate
}
