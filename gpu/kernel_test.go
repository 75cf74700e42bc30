//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/fractal"
)

func TestKernelSourceBindings(t *testing.T) {
	src := KernelSource()
	for _, want := range []string{
		"@group(0) @binding(0)",
		"@group(0) @binding(1)",
		"@workgroup_size(8, 8, 1)",
		"fn main",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("embedded kernel missing %q", want)
		}
	}
}

func TestCompileKernel(t *testing.T) {
	spirv, err := CompileKernel(KernelSource())
	if err != nil {
		t.Fatalf("CompileKernel() = %v", err)
	}
	// SPIR-V magic number.
	if len(spirv) == 0 || spirv[0] != 0x07230203 {
		t.Errorf("CompileKernel() output does not start with the SPIR-V magic number")
	}
}

func TestCompileKernelInvalidSource(t *testing.T) {
	_, err := CompileKernel("@compute fn main( {")
	if !errors.Is(err, fractal.ErrKernelCompilation) {
		t.Errorf("CompileKernel(bad) = %v, want ErrKernelCompilation", err)
	}
}

func TestLoadKernel(t *testing.T) {
	src, err := LoadKernel("")
	if err != nil || src != KernelSource() {
		t.Errorf("LoadKernel(\"\") = %d bytes, %v; want embedded kernel", len(src), err)
	}

	dir := t.TempDir()
	custom := filepath.Join(dir, "custom.wgsl")
	if err := os.WriteFile(custom, []byte(KernelSource()), 0o600); err != nil {
		t.Fatal(err)
	}
	if src, err := LoadKernel(custom); err != nil || src != KernelSource() {
		t.Errorf("LoadKernel(custom) = %v", err)
	}

	empty := filepath.Join(dir, "empty.wgsl")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{empty, filepath.Join(dir, "missing.wgsl")} {
		_, err := LoadKernel(path)
		if !errors.Is(err, fractal.ErrKernelCompilation) {
			t.Errorf("LoadKernel(%s) = %v, want ErrKernelCompilation", filepath.Base(path), err)
		}
		if err != nil && !strings.Contains(err.Error(), path) {
			t.Errorf("error %q does not name the kernel path", err)
		}
	}
}

func TestNewRejectsBadKernelFile(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.wgsl")
	if err := os.WriteFile(bad, []byte("not wgsl"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Kernel compilation runs before device selection, so this fails the
	// same way with or without a GPU.
	_, err := New(fractal.DeviceOptions{KernelFile: bad})
	if !errors.Is(err, fractal.ErrKernelCompilation) {
		t.Errorf("New() = %v, want ErrKernelCompilation", err)
	}
}

func TestEncodeParams(t *testing.T) {
	req := fractal.Request{
		Viewport:   fractal.Viewport{XMin: -2, XMax: 1, YMin: -1.5, YMax: 1.5, MaxIter: 500},
		Resolution: fractal.Resolution{Width: 800, Height: 600},
	}
	buf := encodeParams(req)
	if len(buf) != paramsSize {
		t.Fatalf("len = %d, want %d", len(buf), paramsSize)
	}

	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(buf[off:]) }
	f32 := func(off int) float32 { return math.Float32frombits(u32(off)) }

	if u32(0) != 800 || u32(4) != 600 {
		t.Errorf("size = %dx%d, want 800x600", u32(0), u32(4))
	}
	if f32(8) != -2 || f32(12) != 1 || f32(16) != -1.5 || f32(20) != 1.5 {
		t.Errorf("bounds = %v %v %v %v", f32(8), f32(12), f32(16), f32(20))
	}
	if u32(24) != 500 {
		t.Errorf("max_iter = %d, want 500", u32(24))
	}
	if u32(28) != 0 {
		t.Errorf("padding = %d, want 0", u32(28))
	}
}

func TestDecodeCounts(t *testing.T) {
	src := make([]byte, 12)
	binary.LittleEndian.PutUint32(src[0:], 0)
	binary.LittleEndian.PutUint32(src[4:], 500)
	binary.LittleEndian.PutUint32(src[8:], 0xFFFFFFFF)

	dst := make([]int32, 3)
	decodeCounts(src, dst)
	if dst[0] != 0 || dst[1] != 500 || dst[2] != -1 {
		t.Errorf("decodeCounts = %v", dst)
	}
}

func TestWorkgroups(t *testing.T) {
	tests := []struct {
		n, size int
		want    uint32
	}{
		{1, 8, 1},
		{8, 8, 1},
		{9, 8, 2},
		{800, 8, 100},
		{801, 8, 101},
	}
	for _, tt := range tests {
		if got := workgroups(tt.n, tt.size); got != tt.want {
			t.Errorf("workgroups(%d, %d) = %d, want %d", tt.n, tt.size, got, tt.want)
		}
	}
}
