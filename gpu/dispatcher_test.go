//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/fractal"
	"github.com/gogpu/fractal/software"
)

// newTestDispatcher opens the GPU device or skips the test when the host
// has none.
func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := New(fractal.DeviceOptions{})
	if errors.Is(err, fractal.ErrDeviceUnavailable) {
		t.Skipf("GPU not available: %v", err)
	}
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestGPUComputeThreeByThree(t *testing.T) {
	d := newTestDispatcher(t)
	req := fractal.Request{
		Viewport:   fractal.Viewport{XMin: -2, XMax: 1, YMin: -1.5, YMax: 1.5, MaxIter: 10},
		Resolution: fractal.Resolution{Width: 3, Height: 3},
	}
	grid, err := d.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Compute() = %v", err)
	}
	if err := grid.Validate(req); err != nil {
		t.Fatalf("grid.Validate() = %v", err)
	}
	if got := grid.At(1, 1); got != grid.Max() || got != 10 {
		t.Errorf("center = %d (max %d), want 10", got, grid.Max())
	}
}

func TestGPUComputeSingleColumnAndRow(t *testing.T) {
	d := newTestDispatcher(t)
	v := fractal.Viewport{XMin: -2, XMax: 1, YMin: -1.5, YMax: 1.5, MaxIter: 16}
	tests := []struct {
		name string
		res  fractal.Resolution
	}{
		{"single column", fractal.Resolution{Width: 1, Height: 5}},
		{"single row", fractal.Resolution{Width: 5, Height: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := fractal.Request{Viewport: v, Resolution: tt.res}
			grid, err := d.Compute(context.Background(), req)
			if err != nil {
				t.Fatalf("Compute() = %v", err)
			}
			xMin, xMax, yMin, yMax := req.Bounds32()
			for row := range tt.res.Height {
				for col := range tt.res.Width {
					cr, ci := xMin, yMin
					if tt.res.Width > 1 {
						cr = xMin + (xMax-xMin)*float32(col)/float32(tt.res.Width-1)
					}
					if tt.res.Height > 1 {
						ci = yMin + (yMax-yMin)*float32(row)/float32(tt.res.Height-1)
					}
					if got, want := grid.At(col, row), software.Escape32(cr, ci, 16); got != want {
						t.Errorf("(%d,%d) = %d, want Escape32(%v, %v) = %d", col, row, got, cr, ci, want)
					}
				}
			}
		})
	}
}

func TestGPUMatchesCPU(t *testing.T) {
	d := newTestDispatcher(t)
	cpu, err := software.New(fractal.DeviceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer cpu.Close()

	req := fractal.Request{Viewport: fractal.DefaultViewport(), Resolution: fractal.Resolution{Width: 67, Height: 45}}
	want, err := cpu.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("cpu Compute() = %v", err)
	}
	got, err := d.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("gpu Compute() = %v", err)
	}

	// Drivers may contract x*x+c into FMA, which moves a few boundary
	// pixels; the bulk of the grid must agree exactly.
	diff := 0
	for i := range want.Counts {
		if want.Counts[i] != got.Counts[i] {
			diff++
		}
	}
	if limit := len(want.Counts) / 50; diff > limit {
		t.Errorf("%d of %d pixels differ from the cpu device (limit %d)", diff, len(want.Counts), limit)
	}
}

func TestGPUComputeIsRepeatable(t *testing.T) {
	d := newTestDispatcher(t)
	req := fractal.Request{Viewport: fractal.DefaultViewport(), Resolution: fractal.Resolution{Width: 33, Height: 17}}

	a, err := d.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Compute() = %v", err)
	}
	b, err := d.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Compute() = %v", err)
	}
	for i := range a.Counts {
		if a.Counts[i] != b.Counts[i] {
			t.Fatalf("count %d differs between launches", i)
		}
	}
}

func TestGPURejectsFloat64(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Compute(context.Background(), fractal.Request{
		Viewport:   fractal.DefaultViewport(),
		Resolution: fractal.Resolution{Width: 2, Height: 2},
		Precision:  fractal.PrecisionFloat64,
	})
	if !errors.Is(err, fractal.ErrInvalidRequest) {
		t.Errorf("Compute(float64) = %v, want ErrInvalidRequest", err)
	}
}

func TestGPUComputeAfterClose(t *testing.T) {
	d := newTestDispatcher(t)
	d.SetFenceTimeout(time.Second)
	d.Close()
	_, err := d.Compute(context.Background(), fractal.Request{
		Viewport:   fractal.DefaultViewport(),
		Resolution: fractal.Resolution{Width: 2, Height: 2},
	})
	if !errors.Is(err, fractal.ErrLaunch) || !errors.Is(err, fractal.ErrClosed) {
		t.Errorf("Compute() after Close = %v, want ErrLaunch/ErrClosed", err)
	}
}

func TestGPUComputeCancelled(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Compute(ctx, fractal.Request{
		Viewport:   fractal.DefaultViewport(),
		Resolution: fractal.Resolution{Width: 2, Height: 2},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Compute(cancelled) = %v, want context.Canceled", err)
	}
}

func TestSetDeviceProviderRejectsForeignProvider(t *testing.T) {
	d := newTestDispatcher(t)
	if err := SetDeviceProvider(d, struct{}{}); err == nil {
		t.Error("SetDeviceProvider accepted a provider without HAL types")
	}
	if d.Adapter() == "shared" {
		t.Error("failed SetDeviceProvider changed the adapter")
	}
}

func TestSetDeviceProviderIgnoresOtherDevices(t *testing.T) {
	cpu, err := software.New(fractal.DeviceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer cpu.Close()
	if err := SetDeviceProvider(cpu, struct{}{}); err != nil {
		t.Errorf("SetDeviceProvider(cpu) = %v, want nil", err)
	}
}
