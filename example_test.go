package fractal_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/fractal"
	_ "github.com/gogpu/fractal/software"
)

func openCPU(t *testing.T) fractal.Dispatcher {
	t.Helper()
	d, err := fractal.Open("cpu", fractal.WithWorkers(2))
	if err != nil {
		t.Fatalf("Open(cpu) = %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestShellEndToEnd(t *testing.T) {
	sh := fractal.NewShell(openCPU(t), fractal.Resolution{Width: 3, Height: 3})
	if err := sh.Render(context.Background()); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	img := sh.Frame()
	center := img.GrayAt(1, 1).Y
	if center != 255 {
		t.Errorf("center pixel = %d, want 255", center)
	}
	// c = -2+0i stays on |z| = 2 and ties the center; nothing exceeds it.
	for y := range 3 {
		for x := range 3 {
			if img.GrayAt(x, y).Y > center {
				t.Errorf("pixel (%d,%d) = %d, above center", x, y, img.GrayAt(x, y).Y)
			}
		}
	}
	if corner := img.GrayAt(0, 0).Y; corner >= center {
		t.Errorf("corner pixel = %d, want below center", corner)
	}
}

func TestShellResetReproducesStartupImage(t *testing.T) {
	d := openCPU(t)
	res := fractal.Resolution{Width: 40, Height: 30}

	startup := fractal.NewShell(d, res)
	if err := startup.Render(context.Background()); err != nil {
		t.Fatalf("Render() = %v", err)
	}

	zoomed := fractal.DefaultViewport().WithBounds(fractal.Landmarks["seahorse-valley"])
	sh := fractal.NewShell(d, res, fractal.WithViewport(zoomed))
	if err := sh.Render(context.Background()); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	if bytes.Equal(sh.Frame().Pix, startup.Frame().Pix) {
		t.Fatal("zoomed frame should differ from the startup frame")
	}
	if err := sh.ResetView(context.Background()); err != nil {
		t.Fatalf("ResetView() = %v", err)
	}
	if !bytes.Equal(sh.Frame().Pix, startup.Frame().Pix) {
		t.Error("ResetView did not reproduce the startup image")
	}
}

func TestShellUnknownDevice(t *testing.T) {
	_, err := fractal.Open("quantum")
	if !errors.Is(err, fractal.ErrDeviceUnavailable) {
		t.Errorf("Open(quantum) = %v, want ErrDeviceUnavailable", err)
	}
}

func Example() {
	d, err := fractal.Open("cpu")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer d.Close()

	grid, err := d.Compute(context.Background(), fractal.Request{
		Viewport:   fractal.DefaultViewport(),
		Resolution: fractal.Resolution{Width: 3, Height: 3},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	for row := range grid.Height {
		fmt.Println(grid.Counts[row*grid.Width : (row+1)*grid.Width])
	}
	// Output:
	// [1 2 2]
	// [500 500 3]
	// [1 2 2]
}
