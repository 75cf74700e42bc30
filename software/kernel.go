package software

import "github.com/gogpu/fractal"

// Escape32 returns the number of iterations of z = z*z + c, starting at
// z = 0, performed while |z|^2 <= 4 and below maxIter. All arithmetic is
// float32, matching the GPU kernel.
func Escape32(cr, ci float32, maxIter int32) int32 {
	var x, y float32
	var n int32
	for x*x+y*y <= 4 && n < maxIter {
		xt := float32(x*x-y*y) + cr
		y = float32(2*x*y) + ci
		x = xt
		n++
	}
	return n
}

// Escape64 is Escape32 in float64.
func Escape64(cr, ci float64, maxIter int32) int32 {
	var x, y float64
	var n int32
	for x*x+y*y <= 4 && n < maxIter {
		xt := x*x - y*y + cr
		y = 2*x*y + ci
		x = xt
		n++
	}
	return n
}

// lerp32 maps index i of n samples onto [lo, hi]; a single sample maps to lo.
func lerp32(lo, hi float32, i, n int) float32 {
	if n <= 1 {
		return lo
	}
	t := float32(i) / float32(n-1)
	return lo*(1-t) + hi*t
}

func rowKernel32(req fractal.Request, grid *fractal.IterationGrid) func(row int) {
	xMin, xMax, yMin, yMax := req.Bounds32()
	w, h := req.Resolution.Width, req.Resolution.Height
	maxIter := int32(req.Viewport.MaxIter) //nolint:gosec // bounded by Request.Validate
	return func(row int) {
		ci := lerp32(yMin, yMax, row, h)
		out := grid.Counts[row*w : (row+1)*w]
		for col := range out {
			out[col] = Escape32(lerp32(xMin, xMax, col, w), ci, maxIter)
		}
	}
}

func rowKernel64(req fractal.Request, grid *fractal.IterationGrid) func(row int) {
	w := req.Resolution.Width
	maxIter := int32(req.Viewport.MaxIter) //nolint:gosec // bounded by Request.Validate
	return func(row int) {
		out := grid.Counts[row*w : (row+1)*w]
		for col := range out {
			cr, ci := req.Coord(col, row)
			out[col] = Escape64(cr, ci, maxIter)
		}
	}
}
