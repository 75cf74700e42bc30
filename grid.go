package fractal

import (
	"fmt"
)

// IterationGrid holds one escape-iteration count per pixel in row-major
// order: Counts[row*Width+col].
type IterationGrid struct {
	Width, Height int
	Counts        []int32
}

// NewIterationGrid allocates a zeroed grid of the given resolution.
func NewIterationGrid(res Resolution) *IterationGrid {
	return &IterationGrid{
		Width:  res.Width,
		Height: res.Height,
		Counts: make([]int32, res.Pixels()),
	}
}

// At returns the count at pixel (col, row).
func (g *IterationGrid) At(col, row int) int32 {
	return g.Counts[row*g.Width+col]
}

// Max returns the largest count in the grid, or 0 for an empty grid.
func (g *IterationGrid) Max() int32 {
	var m int32
	for _, c := range g.Counts {
		if c > m {
			m = c
		}
	}
	return m
}

// Validate checks the shape and value range of g against the request that
// produced it.
func (g *IterationGrid) Validate(req Request) error {
	res := req.Resolution
	if g.Width != res.Width || g.Height != res.Height {
		return fmt.Errorf("fractal: grid is %dx%d, requested %dx%d", g.Width, g.Height, res.Width, res.Height)
	}
	if len(g.Counts) != res.Pixels() {
		return fmt.Errorf("fractal: grid holds %d counts, want %d", len(g.Counts), res.Pixels())
	}
	maxIter := int32(req.Viewport.MaxIter) //nolint:gosec // bounded by Viewport.Validate
	for i, c := range g.Counts {
		if c < 0 || c > maxIter {
			return fmt.Errorf("fractal: count %d at pixel %d outside [0, %d]", c, i, maxIter)
		}
	}
	return nil
}
