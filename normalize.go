package fractal

import (
	"fmt"
	"image"
)

// Normalize converts an iteration grid to an 8-bit grayscale image by
// linear rescaling against the grid maximum:
//
//	pixel = round(255 * value / max(grid))
//
// A grid whose maximum is 0 produces an all-black image. The result is a
// fresh copy with Stride == Width; it never aliases grid memory.
func Normalize(grid *IterationGrid) (*image.Gray, error) {
	if grid == nil {
		return nil, fmt.Errorf("fractal: normalize nil grid")
	}
	if grid.Width <= 0 || grid.Height <= 0 || len(grid.Counts) != grid.Width*grid.Height {
		return nil, fmt.Errorf("fractal: normalize %dx%d grid with %d counts",
			grid.Width, grid.Height, len(grid.Counts))
	}

	img := image.NewGray(image.Rect(0, 0, grid.Width, grid.Height))
	m := grid.Max()
	if m == 0 {
		return img, nil
	}

	// Integer rounding: (255*v + m/2) / m == round(255*v/m) for v in [0, m].
	scale := int64(m)
	half := scale / 2
	for row := 0; row < grid.Height; row++ {
		src := grid.Counts[row*grid.Width : (row+1)*grid.Width]
		dst := img.Pix[row*img.Stride : row*img.Stride+grid.Width]
		for i, v := range src {
			if v <= 0 {
				continue
			}
			dst[i] = uint8((255*int64(v) + half) / scale) //nolint:gosec // v <= m keeps result in [0, 255]
		}
	}
	return img, nil
}
