package window

import (
	"fmt"
	"image"

	"github.com/gogpu/gg"
)

// Snapshot writes frame to a PNG file at path. It is the headless
// counterpart of the window: the same gg image path, without a display.
func Snapshot(frame *image.Gray, path string) error {
	if frame == nil {
		return fmt.Errorf("window: no frame to save")
	}
	b := frame.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	defer func() { _ = dc.Close() }()
	dc.DrawImageEx(gg.ImageBufFromImage(frame), gg.DrawImageOptions{
		X:             0,
		Y:             0,
		Interpolation: gg.InterpNearest,
		Opacity:       1.0,
		BlendMode:     gg.BlendNormal,
	})
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("window: save %s: %w", path, err)
	}
	return nil
}
