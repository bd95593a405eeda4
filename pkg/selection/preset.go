package selection

import (
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// Preset builds a square region of the named size class around a centre
// cell. A nil coordinate defaults to the middle of the grid on that axis.
// The region starts at max(0, centre - size/2); it is not validated.
func Preset(idx *tiles.Index, name string, centerY, centerX *int, channel int) (tiles.Region, error) {
	class, ok := tiles.LookupSizeClass(name)
	if !ok {
		return tiles.Region{}, errors.New(errors.ErrCodeInvalidInput,
			"unknown preset %q, use small, medium or large", name)
	}

	b := idx.Bounds()
	if (centerY == nil || centerX == nil) && b.Empty() {
		return tiles.Region{}, errors.New(errors.ErrCodeEmptyRegion, "no tiles available")
	}
	cy := (b.YMin + b.YMax - 1) / 2
	if centerY != nil {
		cy = *centerY
	}
	cx := (b.XMin + b.XMax - 1) / 2
	if centerX != nil {
		cx = *centerX
	}

	y0 := max(0, cy-class.Size/2)
	x0 := max(0, cx-class.Size/2)
	return tiles.Region{
		YStart:  y0,
		YEnd:    y0 + class.Size,
		XStart:  x0,
		XEnd:    x0 + class.Size,
		Channel: channel,
	}, nil
}
