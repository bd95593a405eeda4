// Package volume provides a dense 16-bit pixel volume addressed as
// (depth, height, width).
//
// Voxels are stored slice-major in a single []uint16: index
// z*Height*Width + y*Width + x. The zero value of a freshly allocated Volume
// is all-zero, which the stitcher relies on for its "zero" fill policy.
package volume

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrShapeMismatch is returned when a block does not fit the destination.
var ErrShapeMismatch = errors.New("volume: shape mismatch")

// Volume is a dense (depth, height, width) uint16 buffer.
type Volume struct {
	Depth  int
	Height int
	Width  int
	Data   []uint16
}

// New allocates a zero-filled volume. Non-positive dimensions yield an empty volume.
func New(depth, height, width int) *Volume {
	if depth <= 0 || height <= 0 || width <= 0 {
		return &Volume{}
	}
	return &Volume{
		Depth:  depth,
		Height: height,
		Width:  width,
		Data:   make([]uint16, depth*height*width),
	}
}

// Len returns the number of voxels.
func (v *Volume) Len() int { return v.Depth * v.Height * v.Width }

// Bytes returns the in-memory size of the voxel data.
func (v *Volume) Bytes() int64 { return int64(v.Len()) * 2 }

func (v *Volume) index(z, y, x int) int {
	return (z*v.Height+y)*v.Width + x
}

// Slice returns the z-th plane as a sub-slice of Data (no copy).
func (v *Volume) Slice(z int) []uint16 {
	plane := v.Height * v.Width
	return v.Data[z*plane : (z+1)*plane]
}

// Paste copies src into v with its top-left corner at (y0, x0) on every slice.
// src must have the same depth as v and must fit entirely inside v.
func (v *Volume) Paste(src *Volume, y0, x0 int) error {
	if src.Depth != v.Depth {
		return fmt.Errorf("%w: depth %d, want %d", ErrShapeMismatch, src.Depth, v.Depth)
	}
	if y0 < 0 || x0 < 0 || y0+src.Height > v.Height || x0+src.Width > v.Width {
		return fmt.Errorf("%w: block %dx%d at (%d,%d) exceeds %dx%d",
			ErrShapeMismatch, src.Height, src.Width, y0, x0, v.Height, v.Width)
	}
	for z := 0; z < src.Depth; z++ {
		for y := 0; y < src.Height; y++ {
			dst := v.index(z, y0+y, x0)
			s := src.index(z, y, 0)
			copy(v.Data[dst:dst+src.Width], src.Data[s:s+src.Width])
		}
	}
	return nil
}

// Intensity summarises voxel values.
type Intensity struct {
	Min     uint16  `json:"min"`
	Max     uint16  `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Samples int     `json:"samples"`
}

// DefaultSampleSize bounds the number of voxels visited by SampleIntensity.
const DefaultSampleSize = 1 << 20

// SampleIntensity computes min/max/mean/stddev over at most n evenly strided
// voxels (n <= 0 means DefaultSampleSize).
func (v *Volume) SampleIntensity(n int) Intensity {
	total := len(v.Data)
	if total == 0 {
		return Intensity{}
	}
	if n <= 0 {
		n = DefaultSampleSize
	}
	stride := 1
	if total > n {
		stride = int(math.Ceil(float64(total) / float64(n)))
	}

	samples := make([]float64, 0, total/stride+1)
	lo, hi := uint16(math.MaxUint16), uint16(0)
	for i := 0; i < total; i += stride {
		px := v.Data[i]
		lo = min(lo, px)
		hi = max(hi, px)
		samples = append(samples, float64(px))
	}
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) < 2 {
		std = 0
	}
	return Intensity{Min: lo, Max: hi, Mean: mean, StdDev: std, Samples: len(samples)}
}
