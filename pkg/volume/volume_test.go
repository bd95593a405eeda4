package volume

import (
	"errors"
	"math"
	"testing"
)

func (v *Volume) at(z, y, x int) uint16 { return v.Data[v.index(z, y, x)] }

func (v *Volume) set(z, y, x int, val uint16) { v.Data[v.index(z, y, x)] = val }

// isZero reports whether the h×w block at (y0, x0) is zero on every slice.
func (v *Volume) isZero(y0, x0, h, w int) bool {
	for z := 0; z < v.Depth; z++ {
		for y := y0; y < y0+h; y++ {
			i := v.index(z, y, x0)
			for _, px := range v.Data[i : i+w] {
				if px != 0 {
					return false
				}
			}
		}
	}
	return true
}

func filled(depth, height, width int, val uint16) *Volume {
	v := New(depth, height, width)
	for i := range v.Data {
		v.Data[i] = val
	}
	return v
}

func TestNew(t *testing.T) {
	v := New(3, 4, 5)
	if v.Len() != 60 {
		t.Fatalf("Len() = %d, want 60", v.Len())
	}
	if v.Bytes() != 120 {
		t.Errorf("Bytes() = %d, want 120", v.Bytes())
	}
	if !v.isZero(0, 0, 4, 5) {
		t.Error("new volume should be zero")
	}

	if empty := New(0, 4, 5); empty.Len() != 0 || empty.Data != nil {
		t.Errorf("New(0,4,5) = %+v, want empty", empty)
	}
}

func TestLayout(t *testing.T) {
	v := New(2, 3, 4)
	v.set(1, 2, 3, 42)
	if got := v.at(1, 2, 3); got != 42 {
		t.Errorf("At(1,2,3) = %d, want 42", got)
	}
	if got := v.Data[len(v.Data)-1]; got != 42 {
		t.Errorf("last voxel = %d, want 42 (slice-major layout)", got)
	}
	if got := v.Slice(1)[2*4+3]; got != 42 {
		t.Errorf("Slice(1) voxel = %d, want 42", got)
	}
}

func TestPaste(t *testing.T) {
	dst := New(2, 4, 4)
	src := filled(2, 2, 2, 7)

	if err := dst.Paste(src, 2, 0); err != nil {
		t.Fatalf("Paste() error: %v", err)
	}

	for z := 0; z < 2; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				want := uint16(0)
				if y >= 2 && x < 2 {
					want = 7
				}
				if got := dst.at(z, y, x); got != want {
					t.Errorf("At(%d,%d,%d) = %d, want %d", z, y, x, got, want)
				}
			}
		}
	}
	if !dst.isZero(0, 0, 2, 4) {
		t.Error("top half should remain zero")
	}
	if dst.isZero(2, 0, 2, 2) {
		t.Error("pasted block should not be zero")
	}
}

func TestPasteErrors(t *testing.T) {
	dst := New(2, 4, 4)
	tests := []struct {
		name   string
		src    *Volume
		y0, x0 int
	}{
		{"depth mismatch", New(3, 2, 2), 0, 0},
		{"overflow y", New(2, 2, 2), 3, 0},
		{"overflow x", New(2, 2, 2), 0, 3},
		{"negative offset", New(2, 2, 2), -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dst.Paste(tt.src, tt.y0, tt.x0)
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("Paste() error = %v, want ErrShapeMismatch", err)
			}
		})
	}
}

func TestSampleIntensity(t *testing.T) {
	v := New(1, 2, 2)
	copy(v.Data, []uint16{0, 10, 20, 30})

	got := v.SampleIntensity(0)
	if got.Min != 0 || got.Max != 30 {
		t.Errorf("Min/Max = %d/%d, want 0/30", got.Min, got.Max)
	}
	if got.Mean != 15 {
		t.Errorf("Mean = %v, want 15", got.Mean)
	}
	if got.Samples != 4 {
		t.Errorf("Samples = %d, want 4", got.Samples)
	}
	if math.Abs(got.StdDev-12.9099) > 1e-3 {
		t.Errorf("StdDev = %v, want ~12.91", got.StdDev)
	}

	strided := filled(4, 16, 16, 5).SampleIntensity(100)
	if strided.Samples > 100 {
		t.Errorf("Samples = %d, want <= 100", strided.Samples)
	}
	if strided.Mean != 5 || strided.StdDev != 0 {
		t.Errorf("constant volume stats = %+v", strided)
	}

	if (&Volume{}).SampleIntensity(0) != (Intensity{}) {
		t.Error("empty volume should yield zero Intensity")
	}
}
