package stitch

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/tiff"
	"github.com/matzehuels/tilestitch/pkg/tiles"
	"github.com/matzehuels/tilestitch/pkg/volume"
)

const (
	tileDepth  = 2
	tileHeight = 3
	tileWidth  = 4
)

func voxel(v *volume.Volume, z, y, x int) uint16 { return v.Slice(z)[y*v.Width+x] }

// blockZero reports whether the h×w block at (y0, x0) is zero on every slice.
func blockZero(v *volume.Volume, y0, x0, h, w int) bool {
	for z := 0; z < v.Depth; z++ {
		for y := y0; y < y0+h; y++ {
			for x := x0; x < x0+w; x++ {
				if voxel(v, z, y, x) != 0 {
					return false
				}
			}
		}
	}
	return true
}

// parseDescription splits a key=value description into a map.
func parseDescription(desc string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(desc, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			out[k] = v
		}
	}
	return out
}

func tileValue(y, x int) uint16 { return uint16(1 + y*10 + x) }

// fixture writes tiles at the given grid positions on channel 0 and scans them.
func fixture(t *testing.T, positions ...[2]int) *tiles.Index {
	t.Helper()
	dir := t.TempDir()
	for _, p := range positions {
		k := tiles.Key{Y: p[0], X: p[1]}
		tileDir := filepath.Join(dir, k.Name())
		require.NoError(t, os.MkdirAll(tileDir, 0o755))

		v := volume.New(tileDepth, tileHeight, tileWidth)
		for z := 0; z < tileDepth; z++ {
			for i := range v.Slice(z) {
				v.Slice(z)[i] = tileValue(p[0], p[1]) + uint16(z*100)
			}
		}
		require.NoError(t, tiff.WriteFile(filepath.Join(tileDir, tiles.DataFile), v, tiff.WriteOptions{}))
	}
	idx, err := tiles.Scan(context.Background(), dir, tiles.ScanOptions{})
	require.NoError(t, err)
	return idx
}

func TestStitchZeroFill(t *testing.T) {
	idx := fixture(t, [2]int{0, 0}, [2]int{0, 1}, [2]int{1, 0})
	out := filepath.Join(t.TempDir(), "region.tif")
	r := tiles.Region{YStart: 0, YEnd: 2, XStart: 0, XEnd: 2}

	res, err := New(idx, Options{}).Stitch(context.Background(), r, out, StitchOptions{
		FillMissing: FillZero,
		Compression: tiff.CompressionLZW,
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.TilesFound)
	require.Equal(t, 1, res.TilesMissing)
	require.Equal(t, tileDepth, res.Depth)
	require.Equal(t, 2*tileHeight, res.Height)
	require.Equal(t, 2*tileWidth, res.Width)
	require.NotEmpty(t, res.RunID)
	require.Positive(t, res.SizeBytes)

	got, err := tiff.ReadVolume(out, 0, -1)
	require.NoError(t, err)
	require.Equal(t, tileDepth, got.Depth)

	for z := 0; z < got.Depth; z++ {
		for y := 0; y < got.Height; y++ {
			for x := 0; x < got.Width; x++ {
				gy, gx := y/tileHeight, x/tileWidth
				want := tileValue(gy, gx) + uint16(z*100)
				if gy == 1 && gx == 1 {
					want = 0
				}
				if v := voxel(got, z, y, x); v != want {
					t.Fatalf("voxel (%d,%d,%d) = %d, want %d", z, y, x, v, want)
				}
			}
		}
	}
	require.True(t, blockZero(got, tileHeight, tileWidth, tileHeight, tileWidth))
	require.Equal(t, uint16(0), res.Intensity.Min)

	info, err := tiff.ReadInfo(out)
	require.NoError(t, err)
	require.Equal(t, tiff.CompressionLZW, info.Compression)
	meta := parseDescription(info.Description)
	require.Equal(t, "y000:002_x000:002", meta["region"])
	require.Equal(t, "0", meta["channel"])
	require.Equal(t, "4", meta["tile_count"])
	require.Equal(t, "3", meta["tiles_found"])
	require.Equal(t, Method, meta["method"])
	require.Equal(t, res.RunID, meta["run_id"])

	b, ok := tiles.ParseBounds(info.Description)
	require.True(t, ok)
	require.Equal(t, tiles.Bounds{Y0: 0, Y1: 2 * tileHeight, X0: 0, X1: 2 * tileWidth}, b)
}

func TestStitchSkipLogsMissing(t *testing.T) {
	idx := fixture(t, [2]int{0, 0}, [2]int{0, 1}, [2]int{1, 0})
	var logs bytes.Buffer
	s := New(idx, Options{Logger: log.New(&logs)})

	_, err := s.Stitch(context.Background(), tiles.Region{YStart: 0, YEnd: 2, XStart: 0, XEnd: 2},
		filepath.Join(t.TempDir(), "out.tif"), StitchOptions{FillMissing: FillSkip})
	require.NoError(t, err)
	require.Contains(t, logs.String(), "missing tile at y001_x001")
}

func TestStitchZRange(t *testing.T) {
	idx := fixture(t, [2]int{0, 0}, [2]int{0, 1})
	out := filepath.Join(t.TempDir(), "z.tif")
	r := tiles.Region{YStart: 0, YEnd: 1, XStart: 0, XEnd: 2}

	res, err := New(idx, Options{}).Stitch(context.Background(), r, out, StitchOptions{
		ZRange: &tiles.ZRange{Start: 1, End: 99},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Depth)

	got, err := tiff.ReadVolume(out, 0, -1)
	require.NoError(t, err)
	require.Equal(t, tileValue(0, 1)+100, voxel(got, 0, 0, tileWidth))

	_, err = New(idx, Options{}).Stitch(context.Background(), r, out, StitchOptions{
		ZRange: &tiles.ZRange{Start: 5, End: 9},
	})
	require.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "got %v", err)
}

func TestStitchRejectsBadRegions(t *testing.T) {
	idx := fixture(t, [2]int{0, 0}, [2]int{2, 2})
	s := New(idx, Options{})
	dir := t.TempDir()

	tests := []struct {
		name   string
		region tiles.Region
		code   errors.Code
	}{
		{"out of bounds", tiles.Region{YStart: 0, YEnd: 5, XStart: 0, XEnd: 1}, errors.ErrCodeInvalidRegion},
		{"unknown channel", tiles.Region{YStart: 0, YEnd: 1, XStart: 0, XEnd: 1, Channel: 3}, errors.ErrCodeInvalidRegion},
		{"no tiles", tiles.Region{YStart: 1, YEnd: 2, XStart: 1, XEnd: 2}, errors.ErrCodeEmptyRegion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.name+".tif")
			_, err := s.Stitch(context.Background(), tt.region, out, StitchOptions{})
			if !errors.Is(err, tt.code) {
				t.Fatalf("Stitch() error = %v, want %s", err, tt.code)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Error("no output should be written on failure")
			}
		})
	}
}

type failingLoader struct {
	failOn string
	shape  *volume.Volume
}

func (l failingLoader) LoadSlices(path string, z0, z1 int) (*volume.Volume, error) {
	if strings.Contains(path, l.failOn) {
		if l.shape != nil {
			return l.shape, nil
		}
		return nil, stderrors.New("disk on fire")
	}
	return TIFFLoader{}.LoadSlices(path, z0, z1)
}

func TestStitchAbortsOnTileFailure(t *testing.T) {
	idx := fixture(t, [2]int{0, 0}, [2]int{0, 1})
	r := tiles.Region{YStart: 0, YEnd: 1, XStart: 0, XEnd: 2}

	tests := []struct {
		name   string
		loader failingLoader
	}{
		{"read error", failingLoader{failOn: "x001"}},
		{"shape mismatch", failingLoader{failOn: "x001", shape: volume.New(tileDepth, tileHeight+1, tileWidth)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.tif")
			_, err := New(idx, Options{Loader: tt.loader}).Stitch(context.Background(), r, out, StitchOptions{})
			if !errors.Is(err, errors.ErrCodeTileRead) {
				t.Fatalf("Stitch() error = %v, want TILE_READ", err)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Error("no output should be written on failure")
			}
			entries, _ := os.ReadDir(filepath.Dir(out))
			if len(entries) != 0 {
				t.Errorf("output dir has %d leftover entries", len(entries))
			}
		})
	}
}

func TestStitchCanceled(t *testing.T) {
	idx := fixture(t, [2]int{0, 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "out.tif")
	_, err := New(idx, Options{}).Stitch(ctx, tiles.Region{YStart: 0, YEnd: 1, XStart: 0, XEnd: 1}, out, StitchOptions{})
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("Stitch() error = %v, want context.Canceled", err)
	}
}

func TestStitchProgress(t *testing.T) {
	idx := fixture(t, [2]int{0, 0}, [2]int{0, 1})
	var progress bytes.Buffer
	_, err := New(idx, Options{Progress: &progress}).Stitch(context.Background(),
		tiles.Region{YStart: 0, YEnd: 1, XStart: 0, XEnd: 2},
		filepath.Join(t.TempDir(), "out.tif"), StitchOptions{})
	require.NoError(t, err)
	require.Contains(t, progress.String(), "Stitching tiles")
}

func TestParseFillPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FillPolicy
		wantErr bool
	}{
		{"zero", FillZero, false},
		{"SKIP", FillSkip, false},
		{"", FillZero, false},
		{"interpolate", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFillPolicy(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrCodeInvalidInput) {
					t.Errorf("ParseFillPolicy(%q) error = %v, want INVALID_INPUT", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFillPolicy(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func syntheticIndex(rows, cols int, skip ...tiles.Key) *tiles.Index {
	absent := make(map[tiles.Key]bool)
	for _, k := range skip {
		absent[k] = true
	}
	var infos []tiles.TileInfo
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if absent[tiles.Key{Y: y, X: x}] {
				continue
			}
			infos = append(infos, tiles.TileInfo{Y: y, X: x, ZSlices: 16, Height: 1024, Width: 1024})
		}
	}
	return tiles.NewIndex("tiles", infos, tiles.Limits{})
}

func TestMemoryEstimate(t *testing.T) {
	s := New(syntheticIndex(4, 4), Options{})
	r := tiles.Region{YStart: 0, YEnd: 2, XStart: 0, XEnd: 2}

	// 2048 * 2048 * 16 slices * 2 bytes = 128 MiB output.
	if got := s.EstimateMemoryMB(r); got != 256 {
		t.Errorf("EstimateMemoryMB() = %v, want 256", got)
	}

	ok, msg := s.ValidateMemory(r, 8192)
	if !ok || msg != "Estimated memory usage: 256MB" {
		t.Errorf("ValidateMemory(8192) = %v, %q", ok, msg)
	}
	ok, msg = s.ValidateMemory(r, 100)
	if ok || msg != "Estimated memory usage 256MB exceeds limit 100MB" {
		t.Errorf("ValidateMemory(100) = %v, %q", ok, msg)
	}
}

func TestInfo(t *testing.T) {
	var skip []tiles.Key
	for x := 0; x < 12; x++ {
		skip = append(skip, tiles.Key{Y: 1, X: x})
	}
	s := New(syntheticIndex(3, 12, skip...), Options{})
	r := tiles.Region{YStart: 0, YEnd: 2, XStart: 0, XEnd: 12}

	info := s.Info(r)
	require.Equal(t, "0:2", info.YRange)
	require.Equal(t, "0:12", info.XRange)
	require.Equal(t, 24, info.TileCount)
	require.Equal(t, 12, info.TilesFound)
	require.Equal(t, 12, info.TilesMissing)
	require.Len(t, info.MissingList, 10)
	require.Equal(t, "y001_x000", info.MissingList[0])
	require.Equal(t, 2048, info.Output.Height)
	require.Equal(t, 12*1024, info.Output.Width)
	require.Equal(t, 2*info.Output.SizeMB, info.MemoryMB)
}

func TestDescription(t *testing.T) {
	desc := Description(Provenance{
		Region:     tiles.Region{YStart: 15, YEnd: 20, XStart: 5, XEnd: 10, Channel: 1},
		Depth:      19,
		TilesFound: 24,
		RunID:      "abc",
		Bounds:     tiles.Bounds{Y0: 15360, Y1: 20480, X0: 5120, X1: 10240},
	})
	require.True(t, strings.HasPrefix(desc, "ImageJ=1.11a\n"))

	meta := parseDescription(desc)
	require.Equal(t, "19", meta["images"])
	require.Equal(t, "19", meta["slices"])
	require.Equal(t, "tilestitch", meta["source"])
	require.Equal(t, "y015:020_x005:010", meta["region"])
	require.Equal(t, "1", meta["channel"])
	require.Equal(t, "25", meta["tile_count"])
	require.Equal(t, "direct_stitching", meta["method"])
	require.Equal(t, "15360:20480_5120:10240", meta["tile_bounds_yx"])
}
