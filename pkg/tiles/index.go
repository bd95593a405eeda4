// Package tiles indexes a directory of microscopy tiles by grid position and
// channel.
//
// Tiles live in directories named tile_y<row>_x<col>_c<channel>, each holding
// one multi-slice data.tif. [Scan] walks such a directory once and returns an
// immutable [Index]; regions of the grid are described by [Region] and
// checked against the index with [Index.ValidateRegion].
package tiles

import (
	"fmt"
	"slices"
	"sort"

	"github.com/matzehuels/tilestitch/pkg/errors"
)

// DefaultMaxRegionTiles is the default ceiling on region size.
const DefaultMaxRegionTiles = 100

// Limits bounds the regions an index will accept.
type Limits struct {
	// MaxRegionTiles caps Region.TileCount. Zero means DefaultMaxRegionTiles.
	MaxRegionTiles int
}

func (l Limits) maxTiles() int {
	if l.MaxRegionTiles <= 0 {
		return DefaultMaxRegionTiles
	}
	return l.MaxRegionTiles
}

// Key identifies a tile by grid row, grid column and channel.
type Key struct {
	Y       int
	X       int
	Channel int
}

// Name formats the key the way tile directories are named.
func (k Key) Name() string {
	return fmt.Sprintf("tile_y%03d_x%03d_c%d", k.Y, k.X, k.Channel)
}

// Bounds is a tile's pixel rectangle in mosaic space, end exclusive.
type Bounds struct {
	Y0 int `json:"y0"`
	Y1 int `json:"y1"`
	X0 int `json:"x0"`
	X1 int `json:"x1"`
}

// TileInfo describes one discovered tile.
type TileInfo struct {
	Y         int    `json:"y"`
	X         int    `json:"x"`
	Channel   int    `json:"channel"`
	Bounds    Bounds `json:"bounds"`
	SizeBytes int64  `json:"size_bytes"`
	ZSlices   int    `json:"z_slices"`
	Height    int    `json:"height"`
	Width     int    `json:"width"`
	Path      string `json:"path"`
}

// Key returns the tile's index key.
func (t TileInfo) Key() Key { return Key{Y: t.Y, X: t.X, Channel: t.Channel} }

// GridBounds is the tight rectangle over all tiles in grid units, max exclusive.
type GridBounds struct {
	YMin int `json:"y_min"`
	YMax int `json:"y_max"`
	XMin int `json:"x_min"`
	XMax int `json:"x_max"`
}

// Region returns the whole grid as a region on channel.
func (b GridBounds) Region(channel int) Region {
	return Region{YStart: b.YMin, YEnd: b.YMax, XStart: b.XMin, XEnd: b.XMax, Channel: channel}
}

// Empty reports whether the bounds cover no cells.
func (b GridBounds) Empty() bool { return b.YMax <= b.YMin || b.XMax <= b.XMin }

// Index maps grid positions to tiles. It is built once and never mutated, so
// it is safe for concurrent readers.
type Index struct {
	dir      string
	tiles    map[Key]TileInfo
	channels []int
	bounds   GridBounds
	limits   Limits
}

// NewIndex builds an index from already-extracted tile metadata. Later
// entries with a duplicate key replace earlier ones.
func NewIndex(dir string, infos []TileInfo, limits Limits) *Index {
	idx := &Index{
		dir:    dir,
		tiles:  make(map[Key]TileInfo, len(infos)),
		limits: limits,
	}
	for _, t := range infos {
		idx.tiles[t.Key()] = t
	}

	seen := make(map[int]bool)
	first := true
	for k := range idx.tiles {
		if !seen[k.Channel] {
			seen[k.Channel] = true
			idx.channels = append(idx.channels, k.Channel)
		}
		if first {
			idx.bounds = GridBounds{YMin: k.Y, YMax: k.Y + 1, XMin: k.X, XMax: k.X + 1}
			first = false
			continue
		}
		idx.bounds.YMin = min(idx.bounds.YMin, k.Y)
		idx.bounds.YMax = max(idx.bounds.YMax, k.Y+1)
		idx.bounds.XMin = min(idx.bounds.XMin, k.X)
		idx.bounds.XMax = max(idx.bounds.XMax, k.X+1)
	}
	sort.Ints(idx.channels)
	return idx
}

// Dir returns the scanned directory.
func (idx *Index) Dir() string { return idx.dir }

// Len returns the number of tiles across all channels.
func (idx *Index) Len() int { return len(idx.tiles) }

// Channels returns the sorted distinct channels.
func (idx *Index) Channels() []int { return slices.Clone(idx.channels) }

// HasChannel reports whether any tile exists on channel.
func (idx *Index) HasChannel(channel int) bool {
	_, ok := slices.BinarySearch(idx.channels, channel)
	return ok
}

// Bounds returns the grid bounds. All zero when the index is empty.
func (idx *Index) Bounds() GridBounds { return idx.bounds }

// Limits returns the limits the index validates against.
func (idx *Index) Limits() Limits { return idx.limits }

// Tile looks up one tile.
func (idx *Index) Tile(y, x, channel int) (TileInfo, bool) {
	t, ok := idx.tiles[Key{Y: y, X: x, Channel: channel}]
	return t, ok
}

// Tiles returns every tile in row-major order, channels ascending within a cell.
func (idx *Index) Tiles() []TileInfo {
	out := make([]TileInfo, 0, len(idx.tiles))
	for _, t := range idx.tiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Channel < b.Channel
	})
	return out
}

// TilesInRegion returns the present tiles of r in row-major order.
func (idx *Index) TilesInRegion(r Region) []TileInfo {
	var out []TileInfo
	for y := r.YStart; y < r.YEnd; y++ {
		for x := r.XStart; x < r.XEnd; x++ {
			if t, ok := idx.Tile(y, x, r.Channel); ok {
				out = append(out, t)
			}
		}
	}
	return out
}

// Missing returns the positions in r with no tile, in row-major order.
func (idx *Index) Missing(r Region) []Key {
	var out []Key
	for y := r.YStart; y < r.YEnd; y++ {
		for x := r.XStart; x < r.XEnd; x++ {
			if _, ok := idx.Tile(y, x, r.Channel); !ok {
				out = append(out, Key{Y: y, X: x, Channel: r.Channel})
			}
		}
	}
	return out
}

// ValidateRegion checks r against the grid. It returns nil or an
// *errors.Error with code INVALID_REGION whose message is the reason.
func (idx *Index) ValidateRegion(r Region) error {
	b := idx.bounds
	switch {
	case len(idx.tiles) == 0:
		return errors.New(errors.ErrCodeInvalidRegion, "no tiles available")
	case r.YStart < b.YMin || r.YEnd > b.YMax:
		return errors.New(errors.ErrCodeInvalidRegion,
			"Y range %d:%d outside grid bounds %d:%d", r.YStart, r.YEnd, b.YMin, b.YMax)
	case r.XStart < b.XMin || r.XEnd > b.XMax:
		return errors.New(errors.ErrCodeInvalidRegion,
			"X range %d:%d outside grid bounds %d:%d", r.XStart, r.XEnd, b.XMin, b.XMax)
	case r.Height() <= 0 || r.Width() <= 0:
		return errors.New(errors.ErrCodeInvalidRegion, "empty region %s", r)
	case r.TileCount() > idx.limits.maxTiles():
		return errors.New(errors.ErrCodeInvalidRegion,
			"region too large: %d tiles (max %d)", r.TileCount(), idx.limits.maxTiles())
	case !idx.HasChannel(r.Channel):
		return errors.New(errors.ErrCodeInvalidRegion,
			"channel %d not available, available: %v", r.Channel, idx.channels)
	}
	return nil
}

// OutputEstimate is the predicted shape and size of a reconstruction.
type OutputEstimate struct {
	Height  int     `json:"height"`
	Width   int     `json:"width"`
	ZSlices int     `json:"z_slices"`
	SizeMB  float64 `json:"size_mb"`
}

// EstimateOutputSize predicts the output of stitching r from its first
// present tile. The zero value is returned when r holds no tiles.
func (idx *Index) EstimateOutputSize(r Region) OutputEstimate {
	ref, ok := idx.firstTile(r)
	if !ok {
		return OutputEstimate{}
	}
	h := r.Height() * ref.Height
	w := r.Width() * ref.Width
	return OutputEstimate{
		Height:  h,
		Width:   w,
		ZSlices: ref.ZSlices,
		SizeMB:  float64(h) * float64(w) * float64(ref.ZSlices) * 2 / (1 << 20),
	}
}

// ReferenceTile returns the first present tile of r in row-major order.
func (idx *Index) ReferenceTile(r Region) (TileInfo, bool) { return idx.firstTile(r) }

func (idx *Index) firstTile(r Region) (TileInfo, bool) {
	for y := r.YStart; y < r.YEnd; y++ {
		for x := r.XStart; x < r.XEnd; x++ {
			if t, ok := idx.Tile(y, x, r.Channel); ok {
				return t, true
			}
		}
	}
	return TileInfo{}, false
}

// Stats is a read-only snapshot of the index for reporting.
type Stats struct {
	TotalTiles    int         `json:"total_tiles"`
	Channels      []int       `json:"channels"`
	ChannelCounts map[int]int `json:"channel_counts"`
	Bounds        GridBounds  `json:"grid_bounds"`
	TotalSizeMB   float64     `json:"total_size_mb"`
}

// Stats summarises the index.
func (idx *Index) Stats() Stats {
	s := Stats{
		TotalTiles:    len(idx.tiles),
		Channels:      idx.Channels(),
		ChannelCounts: make(map[int]int, len(idx.channels)),
		Bounds:        idx.bounds,
	}
	var total int64
	for k, t := range idx.tiles {
		s.ChannelCounts[k.Channel]++
		total += t.SizeBytes
	}
	s.TotalSizeMB = float64(total) / (1 << 20)
	return s
}
