package stitch

import (
	"fmt"
	"strings"

	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// MemoryOverhead is the ratio of peak working memory to output size.
const MemoryOverhead = 2

// DefaultMaxMemoryMB is the default memory guard.
const DefaultMaxMemoryMB = 8192

// EstimateMemoryMB predicts peak memory for reconstructing r.
func (s *Stitcher) EstimateMemoryMB(r tiles.Region) float64 {
	return MemoryOverhead * s.index.EstimateOutputSize(r).SizeMB
}

// ValidateMemory compares the memory estimate for r against maxMB and
// returns a message suitable for display either way.
func (s *Stitcher) ValidateMemory(r tiles.Region, maxMB int) (bool, string) {
	est := s.EstimateMemoryMB(r)
	if est > float64(maxMB) {
		return false, fmt.Sprintf("Estimated memory usage %.0fMB exceeds limit %dMB", est, maxMB)
	}
	return true, fmt.Sprintf("Estimated memory usage: %.0fMB", est)
}

// maxMissingListed caps ReconstructionInfo.MissingList.
const maxMissingListed = 10

// ReconstructionInfo summarises a planned reconstruction.
type ReconstructionInfo struct {
	Region       tiles.Region         `json:"region"`
	YRange       string               `json:"y_range"`
	XRange       string               `json:"x_range"`
	GridRows     int                  `json:"grid_rows"`
	GridCols     int                  `json:"grid_cols"`
	TileCount    int                  `json:"tile_count"`
	Output       tiles.OutputEstimate `json:"output"`
	MemoryMB     float64              `json:"estimated_memory_mb"`
	TilesFound   int                  `json:"tiles_found"`
	TilesMissing int                  `json:"tiles_missing"`
	MissingList  []string             `json:"missing_list"`
}

// Info describes what stitching r would produce without loading any pixels.
func (s *Stitcher) Info(r tiles.Region) ReconstructionInfo {
	missing := s.index.Missing(r)
	info := ReconstructionInfo{
		Region:       r,
		YRange:       fmt.Sprintf("%d:%d", r.YStart, r.YEnd),
		XRange:       fmt.Sprintf("%d:%d", r.XStart, r.XEnd),
		GridRows:     r.Height(),
		GridCols:     r.Width(),
		TileCount:    r.TileCount(),
		Output:       s.index.EstimateOutputSize(r),
		MemoryMB:     s.EstimateMemoryMB(r),
		TilesFound:   len(s.index.TilesInRegion(r)),
		TilesMissing: len(missing),
		MissingList:  []string{},
	}
	for _, k := range missing[:min(len(missing), maxMissingListed)] {
		info.MissingList = append(info.MissingList, fmt.Sprintf("y%03d_x%03d", k.Y, k.X))
	}
	return info
}

// Provenance is recorded in the description of every reconstruction.
type Provenance struct {
	Region     tiles.Region
	Depth      int
	TilesFound int
	RunID      string
	Bounds     tiles.Bounds
}

// Description renders p as an ImageJ-style key=value description. The
// tile_bounds_yx line lets a reconstruction be indexed like a tile.
func Description(p Provenance) string {
	r := p.Region
	lines := []string{
		"ImageJ=1.11a",
		fmt.Sprintf("images=%d", p.Depth),
		"channels=1",
		fmt.Sprintf("slices=%d", p.Depth),
		"hyperstack=true",
		"mode=grayscale",
		"source=tilestitch",
		fmt.Sprintf("region=y%03d:%03d_x%03d:%03d", r.YStart, r.YEnd, r.XStart, r.XEnd),
		fmt.Sprintf("channel=%d", r.Channel),
		fmt.Sprintf("tile_count=%d", r.TileCount()),
		fmt.Sprintf("tiles_found=%d", p.TilesFound),
		"method=" + Method,
		"run_id=" + p.RunID,
		tiles.FormatBounds(p.Bounds),
	}
	return strings.Join(lines, "\n")
}
