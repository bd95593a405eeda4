package grid

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// maxMissingShown caps the missing coordinates listed by RenderRegionStats.
const maxMissingShown = 10

// RegionStats describes the coverage of one region.
type RegionStats struct {
	Region   tiles.Region         `json:"region"`
	Found    int                  `json:"found"`
	Missing  []string             `json:"missing"`
	Coverage float64              `json:"coverage"`
	Output   tiles.OutputEstimate `json:"output"`
}

// RegionStats computes coverage for r. Missing positions are formatted
// y%02d_x%02d in row-major order.
func (v *Visualizer) RegionStats(r tiles.Region) RegionStats {
	s := RegionStats{
		Region:  r,
		Found:   len(v.index.TilesInRegion(r)),
		Missing: []string{},
		Output:  v.index.EstimateOutputSize(r),
	}
	if n := r.TileCount(); n > 0 {
		s.Coverage = float64(s.Found) / float64(n)
	}
	for _, k := range v.index.Missing(r) {
		s.Missing = append(s.Missing, fmt.Sprintf("y%02d_x%02d", k.Y, k.X))
	}
	return s
}

// RenderRegionStats draws the statistics panel for r followed by a compact
// grid with r highlighted.
func (v *Visualizer) RenderRegionStats(r tiles.Region) string {
	s := v.RegionStats(r)
	bytes := uint64(s.Output.SizeMB * (1 << 20))

	lines := []string{
		fmt.Sprintf("Region: y%d:%d, x%d:%d (channel %d)", r.YStart, r.YEnd, r.XStart, r.XEnd, r.Channel),
		fmt.Sprintf("Grid size: %dx%d tiles (%d total)", r.Height(), r.Width(), r.TileCount()),
		fmt.Sprintf("Tiles found: %d/%d (%.1f%% coverage)", s.Found, r.TileCount(), 100*s.Coverage),
		fmt.Sprintf("Output size: %dx%d pixels (~%s)", s.Output.Height, s.Output.Width, humanize.IBytes(bytes)),
	}
	if len(s.Missing) > 0 {
		lines = append(lines, fmt.Sprintf("Missing tiles: %d", len(s.Missing)))
		lines = append(lines, "Missing: "+truncateList(s.Missing, maxMissingShown))
	}

	return styleTitle.Render("Region Statistics") + "\n" +
		panelStats.Render(strings.Join(lines, "\n")) + "\n" +
		v.RenderGrid(r.Channel, RenderOptions{Highlight: &r, Compact: true})
}

func truncateList(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s... and %d more", strings.Join(items[:n], ", "), len(items)-n)
}

// RenderTissueMap draws a compact grid and the top n dense windows.
func (v *Visualizer) RenderTissueMap(channel, n int, opts DensityOptions) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(fmt.Sprintf("Tissue Distribution Analysis - Channel %d", channel)))
	b.WriteString("\n")
	b.WriteString(v.RenderGrid(channel, RenderOptions{Compact: true}))
	b.WriteString("\n")
	b.WriteString(Legend(true))

	windows := v.AnalyzeDensity(channel, opts)
	if len(windows) == 0 {
		return b.String()
	}

	b.WriteString("\n\n")
	b.WriteString(styleTitle.Render("High-density regions (good for reconstruction):"))
	for _, w := range windows[:min(n, len(windows))] {
		r := w.Region
		fmt.Fprintf(&b, "\n  y%02d:%02d, x%02d:%02d (%d/%d tiles, %.0f%% coverage)",
			r.YStart, r.YEnd, r.XStart, r.XEnd, w.Tiles, r.TileCount(), 100*w.Density)
	}
	sum := Summarize(windows)
	b.WriteString("\n")
	b.WriteString(styleDim.Render(fmt.Sprintf("  %d windows, mean %.0f%%, max %.0f%%, std %.2f",
		sum.Windows, 100*sum.Mean, 100*sum.Max, sum.StdDev)))
	return b.String()
}

// RenderSuggestions lists suggested regions with the command for each.
func (v *Visualizer) RenderSuggestions(channel int, opts SuggestOptions) string {
	suggestions := v.Suggest(channel, opts)
	if len(suggestions) == 0 {
		return styleHighlight.Render("No high-quality regions found for suggestions")
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render(fmt.Sprintf("Suggested regions for channel %d:", channel)))
	for i, s := range suggestions {
		fmt.Fprintf(&b, "\n\n%d. %s region (%.0f%% coverage):", i+1, s.Class.Label, 100*s.Density)
		b.WriteString("\n   " + styleCommand.Render(StitchCommand(s.Region)))
	}
	return b.String()
}

// RenderOverview draws the channel summary, the full grid and suggestions.
func (v *Visualizer) RenderOverview(channel int, opts SuggestOptions) string {
	bounds := v.index.Bounds()
	count := v.index.Stats().ChannelCounts[channel]
	cells := max(0, (bounds.YMax-bounds.YMin)*(bounds.XMax-bounds.XMin))
	coverage := 0.0
	if cells > 0 {
		coverage = float64(count) / float64(cells)
	}

	summary := []string{
		fmt.Sprintf("Total tiles: %d", count),
		fmt.Sprintf("Grid bounds: y%d:%d, x%d:%d", bounds.YMin, bounds.YMax, bounds.XMin, bounds.XMax),
		fmt.Sprintf("Coverage: %d of %d positions (%.0f%%)", count, cells, 100*coverage),
	}

	return styleTitle.Render(fmt.Sprintf("Channel %d Summary", channel)) + "\n" +
		panelInfo.Render(strings.Join(summary, "\n")) + "\n" +
		v.RenderGrid(channel, RenderOptions{Coordinates: true}) + "\n" +
		Legend(false) + "\n\n" +
		v.RenderSuggestions(channel, opts)
}
