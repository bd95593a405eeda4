// Package grid renders tile coverage and analyses tile density over an index.
//
// All output is plain strings styled with lipgloss; callers decide where to
// print them. Nothing here mutates the index.
package grid

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/tilestitch/pkg/tiles"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorBlue   = lipgloss.Color("75")
	colorDim    = lipgloss.Color("240")

	styleTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleDim       = lipgloss.NewStyle().Foreground(colorDim)
	stylePresent   = lipgloss.NewStyle().Foreground(colorGreen)
	styleAbsent    = lipgloss.NewStyle().Foreground(colorDim)
	styleHighlight = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleHole      = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	styleCommand   = lipgloss.NewStyle().Foreground(colorBlue)

	panelGrid  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorCyan).Padding(0, 1)
	panelStats = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBlue).Padding(0, 1)
	panelInfo  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorGreen).Padding(0, 1)
)

// Cell glyphs, wide and compact.
const (
	glyphPresent        = "██"
	glyphAbsent         = "··"
	glyphHighlight      = "##"
	glyphHole           = ".."
	glyphPresentCompact = "█"
	glyphAbsentCompact  = "·"
	glyphHighlightSmall = "#"
	glyphHoleSmall      = "."
)

// Visualizer renders views of one index.
type Visualizer struct {
	index *tiles.Index
}

// New creates a Visualizer over idx.
func New(idx *tiles.Index) *Visualizer {
	return &Visualizer{index: idx}
}

// RenderOptions configures RenderGrid.
type RenderOptions struct {
	// Highlight marks a region's cells with distinct glyphs.
	Highlight *tiles.Region

	// Compact uses one character per cell and no coordinates.
	Compact bool

	// Coordinates adds row labels and a column ruler every 5 columns.
	Coordinates bool
}

// RenderGrid draws every cell of the grid bounds for channel.
func (v *Visualizer) RenderGrid(channel int, opts RenderOptions) string {
	b := v.index.Bounds()
	if b.Empty() {
		return styleHole.Render("No tiles available")
	}

	title := fmt.Sprintf("Tile Grid - Channel %d", channel)
	if h := opts.Highlight; h != nil {
		title += fmt.Sprintf(" (Region: y%d:%d, x%d:%d)", h.YStart, h.YEnd, h.XStart, h.XEnd)
	}
	labels := opts.Coordinates && !opts.Compact

	var lines []string
	if labels {
		var ruler strings.Builder
		ruler.WriteString("    ")
		for x := b.XMin; x < b.XMax; x++ {
			if x%5 == 0 {
				fmt.Fprintf(&ruler, "%-3d", x)
			} else {
				ruler.WriteString("   ")
			}
		}
		lines = append(lines, styleDim.Render(strings.TrimRight(ruler.String(), " ")))
	}
	for y := b.YMin; y < b.YMax; y++ {
		var row strings.Builder
		if labels {
			row.WriteString(styleDim.Render(fmt.Sprintf("%2d: ", y)))
		}
		for x := b.XMin; x < b.XMax; x++ {
			_, present := v.index.Tile(y, x, channel)
			inRegion := opts.Highlight != nil && opts.Highlight.Contains(y, x)
			row.WriteString(cell(present, inRegion, opts.Compact))
			if !opts.Compact {
				row.WriteByte(' ')
			}
		}
		lines = append(lines, strings.TrimRight(row.String(), " "))
	}

	return styleTitle.Render(title) + "\n" + panelGrid.Render(strings.Join(lines, "\n"))
}

func cell(present, inRegion, compact bool) string {
	switch {
	case inRegion && present:
		return styleHighlight.Render(pick(compact, glyphHighlightSmall, glyphHighlight))
	case inRegion:
		return styleHole.Render(pick(compact, glyphHoleSmall, glyphHole))
	case present:
		return stylePresent.Render(pick(compact, glyphPresentCompact, glyphPresent))
	}
	return styleAbsent.Render(pick(compact, glyphAbsentCompact, glyphAbsent))
}

func pick(compact bool, small, wide string) string {
	if compact {
		return small
	}
	return wide
}

// Legend explains the cell glyphs.
func Legend(compact bool) string {
	return "Legend: " +
		cell(true, false, compact) + " = tile available, " +
		cell(false, false, compact) + " = no tile, " +
		cell(true, true, compact) + " = highlighted region, " +
		cell(false, true, compact) + " = missing in region"
}

// StitchCommand returns the CLI invocation that reconstructs r.
func StitchCommand(r tiles.Region) string {
	return fmt.Sprintf("tilestitch stitch --region %s --channel %d", r.String(), r.Channel)
}
