package selection

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// Title heads the interactive view.
const Title = "Interactive Tile Selection"

// Controls is the one-line usage summary under the title.
const Controls = "Arrow keys to move, Space to select region corners, Enter to confirm, Q to quit"

// Cell glyphs in priority order.
const (
	glyphCursor   = "><"
	glyphStart    = "S"
	glyphEnd      = "E"
	glyphSelected = "##"
	glyphHole     = ".."
	glyphPresent  = "██"
	glyphAbsent   = "··"
)

var (
	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36"))
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleCursor   = lipgloss.NewStyle().Bold(true).Reverse(true)
	styleCorner   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	styleSelected = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	styleHole     = lipgloss.NewStyle().Foreground(lipgloss.Color("167"))
	stylePresent  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	styleHint     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// Render draws the machine over idx. It has no side effects; keys only
// feeds the help line.
func Render(m Machine, idx *tiles.Index, keys KeyMap) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(Title))
	b.WriteString("\n")
	b.WriteString(styleDim.Render(Controls))
	b.WriteString("\n\n")
	b.WriteString(Header(m))
	b.WriteString("\n\n")

	bounds := m.Bounds()
	if bounds.Empty() {
		b.WriteString(styleHole.Render("No tiles available"))
		b.WriteString("\n")
	} else {
		b.WriteString(styleDim.Render("    " + ruler(bounds)))
		b.WriteString("\n")
		for y := bounds.YMin; y < bounds.YMax; y++ {
			b.WriteString(styleDim.Render(fmt.Sprintf("%2d: ", y)))
			for x := bounds.XMin; x < bounds.XMax; x++ {
				_, present := idx.Tile(y, x, m.Channel())
				b.WriteString(Cell(m, y, x, present))
				b.WriteString(" ")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if footer := Footer(m, idx); footer != "" {
		b.WriteString(footer)
		b.WriteString("\n")
	}
	if hint := m.Hint(); hint != "" {
		b.WriteString(styleHint.Render(hint))
		b.WriteString("\n")
	}
	b.WriteString(styleDim.Render(keys.HelpLine()))
	return b.String()
}

func ruler(bounds tiles.GridBounds) string {
	var b strings.Builder
	for x := bounds.XMin; x < bounds.XMax; x++ {
		if x%5 == 0 {
			fmt.Fprintf(&b, "%-3d", x)
		} else {
			b.WriteString("   ")
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Header describes the cursor, the channel and any marked corners.
func Header(m Machine) string {
	c := m.Cursor()
	parts := []string{
		fmt.Sprintf("Cursor: y%02d_x%02d", c.Y, c.X),
		fmt.Sprintf("Channel: %d", m.Channel()),
	}
	if a, ok := m.Anchor(); ok {
		parts = append(parts, fmt.Sprintf("Start: y%02d_x%02d", a.Y, a.X))
	}
	if r, ok := m.Region(); ok {
		parts = append(parts, fmt.Sprintf("Selected: %dx%d tiles", r.Height(), r.Width()))
	}
	return strings.Join(parts, " | ")
}

// Footer summarises the selected region, or is empty without one.
func Footer(m Machine, idx *tiles.Index) string {
	r, ok := m.Region()
	if !ok {
		return ""
	}
	found := len(idx.TilesInRegion(r))
	est := idx.EstimateOutputSize(r)
	return fmt.Sprintf("Selection: %d/%d tiles (%dx%d pixels, ~%s)",
		found, r.TileCount(), est.Height, est.Width, humanize.IBytes(uint64(est.SizeMB*(1<<20))))
}

// Cell returns the glyph for (y, x). The cursor wins, then the start and
// end corners, then selection membership, then tile presence. Corner
// glyphs are upper case on a present tile and lower case otherwise.
func Cell(m Machine, y, x int, present bool) string {
	p := Point{Y: y, X: x}
	if m.Cursor() == p {
		return styleCursor.Render(glyphCursor)
	}
	if a, ok := m.Anchor(); ok && a == p {
		return styleCorner.Render(corner(glyphStart, present))
	}
	if e, ok := m.Corner(); ok && e == p {
		return styleCorner.Render(corner(glyphEnd, present))
	}
	if m.InSelection(y, x) {
		if present {
			return styleSelected.Render(glyphSelected)
		}
		return styleHole.Render(glyphHole)
	}
	if present {
		return stylePresent.Render(glyphPresent)
	}
	return styleDim.Render(glyphAbsent)
}

func corner(glyph string, present bool) string {
	if present {
		return glyph + " "
	}
	return strings.ToLower(glyph) + " "
}
