package tiles

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matzehuels/tilestitch/pkg/errors"
)

// Region is a half-open rectangle [YStart,YEnd) × [XStart,XEnd) of grid
// cells on one channel. Construction does not validate; see Index.ValidateRegion.
type Region struct {
	YStart  int `json:"y_start" yaml:"y_start"`
	YEnd    int `json:"y_end" yaml:"y_end"`
	XStart  int `json:"x_start" yaml:"x_start"`
	XEnd    int `json:"x_end" yaml:"x_end"`
	Channel int `json:"channel" yaml:"channel"`
}

// Width is the number of grid columns covered.
func (r Region) Width() int { return r.XEnd - r.XStart }

// Height is the number of grid rows covered.
func (r Region) Height() int { return r.YEnd - r.YStart }

// TileCount is Width*Height.
func (r Region) TileCount() int { return r.Width() * r.Height() }

// Contains reports whether grid cell (y, x) lies inside the region.
func (r Region) Contains(y, x int) bool {
	return r.YStart <= y && y < r.YEnd && r.XStart <= x && x < r.XEnd
}

// String formats the region in the same grammar ParseRegion accepts.
// The channel is not part of the string.
func (r Region) String() string {
	return fmt.Sprintf("y%03d:%03d,x%03d:%03d", r.YStart, r.YEnd, r.XStart, r.XEnd)
}

// ParseRegion parses "y<start>:<end>,x<start>:<end>" (end exclusive). A single
// value "y<v>" or "x<v>" selects [v, v+1).
func ParseRegion(s string, channel int) (Region, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Region{}, badRegion(s)
	}
	y0, y1, ok := parseAxis(parts[0], 'y')
	if !ok {
		return Region{}, badRegion(s)
	}
	x0, x1, ok := parseAxis(parts[1], 'x')
	if !ok {
		return Region{}, badRegion(s)
	}
	return Region{YStart: y0, YEnd: y1, XStart: x0, XEnd: x1, Channel: channel}, nil
}

func badRegion(s string) error {
	return errors.New(errors.ErrCodeInvalidRegionFormat,
		"invalid region format %q, use a format like 'y015:020,x005:010'", s)
}

func parseAxis(s string, axis byte) (start, end int, ok bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != axis {
		return 0, 0, false
	}
	lo, hi, ranged := strings.Cut(s[1:], ":")
	start, ok = parseCoord(lo)
	if !ok {
		return 0, 0, false
	}
	if !ranged {
		return start, start + 1, true
	}
	end, ok = parseCoord(hi)
	return start, end, ok
}

func parseCoord(s string) (int, bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// ZRange selects slices [Start, End) of every tile.
type ZRange struct {
	Start int
	End   int
}

// ParseZRange parses "S:E" (end exclusive). Either side may be empty: ":E"
// starts at 0 and "S:" runs to the last slice (End = -1).
func ParseZRange(s string) (ZRange, error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return ZRange{}, errors.New(errors.ErrCodeInvalidInput, "invalid z-range %q, use START:END", s)
	}
	z := ZRange{End: -1}
	if lo != "" {
		n, ok := parseCoord(lo)
		if !ok {
			return ZRange{}, errors.New(errors.ErrCodeInvalidInput, "invalid z-range start %q", lo)
		}
		z.Start = n
	}
	if hi != "" {
		n, ok := parseCoord(hi)
		if !ok {
			return ZRange{}, errors.New(errors.ErrCodeInvalidInput, "invalid z-range end %q", hi)
		}
		z.End = n
	}
	return z, nil
}

// Clamp limits z to [0, depth]. End < 0 means depth. The result may be empty.
func (z ZRange) Clamp(depth int) ZRange {
	out := z
	if out.End < 0 || out.End > depth {
		out.End = depth
	}
	out.Start = max(0, min(out.Start, depth))
	return out
}

// Len returns End-Start, or 0 for an empty range.
func (z ZRange) Len() int { return max(0, z.End-z.Start) }

func (z ZRange) String() string {
	if z.End < 0 {
		return fmt.Sprintf("%d:", z.Start)
	}
	return fmt.Sprintf("%d:%d", z.Start, z.End)
}

// SizeClass is a named square region size used by presets and suggestions.
type SizeClass struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Size  int    `json:"size"`
}

// SizeClasses lists the preset sizes, smallest first.
var SizeClasses = []SizeClass{
	{Name: "small", Label: "Small (3x3)", Size: 3},
	{Name: "medium", Label: "Medium (5x5)", Size: 5},
	{Name: "large", Label: "Large (8x8)", Size: 8},
}

// LookupSizeClass finds a size class by name.
func LookupSizeClass(name string) (SizeClass, bool) {
	for _, c := range SizeClasses {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return SizeClass{}, false
}
