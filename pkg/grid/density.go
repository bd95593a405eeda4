package grid

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// Density analysis defaults.
const (
	DefaultWindow         = 5
	DefaultStep           = 3
	DefaultMinDensity     = 0.6
	DefaultSuggestDensity = 0.8
)

// DensityOptions configures AnalyzeDensity. Zero fields take the defaults.
type DensityOptions struct {
	Window     int
	Step       int
	MinDensity float64
}

func (o DensityOptions) withDefaults() DensityOptions {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	if o.MinDensity <= 0 {
		o.MinDensity = DefaultMinDensity
	}
	return o
}

// Window is one analyzed square of the grid.
type Window struct {
	Region  tiles.Region `json:"region"`
	Tiles   int          `json:"tiles"`
	Density float64      `json:"density"`
}

// AnalyzeDensity slides a Window×Window square over the grid in steps of
// Step and returns the squares whose tile density exceeds MinDensity,
// densest first. Equal densities keep row-major order.
func (v *Visualizer) AnalyzeDensity(channel int, opts DensityOptions) []Window {
	opts = opts.withDefaults()
	b := v.index.Bounds()
	if b.Empty() {
		return nil
	}

	var out []Window
	for y := b.YMin; y <= b.YMax-opts.Window; y += opts.Step {
		for x := b.XMin; x <= b.XMax-opts.Window; x += opts.Step {
			r := tiles.Region{
				YStart:  y,
				YEnd:    y + opts.Window,
				XStart:  x,
				XEnd:    x + opts.Window,
				Channel: channel,
			}
			n := len(v.index.TilesInRegion(r))
			d := float64(n) / float64(r.TileCount())
			if d > opts.MinDensity {
				out = append(out, Window{Region: r, Tiles: n, Density: d})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Density > out[j].Density })
	return out
}

// SuggestOptions configures Suggest. Zero fields take the defaults.
type SuggestOptions struct {
	// Window, Step and MinDensity configure the density analysis that
	// suggestions are picked from.
	Window         int
	Step           int
	MinDensity     float64
	SuggestDensity float64

	// PerClass runs a separate analysis per size class with the window set
	// to the class size, so every class can be suggested.
	PerClass bool
}

// Suggestion is the best window found for one size class.
type Suggestion struct {
	Class tiles.SizeClass `json:"class"`
	Window
}

// Suggest returns, per size class, the densest analyzed window of exactly
// that size whose density exceeds SuggestDensity. Classes with no such
// window are omitted. Without PerClass only the class matching the
// analysis window can be suggested.
func (v *Visualizer) Suggest(channel int, opts SuggestOptions) []Suggestion {
	if opts.SuggestDensity <= 0 {
		opts.SuggestDensity = DefaultSuggestDensity
	}
	analysis := DensityOptions{Window: opts.Window, Step: opts.Step, MinDensity: opts.MinDensity}

	var windows []Window
	if !opts.PerClass {
		windows = v.AnalyzeDensity(channel, analysis)
	}

	var out []Suggestion
	for _, class := range tiles.SizeClasses {
		candidates := windows
		if opts.PerClass {
			analysis.Window = class.Size
			candidates = v.AnalyzeDensity(channel, analysis)
		}
		best, ok := densest(candidates, class.Size)
		if !ok || best.Density <= opts.SuggestDensity {
			continue
		}
		out = append(out, Suggestion{Class: class, Window: best})
	}
	return out
}

// densest returns the first size×size window of a density-sorted list.
func densest(windows []Window, size int) (Window, bool) {
	for _, w := range windows {
		if w.Region.Height() == size && w.Region.Width() == size {
			return w, true
		}
	}
	return Window{}, false
}

// DensitySummary aggregates a density analysis.
type DensitySummary struct {
	Windows int     `json:"windows"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Max     float64 `json:"max"`
}

// Summarize computes mean, spread and peak density over windows.
func Summarize(windows []Window) DensitySummary {
	if len(windows) == 0 {
		return DensitySummary{}
	}
	d := make([]float64, len(windows))
	for i, w := range windows {
		d[i] = w.Density
	}
	mean, std := stat.MeanStdDev(d, nil)
	if len(d) < 2 {
		std = 0
	}
	return DensitySummary{Windows: len(d), Mean: mean, StdDev: std, Max: floats.Max(d)}
}
