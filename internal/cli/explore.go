package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/grid"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// exploreOptions holds flags for the explore command.
type exploreOptions struct {
	channel   int
	showGrid  bool
	tissueMap bool
	suggest   bool
	topN      int
}

// exploreCommand creates the explore command for inspecting the tile grid.
func (c *CLI) exploreCommand() *cobra.Command {
	var opts exploreOptions

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Show tile statistics and coverage",
		Long: `Scan the tiles directory and print index statistics.

Without view flags an overview of the channel is shown: the full coverage grid
and suggested regions. --grid, --tissue-map and --suggest select individual views.`,
		Example: `  tilestitch explore
  tilestitch explore --channel 1 --grid
  tilestitch explore --tissue-map --suggest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExplore(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.channel, "channel", "c", 0, "channel to show (default: first available)")
	cmd.Flags().BoolVar(&opts.showGrid, "grid", false, "show the coverage grid with coordinates")
	cmd.Flags().BoolVar(&opts.tissueMap, "tissue-map", false, "show the compact grid and high-density regions")
	cmd.Flags().BoolVar(&opts.suggest, "suggest", false, "suggest regions for stitching")
	cmd.Flags().IntVar(&opts.topN, "top", 5, "number of dense regions listed by --tissue-map")

	return cmd
}

func (c *CLI) runExplore(cmd *cobra.Command, opts exploreOptions) error {
	idx, err := c.loadIndex(cmd.Context())
	if err != nil {
		return err
	}
	if err := requireTiles(idx); err != nil {
		return err
	}

	stats := idx.Stats()
	printBlock(renderStatsTable(idx.Dir(), stats))
	printStats(stats.TotalTiles, len(stats.Channels), uint64(stats.TotalSizeMB*(1<<20)))
	printNewline()

	channel := resolveChannel(cmd, opts.channel, idx)
	if !idx.HasChannel(channel) {
		printWarning("Channel %d has no tiles; available: %s", channel, formatChannels(stats.Channels))
		return nil
	}

	vis := grid.New(idx)
	if !opts.showGrid && !opts.tissueMap && !opts.suggest {
		printBlock(vis.RenderOverview(channel, c.suggestOptions()))
		return nil
	}
	if opts.showGrid {
		printBlock(vis.RenderGrid(channel, grid.RenderOptions{Coordinates: true}) + "\n" + grid.Legend(false))
	}
	if opts.tissueMap {
		printBlock(vis.RenderTissueMap(channel, opts.topN, c.densityOptions()))
	}
	if opts.suggest {
		printBlock(vis.RenderSuggestions(channel, c.suggestOptions()))
	}
	return nil
}

// renderStatsTable formats index statistics as a bordered two-column table.
func renderStatsTable(dir string, s tiles.Stats) string {
	b := s.Bounds
	counts := make([]string, 0, len(s.Channels))
	for _, ch := range s.Channels {
		counts = append(counts, fmt.Sprintf("c%d: %d", ch, s.ChannelCounts[ch]))
	}

	rows := [][]string{
		{"Directory", dir},
		{"Total tiles", strconv.Itoa(s.TotalTiles)},
		{"Channels", formatChannels(s.Channels)},
		{"Tiles per channel", strings.Join(counts, ", ")},
		{"Y range", fmt.Sprintf("%d - %d", b.YMin, b.YMax-1)},
		{"X range", fmt.Sprintf("%d - %d", b.XMin, b.XMax-1)},
		{"Grid size", fmt.Sprintf("%d x %d", b.YMax-b.YMin, b.XMax-b.XMin)},
		{"Total size", fmt.Sprintf("%.1f MB", s.TotalSizeMB)},
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return lipgloss.NewStyle().Foreground(colorGray).Padding(0, 1)
			}
			return lipgloss.NewStyle().Foreground(colorWhite).Padding(0, 1)
		}).
		Rows(rows...)

	return StyleTitle.Render("Tile Statistics") + "\n" + t.String()
}

func formatChannels(channels []int) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = strconv.Itoa(ch)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
