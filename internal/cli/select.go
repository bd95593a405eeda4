package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/grid"
	"github.com/matzehuels/tilestitch/pkg/selection"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// selectOptions holds flags for the select command.
type selectOptions struct {
	channel     int
	region      string
	interactive bool
	preset      string
	centerY     int
	centerX     int
	save        string
}

// selectCommand creates the select command for choosing a region.
func (c *CLI) selectCommand() *cobra.Command {
	var opts selectOptions

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Choose and validate a region of tiles",
		Long: `Resolve a region from a region string, a size preset or an interactive
grid, validate it against the index and print its statistics.

The region can be saved with --save (JSON, or YAML for .yaml/.yml paths) and
later passed to "tilestitch stitch --load".`,
		Example: `  tilestitch select --region y015:020,x005:010
  tilestitch select --preset medium --center-y 18 --center-x 7 --save region.json
  tilestitch select --interactive --channel 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSelect(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.channel, "channel", "c", 0, "channel (default: first available)")
	f.StringVarP(&opts.region, "region", "r", "", "region like y015:020,x005:010 (end exclusive)")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "select the region on an interactive grid")
	f.StringVarP(&opts.preset, "preset", "p", "", "size preset: small, medium or large")
	f.IntVar(&opts.centerY, "center-y", 0, "preset centre row (default: grid centre)")
	f.IntVar(&opts.centerX, "center-x", 0, "preset centre column (default: grid centre)")
	f.StringVarP(&opts.save, "save", "s", "", "save the selection to this file")

	cmd.MarkFlagsMutuallyExclusive("region", "interactive", "preset")
	cmd.MarkFlagsOneRequired("region", "interactive", "preset")
	_ = cmd.RegisterFlagCompletionFunc("preset", fixedCompletion("small", "medium", "large"))
	_ = cmd.MarkFlagFilename("save", "json", "yaml", "yml")

	return cmd
}

func (c *CLI) runSelect(cmd *cobra.Command, opts selectOptions) error {
	ctx := cmd.Context()
	idx, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}
	if err := requireTiles(idx); err != nil {
		return err
	}
	channel := resolveChannel(cmd, opts.channel, idx)

	var region tiles.Region
	switch {
	case opts.interactive:
		r, err := runSelector(ctx, idx, channel)
		if err != nil {
			return err
		}
		if r == nil {
			printInfo("Selection cancelled")
			return nil
		}
		region = *r
	case opts.preset != "":
		var cy, cx *int
		if cmd.Flags().Changed("center-y") {
			cy = &opts.centerY
		}
		if cmd.Flags().Changed("center-x") {
			cx = &opts.centerX
		}
		if region, err = selection.Preset(idx, opts.preset, cy, cx, channel); err != nil {
			return err
		}
	default:
		if region, err = tiles.ParseRegion(opts.region, channel); err != nil {
			return err
		}
	}

	if err := idx.ValidateRegion(region); err != nil {
		return err
	}

	printBlock(grid.New(idx).RenderRegionStats(region))

	if opts.save != "" {
		if err := selection.Save(opts.save, selection.NewDocument(region, time.Now())); err != nil {
			return err
		}
		printSuccess("Selection saved")
		printFile(opts.save)
		printNewline()
		printNextStep("Stitch it", "tilestitch stitch --load "+opts.save+" --output "+defaultOutput)
	}
	printNextStep("Stitch command", grid.StitchCommand(region)+" --output "+defaultOutput)
	return nil
}
