package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/selection"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tiff"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// defaultOutput is the output path used when --output is not given.
const defaultOutput = "reconstructed_region.tif"

// stitchOptions holds flags for the stitch command.
type stitchOptions struct {
	region      string
	load        string
	output      string
	channel     int
	fillMissing string
	compression string
	zRange      string
	maxMemoryMB int
	preview     bool
	force       bool
	quiet       bool
}

// stitchCommand creates the stitch command for reconstructing a region.
func (c *CLI) stitchCommand() *cobra.Command {
	var opts stitchOptions

	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Stitch a region of tiles into one TIFF volume",
		Long: `Stitch every tile of a region into a single multi-page 16-bit TIFF.

Tiles are placed on a regular grid sized from the first tile found in the
region. Missing positions are left black (--fill-missing zero) or skipped with
a warning (--fill-missing skip). The run is refused when the memory estimate
exceeds --max-memory unless --force is given.`,
		Example: `  tilestitch stitch --region y015:020,x005:010 --output region.tif
  tilestitch stitch --load region.json --compression deflate --z-range 10:40
  tilestitch stitch --region y000:008,x000:008 --preview`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStitch(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.region, "region", "r", "", "region like y015:020,x005:010 (end exclusive)")
	f.StringVarP(&opts.load, "load", "l", "", "load the region from a saved selection file")
	f.StringVarP(&opts.output, "output", "o", defaultOutput, "output TIFF path")
	f.IntVarP(&opts.channel, "channel", "c", 0, "channel (default: from --load, else 0)")
	f.StringVar(&opts.fillMissing, "fill-missing", "", "missing tiles: zero or skip (default from config, zero)")
	f.StringVar(&opts.compression, "compression", "", "output compression: none, lzw or deflate (default from config, lzw)")
	f.StringVar(&opts.zRange, "z-range", "", "slices to keep, S:E (end exclusive, either side optional)")
	f.IntVar(&opts.maxMemoryMB, "max-memory", 0, "memory limit in MB (default from config, 8192)")
	f.BoolVar(&opts.preview, "preview", false, "show what would be stitched and ask before running")
	f.BoolVarP(&opts.force, "force", "f", false, "skip the confirmation prompt and the memory guard")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "only print errors and the output path")

	cmd.MarkFlagsMutuallyExclusive("region", "load")
	cmd.MarkFlagsOneRequired("region", "load")
	_ = cmd.RegisterFlagCompletionFunc("fill-missing", fixedCompletion("zero", "skip"))
	_ = cmd.RegisterFlagCompletionFunc("compression", fixedCompletion("none", "lzw", "deflate"))
	_ = cmd.MarkFlagFilename("load", "json", "yaml", "yml")
	_ = cmd.MarkFlagFilename("output", "tif", "tiff")

	return cmd
}

func (c *CLI) runStitch(cmd *cobra.Command, opts stitchOptions) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	if opts.quiet {
		logger.SetLevel(log.WarnLevel)
	}

	settings, err := c.stitchSettings(cmd, opts)
	if err != nil {
		return err
	}

	idx, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}
	if err := requireTiles(idx); err != nil {
		return err
	}

	region, err := resolveStitchRegion(cmd, opts)
	if err != nil {
		return err
	}
	if err := idx.ValidateRegion(region); err != nil {
		return err
	}

	var bar io.Writer
	if !opts.quiet && isTerminal(os.Stderr) {
		bar = os.Stderr
	}
	s := stitch.New(idx, stitch.Options{Logger: logger, Progress: bar})

	ok, msg := s.ValidateMemory(region, settings.maxMemoryMB)
	if !ok {
		if !opts.force {
			return errors.New(errors.ErrCodeMemoryLimit, "%s (use --force to override or --max-memory to raise the limit)", msg)
		}
		printWarning("%s, continuing because of --force", msg)
	}

	if opts.preview {
		printPreview(s.Info(region), msg)
		if !opts.force {
			proceed, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Proceed with reconstruction? (y/N): ")
			if err != nil {
				return err
			}
			if !proceed {
				printInfo("Reconstruction cancelled")
				return nil
			}
		}
	}

	p := newProgress(logger)
	res, err := s.Stitch(ctx, region, opts.output, settings.stitch)
	if err != nil {
		return err
	}
	p.done(fmt.Sprintf("Stitched %d tiles", res.TilesFound))

	if opts.quiet {
		fmt.Fprintln(cmd.OutOrStdout(), res.Path)
		return nil
	}
	printResult(res)
	return nil
}

// stitchConfig is the effective stitch configuration after merging
// config file defaults and flags.
type stitchConfig struct {
	stitch      stitch.StitchOptions
	maxMemoryMB int
}

func (c *CLI) stitchSettings(cmd *cobra.Command, opts stitchOptions) (stitchConfig, error) {
	cfg := c.config.Stitch
	flags := cmd.Flags()
	if flags.Changed("fill-missing") {
		cfg.FillMissing = opts.fillMissing
	}
	if flags.Changed("compression") {
		cfg.Compression = opts.compression
	}
	if flags.Changed("max-memory") {
		cfg.MaxMemoryMB = opts.maxMemoryMB
	}

	var out stitchConfig
	fill, err := stitch.ParseFillPolicy(cfg.FillMissing)
	if err != nil {
		return out, err
	}
	comp, err := tiff.ParseCompression(cfg.Compression)
	if err != nil {
		return out, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid compression")
	}
	if cfg.MaxMemoryMB <= 0 {
		return out, errors.New(errors.ErrCodeInvalidInput, "max memory must be positive, got %d", cfg.MaxMemoryMB)
	}
	out.stitch = stitch.StitchOptions{FillMissing: fill, Compression: comp}
	out.maxMemoryMB = cfg.MaxMemoryMB

	if opts.zRange != "" {
		z, err := tiles.ParseZRange(opts.zRange)
		if err != nil {
			return out, err
		}
		out.stitch.ZRange = &z
	}
	return out, nil
}

// resolveStitchRegion reads the region from --region or --load. A loaded
// file supplies the channel unless --channel is given.
func resolveStitchRegion(cmd *cobra.Command, opts stitchOptions) (tiles.Region, error) {
	if opts.load == "" {
		return tiles.ParseRegion(opts.region, opts.channel)
	}
	doc, err := selection.Load(opts.load)
	if err != nil {
		return tiles.Region{}, err
	}
	r := doc.Region
	if cmd.Flags().Changed("channel") {
		r.Channel = opts.channel
	}
	printInfo("Loaded selection %s (channel %d)", r, r.Channel)
	return r, nil
}

// confirm asks a yes/no question; only "y" and "yes" are accepted.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(errors.ErrCodeInvalidInput, err, "read answer")
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func printPreview(info stitch.ReconstructionInfo, memory string) {
	fmt.Println(StyleTitle.Render("Reconstruction Preview"))
	printKeyValue("Region", fmt.Sprintf("%s (channel %d)", info.Region, info.Region.Channel))
	printKeyValue("Y range", info.YRange)
	printKeyValue("X range", info.XRange)
	printKeyValue("Grid", fmt.Sprintf("%dx%d tiles (%d total)", info.GridRows, info.GridCols, info.TileCount))
	printKeyValue("Found", fmt.Sprintf("%d/%d tiles", info.TilesFound, info.TileCount))
	if info.TilesMissing > 0 {
		missing := strings.Join(info.MissingList, ", ")
		if info.TilesMissing > len(info.MissingList) {
			missing += fmt.Sprintf(" ... and %d more", info.TilesMissing-len(info.MissingList))
		}
		printKeyValue("Missing", missing)
	}
	o := info.Output
	printKeyValue("Output", fmt.Sprintf("%d x %d x %d (z, y, x)", o.ZSlices, o.Height, o.Width))
	printKeyValue("Size", "~"+humanize.IBytes(uint64(o.SizeMB*(1<<20))))
	printDetail("%s", memory)
	printNewline()
}

func printResult(res *stitch.Result) {
	printSuccess("Reconstruction complete")
	printFile(res.Path)
	printNewline()
	printKeyValue("Shape", fmt.Sprintf("%d x %d x %d (z, y, x)", res.Depth, res.Height, res.Width))
	printKeyValue("Tiles", fmt.Sprintf("%d found, %d missing", res.TilesFound, res.TilesMissing))
	printKeyValue("File size", humanize.IBytes(uint64(res.SizeBytes)))
	printKeyValue("Intensity", fmt.Sprintf("%d - %d (mean %.1f)", res.Intensity.Min, res.Intensity.Max, res.Intensity.Mean))
	printKeyValue("Run ID", res.RunID)
	printKeyValue("Elapsed", res.Duration.Round(time.Millisecond).String())
}
