// Package stitch reassembles a rectangular region of tiles into one volume.
//
// A [Stitcher] reads each present tile of a region from disk, pastes it at
// its grid offset in a zero-initialised output volume and writes the result
// as a single multi-page TIFF carrying provenance in its description. The
// output file appears only when reconstruction succeeds.
package stitch

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/tiff"
	"github.com/matzehuels/tilestitch/pkg/tiles"
	"github.com/matzehuels/tilestitch/pkg/volume"
)

// Method names the reconstruction strategy in output provenance.
const Method = "direct_stitching"

// FillPolicy decides what happens at grid positions with no tile.
type FillPolicy string

const (
	// FillZero leaves missing positions zero without comment.
	FillZero FillPolicy = "zero"
	// FillSkip leaves missing positions zero and logs a warning for each.
	FillSkip FillPolicy = "skip"
)

// ParseFillPolicy accepts "zero" or "skip".
func ParseFillPolicy(s string) (FillPolicy, error) {
	switch p := FillPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FillZero, FillSkip:
		return p, nil
	case "":
		return FillZero, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "invalid fill policy %q (want zero or skip)", s)
}

// TileLoader reads slices [z0, z1) of one tile image.
type TileLoader interface {
	LoadSlices(path string, z0, z1 int) (*volume.Volume, error)
}

// TIFFLoader loads tiles with pkg/tiff.
type TIFFLoader struct{}

// LoadSlices decodes pages [z0, z1) of the TIFF at path.
func (TIFFLoader) LoadSlices(path string, z0, z1 int) (*volume.Volume, error) {
	return tiff.ReadVolume(path, z0, z1)
}

// Options configures a Stitcher.
type Options struct {
	// Loader reads tile pixels. Nil means TIFFLoader.
	Loader TileLoader

	// Logger receives progress and warnings. Nil discards.
	Logger *log.Logger

	// Progress, when set, receives a progress bar over the region's tiles.
	Progress io.Writer

	// SampleSize bounds the voxels visited for output intensity statistics.
	// Zero means volume.DefaultSampleSize.
	SampleSize int
}

// StitchOptions configures one reconstruction.
type StitchOptions struct {
	FillMissing FillPolicy
	Compression tiff.Compression

	// ZRange restricts the slices taken from every tile. Nil means all.
	ZRange *tiles.ZRange
}

// Result describes a written reconstruction.
type Result struct {
	Path         string           `json:"path"`
	RunID        string           `json:"run_id"`
	Region       tiles.Region     `json:"region"`
	Depth        int              `json:"depth"`
	Height       int              `json:"height"`
	Width        int              `json:"width"`
	TilesFound   int              `json:"tiles_found"`
	TilesMissing int              `json:"tiles_missing"`
	SizeBytes    int64            `json:"size_bytes"`
	Intensity    volume.Intensity `json:"intensity"`
	Duration     time.Duration    `json:"duration"`
}

// Stitcher reconstructs regions of one index.
type Stitcher struct {
	index  *tiles.Index
	loader TileLoader
	logger *log.Logger
	opts   Options
}

// New creates a Stitcher over idx.
func New(idx *tiles.Index, opts Options) *Stitcher {
	s := &Stitcher{index: idx, loader: opts.Loader, logger: opts.Logger, opts: opts}
	if s.loader == nil {
		s.loader = TIFFLoader{}
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// Stitch reconstructs r into a TIFF at outputPath.
//
// The region is validated against the index first and the validation error
// is returned unchanged. Any tile load failure, shape mismatch, cancellation
// or write failure aborts the run and leaves no output file.
func (s *Stitcher) Stitch(ctx context.Context, r tiles.Region, outputPath string, opts StitchOptions) (*Result, error) {
	start := time.Now()
	hooks := observability.Stitch()
	hooks.OnStitchStart(ctx, r.String(), r.TileCount())

	res, err := s.stitch(ctx, r, outputPath, opts)
	hooks.OnStitchComplete(ctx, outputPath, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (s *Stitcher) stitch(ctx context.Context, r tiles.Region, outputPath string, opts StitchOptions) (*Result, error) {
	if err := s.index.ValidateRegion(r); err != nil {
		return nil, err
	}
	if opts.FillMissing == "" {
		opts.FillMissing = FillZero
	}
	if opts.FillMissing != FillZero && opts.FillMissing != FillSkip {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid fill policy %q", opts.FillMissing)
	}

	ref, ok := s.index.ReferenceTile(r)
	if !ok {
		return nil, errors.New(errors.ErrCodeEmptyRegion, "no tiles found in region %s", r)
	}

	z := tiles.ZRange{Start: 0, End: ref.ZSlices}
	if opts.ZRange != nil {
		z = opts.ZRange.Clamp(ref.ZSlices)
		if z.Len() == 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"z-range %s selects no slices (tiles have %d)", opts.ZRange, ref.ZSlices)
		}
	}

	outH, outW := r.Height()*ref.Height, r.Width()*ref.Width
	present := s.index.TilesInRegion(r)
	s.logger.Info("reconstructing region",
		"region", r.String(), "channel", r.Channel,
		"grid", fmt.Sprintf("%dx%d", r.Height(), r.Width()),
		"output", fmt.Sprintf("%dx%dx%d", outH, outW, z.Len()),
		"tiles", fmt.Sprintf("%d/%d", len(present), r.TileCount()))

	out := volume.New(z.Len(), outH, outW)

	var bar *progressbar.ProgressBar
	if s.opts.Progress != nil {
		bar = progressbar.NewOptions(r.TileCount(),
			progressbar.OptionSetWriter(s.opts.Progress),
			progressbar.OptionSetDescription("Stitching tiles"),
			progressbar.OptionSetItsString("tiles"),
			progressbar.OptionShowIts(),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(s.opts.Progress) }),
		)
	}

	hooks := observability.Stitch()
	missing := 0
	for gy := 0; gy < r.Height(); gy++ {
		for gx := 0; gx < r.Width(); gx++ {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(errors.ErrCodeCanceled, err, "reconstruction canceled")
			}
			y, x := r.YStart+gy, r.XStart+gx

			tile, ok := s.index.Tile(y, x, r.Channel)
			if ok {
				t0 := time.Now()
				if err := s.place(out, tile, ref, z, gy*ref.Height, gx*ref.Width); err != nil {
					return nil, err
				}
				hooks.OnTileLoaded(ctx, tile.Path, time.Since(t0))
			} else {
				missing++
				hooks.OnTileMissing(ctx, y, x)
				if opts.FillMissing == FillSkip {
					s.logger.Warn(fmt.Sprintf("missing tile at y%03d_x%03d", y, x))
				}
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	runID := uuid.NewString()
	desc := Description(Provenance{
		Region:     r,
		Depth:      out.Depth,
		TilesFound: len(present),
		RunID:      runID,
		Bounds:     outputBounds(r, ref, outH, outW),
	})

	if err := tiff.WriteFile(outputPath, out, tiff.WriteOptions{
		Compression: opts.Compression,
		Description: desc,
	}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWriteFailed, err, "write %s", outputPath)
	}

	res := &Result{
		Path:         outputPath,
		RunID:        runID,
		Region:       r,
		Depth:        out.Depth,
		Height:       out.Height,
		Width:        out.Width,
		TilesFound:   len(present),
		TilesMissing: missing,
		Intensity:    out.SampleIntensity(s.opts.SampleSize),
	}
	if st, err := os.Stat(outputPath); err == nil {
		res.SizeBytes = st.Size()
	}

	s.logger.Info("reconstruction complete",
		"path", outputPath, "run_id", runID,
		"size_mb", fmt.Sprintf("%.1f", float64(out.Bytes())/(1<<20)))
	s.logger.Debug("output intensity",
		"min", res.Intensity.Min, "max", res.Intensity.Max,
		"mean", fmt.Sprintf("%.1f", res.Intensity.Mean),
		"std", fmt.Sprintf("%.1f", res.Intensity.StdDev))
	return res, nil
}

// place loads one tile and pastes it at (y0, x0) of out.
func (s *Stitcher) place(out *volume.Volume, tile, ref tiles.TileInfo, z tiles.ZRange, y0, x0 int) error {
	name := tile.Key().Name()
	v, err := s.loader.LoadSlices(tile.Path, z.Start, z.End)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTileRead, err, "load tile %s", name)
	}
	if v.Depth != z.Len() || v.Height != ref.Height || v.Width != ref.Width {
		return errors.New(errors.ErrCodeTileRead,
			"tile %s is %dx%dx%d, want %dx%dx%d",
			name, v.Depth, v.Height, v.Width, z.Len(), ref.Height, ref.Width)
	}
	if err := out.Paste(v, y0, x0); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "paste tile %s", name)
	}
	return nil
}

// outputBounds places the output in mosaic pixel space using the reference
// tile's bounds as the anchor.
func outputBounds(r tiles.Region, ref tiles.TileInfo, h, w int) tiles.Bounds {
	y0 := max(0, ref.Bounds.Y0-(ref.Y-r.YStart)*ref.Height)
	x0 := max(0, ref.Bounds.X0-(ref.X-r.XStart)*ref.Width)
	return tiles.Bounds{Y0: y0, Y1: y0 + h, X0: x0, X1: x0 + w}
}
