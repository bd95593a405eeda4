// Package cli implements the tilestitch command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/buildinfo"
	"github.com/matzehuels/tilestitch/pkg/cache"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/grid"
	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "tilestitch"

	// defaultTilesDir is scanned when neither flag nor config names a directory.
	defaultTilesDir = "tiles"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	out     io.Writer
	config  Config
	flags   globalFlags
	logFile io.Closer
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	tilesDir   string
	configPath string
	logFile    string
	verbose    bool
	noCache    bool
}

// New creates a new CLI instance with a default logger writing to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		out:    w,
		config: DefaultConfig(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Tilestitch explores tile grids and stitches regions into one volume",
		Long: `Tilestitch indexes a directory of microscopy tiles (tile_yYYY_xXXX_cC/data.tif),
shows their coverage, helps choose a region and stitches that region into a
single multi-page TIFF volume.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) { c.Close() },
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.tilesDir, "tiles-dir", defaultTilesDir, "directory containing tile_y*_x*_c* folders")
	pf.StringVar(&c.flags.configPath, "config", "", "config file (default "+filepath.Join("$XDG_CONFIG_HOME", appName, "config.toml")+")")
	pf.StringVar(&c.flags.logFile, "log-file", "", "also write logs to this file (rotated)")
	pf.BoolVarP(&c.flags.verbose, "verbose", "v", false, "enable verbose logging")
	pf.BoolVar(&c.flags.noCache, "no-cache", false, "do not read or write the tile metadata cache")

	// Register all subcommands
	root.AddCommand(c.exploreCommand())
	root.AddCommand(c.selectCommand())
	root.AddCommand(c.stitchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the config file, applies global flag overrides and wires
// logging before any command runs.
func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	path, explicit := c.flags.configPath, c.flags.configPath != ""
	if !explicit {
		if p, err := configPath(); err == nil {
			path = p
		}
	}
	cfg, err := LoadConfig(path, explicit)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("tiles-dir") || cfg.TilesDir == "" {
		cfg.TilesDir = c.flags.tilesDir
	}
	if flags.Changed("log-file") {
		cfg.Log.File = c.flags.logFile
	}
	c.config = cfg

	level := LogInfo
	if c.flags.verbose {
		level = LogDebug
	}
	c.SetLogLevel(level)

	if cfg.Log.File != "" {
		f := openLogFile(cfg.Log)
		c.logFile = f
		c.Logger.SetOutput(io.MultiWriter(c.out, f))
	}
	if c.flags.verbose {
		registerLogHooks(c.Logger)
	}

	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	c.Logger.Debug("config loaded", "path", path, "tiles_dir", cfg.TilesDir)
	return nil
}

// Close releases the log file and resets observability hooks.
func (c *CLI) Close() {
	observability.Reset()
	if c.logFile != nil {
		_ = c.logFile.Close()
		c.logFile = nil
		c.Logger.SetOutput(c.out)
	}
}

// =============================================================================
// Index Loading
// =============================================================================

// loadIndex scans the configured tiles directory, showing a spinner on
// terminals while it runs.
func (c *CLI) loadIndex(ctx context.Context) (*tiles.Index, error) {
	logger := loggerFromContext(ctx)
	dir := c.config.TilesDir

	mc, err := newCache(c.flags.noCache)
	if err != nil {
		logger.Warn("metadata cache unavailable", "error", err)
		mc = cache.NewNullCache()
	}
	defer mc.Close()

	spinner := newSpinnerWithContext(ctx, "Scanning "+dir+"...")
	spinner.Start()
	start := time.Now()
	idx, err := tiles.Scan(ctx, dir, tiles.ScanOptions{
		Logger: logger,
		Cache:  mc,
		Limits: tiles.Limits{MaxRegionTiles: c.config.Limits.MaxRegionTiles},
	})
	spinner.Stop()
	if err != nil {
		return nil, err
	}
	logger.Debug("index ready", "tiles", idx.Len(), "duration", time.Since(start).Round(time.Millisecond))
	return idx, nil
}

// requireTiles fails when idx is empty.
func requireTiles(idx *tiles.Index) error {
	if idx.Len() == 0 {
		return errors.New(errors.ErrCodeDirectoryNotFound, "no tiles found in %s", idx.Dir())
	}
	return nil
}

// densityOptions and suggestOptions derive analysis settings from config.
func (c *CLI) densityOptions() grid.DensityOptions {
	d := c.config.Density
	return grid.DensityOptions{Window: d.Window, Step: d.Step, MinDensity: d.MinDensity}
}

func (c *CLI) suggestOptions() grid.SuggestOptions {
	d := c.config.Density
	return grid.SuggestOptions{
		Window:         d.Window,
		Step:           d.Step,
		MinDensity:     d.MinDensity,
		SuggestDensity: d.SuggestDensity,
		PerClass:       d.SuggestPerClass,
	}
}

// resolveChannel returns the --channel value, or the first available
// channel when the flag was not given.
func resolveChannel(cmd *cobra.Command, flag int, idx *tiles.Index) int {
	if cmd.Flags().Changed("channel") {
		return flag
	}
	if ch := idx.Channels(); len(ch) > 0 {
		return ch[0]
	}
	return flag
}

func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/tilestitch/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// configPath returns the default config file (~/.config/tilestitch/config.toml).
func configPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// FormatError renders err for the terminal. Structured errors show their
// message and cause without the code prefix.
func FormatError(err error) string {
	return styleIconError.Render(iconError) + " " + errors.UserMessage(err)
}
