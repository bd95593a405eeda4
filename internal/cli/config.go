package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/grid"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// Config is the contents of config.toml. Command-line flags override it.
type Config struct {
	TilesDir string        `toml:"tiles_dir"`
	Limits   LimitsConfig  `toml:"limits"`
	Density  DensityConfig `toml:"density"`
	Stitch   StitchConfig  `toml:"stitch"`
	Log      LogConfig     `toml:"log"`
	Serve    ServeConfig   `toml:"serve"`
}

// LimitsConfig bounds region selection.
type LimitsConfig struct {
	MaxRegionTiles int `toml:"max_region_tiles"`
}

// DensityConfig tunes tissue density analysis and suggestions.
type DensityConfig struct {
	Window         int     `toml:"window"`
	Step           int     `toml:"step"`
	MinDensity     float64 `toml:"min_density"`
	SuggestDensity float64 `toml:"suggest_density"`

	// SuggestPerClass analyzes each size class with its own window
	// instead of picking suggestions from the window-sized analysis.
	SuggestPerClass bool `toml:"suggest_per_class"`
}

// StitchConfig holds stitch defaults.
type StitchConfig struct {
	FillMissing string `toml:"fill_missing"`
	Compression string `toml:"compression"`
	MaxMemoryMB int    `toml:"max_memory_mb"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	File    string `toml:"file"`
	MaxSize int    `toml:"max_size"` // megabytes
	MaxAge  int    `toml:"max_age"`  // days
}

// ServeConfig configures the HTTP API.
type ServeConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		TilesDir: defaultTilesDir,
		Limits:   LimitsConfig{MaxRegionTiles: tiles.DefaultMaxRegionTiles},
		Density: DensityConfig{
			Window:         grid.DefaultWindow,
			Step:           grid.DefaultStep,
			MinDensity:     grid.DefaultMinDensity,
			SuggestDensity: grid.DefaultSuggestDensity,
		},
		Stitch: StitchConfig{
			FillMissing: string(stitch.FillZero),
			Compression: "lzw",
			MaxMemoryMB: stitch.DefaultMaxMemoryMB,
		},
		Log:   LogConfig{MaxSize: 10, MaxAge: 28},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// LoadConfig reads path on top of DefaultConfig. A missing file yields the
// defaults unless required is set. Unknown keys are rejected so typos do
// not pass silently.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return cfg, errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s", path)
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return cfg, errors.New(errors.ErrCodeInvalidInput, "unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.validate(); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "config %s", path)
	}
	return cfg, nil
}

// validate rejects values the analysis would otherwise replace with
// defaults.
func (c Config) validate() error {
	d := c.Density
	switch {
	case c.Limits.MaxRegionTiles <= 0:
		return fmt.Errorf("limits.max_region_tiles must be positive, got %d", c.Limits.MaxRegionTiles)
	case d.Window <= 0:
		return fmt.Errorf("density.window must be positive, got %d", d.Window)
	case d.Step <= 0:
		return fmt.Errorf("density.step must be positive, got %d", d.Step)
	case d.MinDensity <= 0 || d.MinDensity >= 1:
		return fmt.Errorf("density.min_density must be between 0 and 1 (exclusive), got %g", d.MinDensity)
	case d.SuggestDensity <= 0 || d.SuggestDensity >= 1:
		return fmt.Errorf("density.suggest_density must be between 0 and 1 (exclusive), got %g", d.SuggestDensity)
	}
	return nil
}
