package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/tilestitch/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRequiredMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound))
}

func TestLoadConfigValues(t *testing.T) {
	path := writeConfig(t, `
tiles_dir = "/data/tiles"

[limits]
max_region_tiles = 50

[density]
window = 4
min_density = 0.5
suggest_per_class = true

[stitch]
fill_missing = "skip"
compression = "none"
max_memory_mb = 1024

[serve]
addr = "127.0.0.1:9000"
allowed_origins = ["http://localhost:3000"]
`)

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)

	assert.Equal(t, "/data/tiles", cfg.TilesDir)
	assert.Equal(t, 50, cfg.Limits.MaxRegionTiles)
	assert.Equal(t, 4, cfg.Density.Window)
	assert.Equal(t, 0.5, cfg.Density.MinDensity)
	assert.True(t, cfg.Density.SuggestPerClass)
	assert.Equal(t, DefaultConfig().Density.Step, cfg.Density.Step, "unset keys keep defaults")
	assert.Equal(t, "skip", cfg.Stitch.FillMissing)
	assert.Equal(t, "none", cfg.Stitch.Compression)
	assert.Equal(t, 1024, cfg.Stitch.MaxMemoryMB)
	assert.Equal(t, "127.0.0.1:9000", cfg.Serve.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Serve.AllowedOrigins)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"syntax", "tiles_dir = ", "parse config"},
		{"unknown key", "[stitch]\nfill = \"zero\"\n", "stitch.fill"},
		{"wrong type", "[limits]\nmax_region_tiles = \"many\"\n", "parse config"},
		{"zero min density", "[density]\nmin_density = 0\n", "density.min_density"},
		{"zero window", "[density]\nwindow = 0\n", "density.window"},
		{"suggest density above one", "[density]\nsuggest_density = 1.5\n", "density.suggest_density"},
		{"zero region limit", "[limits]\nmax_region_tiles = 0\n", "limits.max_region_tiles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content), true)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg), "error %q should mention %q", err, tt.wantMsg)
		})
	}
}
