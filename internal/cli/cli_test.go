package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/selection"
	"github.com/matzehuels/tilestitch/pkg/tiff"
	"github.com/matzehuels/tilestitch/pkg/tiles"
	"github.com/matzehuels/tilestitch/pkg/volume"
)

// writeTiles creates a rows×cols grid of 2×4×4 tiles on channel 0.
func writeTiles(t *testing.T, rows, cols int) string {
	t.Helper()
	dir := t.TempDir()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			tileDir := filepath.Join(dir, tiles.Key{Y: y, X: x}.Name())
			require.NoError(t, os.MkdirAll(tileDir, 0o755))
			v := volume.New(2, 4, 4)
			for z := 0; z < 2; z++ {
				for i := range v.Slice(z) {
					v.Slice(z)[i] = uint16(100 + y*10 + x)
				}
			}
			require.NoError(t, tiff.WriteFile(filepath.Join(tileDir, tiles.DataFile), v, tiff.WriteOptions{}))
		}
	}
	return dir
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	var logs, out bytes.Buffer
	c := New(&logs, LogInfo)
	defer c.Close()

	root := c.RootCommand()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStitchCommand(t *testing.T) {
	dir := writeTiles(t, 2, 3)
	output := filepath.Join(t.TempDir(), "region.tif")

	out, err := execute(t, "", "stitch", "--tiles-dir", dir, "--no-cache", "-q",
		"--region", "y000:002,x001:003", "--output", output)
	require.NoError(t, err)
	require.Equal(t, output, strings.TrimSpace(out))

	info, err := tiff.ReadInfo(output)
	require.NoError(t, err)
	require.Equal(t, 2, info.Pages)
	require.Equal(t, 8, info.Height)
	require.Equal(t, 8, info.Width)
	require.Equal(t, tiff.CompressionLZW, info.Compression)
}

func TestStitchCommandDefaultOutput(t *testing.T) {
	dir := writeTiles(t, 1, 2)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out, err := execute(t, "", "stitch", "--tiles-dir", dir, "--no-cache", "-q", "--region", "y000:001,x000:002")
	require.NoError(t, err)
	require.Equal(t, defaultOutput, strings.TrimSpace(out))

	info, err := tiff.ReadInfo(defaultOutput)
	require.NoError(t, err)
	require.Equal(t, 8, info.Width)
}

func TestStitchCommandFlags(t *testing.T) {
	dir := writeTiles(t, 2, 2)
	output := filepath.Join(t.TempDir(), "region.tif")

	_, err := execute(t, "", "stitch", "--tiles-dir", dir, "--no-cache", "-q",
		"--region", "y000:002,x000:002", "--output", output,
		"--compression", "deflate", "--z-range", "1:")
	require.NoError(t, err)

	info, err := tiff.ReadInfo(output)
	require.NoError(t, err)
	require.Equal(t, 1, info.Pages)
	require.Equal(t, tiff.CompressionDeflate, info.Compression)
}

func TestStitchCommandErrors(t *testing.T) {
	dir := writeTiles(t, 2, 2)
	output := filepath.Join(t.TempDir(), "region.tif")

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"out of bounds", []string{"--region", "y000:003,x000:002"}, errors.ErrCodeInvalidRegion},
		{"bad format", []string{"--region", "rows 1-2"}, errors.ErrCodeInvalidRegionFormat},
		{"bad fill", []string{"--region", "y0,x0", "--fill-missing", "mean"}, errors.ErrCodeInvalidInput},
		{"bad compression", []string{"--region", "y0,x0", "--compression", "jpeg"}, errors.ErrCodeInvalidInput},
		{"bad memory", []string{"--region", "y0,x0", "--max-memory", "0"}, errors.ErrCodeInvalidInput},
		{"missing selection", []string{"--load", filepath.Join(dir, "missing.json")}, errors.ErrCodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"stitch", "--tiles-dir", dir, "--no-cache", "--output", output}, tt.args...)
			_, err := execute(t, "", args...)
			require.Error(t, err)
			require.Equal(t, tt.code, errors.GetCode(err), "error: %v", err)
		})
	}
	_, statErr := os.Stat(output)
	require.True(t, os.IsNotExist(statErr), "no output should be written on error")
}

func TestStitchCommandNeedsRegion(t *testing.T) {
	dir := writeTiles(t, 1, 1)
	_, err := execute(t, "", "stitch", "--tiles-dir", dir, "--no-cache")
	require.Error(t, err)

	_, err = execute(t, "", "stitch", "--tiles-dir", dir, "--no-cache", "--region", "y0,x0", "--load", "a.json")
	require.Error(t, err)
}

func TestStitchCommandEmptyDirectory(t *testing.T) {
	_, err := execute(t, "", "stitch", "--tiles-dir", t.TempDir(), "--no-cache", "--region", "y0,x0")
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrCodeDirectoryNotFound))
}

func TestStitchPreviewDeclined(t *testing.T) {
	dir := writeTiles(t, 2, 2)
	output := filepath.Join(t.TempDir(), "region.tif")

	out, err := execute(t, "n\n", "stitch", "--tiles-dir", dir, "--no-cache",
		"--region", "y000:002,x000:002", "--output", output, "--preview")
	require.NoError(t, err)
	require.Contains(t, out, "Proceed with reconstruction? (y/N): ")

	_, statErr := os.Stat(output)
	require.True(t, os.IsNotExist(statErr))
}

func TestStitchPreviewAccepted(t *testing.T) {
	dir := writeTiles(t, 2, 2)
	output := filepath.Join(t.TempDir(), "region.tif")

	_, err := execute(t, "yes\n", "stitch", "--tiles-dir", dir, "--no-cache",
		"--region", "y000:002,x000:002", "--output", output, "--preview")
	require.NoError(t, err)
	require.FileExists(t, output)
}

func TestSelectSaveThenStitch(t *testing.T) {
	dir := writeTiles(t, 3, 3)
	saved := filepath.Join(t.TempDir(), "region.yaml")

	_, err := execute(t, "", "select", "--tiles-dir", dir, "--no-cache",
		"--preset", "small", "--save", saved)
	require.NoError(t, err)

	doc, err := selection.Load(saved)
	require.NoError(t, err)
	require.Equal(t, selection.CreatedBy, doc.Metadata.CreatedBy)
	require.Positive(t, doc.Region.TileCount())

	output := filepath.Join(t.TempDir(), "region.tif")
	out, err := execute(t, "", "stitch", "--tiles-dir", dir, "--no-cache", "-q",
		"--load", saved, "--output", output)
	require.NoError(t, err)
	require.Equal(t, output, strings.TrimSpace(out))
}

func TestSelectRejectsInvalidRegion(t *testing.T) {
	dir := writeTiles(t, 2, 2)
	_, err := execute(t, "", "select", "--tiles-dir", dir, "--no-cache", "--region", "y000:002,x000:002", "--channel", "4")
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrCodeInvalidRegion))
	require.Contains(t, err.Error(), "channel 4 not available")
}

func TestSelectFlagsExclusive(t *testing.T) {
	dir := writeTiles(t, 1, 1)
	_, err := execute(t, "", "select", "--tiles-dir", dir, "--no-cache", "--region", "y0,x0", "--preset", "small")
	require.Error(t, err)
}

func TestExploreCommand(t *testing.T) {
	dir := writeTiles(t, 2, 2)
	_, err := execute(t, "", "explore", "--tiles-dir", dir, "--no-cache", "--grid", "--tissue-map", "--suggest")
	require.NoError(t, err)
}

func TestConfigFlagRequiresFile(t *testing.T) {
	dir := writeTiles(t, 1, 1)
	_, err := execute(t, "", "explore", "--tiles-dir", dir, "--config", filepath.Join(dir, "nope.toml"))
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrCodeFileNotFound))
}

func TestCachePathCommand(t *testing.T) {
	out, err := execute(t, "", "cache", "path")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(os.Getenv("XDG_CACHE_HOME"), appName), strings.TrimSpace(out))
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" y \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := confirm(strings.NewReader(tt.input), &out, "ok? ")
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, "ok? ", out.String())
		})
	}
}

func TestServeShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- serve(ctx, ln, handler) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestFormatError(t *testing.T) {
	err := errors.New(errors.ErrCodeInvalidRegion, "region too large: %d tiles (max %d)", 120, 100)
	got := FormatError(err)
	require.Contains(t, got, "region too large: 120 tiles (max 100)")
	require.NotContains(t, got, "INVALID_REGION")
}
