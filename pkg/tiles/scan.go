package tiles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tilestitch/pkg/cache"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/tiff"
)

// DataFile is the image file inside every tile directory.
const DataFile = "data.tif"

// NominalTileSize is the pixel edge assumed for bounds when a tile carries
// no tile_bounds_yx annotation.
const NominalTileSize = 1024

// Metadata is what a MetadataReader extracts from one tile image.
type Metadata struct {
	ZSlices     int    `json:"z_slices"`
	Height      int    `json:"height"`
	Width       int    `json:"width"`
	SizeBytes   int64  `json:"size_bytes"`
	Description string `json:"description"`
}

// MetadataReader extracts header metadata from a tile image without
// decoding its pixels.
type MetadataReader interface {
	ReadMetadata(path string) (Metadata, error)
}

// MetadataReaderFunc adapts a function to MetadataReader.
type MetadataReaderFunc func(path string) (Metadata, error)

// ReadMetadata calls f(path).
func (f MetadataReaderFunc) ReadMetadata(path string) (Metadata, error) { return f(path) }

// TIFFReader reads metadata from TIFF headers.
var TIFFReader MetadataReader = MetadataReaderFunc(func(path string) (Metadata, error) {
	info, err := tiff.ReadInfo(path)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		ZSlices:     info.Pages,
		Height:      info.Height,
		Width:       info.Width,
		SizeBytes:   info.Size,
		Description: info.Description,
	}, nil
})

// ScanOptions configures Scan.
type ScanOptions struct {
	// Reader extracts tile metadata. Nil means TIFFReader.
	Reader MetadataReader

	// Logger receives skip warnings and debug output. Nil discards.
	Logger *log.Logger

	// Cache remembers metadata across scans, keyed by file identity. Nil disables.
	Cache cache.Cache

	// Limits is handed to the resulting Index.
	Limits Limits
}

// Scan indexes every tile directory directly under dir.
//
// Subdirectories whose name is not a tile name are ignored. Tile directories
// whose data file is missing or unreadable are skipped with a warning.
func Scan(ctx context.Context, dir string, opts ScanOptions) (*Index, error) {
	start := time.Now()
	hooks := observability.Scan()
	hooks.OnScanStart(ctx, dir)

	idx, err := scan(ctx, dir, opts)

	n := 0
	if idx != nil {
		n = idx.Len()
	}
	hooks.OnScanComplete(ctx, dir, n, time.Since(start), err)
	return idx, err
}

func scan(ctx context.Context, dir string, opts ScanOptions) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	reader := opts.Reader
	if reader == nil {
		reader = TIFFReader
	}

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, errors.New(errors.ErrCodeDirectoryNotFound, "tiles directory not found: %s", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryNotFound, err, "read tiles directory %s", dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var infos []TileInfo
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		key, ok := ParseTileDirName(e.Name())
		if !ok {
			continue
		}

		path := filepath.Join(dir, e.Name(), DataFile)
		meta, err := readMetadata(ctx, reader, opts.Cache, path)
		if err != nil {
			logger.Warn("skipping tile", "tile", e.Name(), "err", err)
			observability.Scan().OnTileSkipped(ctx, path, err)
			continue
		}
		infos = append(infos, newTileInfo(key, path, meta))
	}

	logger.Debug("indexed tiles", "dir", dir, "tiles", len(infos))
	return NewIndex(dir, infos, opts.Limits), nil
}

func newTileInfo(k Key, path string, m Metadata) TileInfo {
	b, ok := ParseBounds(m.Description)
	if !ok {
		b = Bounds{
			Y0: k.Y * NominalTileSize,
			Y1: k.Y*NominalTileSize + NominalTileSize,
			X0: k.X * NominalTileSize,
			X1: k.X*NominalTileSize + NominalTileSize,
		}
	}
	return TileInfo{
		Y:         k.Y,
		X:         k.X,
		Channel:   k.Channel,
		Bounds:    b,
		SizeBytes: m.SizeBytes,
		ZSlices:   m.ZSlices,
		Height:    m.Height,
		Width:     m.Width,
		Path:      path,
	}
}

// metadataTTL bounds how long cached metadata is trusted. File identity
// (size and mtime) is part of the key, so this only limits cache growth.
const metadataTTL = 30 * 24 * time.Hour

func readMetadata(ctx context.Context, r MetadataReader, c cache.Cache, path string) (Metadata, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Metadata{}, err
	}
	if st.IsDir() {
		return Metadata{}, fmt.Errorf("%s is a directory", path)
	}
	if c == nil {
		return r.ReadMetadata(path)
	}

	key := cache.Key("tile", path, st.Size(), st.ModTime().UnixNano())
	hooks := observability.Cache()
	if data, ok, err := c.Get(ctx, key); err == nil && ok {
		var m Metadata
		if json.Unmarshal(data, &m) == nil {
			hooks.OnCacheHit(ctx, "tile")
			return m, nil
		}
	}
	hooks.OnCacheMiss(ctx, "tile")

	m, err := r.ReadMetadata(path)
	if err != nil {
		return Metadata{}, err
	}
	if data, err := json.Marshal(m); err == nil {
		if c.Set(ctx, key, data, metadataTTL) == nil {
			hooks.OnCacheSet(ctx, "tile", len(data))
		}
	}
	return m, nil
}

// ParseTileDirName parses "tile_y<digits>_x<digits>_c<digits>". The whole
// name must match.
func ParseTileDirName(name string) (Key, bool) {
	rest, ok := strings.CutPrefix(name, "tile_y")
	if !ok {
		return Key{}, false
	}
	y, rest, ok := leadingInt(rest)
	if !ok {
		return Key{}, false
	}
	if rest, ok = strings.CutPrefix(rest, "_x"); !ok {
		return Key{}, false
	}
	x, rest, ok := leadingInt(rest)
	if !ok {
		return Key{}, false
	}
	if rest, ok = strings.CutPrefix(rest, "_c"); !ok {
		return Key{}, false
	}
	c, rest, ok := leadingInt(rest)
	if !ok || rest != "" {
		return Key{}, false
	}
	return Key{Y: y, X: x, Channel: c}, true
}

// leadingInt consumes a run of ASCII digits.
func leadingInt(s string) (int, string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, s, false
	}
	return n, s[i:], true
}

var boundsPattern = regexp.MustCompile(`tile_bounds_yx=(\d+):(\d+)_(\d+):(\d+)`)

// ParseBounds finds a tile_bounds_yx=<y0>:<y1>_<x0>:<x1> annotation anywhere
// in an image description.
func ParseBounds(desc string) (Bounds, bool) {
	m := boundsPattern.FindStringSubmatch(desc)
	if m == nil {
		return Bounds{}, false
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Bounds{}, false
		}
		v[i] = n
	}
	return Bounds{Y0: v[0], Y1: v[1], X0: v[2], X1: v[3]}, true
}

// FormatBounds renders b as a tile_bounds_yx annotation.
func FormatBounds(b Bounds) string {
	return fmt.Sprintf("tile_bounds_yx=%d:%d_%d:%d", b.Y0, b.Y1, b.X0, b.X1)
}
