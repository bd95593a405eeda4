// Package pkg provides the core libraries for Tilestitch tile-grid volume
// stitching.
//
// # Overview
//
// A microscope acquires a large specimen as a grid of overlapping 3D tiles,
// each stored as tile_yYYY_xXXX_cC/data.tif. Tilestitch indexes such a
// directory, shows where tissue is, helps pick a rectangular region and
// pastes that region into one multi-page 16-bit TIFF.
//
// # Architecture
//
// The typical data flow:
//
//	tiles directory
//	      ↓
//	 [tiles] package (scan + index + region validation)
//	      ↓
//	 [grid] / [selection] packages (inspect, choose a region)
//	      ↓
//	 [stitch] package (place tiles, write the volume via [tiff])
//
// # Quick Start
//
//	idx, _ := tiles.Scan(ctx, "tiles", tiles.ScanOptions{})
//	r, _ := tiles.ParseRegion("y015:020,x005:010", 0)
//	if err := idx.ValidateRegion(r); err != nil {
//	    return err
//	}
//	res, _ := stitch.New(idx, stitch.Options{}).Stitch(ctx, r, "region.tif", stitch.StitchOptions{})
//	fmt.Println(res.Depth, res.Height, res.Width)
//
// # Main Packages
//
// [tiles] - Tile discovery, the immutable grid index, region and z-range
// parsing, and size classes.
//
// [grid] - Text renderings of the grid, tissue density analysis and region
// suggestions.
//
// [selection] - The interactive selection state machine, its key bindings and
// view, presets and selection files.
//
// [stitch] - Reconstruction planning, memory estimates and the stitcher.
//
// [tiff] - Multi-page 16-bit grayscale TIFF and BigTIFF codec.
//
// [volume] - The in-memory 3D uint16 array.
//
// [api] - Read-only JSON HTTP API over an index.
//
// ## Infrastructure
//
// [cache] - Tile metadata cache (file, null).
//
// [observability] - Hooks for scan, cache, stitch and HTTP events.
//
// [errors] - Structured errors with machine-readable codes.
//
// [buildinfo] - Version information set at build time.
//
// # Testing
//
//	go test ./pkg/...
//
// [tiles]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/tiles
// [grid]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/grid
// [selection]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/selection
// [stitch]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/stitch
// [tiff]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/tiff
// [volume]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/volume
// [api]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/api
// [cache]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/cache
// [observability]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/errors
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/tilestitch/pkg/buildinfo
package pkg
