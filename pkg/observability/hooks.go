// Package observability provides hooks for metrics, tracing and logging.
//
// Libraries emit events through the registered hooks; the defaults are
// no-ops. Binaries register implementations at startup:
//
//	func main() {
//	    observability.SetScanHooks(&myScanHooks{})
//	    observability.SetStitchHooks(&myStitchHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Scan().OnScanStart(ctx, dir)
//	// ... walk tiles ...
//	observability.Scan().OnScanComplete(ctx, dir, tiles, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Scan Hooks
// =============================================================================

// ScanHooks receives events from tile directory scanning.
type ScanHooks interface {
	OnScanStart(ctx context.Context, dir string)

	// OnTileSkipped records a tile directory whose image could not be read.
	OnTileSkipped(ctx context.Context, path string, err error)

	OnScanComplete(ctx context.Context, dir string, tiles int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Stitch Hooks
// =============================================================================

// StitchHooks receives events from region reconstruction.
type StitchHooks interface {
	OnStitchStart(ctx context.Context, region string, tiles int)

	// OnTileLoaded records one tile pasted into the output volume.
	OnTileLoaded(ctx context.Context, path string, duration time.Duration)

	// OnTileMissing records a grid position with no tile.
	OnTileMissing(ctx context.Context, y, x int)

	OnStitchComplete(ctx context.Context, path string, duration time.Duration, err error)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the API server.
type HTTPHooks interface {
	// OnRequest records an incoming request.
	OnRequest(ctx context.Context, method, path string)

	// OnResponse records a completed response.
	OnResponse(ctx context.Context, method, path string, statusCode int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopScanHooks is a no-op implementation of ScanHooks.
type NoopScanHooks struct{}

func (NoopScanHooks) OnScanStart(context.Context, string)                               {}
func (NoopScanHooks) OnTileSkipped(context.Context, string, error)                      {}
func (NoopScanHooks) OnScanComplete(context.Context, string, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopStitchHooks is a no-op implementation of StitchHooks.
type NoopStitchHooks struct{}

func (NoopStitchHooks) OnStitchStart(context.Context, string, int)                     {}
func (NoopStitchHooks) OnTileLoaded(context.Context, string, time.Duration)            {}
func (NoopStitchHooks) OnTileMissing(context.Context, int, int)                        {}
func (NoopStitchHooks) OnStitchComplete(context.Context, string, time.Duration, error) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	scanHooks   ScanHooks   = NoopScanHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	stitchHooks StitchHooks = NoopStitchHooks{}
	httpHooks   HTTPHooks   = NoopHTTPHooks{}
	hooksMu     sync.RWMutex
)

// SetScanHooks registers custom scan hooks. Nil is ignored.
func SetScanHooks(h ScanHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		scanHooks = h
	}
}

// SetCacheHooks registers custom cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetStitchHooks registers custom stitch hooks. Nil is ignored.
func SetStitchHooks(h StitchHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		stitchHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks. Nil is ignored.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Scan returns the registered scan hooks.
func Scan() ScanHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return scanHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Stitch returns the registered stitch hooks.
func Stitch() StitchHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return stitchHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	scanHooks = NoopScanHooks{}
	cacheHooks = NoopCacheHooks{}
	stitchHooks = NoopStitchHooks{}
	httpHooks = NoopHTTPHooks{}
}
