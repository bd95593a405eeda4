package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tilestitch/pkg/observability"
)

// logHooks reports library events at debug level. It is installed for
// --verbose runs only.
type logHooks struct {
	logger *log.Logger
}

func registerLogHooks(l *log.Logger) {
	h := logHooks{logger: l.WithPrefix("trace")}
	observability.SetScanHooks(h)
	observability.SetCacheHooks(h)
	observability.SetStitchHooks(h)
	observability.SetHTTPHooks(h)
}

func (h logHooks) OnScanStart(_ context.Context, dir string) {
	h.logger.Debug("scan start", "dir", dir)
}

func (h logHooks) OnTileSkipped(_ context.Context, path string, err error) {
	h.logger.Debug("tile skipped", "path", path, "error", err)
}

func (h logHooks) OnScanComplete(_ context.Context, dir string, n int, d time.Duration, err error) {
	h.logger.Debug("scan complete", "dir", dir, "tiles", n, "duration", d.Round(time.Millisecond), "error", err)
}

func (h logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h logHooks) OnStitchStart(_ context.Context, region string, n int) {
	h.logger.Debug("stitch start", "region", region, "tiles", n)
}

func (h logHooks) OnTileLoaded(_ context.Context, path string, d time.Duration) {
	h.logger.Debug("tile loaded", "path", path, "duration", d.Round(time.Millisecond))
}

func (h logHooks) OnTileMissing(_ context.Context, y, x int) {
	h.logger.Debug("tile missing", "y", y, "x", x)
}

func (h logHooks) OnStitchComplete(_ context.Context, path string, d time.Duration, err error) {
	h.logger.Debug("stitch complete", "output", path, "duration", d.Round(time.Millisecond), "error", err)
}

func (h logHooks) OnRequest(_ context.Context, method, path string) {
	h.logger.Debug("request", "method", method, "path", path)
}

func (h logHooks) OnResponse(_ context.Context, method, path string, status int, d time.Duration) {
	h.logger.Debug("response", "method", method, "path", path, "status", status, "duration", d)
}
