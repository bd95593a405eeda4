// Package api serves a read-only JSON view of a tile index over HTTP.
//
// Routes:
//
//	GET /api/version                           build information
//	GET /api/stats                             index summary
//	GET /api/channels/{channel}/grid           presence rows for one channel
//	GET /api/channels/{channel}/tiles          tile records in row-major order
//	GET /api/channels/{channel}/density        dense windows (?window=&step=&min_density=)
//	GET /api/channels/{channel}/suggestions    one suggested region per size class
//	GET /api/regions/{region}?channel=N        validation, coverage and output estimate
//
// Errors are returned as {"code": ..., "message": ...} with a status derived
// from the error code. The index is never modified, so handlers share it
// without locking.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/matzehuels/tilestitch/pkg/buildinfo"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/grid"
	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// Options configures a Server.
type Options struct {
	// Logger receives one line per request. Nil discards.
	Logger *log.Logger

	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string

	// Suggest configures the suggestions endpoint.
	Suggest grid.SuggestOptions

	// MaxMemoryMB is reported against in region responses. Zero means
	// stitch.DefaultMaxMemoryMB.
	MaxMemoryMB int
}

// Server answers API requests for one index.
type Server struct {
	index    *tiles.Index
	vis      *grid.Visualizer
	stitcher *stitch.Stitcher
	logger   *log.Logger
	opts     Options
}

// New creates a Server over idx.
func New(idx *tiles.Index, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.MaxMemoryMB <= 0 {
		opts.MaxMemoryMB = stitch.DefaultMaxMemoryMB
	}
	return &Server{
		index:    idx,
		vis:      grid.New(idx),
		stitcher: stitch.New(idx, stitch.Options{Logger: opts.Logger}),
		logger:   opts.Logger,
		opts:     opts,
	}
}

// Handler returns the routed handler with CORS and request hooks applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errors.New(errors.ErrCodeInvalidPath, "no route for %s", r.URL.Path))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", handleVersion)
		r.Get("/stats", s.handleStats)
		r.Route("/channels/{channel}", func(r chi.Router) {
			r.Get("/grid", s.handleGrid)
			r.Get("/tiles", s.handleTiles)
			r.Get("/density", s.handleDensity)
			r.Get("/suggestions", s.handleSuggestions)
		})
		r.Get("/regions/{region}", s.handleRegion)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(r)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		observability.HTTP().OnRequest(ctx, r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		dur := time.Since(start)
		observability.HTTP().OnResponse(ctx, r.Method, r.URL.Path, status, dur)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", dur)
	})
}

// GridResponse is the presence map of one channel. Rows use '#' for a
// present tile and '.' for an empty position.
type GridResponse struct {
	Channel int              `json:"channel"`
	Bounds  tiles.GridBounds `json:"grid_bounds"`
	Tiles   int              `json:"tiles"`
	Rows    []string         `json:"rows"`
}

// RegionResponse describes a region against the index.
type RegionResponse struct {
	Valid          bool                       `json:"valid"`
	Error          *ErrorResponse             `json:"error,omitempty"`
	Stats          *grid.RegionStats          `json:"stats,omitempty"`
	Reconstruction *stitch.ReconstructionInfo `json:"reconstruction,omitempty"`
	MemoryOK       bool                       `json:"memory_ok"`
	MemoryMessage  string                     `json:"memory_message,omitempty"`
	Command        string                     `json:"command"`
}

// TilesResponse lists the tiles of one channel in row-major order.
type TilesResponse struct {
	Channel int              `json:"channel"`
	Tiles   []tiles.TileInfo `json:"tiles"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// VersionResponse reports the build of the running server.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		Date:    buildinfo.Date,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.index.Stats())
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	channel, err := s.channelParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b := s.index.Bounds()
	resp := GridResponse{Channel: channel, Bounds: b, Rows: []string{}}
	for y := b.YMin; y < b.YMax; y++ {
		var row strings.Builder
		for x := b.XMin; x < b.XMax; x++ {
			if _, ok := s.index.Tile(y, x, channel); ok {
				row.WriteByte('#')
				resp.Tiles++
			} else {
				row.WriteByte('.')
			}
		}
		resp.Rows = append(resp.Rows, row.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	channel, err := s.channelParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := TilesResponse{Channel: channel, Tiles: []tiles.TileInfo{}}
	for _, t := range s.index.Tiles() {
		if t.Channel == channel {
			resp.Tiles = append(resp.Tiles, t)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDensity(w http.ResponseWriter, r *http.Request) {
	channel, err := s.channelParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	var opts grid.DensityOptions
	if opts.Window, err = positiveQuery(q, "window"); err != nil {
		writeError(w, err)
		return
	}
	if opts.Step, err = positiveQuery(q, "step"); err != nil {
		writeError(w, err)
		return
	}
	if v := q.Get("min_density"); v != "" {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil || f <= 0 || f >= 1 {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "min_density must be between 0 and 1 (exclusive), got %q", v))
			return
		}
		opts.MinDensity = f
	}
	windows := s.vis.AnalyzeDensity(channel, opts)
	if windows == nil {
		windows = []grid.Window{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"windows": windows,
		"summary": grid.Summarize(windows),
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	channel, err := s.channelParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	type suggestion struct {
		grid.Suggestion
		Command string `json:"command"`
	}
	out := []suggestion{}
	for _, sg := range s.vis.Suggest(channel, s.opts.Suggest) {
		out = append(out, suggestion{Suggestion: sg, Command: grid.StitchCommand(sg.Region)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": channel, "suggestions": out})
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	channel, err := intQuery(r.URL.Query().Get("channel"))
	if err != nil {
		writeError(w, err)
		return
	}
	region, err := tiles.ParseRegion(chi.URLParam(r, "region"), channel)
	if err != nil {
		writeError(w, err)
		return
	}

	// Statistics scale with the region, so only valid regions get them.
	resp := RegionResponse{Command: grid.StitchCommand(region)}
	if verr := s.index.ValidateRegion(region); verr != nil {
		resp.Error = errorBody(verr)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	stats := s.vis.RegionStats(region)
	info := s.stitcher.Info(region)
	resp.Valid = true
	resp.Stats = &stats
	resp.Reconstruction = &info
	resp.MemoryOK, resp.MemoryMessage = s.stitcher.ValidateMemory(region, s.opts.MaxMemoryMB)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) channelParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "channel")
	c, err := strconv.Atoi(raw)
	if err != nil || c < 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "invalid channel %q", raw)
	}
	if !s.index.HasChannel(c) {
		return 0, errors.New(errors.ErrCodeInvalidInput, "channel %d not available, available: %v", c, s.index.Channels())
	}
	return c, nil
}

// intQuery parses an optional non-negative integer query value.
func intQuery(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "expected a non-negative integer, got %q", v)
	}
	return n, nil
}

// positiveQuery parses an optional positive integer query value. Absent
// yields 0, which the analysis replaces with its default.
func positiveQuery(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "%s must be a positive integer, got %q", name, v)
	}
	return n, nil
}

func errorBody(err error) *ErrorResponse {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return &ErrorResponse{Code: code, Message: errors.UserMessage(err)}
}

// statusFor maps error codes to HTTP statuses.
func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidRegion, errors.ErrCodeInvalidRegionFormat,
		errors.ErrCodeInvalidSelection, errors.ErrCodeEmptyRegion:
		return http.StatusBadRequest
	case errors.ErrCodeInvalidPath, errors.ErrCodeDirectoryNotFound, errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody(err)
	writeJSON(w, statusFor(body.Code), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
