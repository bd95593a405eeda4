package cli

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/api"
	"github.com/matzehuels/tilestitch/pkg/errors"
)

// shutdownTimeout bounds how long in-flight requests may finish after interrupt.
const shutdownTimeout = 5 * time.Second

// serveCommand creates the serve command for the read-only HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON API over the tile index",
		Long: `Index the tiles directory once and answer JSON requests about it:

  GET /api/stats
  GET /api/channels/{channel}/grid
  GET /api/channels/{channel}/tiles
  GET /api/channels/{channel}/density
  GET /api/channels/{channel}/suggestions
  GET /api/regions/{region}?channel=N

The server stops gracefully on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") || c.config.Serve.Addr == "" {
				c.config.Serve.Addr = addr
			}
			return c.runServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func (c *CLI) runServe(ctx context.Context) error {
	logger := loggerFromContext(ctx)
	idx, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}
	if err := requireTiles(idx); err != nil {
		return err
	}

	cfg := c.config.Serve
	handler := api.New(idx, api.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Suggest:        c.suggestOptions(),
		MaxMemoryMB:    c.config.Stitch.MaxMemoryMB,
	}).Handler()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "listen on %s", cfg.Addr)
	}
	return serve(ctx, ln, handler)
}

// serve runs handler on ln until ctx ends, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	printSuccess("Serving %s", ln.Addr().String())
	printDetail("Press Ctrl+C to stop")

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(errors.ErrCodeInternal, err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	loggerFromContext(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "shutdown")
	}
	return nil
}
