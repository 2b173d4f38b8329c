// Package webhook serves the conversation webhook over HTTP.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const defaultPort = 3000

// RouterOpts holds the dependencies of the webhook routes.
type RouterOpts struct {
	Store     JournalStore
	Generator JournalGenerator
	Log       zerolog.Logger
	Version   string
	// MetricsPath mounts the Prometheus handler; empty disables it.
	MetricsPath string
}

// StartOpts holds configuration for the webhook server.
type StartOpts struct {
	RouterOpts
	Port            int
	ShutdownTimeout time.Duration
	Out             io.Writer
}

// NewRouter builds the Gin engine with middleware and routes.
func NewRouter(opts RouterOpts) (*gin.Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("webhook: store is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("webhook: generator is required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestID(), requestLogger(opts.Log), recordMetrics(), recovery(opts.Log))

	registerRoutes(router, &handler{
		store:   opts.Store,
		gen:     opts.Generator,
		log:     opts.Log,
		version: opts.Version,
	}, opts.MetricsPath)
	return router, nil
}

// Start launches the webhook HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts.RouterOpts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = defaultPort
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "WhisperLog backend running on port %d\n", opts.Port)
	}
	opts.Log.Info().Int("port", opts.Port).Msg("webhook server listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("webhook: shutdown: %w", err)
	}
	return nil
}
