package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/wanderplan/planner-api/config"
	httpx "github.com/wanderplan/planner-api/internal/http"
)

// HTTPServerOptions groups dependencies for the HTTP server.
type HTTPServerOptions struct {
	Config    *config.AppConfig
	Container *Container
	DB        *sql.DB
	Logger    *slog.Logger
}

// NewHTTPServer builds the HTTP server with routes and middleware applied.
func NewHTTPServer(opts HTTPServerOptions) *http.Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := httpx.NewRouter(httpx.RouterOptions{
		Jobs: &httpx.JobHandlers{
			Jobs:      opts.Container.Jobs,
			Callbacks: opts.Container.Callbacks,
		},
		Health:         &httpx.HealthHandlers{DB: opts.DB},
		CallbackSecret: opts.Config.Planner.CallbackSecret,
		Logger:         logger,
	})

	addr := net.JoinHostPort(opts.Config.HTTP.Host, strconv.Itoa(opts.Config.HTTP.Port))
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  opts.Config.HTTP.ReadTimeout,
		WriteTimeout: opts.Config.HTTP.WriteTimeout,
		IdleTimeout:  opts.Config.HTTP.IdleTimeout,
	}
}

// RunHTTPServer serves until the context is canceled, then shuts down
// gracefully within the configured timeout.
func RunHTTPServer(ctx context.Context, server *http.Server, cfg config.HTTPConfig, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}
