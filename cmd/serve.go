package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/harvester/internal/adapters/http/api"
	"github.com/okian/harvester/internal/adapters/http/site"
	"github.com/okian/harvester/internal/adapters/http/swagger"
	service "github.com/okian/harvester/internal/app"
	"github.com/okian/harvester/pkg/logger"
)

// HTTP server timeout constants. Synchronous harvests hold the response
// open for the whole run, hence the long write timeout.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 2 * time.Hour
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 10 * time.Second
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, the worker and the optional schedule.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Addr = addr
			}
			return serve(cmd.Context(), c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides addr")
	return cmd
}

func newMux(ctx context.Context, svc *service.Service, maxLimit int) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, api.WithMaxLimit(maxLimit)).Register(ctx, mux)
	site.Register(ctx, mux)
	return mux
}

func serve(ctx context.Context, c *cli) error {
	log := logger.Get()

	svc, err := service.New(ctx, c.cfg, service.WithLogger(log))
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = svc.Stop(context.Background())
		return err
	}

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           newMux(ctx, svc, c.cfg.MaxMatchesLimit),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", c.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return serveErr
}

// startServiceMetricsUpdater refreshes the gauges GetStats maintains.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
