package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/auth"
	"github.com/ekaya-inc/survey-engine/pkg/handlers"
	"github.com/ekaya-inc/survey-engine/pkg/middleware"
)

const shutdownTimeout = 15 * time.Second

func serveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	cfg, logger := opts.cfg, opts.logger

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("local_store", cfg.Local.SQLitePath),
		zap.Bool("sync_configured", cfg.Sync.IsConfigured()))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// The dev user only applies when signatures are not verified.
	devUserID := ""
	if !cfg.Auth.EnableVerification {
		devUserID = cfg.Auth.DevUserID
	}
	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSURL:            cfg.Auth.JWKSURL,
		Secret:             cfg.Auth.JWTSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}
	defer validator.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(validator, devUserID, logger), logger)

	httpMetrics, err := middleware.NewHTTPMetrics(a.registry)
	if err != nil {
		return err
	}

	// Handlers take an untyped nil migrator when sync is off.
	var migrator handlers.SurveyMigrator
	if a.adapter != nil {
		migrator = a.adapter
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSurveyHandler(a.surveys, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewMappingHandler(a.mappings, a.unmapped, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewLearnedHandler(a.learned, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewStorageHandler(a.surveys, a.exports, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSyncHandler(a.monitor, migrator, a.surveys, logger).RegisterRoutes(mux, authMiddleware)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	var handler http.Handler = mux
	handler = middleware.Instrument(httpMetrics)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	a.monitor.Start(ctx)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting survey-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
