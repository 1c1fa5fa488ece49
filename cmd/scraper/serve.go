package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-asin/api"
	"github.com/aluiziolira/go-scrape-asin/api/middleware"
	"github.com/aluiziolira/go-scrape-asin/config"
	"github.com/aluiziolira/go-scrape-asin/pipeline"
	"github.com/aluiziolira/go-scrape-asin/scraper"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP lookup service",
		Example: `  # Listen on PORT (default 12000)
  scraper serve

  # Expose Prometheus metrics on a separate port
  scraper serve --addr :8080 --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Addr()
			}
			return runServe(cmd.Context(), cfg, addr, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default \":$PORT\")")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config, addr string, logger *slog.Logger) error {
	store, err := middleware.NewStore(cfg.RateLimitStorageURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close rate limit store", slog.Any("error", err))
		}
	}()

	metrics := scraper.NewMetrics()
	p := pipeline.New(cfg, pipeline.WithMetrics(metrics), pipeline.WithLogger(logger))

	if cfg.Verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := api.NewRouter(cfg, p, store, api.WithLogger(logger))
	if err != nil {
		return err
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           corsHandler(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("serving",
		slog.String("addr", addr),
		slog.String("base_url", cfg.BaseURL),
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.String("rate_limit_storage", cfg.RateLimitStorageURL),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, waiting for in-flight lookups to finish")
	}

	// In-flight lookups are bounded by the invocation deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Deadline+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", slog.Any("error", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
	return nil
}
