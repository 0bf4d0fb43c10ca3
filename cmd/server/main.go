package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/rest"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/rest/middleware"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/bootstrap"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/config"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/view"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/metrics"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/tracer"
)

func main() {
	// 1. Logger
	appLogger := logger.NewLogger()
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Application starting...")

	// 2. Configuration
	cfg, err := config.LoadConfig(appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	appLogger = appLogger.With(zap.String("service_name", cfg.ServiceName))

	// 3. Tracer
	tp := tracer.InitTracer(tracer.Config{
		ServiceName: cfg.ServiceName,
		Store:       cfg.StoreBackend,
		Endpoint:    cfg.OTExporterOTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	}, appLogger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			appLogger.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}()

	// 4. Metrics
	metricsManager := metrics.NewMetricsManager(cfg.ServiceName)
	go func() {
		if err := metrics.StartMetricsServer(cfg.MetricsPort, appLogger, metricsManager); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Prometheus metrics server failed", zap.Error(err))
		}
	}()

	// 5. Market core: store, photos, events, mail
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	core, err := bootstrap.Build(initCtx, cfg, appLogger, metricsManager)
	cancelInit()
	if err != nil {
		appLogger.Fatal("Failed to initialize market core", zap.Error(err))
	}
	defer func() {
		if err := core.Close(); err != nil {
			appLogger.Error("Failed to release resources", zap.Error(err))
		}
	}()

	// 6. REST surface
	tokens := middleware.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	handler := rest.NewHandler(rest.Deps{
		Catalog:   core.Catalog,
		Favorites: core.Favorites,
		Users:     core.Store,
		Verifier:  core.Verifier,
		Tokens:    tokens,
		Renderer:  view.MustNewRenderer(),
		Metrics:   metricsManager,
		Logger:    appLogger,
		BaseURL:   cfg.PublicBaseURL,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           rest.NewRouter(handler, tokens, appLogger, metricsManager),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info("Shutting down server...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	appLogger.Info("Server exited")
}
