// Driftord is the driftor vector indexing daemon.
//
// It owns the vector store connection and exposes health and metrics
// endpoints over HTTP. Configuration is loaded from a YAML file plus
// DRIFTOR_-prefixed environment variables; see internal/config.
//
// Usage:
//
//	# Start with defaults (embedded chromem store, in-memory)
//	driftord
//
//	# Start against Qdrant
//	DRIFTOR_VECTORSTORE_BACKEND=qdrant driftord -config /etc/driftor/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftorhq/driftor/internal/config"
	"github.com/driftorhq/driftor/internal/embeddings"
	"github.com/driftorhq/driftor/internal/logging"
	"github.com/driftorhq/driftor/internal/telemetry"
	"github.com/driftorhq/driftor/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	listenAddr := flag.String("listen", ":9180", "HTTP listen address")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("driftord %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *listenAddr); err != nil {
		log.Fatalf("driftord: %v", err)
	}
}

func run(ctx context.Context, configPath, listenAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting driftord",
		zap.String("version", version),
		zap.String("backend", cfg.VectorStore.Backend),
	)

	tel, err := telemetry.New(ctx, cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.New(embeddings.Config{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey.Value(),
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	manager, err := vectorstore.NewManager(cfg.VectorStoreConfig(), embedder, logger)
	if err != nil {
		return fmt.Errorf("creating vector store manager: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Close(shutdownCtx); err != nil {
			logger.Warn("vector store close failed", zap.Error(err))
		}
	}()

	// Connect eagerly so a misconfigured backend fails at startup, but
	// tolerate an unreachable one; the manager reconnects on demand.
	if _, err := manager.Store(ctx); err != nil {
		if errors.Is(err, vectorstore.ErrBackendUnavailable) {
			logger.Warn("vector store unreachable at startup, will retry on use", zap.Error(err))
		} else {
			return fmt.Errorf("connecting vector store: %w", err)
		}
	}

	store, err := manager.Store(ctx)
	var monitor *vectorstore.HealthMonitor
	if err == nil {
		monitor = vectorstore.NewHealthMonitor(ctx, store, 30*time.Second, logger)
		monitor.RegisterCallback(func(healthy bool) { //nolint:errcheck
			vectorstore.UpdateHealthMetrics(manager.Health(ctx))
		})
		monitor.Start()
		defer monitor.Stop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		status := manager.Health(c.Request().Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, status)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("http server listening", zap.String("addr", listenAddr))
	if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
