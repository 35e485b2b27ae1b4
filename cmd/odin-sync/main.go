package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"odin-sync/internal/config"
	"odin-sync/internal/eventbus"
	"odin-sync/internal/host"
	"odin-sync/internal/logging"
	"odin-sync/internal/metrics"
	"odin-sync/internal/persistence"
	"odin-sync/internal/schema"
	"odin-sync/internal/session"
	"odin-sync/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	sch, err := schema.DefaultSchema()
	if err != nil {
		logger.Fatal("schema build failed", zap.Error(err))
	}

	persist, err := buildPersistence(cfg.Persistence)
	if err != nil {
		logger.Fatal("persistence backend init failed", zap.Error(err))
	}

	var bus *eventbus.Bus
	if cfg.EventBus.Enabled {
		bus, err = eventbus.Connect(eventbus.DefaultConfig(cfg.EventBus.URL), logger)
		if err != nil {
			logger.Warn("eventbus connect failed, continuing without it", zap.Error(err))
			bus = nil
		} else {
			defer bus.Close()
		}
	}

	metricsRegistry := metrics.NewRegistry()

	h, err := host.New(host.Options{
		Schema:          sch,
		Persistence:     persist,
		Events:          bus,
		Metrics:         metricsRegistry,
		Logger:          logger,
		PersistThrottle: cfg.Persistence.Throttle,
		Timers: session.TimerConfig{
			StartWait:     cfg.Room.StartWait,
			RemovalWait:   cfg.Room.RemovalWait,
			IdleTimeout:   cfg.Room.IdleTimeout,
			DataDebounce:  cfg.Room.DataDebounce,
			PushRateLimit: rate.Limit(cfg.Room.PushRateLimit),
			PushBurst:     cfg.Room.PushBurst,
		},
		MaxTombstones:        cfg.Room.MaxTombstones,
		TombstonePruneBuffer: cfg.Room.TombstonePruneBuffer,
		JanitorPeriod:        cfg.Room.JanitorPeriod,
	})
	if err != nil {
		logger.Fatal("host init failed", zap.Error(err))
	}
	defer h.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := transport.NewServer(addr, h, logger, metricsRegistry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("transport start failed", zap.Error(err))
	}

	stopSampler := make(chan struct{})
	if cfg.Metrics.Enabled {
		metricsRegistry.StartSystemSampler(cfg.Metrics.SystemInterval, stopSampler)
	}

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runHTTPServer(ctx, cfg, metricsRegistry, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
		stop()
	}

	close(stopSampler)
	server.Stop()
	logger.Info("transport stopped")
}

func buildPersistence(cfg config.PersistenceConfig) (persistence.Adapter, error) {
	switch cfg.Backend {
	case "none", "":
		return nil, nil
	case "file":
		return persistence.NewFileAdapter(cfg.FileDir)
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return persistence.NewRedisAdapter(rdb, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("persistence: unknown backend %q", cfg.Backend)
	}
}

func runHTTPServer(ctx context.Context, cfg config.Config, metricsRegistry *metrics.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Endpoint, metricsRegistry.Handler())
	}

	httpServer := &http.Server{
		Addr:         cfg.Metrics.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("diagnostics http server starting", zap.String("addr", cfg.Metrics.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("diagnostics http server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
