package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/yusufekorman/ratelimit-proxy/internal/api"
	"github.com/yusufekorman/ratelimit-proxy/internal/auth"
	"github.com/yusufekorman/ratelimit-proxy/internal/config"
	"github.com/yusufekorman/ratelimit-proxy/internal/counter"
	"github.com/yusufekorman/ratelimit-proxy/internal/engine"
	"github.com/yusufekorman/ratelimit-proxy/internal/obs"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional, env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout(),
		ReadTimeout: cfg.Redis.DialTimeout(),
		MaxRetries:  1,
	})
	defer func() { _ = rdb.Close() }()

	local := counter.NewMemoryBackend(cfg.Limits.SweepInterval())
	defer local.Close()

	manager := counter.NewManager(
		counter.NewRedisBackend(rdb),
		local,
		logger,
		counter.WithFallbackHook(metrics.BackendFallbacks.Inc),
		counter.WithPingTimeout(cfg.Redis.DialTimeout()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(ctx, cfg.Redis.PingInterval())

	eng := engine.New(manager, cfg.Limits.Default.Points, cfg.Limits.Default.Duration)
	guard := auth.NewGuard(cfg.Auth.Secret, cfg.Auth.MaxSkew())
	handlers := api.NewHandlers(eng, manager, metrics)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(cfg, logger, guard, handlers, metrics, reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout(),
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("redis", cfg.Redis.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}
