package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/manenim/ai-gateway/internal/config"
	"github.com/manenim/ai-gateway/internal/server"
	"github.com/manenim/ai-gateway/pkg/limiter"
	"github.com/manenim/ai-gateway/pkg/provider/openai"
	"github.com/manenim/ai-gateway/pkg/usage"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("load env files: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync() // nolint:errcheck // stderr sync is best-effort

	lim := limiter.NewMemoryLimiter(
		cfg.Limiter.MaxRequests,
		cfg.Limiter.Window,
		limiter.WithSweepInterval(cfg.Limiter.SweepInterval),
	)
	defer lim.Close()

	client := openai.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)
	client.Timeout = cfg.Provider.Timeout

	var tracker usage.Tracker
	if cfg.Usage.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Usage.RedisAddr})
		defer rdb.Close() // nolint:errcheck // process is exiting anyway

		rt, err := usage.NewRedisTracker(rdb, usage.WithPrefix(cfg.Usage.KeyPrefix))
		if err != nil {
			logger.Fatal("connect usage store", zap.String("addr", cfg.Usage.RedisAddr), zap.Error(err))
		}
		tracker = rt
		logger.Info("usage tracking backed by redis", zap.String("addr", cfg.Usage.RedisAddr))
	} else {
		tracker = usage.NewMemoryTracker()
		logger.Info("usage tracking is in-memory; records are lost on restart")
	}

	srv := server.New(cfg, logger, lim, client, client, tracker)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("signal received, draining", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
