package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/order_stake/internal/config"
	"github.com/congo-pay/order_stake/internal/escrow"
	"github.com/congo-pay/order_stake/internal/infra"
	"github.com/congo-pay/order_stake/internal/ledger"
	"github.com/congo-pay/order_stake/internal/logging"
	"github.com/congo-pay/order_stake/internal/notification"
	"github.com/congo-pay/order_stake/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With("app", cfg.AppName, "env", cfg.AppEnv)

	ctx := context.Background()

	storage, err := infra.OpenStorage(ctx, cfg.Storage())
	if err != nil {
		logger.Error("open storage", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	led, err := ledger.Open(ctx, storage.Store, cfg.Ledger, cfg.EnrollBatchSize)
	if err != nil {
		logger.Error("open ledger", "backend", storage.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Warn("close ledger", "error", err)
		}
	}()
	configured := cfg.Ledger
	if !cfg.LedgerStartSet {
		configured.StartTime = led.Params().StartTime
	}
	if led.Params() != configured {
		logger.Warn("ledger keeps its persisted epoch settings", "persisted", led.Params(), "configured", cfg.Ledger)
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	svc := escrow.NewService(led, escrow.Options{
		Policy:   cfg.ExpiryPolicy,
		Logger:   logger,
		Notifier: notification.NewLoggerNotifier(logger),
	})

	srv, err := server.New(cfg, svc, storage, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	logger.Info("ledger ready",
		"backend", storage.Backend,
		"start_time", led.Params().StartTime,
		"expiry_policy", cfg.ExpiryPolicy.String(),
		"address", cfg.Address(),
	)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
