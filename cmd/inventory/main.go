package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"inventory-ledger/internal/adapters/cli"
	"inventory-ledger/internal/app"
	"inventory-ledger/internal/config"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/db"
	"inventory-ledger/internal/notify"

	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cli.ExitFailure
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		return cli.ExitFailure
	}
	defer pool.Close()

	observers := core.Observers{core.NewLowStockLogger(logger)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, low-stock alerts disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			observers = append(observers, notify.NewRedisPublisher(rdb, cfg.LowStockChannel, logger))
			logger.Debug("publishing low-stock alerts", "addr", cfg.RedisAddr, "channel", cfg.LowStockChannel)
		}
	}

	svc := app.NewFromPool(pool, logger, observers)
	return cli.Run(ctx, svc, os.Args[1:], os.Stdout, os.Stderr)
}

