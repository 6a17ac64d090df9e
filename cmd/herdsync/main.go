package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/herdsync/herdsync/internal/config"
	"github.com/herdsync/herdsync/internal/logging"
	"github.com/herdsync/herdsync/internal/queue"
	"github.com/herdsync/herdsync/internal/storage"
	syncer "github.com/herdsync/herdsync/internal/sync"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("herdsync starting",
		slog.String("version", Version),
		slog.String("device", cfg.DeviceName),
		slog.String("queue", cfg.QueuePath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := storage.NewMonitor(storage.FileEstimator{
		Path:  cfg.QueuePath,
		Quota: cfg.StorageQuotaBytes,
	}, logger, cfg.StoragePollInterval)

	store, err := queue.Open(cfg.QueuePath, queue.Options{
		Gate:   monitor,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening mutation queue: %w", err)
	}
	defer store.Close()

	orch := syncer.New(store, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	g.Go(func() error {
		return orch.Run(gctx, cfg.SyncInterval)
	})

	err = g.Wait()
	if err != nil && gctx.Err() != nil {
		logger.Info("herdsync stopped")

		return nil
	}

	return err
}
