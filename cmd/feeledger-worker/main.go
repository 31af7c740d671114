package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"feeledger/internal/backend"
	"feeledger/internal/cli"
	"feeledger/internal/log"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)
	cli.MustValidate(logger, cfg.ValidateWorker)

	logger.Info("Starting feeledger-worker")

	ctx, stop := cli.SignalContext()
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateWorker(ctx, backendCfg, nil)
	if err != nil {
		logger.Error("Failed to initialize worker", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Worker cleanup failed", log.FieldError, err.Error())
		}
	}()

	w := result.Worker

	// Payments recorded while the worker was down have no event waiting
	logger.Info("Performing startup sync check...")
	if err := w.Exporter.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Consumer.Consume(gctx, w.Exporter.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return w.Exporter.RunSweep(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
