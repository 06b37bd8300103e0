package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	memsheet "ledger/internal/sheets/memory"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	base := cli.SetupLogger(cfg.LogLevel)
	logger := base.WithComponent(log.ComponentWorker)

	logger.Info("Starting ledger-worker")

	// The worker reads records the server wrote, so it needs a shared database.
	if backend.BackendType(cfg.DataBackend) == backend.MemoryBackend {
		cli.Fatal(logger, "Worker requires a persistent backend",
			errors.New("DATA_BACKEND=memory is not shared between processes"))
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	store, _ := cli.OpenStorage(ctx, base, cfg)
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	var sheet sheets.Mirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		logger.Info("Google Sheets client initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
		sheet = client
	} else {
		logger.Info("Google Sheets disabled, mirroring to memory - no GOOGLE_SPREADSHEET_ID provided")
		sheet = memsheet.New()
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	mirror := worker.NewMirrorWorker(store.Repository, sheet)

	resync := func(ctx context.Context, reason string) {
		report, err := mirror.Resync(ctx)
		if err != nil {
			logger.Error("Resync failed", "error", err, "reason", reason)
			return
		}
		logger.Info("Resync completed",
			"reason", reason,
			"upserted", report.Upserted,
			"removed", report.Removed,
			"failed", report.Failed)
	}

	// Catch up with changes made while the worker was down.
	resync(ctx, "startup")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := amqpClient.Consume(gctx, mirror.HandleChange)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				resync(gctx, "periodic")
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		return
	}
	logger.Info("Worker stopped gracefully")
}
