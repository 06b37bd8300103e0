package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/events"
	apphttp "ledger/internal/http"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/view"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	store, bcfg := cli.OpenStorage(ctx, logger, cfg)
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	l := ledger.New(store.Repository, ledger.WithLogger(logger.WithComponent(log.ComponentLedger).Logger))
	defer l.Close()

	// The relay subscribes before the server accepts writes, so every
	// committed change is forwarded.
	publisher, err := backend.NewFactory(logger.WithComponent(log.ComponentApp).Logger).CreatePublisher(ctx, bcfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize event publisher", err)
	}
	var relay *events.Relay
	if publisher != nil {
		relay = events.NewRelay(l, logger.WithComponent(log.ComponentApp).Logger, publisher)
		defer func() {
			if err := relay.Close(); err != nil {
				logger.Error("Failed to close event publisher", "error", err)
			}
		}()
	}

	binder := view.NewBinder(l, view.WithLogger(logger.WithComponent(log.ComponentView).Logger))

	srv := apphttp.NewServer(":"+cfg.Port, l, binder, apphttp.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              store.Ready,
	})
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)

	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting ledger server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"event_sink", cfg.EventSink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return
	}
	logger.Info("Server stopped gracefully")
}
