package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"warung/internal/backend"
	"warung/internal/cache"
	"warung/internal/cli"
	"warung/internal/config"
	apphttp "warung/internal/http"
	applog "warung/internal/log"
	"warung/internal/services"
)

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	opts := []services.Option{
		services.WithMaxWindow(cfg.MaxWindowDays),
		services.WithCashFlowCache(cfg.CacheTTL),
		services.WithClosers(closeFunc(result.Cleanup)),
	}
	// A nil *amqp.Client must not become a non-nil EventPublisher.
	if result.Publisher != nil {
		opts = append(opts, services.WithPublisher(result.Publisher))
	}
	svc := services.NewLedgerService(result.Store, opts...)

	if err := run(ctx, logger, cfg, svc); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}

// run serves the API until ctx is done or the listener fails. svc is closed
// before run returns, whichever way it ends.
func run(ctx context.Context, logger *applog.Logger, cfg *config.Config, svc *services.LedgerService) error {
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to release resources", applog.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		CashFlowDays: cfg.CashFlowDays,
		Logger:       logger.WithComponent(applog.ComponentHTTP),
	})
	srv.MaxHeaderBytes = 1 << 16

	janitor := cache.NewJanitor(svc.CashFlowCache())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting warung server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return janitor.Run(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
