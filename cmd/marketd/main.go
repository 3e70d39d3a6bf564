// Package main implements marketd, the service marketplace daemon. It
// exposes the marketplace protocol over HTTP backed by either an
// in-memory or a PostgreSQL ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parallax-protocol/service-marketplace/internal/app"
	"github.com/parallax-protocol/service-marketplace/internal/app/httpapi"
	"github.com/parallax-protocol/service-marketplace/internal/app/metrics"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage/postgres"
	"github.com/parallax-protocol/service-marketplace/internal/config"
	"github.com/parallax-protocol/service-marketplace/internal/middleware"
	"github.com/parallax-protocol/service-marketplace/internal/platform/migrations"
	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log, err := logger.New(cfg.Logging, "marketd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("marketd exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := app.Stores{}
	if cfg.Storage.Backend == "postgres" {
		store, err := postgres.Open(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer store.DB().Close()

		if cfg.Storage.Migrate {
			if err := migrations.Apply(ctx, store.DB()); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			log.Info("database migrations applied")
		}
		stores.Ledger = store
	}

	application, err := app.New(stores, log)
	if err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.PerSecond, cfg.Rate.Burst, log)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	var handler http.Handler = httpapi.NewHandler(application)
	handler = middleware.TokenAuth(handler, cfg.Auth.Tokens)
	handler = limiter.Handler(handler)
	handler = metrics.InstrumentHandler(handler)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).
			WithField("storage", cfg.Storage.Backend).
			Info("marketd listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("marketd stopped")
	return nil
}
