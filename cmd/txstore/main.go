// Command txstore runs a contended counter workload against a store,
// optionally mirrored to a SQL backend, and reports the outcome.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pharosnet/txstore"
	"github.com/pharosnet/txstore/internal/config"
	"github.com/pharosnet/txstore/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configDir := flag.String("config", "", "Directory holding txstore.yaml")
	seedFile := flag.String("seed", "", "Override the workload seed file")
	flag.Parse()

	var dirs []string
	if *configDir != "" {
		dirs = append(dirs, *configDir)
	}
	cfg, err := config.Load(dirs...)
	if err != nil {
		return err
	}
	if *seedFile != "" {
		cfg.Workload.SeedFile = *seedFile
	}

	logger := logging.New(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := txstore.NewMetrics(cfg.Metrics.Namespace, registry)
	if cfg.Metrics.Enabled {
		server := serveMetrics(cfg.Metrics, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	be, err := openBackend(ctx, cfg.Backend, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	options := []txstore.Option{txstore.WithLogger(logger), txstore.WithMetrics(metrics)}
	if be.executor != nil {
		options = append(options, txstore.WithExecutor(be.executor))
	}
	store := txstore.NewStore(options...)

	if cfg.Workload.SeedFile != "" {
		seed, seedErr := readSeed(cfg.Workload.SeedFile)
		if seedErr != nil {
			return seedErr
		}
		if seedErr = seed.apply(ctx, store, be); seedErr != nil {
			return seedErr
		}
		logger.Info().Int("tables", len(seed.Tables)).Msg("seed loaded")
	}

	runOptions := txstore.RunOptions{
		MaxRetries:      cfg.Store.MaxRetries,
		InitialInterval: cfg.Store.InitialInterval,
		MaxInterval:     cfg.Store.MaxInterval,
	}
	report, err := runWorkload(ctx, store, cfg.Workload, runOptions)
	if err != nil {
		return err
	}
	logger.Info().
		Int("committed", report.Committed).
		Int("failed", report.Failed).
		Int64("total", report.Total).
		Uint64("version", store.Current().Version()).
		Msg("workload finished")
	fmt.Printf("committed=%d failed=%d total=%d version=%d\n",
		report.Committed, report.Failed, report.Total, store.Current().Version())
	return nil
}

func serveMetrics(cfg config.MetricsConfig, registry *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("address", cfg.Address).Str("path", cfg.Path).Msg("serving metrics")
	return server
}
