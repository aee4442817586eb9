package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-ledger/internal/config"
	"github.com/diewo77/go-ledger/internal/logger"
	"github.com/diewo77/go-ledger/internal/metrics"
	"github.com/diewo77/go-ledger/internal/repository"
	"github.com/diewo77/go-ledger/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Create the schema and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Seed the business profile and exit")
	summaryFlag     = flag.String("summary", "", "Build and print the daily summary for YYYY-MM-DD, then exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)
	if cfg.App.Dev {
		log = log.WithOptions(zap.Development())
	}
	defer logger.Sync(log)

	if err := run(cfg, log); err != nil {
		log.Error("ledgerd stopped", zap.Error(err))
		logger.Sync(log)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewPrometheus(reg, cfg.Metrics.Namespace)
	if err != nil {
		return err
	}

	m, err := services.Open(ctx, cfg, log, rec)
	if err != nil {
		return err
	}
	defer m.Close()
	log.Info("ledger store opened", zap.Stringer("mode", m.Mode()), zap.String("business", cfg.App.BusinessType))

	if err := m.CreateTables(ctx); err != nil {
		return err
	}
	if *migrateOnlyFlag {
		log.Info("schema ready")
		return nil
	}

	if *seedOnlyFlag || cfg.App.Seed {
		if err := m.Seed(ctx, cfg.Profile()); err != nil {
			return err
		}
		log.Info("seed completed", zap.String("profile", cfg.App.BusinessType))
		if *seedOnlyFlag {
			return nil
		}
	}

	if *summaryFlag != "" {
		return printSummary(ctx, m, *summaryFlag)
	}

	if cfg.Metrics.Addr == "" {
		log.Info("bootstrap complete; METRICS_ADDR not set, exiting")
		return nil
	}
	return serveMetrics(cfg.Metrics.Addr, reg, log)
}

func printSummary(ctx context.Context, m *services.Manager, date string) error {
	day, err := repository.ParseDay(date)
	if err != nil {
		return err
	}
	s, err := m.BuildDailySummary(ctx, day)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("metrics listener starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return fmt.Errorf("metrics listener: %w", err)
	case <-quit:
		log.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("metrics listener stopped")
	return nil
}
