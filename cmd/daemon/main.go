// SPDX-License-Identifier: MIT

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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/stationcast/stationcast/internal/api"
	"github.com/stationcast/stationcast/internal/config"
	"github.com/stationcast/stationcast/internal/ledger"
	xglog "github.com/stationcast/stationcast/internal/log"
	"github.com/stationcast/stationcast/internal/upload"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logger := xglog.WithComponent("daemon")
		logger.Fatal().Err(err).Msg("daemon failed")
	}
}

func run(ctx context.Context, configPath string) error {
	// Configure logging before anything else touches the logger; the global
	// logger initialises exactly once.
	xglog.Configure(xglog.Config{
		Level:   os.Getenv("STATIONCAST_LOG_LEVEL"),
		Service: "stationcast",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := ledger.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	if config.ParseBool("STATIONCAST_SEED_DEMO", false) {
		stationID, err := store.SeedDemo(ctx)
		if err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		if stationID > 0 {
			logger.Info().Int64(xglog.FieldStationID, stationID).Msg("seeded demo station")
		}
	}

	sessions, err := upload.NewStore(upload.NewLayout(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	limiter := upload.NewStationLimiter(cfg.StationChunkRate, cfg.StationChunkBurst)
	manager := upload.NewManager(sessions, store, limiter, upload.Options{
		MaxVideoBytes:     cfg.MaxVideoBytes,
		MaxChunkBytes:     cfg.MaxChunkBytes,
		SizeTolerance:     cfg.SizeTolerance,
		StationVideoCap:   cfg.StationVideoCap,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	reaper := upload.NewReaper(manager, cfg.SessionTTL, cfg.ReaperInterval)

	router := api.NewServer(cfg, manager).Router()
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return reaper.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
