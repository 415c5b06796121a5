package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc/pool"

	"github.com/0xADE/ade-launchd/internal/config"
	"github.com/0xADE/ade-launchd/internal/engine"
	"github.com/0xADE/ade-launchd/internal/logging"
	"github.com/0xADE/ade-launchd/internal/usagedb"
	"github.com/0xADE/ade-launchd/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ade-launchd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	log := logging.New(cfg.LogLevel, os.Stderr)
	if cfg.LogFormat == "console" {
		log = logging.NewConsole(cfg.LogLevel, os.Stderr)
	}

	db, err := usagedb.Open(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to open usage db: %w", err)
	}
	defer db.Close()

	eng, err := engine.New(cfg, log, engine.WithUsageDB(db))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Error().Err(err).Msg("flush usage failed")
		}
	}()

	srv, err := server.NewServer(eng, cfg.UnixSocket, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("socket", cfg.UnixSocket).Str("config", cfg.ConfigFile).Msg("ade-launchd started")

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(eng.Run)
	p.Go(srv.Start)
	err = p.Wait()

	log.Info().Msg("ade-launchd stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
