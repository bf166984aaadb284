// Package main runs the triage core as an MCP tool server over stdio.
// It needs no network services: records live in a local SQLite file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/clinical-triage-server/internal/app"
	"github.com/clinical-triage-server/internal/config"
	"github.com/clinical-triage-server/internal/logging"
	"github.com/clinical-triage-server/internal/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadLiteConfig()

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := cfg.AppConfig()
	stores, err := app.OpenStores(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	triage, _ := app.NewTriageService(stores, appCfg.Triage, logger)

	logger.WithField("record_store", cfg.RecordStorePath()).Info("Clinical triage MCP server ready")

	if err := mcp.NewServer(triage, logger).Run(ctx); err != nil {
		return err
	}
	logger.Info("Clinical triage MCP server stopped")
	return nil
}
