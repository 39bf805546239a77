package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/glebk/openfield/internal/config"
	"github.com/glebk/openfield/internal/console"
	"github.com/glebk/openfield/internal/domain"
	"github.com/glebk/openfield/internal/export"
	"github.com/glebk/openfield/internal/logging"
	"github.com/glebk/openfield/internal/report"
	"github.com/glebk/openfield/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	renderer, err := report.NewRenderer(cfg.Locale)
	if err != nil {
		logger.Error("Failed to initialize report renderer", zap.Error(err))
		return fmt.Errorf("failed to initialize report renderer: %w", err)
	}

	exporter := export.NewExporter(cfg.Export.Dir, renderer, export.WithChart(cfg.Export.Chart))
	trials := service.NewTrialService(
		domain.NewSession(),
		exporter,
		logger,
		service.WithTickInterval(cfg.TickInterval),
	)
	defer trials.Close()

	rl, err := console.NewReadline()
	if err != nil {
		logger.Error("Failed to initialize console", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	go func() {
		select {
		case <-stop:
			logger.Info("Shutting down gracefully")
			cancel()
			_ = rl.Close()
		case <-ctx.Done():
		}
	}()

	logger.Info("Console started",
		zap.String("locale", renderer.Locale()),
		zap.Int("default_seconds", cfg.DurationSeconds),
		zap.String("export_dir", exporter.Dir()),
	)

	settings := console.Settings{
		DurationSeconds: cfg.DurationSeconds,
		ExportFormat:    cfg.ExportFormat(),
	}
	console.New(ctx, trials, renderer, settings, rl.Stdout()).Run(ctx, cancel, rl)

	return nil
}
