package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"beni/internal/amqp"
	"beni/internal/config"
	applog "beni/internal/log"
	"beni/internal/services"
	gsheet "beni/internal/sheets/google"
	"beni/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting beni-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	processor := services.NewResolutionProcessor(repo, cfg.PriceDefaults(), services.ResolutionProcessorConfig{
		PollInterval: cfg.SweepInterval,
		BatchSize:    cfg.SweepBatchSize,
	})

	// The broker is optional: without it the periodic sweep alone keeps
	// decompositions current.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, sweep-only mode", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, sweep-only mode")
	}

	// Google Sheets export is optional too.
	var exporter *services.ReportExporter
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = services.NewReportExporter(repo, sheetsClient, cfg.PriceDefaults())
		logger.Info("Google Sheets export enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID, "interval", cfg.ReportInterval)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Sweep loop. Runs once immediately so a restart catches up right away.
	g.Go(func() error {
		if n, err := processor.ProcessPending(ctx); err != nil {
			logger.Error("Startup sweep failed", "error", err)
		} else if n > 0 {
			logger.Info("Startup sweep resolved events", "count", n)
		}

		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if n, err := processor.ProcessPending(ctx); err != nil {
					logger.Error("Sweep failed", "error", err)
				} else if n > 0 {
					logger.Info("Sweep resolved events", "count", n)
				}
			}
		}
	})

	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeWithReconnect(ctx, func(msg *amqp.EventResolveMessage) error {
				return processor.HandleMessage(ctx, msg)
			})
		})
	}

	if exporter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.ReportInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := exporter.Export(ctx, services.Today()); err != nil {
						logger.Error("TCO report export failed", "error", err)
					} else {
						logger.Info("TCO report exported")
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
