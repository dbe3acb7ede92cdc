package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"cajero/internal/amqp"
	"cajero/internal/cache"
	"cajero/internal/cli"
	"cajero/internal/config"
	"cajero/internal/core"
	"cajero/internal/log"
	"cajero/internal/metrics"
	ports "cajero/internal/sheets"
	gsheet "cajero/internal/sheets/google"
	mem "cajero/internal/sheets/memory"
	"cajero/internal/view"
	"cajero/internal/worker"
)

// ledgerSheet is what the worker needs from an export target.
type ledgerSheet interface {
	ports.LedgerWriter
	ports.LedgerReader
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting cajero-worker", log.FieldOperation, log.OpStartup)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	var sheet ledgerSheet
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			Logger:             logger,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		if err := client.EnsureHeader(ctx); err != nil {
			logger.Warn("Could not write sheet header", log.FieldError, err)
		}
		sheet = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", client.Sheet())
	} else {
		sheet = mem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting to memory")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	m := metrics.New()
	projector := view.NewProjector(
		view.WithLocation(cfg.Location()),
		view.WithCurrencyFormatter(core.NewCurrencyFormatter(cfg.Locale(), cfg.CurrencySymbol)),
	)
	exporter := worker.NewExportWorker(sheet,
		worker.WithReader(sheet),
		worker.WithProjector(projector),
		worker.WithRecorder(m),
		worker.WithLogger(logger),
	)
	if n, err := exporter.Warm(ctx); err != nil {
		logger.Warn("Could not read exported transactions, duplicates may be written", log.FieldError, err)
	} else {
		logger.Info("Loaded exported transaction ids", "count", n)
	}

	caches := cache.NewManager(logger)
	caches.Register(exporter.SeenCache())

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	err = cli.Serve(ctx, logger, srv, cfg.ShutdownTimeout,
		func(ctx context.Context) error {
			return client.ConsumeTransactions(ctx, exporter.HandleMessage)
		},
		func(ctx context.Context) error {
			return caches.Run(ctx, cfg.CacheCleanupInterval)
		},
	)
	if err != nil && ctx.Err() == nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
