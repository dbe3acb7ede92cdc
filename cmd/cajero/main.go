package main

import (
	"os"

	"cajero/internal/amqp"
	"cajero/internal/backend"
	"cajero/internal/cli"
	"cajero/internal/config"
	"cajero/internal/core"
	apphttp "cajero/internal/http"
	"cajero/internal/log"
	"cajero/internal/metrics"
	"cajero/internal/services"
	"cajero/internal/storage"
	"cajero/internal/view"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	opened, err := backend.NewFactory(logger).Open(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to open storage backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer opened.Close()

	repo := storage.NewRepository(opened.Store, storage.WithKey(cfg.AccountKey), storage.WithLogger(logger))
	m := metrics.New()

	opts := []services.Option{services.WithRecorder(m), services.WithLogger(logger)}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without export", log.FieldError, err)
		} else {
			defer client.Close()
			opts = append(opts, services.WithPublisher(client))
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}
	terminal := services.NewTerminalService(ctx, repo, opts...)

	projector := view.NewProjector(
		view.WithLocation(cfg.Location()),
		view.WithCurrencyFormatter(core.NewCurrencyFormatter(cfg.Locale(), cfg.CurrencySymbol)),
	)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		Terminal:           terminal,
		Projector:          projector,
		Logger:             logger,
		Metrics:            m,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		TrustedProxies:     cfg.TrustedProxies,
		Ready:              opened.Ready,
	})

	logger.Info("Starting cajero server", "port", cfg.Port, "backend", cfg.DataBackend,
		log.FieldOperation, log.OpStartup)
	if err := cli.Serve(ctx, logger, srv, cfg.ShutdownTimeout); err != nil && ctx.Err() == nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
