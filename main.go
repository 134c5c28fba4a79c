package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"levelwatch/config"
	"levelwatch/internal/adapters/binanceclient"
	"levelwatch/internal/adapters/logger"
	"levelwatch/internal/adapters/notify"
	"levelwatch/internal/api"
	"levelwatch/internal/levels"
	"levelwatch/internal/monitor"
	"levelwatch/internal/patterns"
	"levelwatch/internal/ports"
	"levelwatch/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFilePath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Console:    cfg.LogConsole,
	})
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Market Data Client (Binance Adapter)
	client, err := binanceclient.New(binanceclient.Config{
		APIKey:       cfg.APIKey,
		SecretKey:    cfg.SecretKey,
		Logger:       appLogger,
		IdleTimeout:  cfg.ConnIdleTimeout,
		ReapInterval: cfg.ConnReapInterval,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize market data client")
		log.Fatalf("FATAL: Failed to initialize market data client: %v", err)
	}
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	client.StartIdleReaper(reaperCtx)
	appLogger.Info(ctx, "Market data client initialized")

	// 4. Initialize Notification Sink
	var notifier ports.Notifier
	if cfg.SMTPHost != "" {
		notifier, err = notify.NewSMTP(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.SMTPTo,
		}, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize SMTP notifier")
			log.Fatalf("FATAL: Failed to initialize SMTP notifier: %v", err)
		}
		appLogger.Info(ctx, "SMTP notifier initialized", map[string]interface{}{"host": cfg.SMTPHost})
	} else {
		notifier = notify.NewLogSink(appLogger)
		appLogger.Info(ctx, "SMTP not configured, notifications will be logged only")
	}

	// 5. Initialize Analysis Components
	cache, err := levels.NewCache(levels.Config{
		Client: client,
		Logger: appLogger,
		Session: levels.SessionWindow{
			StartHour: cfg.AsianStartHour,
			EndHour:   cfg.AsianEndHour,
			ReadyHour: cfg.AsianReadyHour,
		},
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize level cache")
		log.Fatalf("FATAL: Failed to initialize level cache: %v", err)
	}

	detector, err := patterns.New(patterns.Config{
		ProximityPct: cfg.TouchProximityPct,
		BodyRatio:    cfg.BodyRatio,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize pattern detector")
		log.Fatalf("FATAL: Failed to initialize pattern detector: %v", err)
	}

	sizer, err := risk.NewSizer(risk.Config{
		AccountCurrency:  cfg.AccountCurrency,
		CommoditySymbols: cfg.CommoditySymbols,
	}, client, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position sizer")
		log.Fatalf("FATAL: Failed to initialize position sizer: %v", err)
	}

	// 6. Initialize Monitoring Service
	monitorSvc, err := monitor.NewService(monitor.ServiceConfig{
		Timeframe:           cfg.Timeframe,
		PollInterval:        cfg.PollInterval,
		ErrorBackoffMax:     cfg.ErrorBackoffMax,
		BarCount:            cfg.BarCount,
		HistoryCapacity:     cfg.HistoryCapacity,
		BatchWindowSeconds:  cfg.BatchWindowSeconds,
		SettleDelay:         cfg.SettleDelay,
		SummaryProximityPct: cfg.SummaryProximityPct,
		StopRangeMultiplier: cfg.StopRangeMultiplier,
	}, appLogger, client, notifier, cache, detector, sizer)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize monitoring service")
		log.Fatalf("FATAL: Failed to initialize monitoring service: %v", err)
	}
	appLogger.Info(ctx, "Monitoring service initialized")

	// 7. Initialize and Start the API Server
	server, err := api.NewServer(api.Config{
		Host:                cfg.HTTPHost,
		Port:                cfg.HTTPPort,
		APIKey:              cfg.HTTPAPIKey,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
		AllowedOrigins:      cfg.AllowedOrigins,
		Timeframe:           cfg.Timeframe,
		BarCount:            cfg.BarCount,
		StopRangeMultiplier: cfg.StopRangeMultiplier,
	}, appLogger, monitorSvc, client, cache, detector, sizer, notifier)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize API server")
		log.Fatalf("FATAL: Failed to initialize API server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// 8. Wait for shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil {
			appLogger.Error(ctx, err, "API server exited with error")
		}
	}

	// Stop the monitoring session first so its final batch can still go out,
	// then drain the HTTP server.
	monitorSvc.StopSession(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(ctx, err, "Error during API server shutdown")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
