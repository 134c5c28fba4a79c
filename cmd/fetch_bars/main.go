package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"levelwatch/config"
	"levelwatch/internal/adapters/binanceclient"
	"levelwatch/internal/adapters/logger"
	"levelwatch/internal/domain"
	"levelwatch/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "symbol to fetch")
	timeframe := flag.String("timeframe", "M15", "bar timeframe (M5, M15, M30, H1, D1, W1)")
	days := flag.Int("days", 90, "number of days of history to fetch")
	out := flag.String("out", "", "output CSV path (default derived from symbol and range)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Console: true})
	ctx := context.Background()

	// 3. Initialize Market Data Client (Binance Adapter)
	client, err := binanceclient.New(binanceclient.Config{
		APIKey:    cfg.APIKey,
		SecretKey: cfg.SecretKey,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize market data client")
		log.Fatalf("FATAL: Failed to initialize market data client: %v", err)
	}

	tf := domain.Timeframe(strings.ToUpper(*timeframe))
	end := time.Now()
	start := end.AddDate(0, 0, -*days)

	release, err := client.Acquire(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Terminal unreachable")
		log.Fatalf("Terminal unreachable: %v", err)
	}
	defer release()

	fmt.Printf("Fetching %s %s bars from %s to %s...\n", *symbol, tf, start.Format("2006-01-02"), end.Format("2006-01-02"))
	bars, err := client.GetBarsRange(ctx, *symbol, tf, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching bars")
		log.Fatalf("Error fetching bars: %v", err)
	}
	appLogger.Info(ctx, "Fetched bars", map[string]interface{}{"count": len(bars)})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_%s_to_%s.csv", *symbol, tf, start.Format("20060102"), end.Format("20060102"))
	}
	if err := utils.WriteBarsToCSV(bars, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
