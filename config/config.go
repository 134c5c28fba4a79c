package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"levelwatch/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string

	// Monitoring Parameters
	Timeframe           domain.Timeframe
	PollInterval        time.Duration
	ErrorBackoffMax     time.Duration
	BarCount            int
	HistoryCapacity     int
	BatchWindowSeconds  int
	SettleDelay         time.Duration
	SummaryProximityPct float64 // mid-price distance ratio for the summary's "near" list
	StopRangeMultiplier float64

	// Detection Parameters
	TouchProximityPct float64 // fraction of candle range for near-miss touches
	BodyRatio         float64 // minimum body/range ratio for IFC bars

	// Risk Parameters
	AccountCurrency  string
	CommoditySymbols []string

	// Asian Session Window
	AsianStartHour int
	AsianEndHour   int
	AsianReadyHour int

	// Connection Settings
	ConnIdleTimeout  time.Duration
	ConnReapInterval time.Duration

	// HTTP API
	HTTPHost           string
	HTTPPort           int
	HTTPAPIKey         string
	RateLimitPerMinute int
	AllowedOrigins     []string

	// SMTP Notifications (optional; log-only sink when Host is empty)
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       []string

	// Logging
	LogLevel      string
	LogFilePath   string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogConsole    bool
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")

	// Monitoring Parameters
	cfg.Timeframe = domain.Timeframe(strings.ToUpper(getEnv("TIMEFRAME", "M15")))
	if cfg.Timeframe.Minutes() <= 0 || cfg.Timeframe.Minutes() > 60 {
		errs = append(errs, fmt.Sprintf("TIMEFRAME must be an intraday timeframe, got %q", cfg.Timeframe))
	}

	pollSeconds := getEnvAsInt("POLL_INTERVAL_SECONDS", 10)
	if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	backoffMaxSeconds := getEnvAsInt("ERROR_BACKOFF_MAX_SECONDS", 120)
	if backoffMaxSeconds <= 0 {
		errs = append(errs, "ERROR_BACKOFF_MAX_SECONDS must be positive")
	}
	cfg.ErrorBackoffMax = time.Duration(backoffMaxSeconds) * time.Second

	cfg.BarCount = getEnvAsInt("BAR_COUNT", 100)
	if cfg.BarCount < 3 {
		errs = append(errs, "BAR_COUNT must be at least 3")
	}

	cfg.HistoryCapacity = getEnvAsInt("SIGNAL_HISTORY_CAPACITY", 20)
	if cfg.HistoryCapacity <= 0 {
		errs = append(errs, "SIGNAL_HISTORY_CAPACITY must be positive")
	}

	cfg.BatchWindowSeconds = getEnvAsInt("BATCH_WINDOW_SECONDS", 5)
	if cfg.BatchWindowSeconds <= 0 || cfg.BatchWindowSeconds >= 60 {
		errs = append(errs, "BATCH_WINDOW_SECONDS must be between 1 and 59")
	}

	settleSeconds := getEnvAsInt("SETTLE_DELAY_SECONDS", 2)
	if settleSeconds < 0 {
		errs = append(errs, "SETTLE_DELAY_SECONDS cannot be negative")
	}
	cfg.SettleDelay = time.Duration(settleSeconds) * time.Second

	cfg.SummaryProximityPct = getEnvAsFloat("SUMMARY_PROXIMITY_PCT", 0.0015)
	if cfg.SummaryProximityPct <= 0 {
		errs = append(errs, "SUMMARY_PROXIMITY_PCT must be positive")
	}

	cfg.StopRangeMultiplier = getEnvAsFloat("STOP_RANGE_MULTIPLIER", 1.5)
	if cfg.StopRangeMultiplier <= 0 {
		errs = append(errs, "STOP_RANGE_MULTIPLIER must be positive")
	}

	// Detection Parameters
	cfg.TouchProximityPct = getEnvAsFloat("TOUCH_PROXIMITY_PCT", 0.10)
	if cfg.TouchProximityPct <= 0 || cfg.TouchProximityPct >= 1 {
		errs = append(errs, "TOUCH_PROXIMITY_PCT must be between 0 and 1 (exclusive)")
	}

	cfg.BodyRatio = getEnvAsFloat("BODY_RATIO", 0.5)
	if cfg.BodyRatio <= 0 || cfg.BodyRatio > 1 {
		errs = append(errs, "BODY_RATIO must be in (0, 1]")
	}

	// Risk Parameters
	cfg.AccountCurrency = strings.ToUpper(getEnv("ACCOUNT_CURRENCY", "USDT"))
	cfg.CommoditySymbols = getEnvAsList("COMMODITY_SYMBOLS", nil)

	// Asian Session Window
	cfg.AsianStartHour = getEnvAsInt("ASIAN_START_HOUR", 20)
	cfg.AsianEndHour = getEnvAsInt("ASIAN_END_HOUR", 2)
	cfg.AsianReadyHour = getEnvAsInt("ASIAN_READY_HOUR", 3)
	for _, h := range []int{cfg.AsianStartHour, cfg.AsianEndHour, cfg.AsianReadyHour} {
		if h < 0 || h > 23 {
			errs = append(errs, "Asian session hours must be between 0 and 23")
			break
		}
	}

	// Connection Settings
	idleSeconds := getEnvAsInt("CONN_IDLE_TIMEOUT_SECONDS", 300)
	if idleSeconds <= 0 {
		errs = append(errs, "CONN_IDLE_TIMEOUT_SECONDS must be positive")
	}
	cfg.ConnIdleTimeout = time.Duration(idleSeconds) * time.Second

	reapSeconds := getEnvAsInt("CONN_REAP_INTERVAL_SECONDS", 60)
	if reapSeconds <= 0 {
		errs = append(errs, "CONN_REAP_INTERVAL_SECONDS must be positive")
	}
	cfg.ConnReapInterval = time.Duration(reapSeconds) * time.Second

	// HTTP API
	cfg.HTTPHost = getEnv("HTTP_HOST", "0.0.0.0")
	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8080)
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		errs = append(errs, "HTTP_PORT must be a valid port number")
	}
	cfg.HTTPAPIKey = getEnv("HTTP_API_KEY", "")
	if cfg.HTTPAPIKey == "" {
		errs = append(errs, "HTTP_API_KEY must be set")
	}
	cfg.RateLimitPerMinute = getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60)
	if cfg.RateLimitPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must be positive")
	}
	cfg.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", nil)

	// SMTP Notifications
	cfg.SMTPHost = getEnv("SMTP_HOST", "")
	cfg.SMTPPort = getEnvAsInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnv("SMTP_FROM", "")
	cfg.SMTPTo = getEnvAsList("SMTP_TO", nil)
	if cfg.SMTPHost != "" && (cfg.SMTPFrom == "" || len(cfg.SMTPTo) == 0) {
		errs = append(errs, "SMTP_FROM and SMTP_TO must be set when SMTP_HOST is configured")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	cfg.LogFilePath = getEnv("LOG_FILE_PATH", "")
	cfg.LogMaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", 30)
	cfg.LogConsole = getEnvAsBool("LOG_CONSOLE", true)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
