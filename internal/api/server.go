package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"levelwatch/internal/domain"
	"levelwatch/internal/levels"
	"levelwatch/internal/monitor"
	"levelwatch/internal/patterns"
	"levelwatch/internal/ports"
	"levelwatch/internal/risk"
)

// Config holds the HTTP server settings.
type Config struct {
	Host               string
	Port               int
	APIKey             string
	RateLimitPerMinute int
	AllowedOrigins     []string

	// Analysis defaults, shared with the monitoring service.
	Timeframe           domain.Timeframe
	BarCount            int
	StopRangeMultiplier float64
}

// Server exposes the monitoring service and the on-demand analysis pipeline
// over HTTP.
type Server struct {
	cfg      Config
	logger   ports.Logger
	monitor  *monitor.Service
	client   ports.MarketDataClient
	cache    *levels.Cache
	detector *patterns.Detector
	sizer    *risk.Sizer
	notifier ports.Notifier

	httpServer *http.Server
}

// NewServer wires the HTTP layer. All dependencies are required.
func NewServer(
	cfg Config,
	logger ports.Logger,
	monitorSvc *monitor.Service,
	client ports.MarketDataClient,
	cache *levels.Cache,
	detector *patterns.Detector,
	sizer *risk.Sizer,
	notifier ports.Notifier,
) (*Server, error) {
	if logger == nil || monitorSvc == nil || client == nil || cache == nil || detector == nil || sizer == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for API server")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key must be configured", ports.ErrConfigurationError)
	}
	if cfg.Port <= 0 {
		cfg.Port = 8080
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}
	if cfg.BarCount <= 0 {
		cfg.BarCount = 100
	}
	if cfg.StopRangeMultiplier <= 0 {
		cfg.StopRangeMultiplier = 1.5
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		monitor:  monitorSvc,
		client:   client,
		cache:    cache,
		detector: detector,
		sizer:    sizer,
		notifier: notifier,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-API-Key")
	engine.Use(cors.New(corsCfg))

	engine.GET("/health", s.handleHealth)

	authed := engine.Group("/")
	authed.Use(s.apiKeyAuth(), s.rateLimiter())
	{
		authed.POST("/monitor/start", s.handleMonitorStart)
		authed.POST("/monitor/stop", s.handleMonitorStop)
		authed.GET("/monitor/status", s.handleMonitorStatus)
		authed.GET("/monitor/signals", s.handleMonitorSignals)

		authed.POST("/data/price", s.handlePrice)
		authed.GET("/data/levels/:symbol", s.handleLevels)
		authed.GET("/data/analyze/:symbol", s.handleAnalyze)

		authed.POST("/notification/test", s.handleNotificationTest)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Start runs the HTTP server until it is shut down. It blocks.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "API server listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "HTTP request handled", map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
	}
}
