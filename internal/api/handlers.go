package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"levelwatch/internal/domain"
	"levelwatch/internal/ports"
)

type startRequest struct {
	Symbols        []string `json:"symbols" binding:"required"`
	RiskPercentage float64  `json:"risk_percentage" binding:"required"`
	AccountSize    float64  `json:"account_size" binding:"required"`
}

type priceRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

// httpStatus maps the standardized port errors onto HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ports.ErrInvalidRequest), errors.Is(err, ports.ErrSessionActive):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrSymbolNotFound), errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ports.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ports.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ports.ErrConnectionFailed), errors.Is(err, ports.ErrTerminalUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleMonitorStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := s.monitor.StartSession(c.Request.Context(), req.Symbols, req.RiskPercentage, req.AccountSize)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": result.SessionID,
		"accepted":   result.Accepted,
		"skipped":    result.Skipped,
		"started_at": result.StartedAt,
	})
}

func (s *Server) handleMonitorStop(c *gin.Context) {
	stopped := s.monitor.StopSession(c.Request.Context())
	if !stopped {
		c.JSON(http.StatusNotFound, gin.H{"error": "no monitoring session is active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func (s *Server) handleMonitorStatus(c *gin.Context) {
	status := s.monitor.Status()
	resp := gin.H{
		"active": status.Active,
	}
	if status.Active {
		resp["session_id"] = status.SessionID
		resp["symbols"] = status.Symbols
		resp["started_at"] = status.StartedAt

		// Per-symbol last-signal block.
		perSymbol := make(map[string]gin.H, len(status.Symbols))
		signals := s.monitor.Signals()
		for _, symbol := range status.Symbols {
			history := signals[symbol]
			if len(history) == 0 {
				perSymbol[symbol] = gin.H{"last_signal": nil}
				continue
			}
			last := history[len(history)-1]
			perSymbol[symbol] = gin.H{
				"last_signal": signalJSON(last),
			}
		}
		resp["per_symbol"] = perSymbol
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMonitorSignals(c *gin.Context) {
	signals := s.monitor.Signals()
	if signals == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no monitoring session is active"})
		return
	}

	out := make(map[string][]gin.H, len(signals))
	for symbol, history := range signals {
		items := make([]gin.H, len(history))
		for i, sig := range history {
			items[i] = signalJSON(sig)
		}
		out[symbol] = items
	}
	c.JSON(http.StatusOK, gin.H{"signals": out})
}

func signalJSON(sig domain.Signal) gin.H {
	direction := "BUY"
	if sig.Pattern == domain.PatternBear {
		direction = "SELL"
	}
	return gin.H{
		"pattern":        string(sig.Pattern),
		"direction":      direction,
		"bar_time":       sig.BarTime,
		"detected_at":    sig.DetectedAt,
		"price":          sig.Price,
		"stop_loss":      sig.StopLoss,
		"position_size":  sig.PositionSize,
		"risk_amount":    sig.RiskAmount,
		"touched_levels": sig.TouchedLevels,
		"consumed":       sig.Consumed,
	}
}

func (s *Server) handlePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	release, err := s.client.Acquire(ctx)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	defer release()

	quote, err := s.client.GetQuote(ctx, req.Symbol)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": quote.Symbol,
		"bid":    quote.Bid,
		"ask":    quote.Ask,
		"mid":    quote.Mid(),
		"time":   quote.Time,
	})
}

func (s *Server) handleLevels(c *gin.Context) {
	symbol := c.Param("symbol")
	levelSet := s.cache.GetLevels(c.Request.Context(), symbol)
	if len(levelSet) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no levels available for " + symbol})
		return
	}

	names := make([]string, 0, len(levelSet))
	for name := range levelSet {
		names = append(names, name)
	}
	levelSet.SortNamesByPriority(names)

	items := make([]gin.H, len(names))
	for i, name := range names {
		lvl := levelSet[name]
		items[i] = gin.H{
			"name":     lvl.Name,
			"value":    lvl.Value,
			"category": lvl.Category.String(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "levels": items})
}

// handleAnalyze runs the monitor's detection pipeline once, on demand, for
// the most recently closed bar of the configured timeframe.
func (s *Server) handleAnalyze(c *gin.Context) {
	symbol := c.Param("symbol")
	riskPct := queryFloat(c, "risk_percentage", 1.0)
	accountSize := queryFloat(c, "account_size", 0)

	ctx := c.Request.Context()
	release, err := s.client.Acquire(ctx)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	defer release()

	bars, err := s.client.GetBars(ctx, symbol, s.cfg.Timeframe, s.cfg.BarCount)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	if len(bars) < 4 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "insufficient bar history for analysis"})
		return
	}

	// The last bar is still forming; analyze up to the last closed one.
	closed := bars[:len(bars)-1]
	levelSet := s.cache.GetLevels(ctx, symbol)
	pattern, touched := s.detector.Detect(ctx, closed, levelSet)

	last := closed[len(closed)-1]
	resp := gin.H{
		"symbol":         symbol,
		"timeframe":      string(s.cfg.Timeframe),
		"bar_time":       last.OpenTime,
		"close":          last.Close,
		"pattern":        string(pattern),
		"touched_levels": touched,
	}

	if pattern != domain.PatternNone && len(touched) > 0 && accountSize > 0 {
		prev := closed[len(closed)-2]
		high := last.High
		if prev.High > high {
			high = prev.High
		}
		low := last.Low
		if prev.Low < low {
			low = prev.Low
		}
		stopDistance := s.cfg.StopRangeMultiplier * (high - low)
		if stopDistance <= 0 {
			stopDistance = last.Close * 0.01
		}

		lots, stopPoints, riskAmount := s.sizer.Size(ctx, symbol, stopDistance, riskPct, accountSize)
		direction := "BUY"
		stopLoss := last.Close - stopDistance
		if pattern == domain.PatternBear {
			direction = "SELL"
			stopLoss = last.Close + stopDistance
		}
		resp["recommendation"] = gin.H{
			"direction":     direction,
			"entry":         last.Close,
			"stop_loss":     stopLoss,
			"stop_points":   stopPoints,
			"position_size": lots,
			"risk_amount":   riskAmount,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNotificationTest(c *gin.Context) {
	err := s.notifier.Notify(c.Request.Context(), "Test notification",
		"This is a test notification sent at "+time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	terminal := "ok"
	if err := s.client.Ping(ctx); err != nil {
		terminal = "unreachable"
	}

	status := s.monitor.Status()
	symbols := status.Symbols
	sort.Strings(symbols)

	code := http.StatusOK
	if terminal != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     terminal,
		"monitoring": status.Active,
		"symbols":    symbols,
		"time":       time.Now().UTC(),
	})
}

func queryFloat(c *gin.Context, key string, fallback float64) float64 {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
