package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"levelwatch/internal/domain"
	"levelwatch/internal/levels"
	"levelwatch/internal/patterns"
	"levelwatch/internal/ports"
	"levelwatch/internal/risk"
)

// ServiceConfig holds the monitoring parameters shared by every session.
type ServiceConfig struct {
	Timeframe           domain.Timeframe
	PollInterval        time.Duration
	ErrorBackoffMax     time.Duration
	BarCount            int
	HistoryCapacity     int
	ConsolidatorTick    time.Duration
	BatchWindowSeconds  int
	SettleDelay         time.Duration
	SummaryProximityPct float64
	StopRangeMultiplier float64
	ShutdownGrace       time.Duration
	Now                 func() time.Time
}

func (c *ServiceConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.ErrorBackoffMax <= 0 {
		c.ErrorBackoffMax = 2 * time.Minute
	}
	if c.BarCount <= 0 {
		c.BarCount = 100
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = defaultHistoryCapacity
	}
	if c.ConsolidatorTick <= 0 {
		c.ConsolidatorTick = time.Second
	}
	if c.BatchWindowSeconds <= 0 {
		c.BatchWindowSeconds = 5
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.SummaryProximityPct <= 0 {
		c.SummaryProximityPct = 0.0015
	}
	if c.StopRangeMultiplier <= 0 {
		c.StopRangeMultiplier = 1.5
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Service owns the monitoring session lifecycle: at most one session is
// active at a time, holding one worker goroutine per accepted symbol plus
// the consolidator. All session state lives on the session value, so a
// restart simply builds a fresh one.
type Service struct {
	cfg      ServiceConfig
	logger   ports.Logger
	client   ports.MarketDataClient
	notifier ports.Notifier
	cache    *levels.Cache
	detector *patterns.Detector
	sizer    *risk.Sizer

	mu      sync.Mutex
	current *session
}

type session struct {
	id          string
	symbols     []string
	riskPct     float64
	accountSize float64
	startedAt   time.Time
	store       *Store
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// StartResult reports which requested symbols were accepted into the session
// and which were skipped (unknown or unreachable).
type StartResult struct {
	SessionID string
	Accepted  []string
	Skipped   []string
	StartedAt time.Time
}

// Status is the read-only view of the session state.
type Status struct {
	Active    bool
	SessionID string
	Symbols   []string
	StartedAt time.Time
}

// NewService creates the monitoring service.
func NewService(
	cfg ServiceConfig,
	logger ports.Logger,
	client ports.MarketDataClient,
	notifier ports.Notifier,
	cache *levels.Cache,
	detector *patterns.Detector,
	sizer *risk.Sizer,
) (*Service, error) {
	if logger == nil || client == nil || notifier == nil || cache == nil || detector == nil || sizer == nil {
		return nil, fmt.Errorf("missing required dependencies for monitoring service")
	}
	if cfg.Timeframe.Minutes() <= 0 || cfg.Timeframe.Minutes() > 60 {
		return nil, fmt.Errorf("polling timeframe must be intraday, got %q", cfg.Timeframe)
	}
	cfg.applyDefaults()

	return &Service{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		notifier: notifier,
		cache:    cache,
		detector: detector,
		sizer:    sizer,
	}, nil
}

// StartSession verifies the requested symbols against the terminal, drops the
// unreachable ones with a warning, and launches one worker per accepted
// symbol plus the consolidator. It fails with ErrSessionActive when a session
// is already running and with ErrSymbolNotFound when no requested symbol is
// usable.
func (s *Service) StartSession(ctx context.Context, symbols []string, riskPct, accountSize float64) (*StartResult, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", ports.ErrInvalidRequest)
	}
	if riskPct <= 0 || accountSize <= 0 {
		return nil, fmt.Errorf("%w: risk percentage and account size must be positive", ports.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, ports.ErrSessionActive
	}

	accepted, skipped := s.verifySymbols(ctx, symbols)
	if len(accepted) == 0 {
		return nil, fmt.Errorf("%w: none of the requested symbols are available", ports.ErrSymbolNotFound)
	}

	sess := &session{
		id:          uuid.NewString(),
		symbols:     accepted,
		riskPct:     riskPct,
		accountSize: accountSize,
		startedAt:   s.cfg.Now(),
		store:       NewStore(s.cfg.HistoryCapacity),
	}

	// The session must outlive the start request, so its workers run on a
	// fresh context rather than the caller's.
	runCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	for _, symbol := range accepted {
		worker := &symbolWorker{
			symbol:       symbol,
			riskPct:      riskPct,
			accountSize:  accountSize,
			client:       s.client,
			cache:        s.cache,
			detector:     s.detector,
			sizer:        s.sizer,
			store:        sess.store,
			logger:       s.logger,
			pollInterval: s.cfg.PollInterval,
			errorBackoff: &backoff.Backoff{
				Min:    s.cfg.PollInterval,
				Max:    s.cfg.ErrorBackoffMax,
				Factor: 2,
				Jitter: true,
			},
			timeframe:    s.cfg.Timeframe,
			barCount:     s.cfg.BarCount,
			stopRangeMul: s.cfg.StopRangeMultiplier,
			now:          s.cfg.Now,
		}
		sess.wg.Add(1)
		go func() {
			defer sess.wg.Done()
			worker.run(runCtx)
		}()
	}

	cons := &consolidator{
		symbols:       accepted,
		store:         sess.store,
		notifier:      s.notifier,
		client:        s.client,
		cache:         s.cache,
		logger:        s.logger,
		timeframe:     s.cfg.Timeframe,
		tick:          s.cfg.ConsolidatorTick,
		windowSeconds: s.cfg.BatchWindowSeconds,
		settleDelay:   s.cfg.SettleDelay,
		proximityPct:  s.cfg.SummaryProximityPct,
		now:           s.cfg.Now,
	}
	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		cons.run(runCtx)
	}()

	s.current = sess
	s.logger.Info(ctx, "Monitoring session started", map[string]interface{}{
		"sessionID": sess.id,
		"accepted":  accepted,
		"skipped":   skipped,
		"riskPct":   riskPct,
	})

	s.notifyAsync("Monitoring started", fmt.Sprintf(
		"Monitoring symbols: %s\nRisk: %.2f%% per trade on %.2f account\nSession: %s",
		strings.Join(accepted, ", "), riskPct, accountSize, sess.id,
	))

	return &StartResult{
		SessionID: sess.id,
		Accepted:  accepted,
		Skipped:   skipped,
		StartedAt: sess.startedAt,
	}, nil
}

// StopSession cancels the active session and waits up to the shutdown grace
// period for its workers to exit. It returns false when no session is
// active.
func (s *Service) StopSession(ctx context.Context) bool {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess == nil {
		return false
	}

	sess.cancel()

	done := make(chan struct{})
	go func() {
		sess.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info(ctx, "Monitoring session stopped", map[string]interface{}{"sessionID": sess.id})
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn(ctx, "Shutdown grace period elapsed before all workers exited", map[string]interface{}{
			"sessionID": sess.id,
		})
	}

	s.notifyAsync("Monitoring stopped", fmt.Sprintf(
		"Stopped monitoring symbols: %s\nSession: %s", strings.Join(sess.symbols, ", "), sess.id,
	))
	return true
}

// Status returns the current session state; zero values when inactive.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Status{}
	}
	symbols := make([]string, len(s.current.symbols))
	copy(symbols, s.current.symbols)
	return Status{
		Active:    true,
		SessionID: s.current.id,
		Symbols:   symbols,
		StartedAt: s.current.startedAt,
	}
}

// Signals returns a snapshot of the per-symbol signal history of the active
// session, or nil when no session is active.
func (s *Service) Signals() map[string][]domain.Signal {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.store.Snapshot()
}

// verifySymbols checks each requested symbol against the terminal. Symbols
// whose instrument spec cannot be fetched are dropped with a warning rather
// than failing the whole session start.
func (s *Service) verifySymbols(ctx context.Context, symbols []string) (accepted, skipped []string) {
	release, err := s.client.Acquire(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Terminal unreachable during symbol verification")
		return nil, symbols
	}
	defer release()

	seen := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true

		if _, err := s.client.GetInstrumentSpec(ctx, symbol); err != nil {
			s.logger.Warn(ctx, "Symbol not available, skipping", map[string]interface{}{
				"symbol": symbol, "error": err.Error(),
			})
			skipped = append(skipped, symbol)
			continue
		}
		accepted = append(accepted, symbol)
	}
	return accepted, skipped
}

// notifyAsync sends an informational notification without blocking the
// caller; delivery failures are logged only.
func (s *Service) notifyAsync(subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, subject, body); err != nil {
			s.logger.Error(ctx, err, "Failed to send notification", map[string]interface{}{"subject": subject})
		}
	}()
}
