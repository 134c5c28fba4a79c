package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"levelwatch/internal/domain"
	"levelwatch/internal/ports"
)

// commodityPipFactor is the fixed per-point factor applied to designated
// commodity symbols instead of currency conversion.
const commodityPipFactor = 0.01

// Config holds the sizing parameters that do not vary per call.
type Config struct {
	// AccountCurrency is the currency account size and risk are expressed in.
	AccountCurrency string
	// CommoditySymbols use a fixed pip-value override (contract size x 0.01)
	// instead of quote-currency conversion.
	CommoditySymbols []string
}

// Sizer converts a stop distance, risk percentage and account size into a lot
// size using the instrument's contract specification. The computation itself
// is pure; the Sizer only caches instrument specs and conversion quotes
// lookups for the session.
type Sizer struct {
	cfg         Config
	client      ports.MarketDataClient
	logger      ports.Logger
	commodities map[string]bool

	mu    sync.Mutex
	specs map[string]*domain.InstrumentSpec
}

// NewSizer creates a position sizer.
func NewSizer(cfg Config, client ports.MarketDataClient, logger ports.Logger) (*Sizer, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("client and logger are required for the position sizer")
	}
	if cfg.AccountCurrency == "" {
		return nil, fmt.Errorf("account currency is required for the position sizer")
	}

	commodities := make(map[string]bool, len(cfg.CommoditySymbols))
	for _, s := range cfg.CommoditySymbols {
		commodities[s] = true
	}

	return &Sizer{
		cfg:         cfg,
		client:      client,
		logger:      logger,
		commodities: commodities,
		specs:       make(map[string]*domain.InstrumentSpec),
	}, nil
}

// Size maps a stop distance (in price units), a risk percentage and an
// account size to a lot size. It returns (0, 0, 0) instead of an error on any
// non-positive input or intermediate, so a failed sizing aborts the current
// signal attempt without crashing the caller.
func (s *Sizer) Size(ctx context.Context, symbol string, stopDistancePrice, riskPct, accountSize float64) (lots float64, stopPoints int, riskAmount float64) {
	if stopDistancePrice <= 0 || riskPct <= 0 || accountSize <= 0 {
		return 0, 0, 0
	}

	spec := s.instrumentSpec(ctx, symbol)
	if spec == nil || !spec.Valid() {
		s.logger.Warn(ctx, "Instrument spec unavailable or invalid, skipping sizing", map[string]interface{}{"symbol": symbol})
		return 0, 0, 0
	}

	stopPoints = int(stopDistancePrice / spec.PointSize)
	if stopPoints <= 0 {
		return 0, 0, 0
	}

	riskAmount = accountSize * riskPct / 100

	pipValue := s.pipValue(ctx, spec)
	if pipValue <= 0 {
		return 0, 0, 0
	}

	rawLots := riskAmount / (float64(stopPoints) * pipValue)
	if rawLots <= 0 {
		return 0, 0, 0
	}

	lots = clampToStep(rawLots, spec.VolumeStep, spec.VolumeMin, spec.VolumeMax)
	if lots <= 0 {
		return 0, 0, 0
	}
	return lots, stopPoints, riskAmount
}

// pipValue returns the account-currency value of one point of price movement
// per 1.0 lot.
func (s *Sizer) pipValue(ctx context.Context, spec *domain.InstrumentSpec) float64 {
	perPoint := spec.ContractSize * spec.PointSize

	if s.commodities[spec.Symbol] {
		return spec.ContractSize * commodityPipFactor
	}

	switch s.cfg.AccountCurrency {
	case spec.QuoteCurrency:
		// Direct quote: one point is already worth perPoint in the account currency.
		return perPoint
	case spec.BaseCurrency:
		// Indirect quote: convert through the instrument's own price.
		mid := s.midPrice(ctx, spec.Symbol)
		if mid <= 0 {
			return 0
		}
		return perPoint / mid
	}

	// Cross currency: convert through an auxiliary pair, trying both orderings.
	if rate := s.midPrice(ctx, spec.QuoteCurrency+s.cfg.AccountCurrency); rate > 0 {
		return perPoint * rate
	}
	if rate := s.midPrice(ctx, s.cfg.AccountCurrency+spec.QuoteCurrency); rate > 0 {
		return perPoint / rate
	}

	s.logger.Warn(ctx, "No conversion instrument found, using unconverted pip value", map[string]interface{}{
		"symbol":          spec.Symbol,
		"quoteCurrency":   spec.QuoteCurrency,
		"accountCurrency": s.cfg.AccountCurrency,
	})
	return perPoint
}

// midPrice fetches a quote under the connection refcount, like every other
// terminal call, so the idle reaper never closes the connection mid-lookup.
func (s *Sizer) midPrice(ctx context.Context, symbol string) float64 {
	release, err := s.client.Acquire(ctx)
	if err != nil {
		return 0
	}
	defer release()

	quote, err := s.client.GetQuote(ctx, symbol)
	if err != nil {
		return 0
	}
	return quote.Mid()
}

// instrumentSpec returns the cached spec for a symbol, fetching it once per
// session.
func (s *Sizer) instrumentSpec(ctx context.Context, symbol string) *domain.InstrumentSpec {
	s.mu.Lock()
	if spec, ok := s.specs[symbol]; ok {
		s.mu.Unlock()
		return spec
	}
	s.mu.Unlock()

	release, err := s.client.Acquire(ctx)
	if err != nil {
		return nil
	}
	defer release()

	spec, err := s.client.GetInstrumentSpec(ctx, symbol)
	if err != nil {
		s.logger.Warn(ctx, "Failed to fetch instrument spec", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return nil
	}

	s.mu.Lock()
	s.specs[symbol] = spec
	s.mu.Unlock()
	return spec
}

// clampToStep floors lots to the instrument's volume step and clamps the
// result into [volumeMin, volumeMax]. Decimal arithmetic avoids float drift
// at step boundaries (0.30000000000000004 must floor to 0.3, not 0.2).
func clampToStep(lots, step, min, max float64) float64 {
	d := decimal.NewFromFloat(lots)
	st := decimal.NewFromFloat(step)
	if st.IsZero() {
		return 0
	}

	floored := d.Div(st).Floor().Mul(st)

	lo := decimal.NewFromFloat(min)
	hi := decimal.NewFromFloat(max)
	if floored.LessThan(lo) {
		floored = lo
	}
	if floored.GreaterThan(hi) {
		floored = hi
	}

	out, _ := floored.Float64()
	return out
}
