package monitor

import (
	"context"
	"sync"
	"time"

	"levelwatch/internal/domain"
	"levelwatch/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockClient struct {
	acquireErr   error
	getBars      func(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error)
	getBarsRange func(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)
	specs        map[string]*domain.InstrumentSpec
	quotes       map[string]*domain.Quote
	pingErr      error
}

func (m *mockClient) Acquire(ctx context.Context) (ports.ReleaseFunc, error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	return func() {}, nil
}

func (m *mockClient) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error) {
	if m.getBars == nil {
		return nil, ports.ErrNotFound
	}
	return m.getBars(ctx, symbol, tf, count)
}

func (m *mockClient) GetBarsRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	if m.getBarsRange == nil {
		return nil, ports.ErrNotFound
	}
	return m.getBarsRange(ctx, symbol, tf, start, end)
}

func (m *mockClient) GetInstrumentSpec(ctx context.Context, symbol string) (*domain.InstrumentSpec, error) {
	if spec, ok := m.specs[symbol]; ok {
		return spec, nil
	}
	return nil, ports.ErrSymbolNotFound
}

func (m *mockClient) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if q, ok := m.quotes[symbol]; ok {
		return q, nil
	}
	return nil, ports.ErrSymbolNotFound
}

func (m *mockClient) Ping(ctx context.Context) error { return m.pingErr }

// mockNotifier records every notification it receives.
type mockNotifier struct {
	mu       sync.Mutex
	err      error
	subjects []string
	bodies   []string
}

func (m *mockNotifier) Notify(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *mockNotifier) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.subjects))
	copy(out, m.subjects)
	return out
}

func (m *mockNotifier) lastBody() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		return ""
	}
	return m.bodies[len(m.bodies)-1]
}

func fxSpec(symbol string) *domain.InstrumentSpec {
	return &domain.InstrumentSpec{
		Symbol:        symbol,
		PointSize:     0.0001,
		ContractSize:  100000,
		TickSize:      0.0001,
		TickValue:     10,
		VolumeMin:     0.01,
		VolumeMax:     100,
		VolumeStep:    0.01,
		BaseCurrency:  symbol[:3],
		QuoteCurrency: symbol[3:],
		Digits:        5,
	}
}
