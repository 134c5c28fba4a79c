package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelwatch/internal/domain"
	"levelwatch/internal/levels"
	"levelwatch/internal/monitor"
	"levelwatch/internal/patterns"
	"levelwatch/internal/ports"
	"levelwatch/internal/risk"
)

const testAPIKey = "test-key"

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockClient struct {
	getBars func(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error)
	specs   map[string]*domain.InstrumentSpec
	quotes  map[string]*domain.Quote
	pingErr error
}

func (m *mockClient) Acquire(ctx context.Context) (ports.ReleaseFunc, error) {
	return func() {}, nil
}

func (m *mockClient) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error) {
	if m.getBars == nil {
		return nil, ports.ErrNotFound
	}
	return m.getBars(ctx, symbol, tf, count)
}

func (m *mockClient) GetBarsRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	return nil, ports.ErrNotFound
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

type mockNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockNotifier) Notify(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects)
}

func eurusdSpec() *domain.InstrumentSpec {
	return &domain.InstrumentSpec{
		Symbol: "EURUSD", PointSize: 0.0001, ContractSize: 100000, TickSize: 0.0001,
		VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01,
		BaseCurrency: "EUR", QuoteCurrency: "USD", Digits: 5,
	}
}

func newTestServer(t *testing.T, client *mockClient, notifier ports.Notifier, rateLimit int) (*Server, *monitor.Service) {
	t.Helper()

	logger := nopLogger{}
	cache, err := levels.NewCache(levels.Config{
		Client: client, Logger: logger,
		Session: levels.SessionWindow{StartHour: 20, EndHour: 2, ReadyHour: 3},
	})
	require.NoError(t, err)
	detector, err := patterns.New(patterns.Config{}, logger)
	require.NoError(t, err)
	sizer, err := risk.NewSizer(risk.Config{AccountCurrency: "USD"}, client, logger)
	require.NoError(t, err)

	monitorSvc, err := monitor.NewService(monitor.ServiceConfig{
		Timeframe:     domain.M15,
		PollInterval:  50 * time.Millisecond,
		ShutdownGrace: 2 * time.Second,
	}, logger, client, notifier, cache, detector, sizer)
	require.NoError(t, err)

	server, err := NewServer(Config{
		APIKey:             testAPIKey,
		RateLimitPerMinute: rateLimit,
		Timeframe:          domain.M15,
		BarCount:           10,
	}, logger, monitorSvc, client, cache, detector, sizer, notifier)
	require.NoError(t, err)
	return server, monitorSvc
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}, withKey bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("X-API-Key", testAPIKey)
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyRequired(t *testing.T) {
	server, _ := newTestServer(t, &mockClient{}, &mockNotifier{}, 100)

	rec := doRequest(t, server, http.MethodGet, "/monitor/status", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, server, http.MethodGet, "/monitor/status", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthIsPublic(t *testing.T) {
	server, _ := newTestServer(t, &mockClient{}, &mockNotifier{}, 100)

	rec := doRequest(t, server, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, false, resp["monitoring"])
}

func TestHealthReportsTerminalDown(t *testing.T) {
	server, _ := newTestServer(t, &mockClient{pingErr: ports.ErrConnectionFailed}, &mockNotifier{}, 100)

	rec := doRequest(t, server, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitorLifecycleOverHTTP(t *testing.T) {
	client := &mockClient{specs: map[string]*domain.InstrumentSpec{"EURUSD": eurusdSpec()}}
	notifier := &mockNotifier{}
	server, monitorSvc := newTestServer(t, client, notifier, 100)
	defer monitorSvc.StopSession(context.Background())

	start := map[string]interface{}{
		"symbols": []string{"EURUSD", "BADSYM"}, "risk_percentage": 0.5, "account_size": 100000,
	}
	rec := doRequest(t, server, http.MethodPost, "/monitor/start", start, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var startResp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &startResp))
	assert.Equal(t, []interface{}{"EURUSD"}, startResp["accepted"])
	assert.Equal(t, []interface{}{"BADSYM"}, startResp["skipped"])

	// Starting while active is a client error.
	rec = doRequest(t, server, http.MethodPost, "/monitor/start", start, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, server, http.MethodGet, "/monitor/status", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var statusResp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statusResp))
	assert.Equal(t, true, statusResp["active"])

	rec = doRequest(t, server, http.MethodGet, "/monitor/signals", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodPost, "/monitor/stop", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodPost, "/monitor/stop", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, server, http.MethodGet, "/monitor/signals", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	server, _ := newTestServer(t, &mockClient{}, &mockNotifier{}, 2)

	assert.Equal(t, http.StatusOK, doRequest(t, server, http.MethodGet, "/monitor/status", nil, true).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, server, http.MethodGet, "/monitor/status", nil, true).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, server, http.MethodGet, "/monitor/status", nil, true).Code)
}

func TestPriceEndpoint(t *testing.T) {
	client := &mockClient{quotes: map[string]*domain.Quote{
		"EURUSD": {Symbol: "EURUSD", Bid: 1.0840, Ask: 1.0842, Time: time.Now()},
	}}
	server, _ := newTestServer(t, client, &mockNotifier{}, 100)

	rec := doRequest(t, server, http.MethodPost, "/data/price", map[string]string{"symbol": "EURUSD"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1.0840, resp["bid"])
	assert.InDelta(t, 1.0841, resp["mid"].(float64), 1e-9)

	rec = doRequest(t, server, http.MethodPost, "/data/price", map[string]string{"symbol": "NOPE"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLevelsEndpointEmpty(t *testing.T) {
	server, _ := newTestServer(t, &mockClient{}, &mockNotifier{}, 100)

	rec := doRequest(t, server, http.MethodGet, "/data/levels/EURUSD", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeEndpoint(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	// Intraday series ending in a bullish engulfing candle, plus a forming
	// bar that must be excluded from the analysis.
	intraday := []domain.Bar{
		{OpenTime: base, Open: 1.0810, High: 1.0830, Low: 1.0790, Close: 1.0820},
		{OpenTime: base.Add(15 * time.Minute), Open: 1.0820, High: 1.0830, Low: 1.0805, Close: 1.0810},
		{OpenTime: base.Add(30 * time.Minute), Open: 1.0808, High: 1.0845, Low: 1.0800, Close: 1.0840},
		{OpenTime: base.Add(45 * time.Minute), Open: 1.0840, High: 1.0841, Low: 1.0839, Close: 1.0840},
	}
	day1 := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	client := &mockClient{
		specs: map[string]*domain.InstrumentSpec{"EURUSD": eurusdSpec()},
		getBars: func(_ context.Context, _ string, tf domain.Timeframe, _ int) ([]domain.Bar, error) {
			switch tf {
			case domain.M15:
				return intraday, nil
			case domain.D1:
				return []domain.Bar{
					{OpenTime: day1, Open: 1.0850, High: 1.0880, Low: 1.0802, Close: 1.0820},
					{OpenTime: day1.AddDate(0, 0, 1), Open: 1.0820, High: 1.0860, Low: 1.0795, Close: 1.0840},
				}, nil
			}
			return nil, ports.ErrNotFound
		},
	}
	server, _ := newTestServer(t, client, &mockNotifier{}, 100)

	rec := doRequest(t, server, http.MethodGet, "/data/analyze/EURUSD?risk_percentage=0.5&account_size=100000", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bull", resp["pattern"])
	assert.Contains(t, resp["touched_levels"], "yesterday_low")

	reco, ok := resp["recommendation"].(map[string]interface{})
	require.True(t, ok, "qualifying pattern with account size must include a recommendation")
	assert.Equal(t, "BUY", reco["direction"])
	assert.Equal(t, 1.0840, reco["entry"])
	assert.Greater(t, reco["position_size"].(float64), 0.0)
}

func TestNotificationTestEndpoint(t *testing.T) {
	notifier := &mockNotifier{}
	server, _ := newTestServer(t, &mockClient{}, notifier, 100)

	rec := doRequest(t, server, http.MethodPost, "/notification/test", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, notifier.count())
}
