package binanceclient

import (
	"context"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelwatch/internal/domain"
	"levelwatch/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestIntervalString(t *testing.T) {
	cases := map[domain.Timeframe]string{
		domain.M5:  "5m",
		domain.M15: "15m",
		domain.M30: "30m",
		domain.H1:  "1h",
		domain.D1:  "1d",
		domain.W1:  "1w",
	}
	for tf, want := range cases {
		got, err := intervalString(tf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// The exchange has no ten-minute klines.
	_, err := intervalString(domain.M10)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = intervalString(domain.Timeframe("M7"))
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestConvertKlines(t *testing.T) {
	c, err := New(Config{APIKey: "k", SecretKey: "s", Logger: nopLogger{}})
	require.NoError(t, err)

	openTime := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	klines := []*binance.Kline{
		{
			OpenTime: openTime.UnixMilli(),
			Open:     "1.0808", High: "1.0845", Low: "1.0800", Close: "1.0840", Volume: "1200.5",
		},
		{
			// Malformed price fields are skipped, not fatal.
			OpenTime: openTime.Add(15 * time.Minute).UnixMilli(),
			Open:     "not-a-number", High: "1", Low: "1", Close: "1", Volume: "1",
		},
	}

	bars, err := c.convertKlines(context.Background(), "EURUSD", domain.M15, klines)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	b := bars[0]
	assert.Equal(t, openTime, b.OpenTime)
	assert.Equal(t, "EURUSD", b.Symbol)
	assert.Equal(t, domain.M15, b.Timeframe)
	assert.Equal(t, 1.0808, b.Open)
	assert.Equal(t, 1.0845, b.High)
	assert.Equal(t, 1.0800, b.Low)
	assert.Equal(t, 1.0840, b.Close)
	assert.Equal(t, 1200.5, b.Volume)
}

func TestReleaseIsIdempotent(t *testing.T) {
	c, err := New(Config{APIKey: "k", SecretKey: "s", Logger: nopLogger{}})
	require.NoError(t, err)

	// Skip the ping by marking the connection up directly.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	release, err := c.Acquire(context.Background())
	require.NoError(t, err)

	c.connMu.Lock()
	assert.Equal(t, 1, c.refs)
	c.connMu.Unlock()

	release()
	release() // second call is a no-op

	c.connMu.Lock()
	assert.Equal(t, 0, c.refs)
	c.connMu.Unlock()
}
