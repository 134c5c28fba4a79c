package domain

import "time"

// Timeframe identifies the fixed time bucket a Bar aggregates.
type Timeframe string

const (
	M5  Timeframe = "M5"
	M10 Timeframe = "M10"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
)

// Duration returns the wall-clock length of one bar of this timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M5:
		return 5 * time.Minute
	case M10:
		return 10 * time.Minute
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case D1:
		return 24 * time.Hour
	case W1:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Minutes returns the bar length in whole minutes, or 0 for an unknown timeframe.
func (tf Timeframe) Minutes() int {
	return int(tf.Duration() / time.Minute)
}

// Bar represents a single OHLCV observation. A Bar is immutable once its
// interval has closed; sequences for one symbol+timeframe are ordered by
// OpenTime with no duplicates.
type Bar struct {
	OpenTime  time.Time // Start time of the interval
	Symbol    string    // Trading symbol
	Timeframe Timeframe // Bucket the bar aggregates
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Traded volume
}

// Range returns the high-low span of the bar.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body returns the absolute open-close distance.
func (b Bar) Body() float64 {
	body := b.Close - b.Open
	if body < 0 {
		body = -body
	}
	return body
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool {
	return b.Close > b.Open
}

// Quote is the current top-of-book price pair for a symbol.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}
