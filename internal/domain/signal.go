package domain

import "time"

// PatternType classifies the reversal pattern detected on a closed bar.
type PatternType string

const (
	PatternBull PatternType = "bull"
	PatternBear PatternType = "bear"
	PatternNone PatternType = "none"
)

// Signal is one qualifying pattern detection, risk-sized and ready for
// notification. A Signal is created once per qualifying bar close per symbol
// and never mutated afterwards except for the Consumed flag, which the
// consolidator flips under the store lock.
type Signal struct {
	Symbol        string
	Pattern       PatternType
	BarTime       time.Time // open time of the closed bar that produced the signal
	DetectedAt    time.Time
	TouchedLevels []string // level names, weekly categories first
	Price         float64  // close of the signal bar
	StopLoss      float64
	PositionSize  float64 // lots
	RiskAmount    float64 // account currency
	Consumed      bool
}
