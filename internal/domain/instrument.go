package domain

// InstrumentSpec holds the read-only contract specification of a tradable
// symbol, sourced from the market-data terminal and cached for the session.
type InstrumentSpec struct {
	Symbol        string
	PointSize     float64 // smallest price increment used for stop-distance math
	ContractSize  float64 // units of the base asset per 1.0 lot
	TickSize      float64
	TickValue     float64 // value of one tick per lot, in the quote currency
	VolumeMin     float64
	VolumeMax     float64
	VolumeStep    float64
	BaseCurrency  string
	QuoteCurrency string
	Digits        int // price display precision
}

// Valid reports whether every field needed for position sizing is positive.
func (s InstrumentSpec) Valid() bool {
	return s.PointSize > 0 &&
		s.ContractSize > 0 &&
		s.VolumeMin > 0 &&
		s.VolumeMax > 0 &&
		s.VolumeStep > 0
}
