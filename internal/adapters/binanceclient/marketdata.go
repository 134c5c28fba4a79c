package binanceclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"levelwatch/internal/domain"
	"levelwatch/internal/ports"
)

// intervalString maps a timeframe to the exchange's kline interval notation.
// The exchange has no ten-minute interval, so M10 is rejected up front.
func intervalString(tf domain.Timeframe) (string, error) {
	switch tf {
	case domain.M5:
		return "5m", nil
	case domain.M15:
		return "15m", nil
	case domain.M30:
		return "30m", nil
	case domain.H1:
		return "1h", nil
	case domain.D1:
		return "1d", nil
	case domain.W1:
		return "1w", nil
	default:
		return "", fmt.Errorf("%w: timeframe %q is not supported by the exchange", ports.ErrInvalidRequest, tf)
	}
}

// GetBars fetches the most recent count bars for a symbol. The last bar in
// the returned slice is the currently forming one.
func (c *Client) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Bar, error) {
	interval, err := intervalString(tf)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: bar count must be positive, got %d", ports.ErrInvalidRequest, count)
	}

	klines, err := c.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(count).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, "GetBars")
	}
	return c.convertKlines(ctx, symbol, tf, klines)
}

// GetBarsRange fetches the bars whose open time falls in [start, end).
func (c *Client) GetBarsRange(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	interval, err := intervalString(tf)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ports.ErrInvalidRequest, end, start)
	}

	klines, err := c.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli() - 1).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, "GetBarsRange")
	}
	return c.convertKlines(ctx, symbol, tf, klines)
}

// convertKlines parses the exchange's string-typed kline fields into domain
// bars. A malformed kline is skipped with a warning rather than failing the
// whole batch.
func (c *Client) convertKlines(ctx context.Context, symbol string, tf domain.Timeframe, klines []*binance.Kline) ([]domain.Bar, error) {
	bars := make([]domain.Bar, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			c.logger.Warn(ctx, "Skipping malformed kline", map[string]interface{}{
				"symbol": symbol, "openTime": k.OpenTime,
			})
			continue
		}
		bars = append(bars, domain.Bar{
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			Symbol:    symbol,
			Timeframe: tf,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return bars, nil
}

// GetInstrumentSpec fetches the trading rules for a symbol and translates
// them into the sizing-relevant instrument fields.
func (c *Client) GetInstrumentSpec(ctx context.Context, symbol string) (*domain.InstrumentSpec, error) {
	info, err := c.spot.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, "GetInstrumentSpec")
	}
	if len(info.Symbols) == 0 {
		return nil, fmt.Errorf("GetInstrumentSpec failed: %w: symbol %q", ports.ErrSymbolNotFound, symbol)
	}
	s := info.Symbols[0]

	spec := &domain.InstrumentSpec{
		Symbol:        s.Symbol,
		ContractSize:  1,
		BaseCurrency:  s.BaseAsset,
		QuoteCurrency: s.QuoteAsset,
		Digits:        s.QuotePrecision,
	}

	if pf := s.PriceFilter(); pf != nil {
		tickSize, err := strconv.ParseFloat(pf.TickSize, 64)
		if err != nil || tickSize <= 0 {
			return nil, fmt.Errorf("GetInstrumentSpec failed: %w: invalid tick size %q for %s", ports.ErrUnknown, pf.TickSize, symbol)
		}
		spec.TickSize = tickSize
		spec.PointSize = tickSize
		// Spot has no contract multiplier, so one tick on one unit moves
		// the position value by exactly the tick size.
		spec.TickValue = tickSize
	}

	if lf := s.LotSizeFilter(); lf != nil {
		minQty, err1 := strconv.ParseFloat(lf.MinQuantity, 64)
		maxQty, err2 := strconv.ParseFloat(lf.MaxQuantity, 64)
		stepSize, err3 := strconv.ParseFloat(lf.StepSize, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("GetInstrumentSpec failed: %w: invalid lot size filter for %s", ports.ErrUnknown, symbol)
		}
		spec.VolumeMin = minQty
		spec.VolumeMax = maxQty
		spec.VolumeStep = stepSize
	}

	if !spec.Valid() {
		return nil, fmt.Errorf("GetInstrumentSpec failed: %w: incomplete trading rules for %s", ports.ErrSymbolNotFound, symbol)
	}
	return spec, nil
}

// GetQuote fetches the current best bid/ask for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	tickers, err := c.spot.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, "GetQuote")
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("GetQuote failed: %w: symbol %q", ports.ErrSymbolNotFound, symbol)
	}
	t := tickers[0]

	bid, err1 := strconv.ParseFloat(t.BidPrice, 64)
	ask, err2 := strconv.ParseFloat(t.AskPrice, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("GetQuote failed: %w: malformed book ticker for %s", ports.ErrUnknown, symbol)
	}

	return &domain.Quote{
		Symbol: symbol,
		Bid:    bid,
		Ask:    ask,
		Time:   time.Now().UTC(),
	}, nil
}
