package levels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"levelwatch/internal/domain"
	"levelwatch/internal/ports"
)

// Cache computes and caches daily, weekly and Asian-session reference levels
// per symbol. Each category is refreshed only when a newer bar of its
// underlying timeframe appears upstream and is replaced wholesale, so keys
// from two different refresh cycles never mix within one category. When an
// upstream fetch fails the last known-good category is served instead.
type Cache struct {
	client  ports.MarketDataClient
	logger  ports.Logger
	session SessionWindow
	now     func() time.Time

	mu      sync.Mutex // guards entries only, never held across fetches
	entries map[string]*symbolLevels
}

// symbolLevels is the per-symbol cache slot. Each category tracks the
// timestamp of the bar (or day) its levels were built from. The slot carries
// its own lock so a slow refresh for one symbol cannot hold up lookups for
// another.
type symbolLevels struct {
	mu sync.Mutex

	dailyBarTime  time.Time
	daily         domain.LevelSet
	weeklyBarTime time.Time
	weekly        domain.LevelSet
	asianDay      time.Time // date (midnight) the Asian levels belong to
	asian         domain.LevelSet
}

// Config holds the dependencies of the level cache.
type Config struct {
	Client  ports.MarketDataClient
	Logger  ports.Logger
	Session SessionWindow
	Now     func() time.Time // defaults to time.Now
}

// NewCache creates a level cache.
func NewCache(cfg Config) (*Cache, error) {
	if cfg.Client == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("client and logger are required for the level cache")
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session window: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		client:  cfg.Client,
		logger:  cfg.Logger,
		session: cfg.Session,
		now:     now,
		entries: make(map[string]*symbolLevels),
	}, nil
}

// GetLevels returns the merged LevelSet for a symbol, refreshing stale
// categories first. Partial availability is normal: a category that has never
// been computed and cannot be computed now is simply absent from the result.
func (c *Cache) GetLevels(ctx context.Context, symbol string) domain.LevelSet {
	entry := c.entry(symbol)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	release, err := c.client.Acquire(ctx)
	if err != nil {
		c.logger.Warn(ctx, "Terminal unavailable, serving cached levels", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return c.merge(entry)
	}
	defer release()

	c.refreshDaily(ctx, symbol, entry)
	c.refreshWeekly(ctx, symbol, entry)
	c.refreshAsian(ctx, symbol, entry)

	return c.merge(entry)
}

// entry returns the cache slot for a symbol, creating it on first use.
func (c *Cache) entry(symbol string) *symbolLevels {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[symbol]
	if !ok {
		e = &symbolLevels{}
		c.entries[symbol] = e
	}
	return e
}

// merge assembles the returned set from whichever categories are available.
// The Asian category is included only if it belongs to the current calendar
// day; yesterday's session is never served once a new day has started.
func (c *Cache) merge(entry *symbolLevels) domain.LevelSet {
	out := make(domain.LevelSet)
	out.Merge(entry.weekly)
	out.Merge(entry.daily)
	if entry.asian != nil && entry.asianDay.Equal(dateOf(c.now())) {
		out.Merge(entry.asian)
	}
	return out
}

func (c *Cache) refreshDaily(ctx context.Context, symbol string, entry *symbolLevels) {
	bars, err := c.client.GetBars(ctx, symbol, domain.D1, 3)
	if err != nil {
		c.logger.Warn(ctx, "Daily bar fetch failed, keeping cached daily levels", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return
	}
	if len(bars) < 2 {
		c.logger.Warn(ctx, "Not enough daily bars to build levels", map[string]interface{}{
			"symbol": symbol, "bars": len(bars),
		})
		return
	}

	newest := bars[len(bars)-1]
	if !newest.OpenTime.After(entry.dailyBarTime) {
		return // no new daily bar since the last refresh
	}

	entry.daily = dailyLevels(newest, bars[len(bars)-2], dateOf(newest.OpenTime))
	entry.dailyBarTime = newest.OpenTime
	c.logger.Debug(ctx, "Daily levels refreshed", map[string]interface{}{
		"symbol": symbol, "barTime": newest.OpenTime,
	})
}

func (c *Cache) refreshWeekly(ctx context.Context, symbol string, entry *symbolLevels) {
	bars, err := c.client.GetBars(ctx, symbol, domain.W1, 3)
	if err != nil {
		c.logger.Warn(ctx, "Weekly bar fetch failed, keeping cached weekly levels", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return
	}
	if len(bars) < 2 {
		c.logger.Warn(ctx, "Not enough weekly bars to build levels", map[string]interface{}{
			"symbol": symbol, "bars": len(bars),
		})
		return
	}

	newest := bars[len(bars)-1]
	if !newest.OpenTime.After(entry.weeklyBarTime) {
		return
	}

	// The newest weekly bar is still forming; levels come from the most
	// recent completed week.
	prevWeek := bars[len(bars)-2]
	entry.weekly = weeklyLevels(prevWeek, dateOf(newest.OpenTime))
	entry.weeklyBarTime = newest.OpenTime
	c.logger.Debug(ctx, "Weekly levels refreshed", map[string]interface{}{
		"symbol": symbol, "barTime": newest.OpenTime,
	})
}

func (c *Cache) refreshAsian(ctx context.Context, symbol string, entry *symbolLevels) {
	now := c.now()
	today := dateOf(now)

	if entry.asianDay.Equal(today) {
		return // already computed for today
	}
	if !c.session.Complete(today, now) {
		return // session not finished yet, withhold rather than serve stale
	}

	start, end := c.session.Bounds(today)
	bars, err := c.client.GetBarsRange(ctx, symbol, domain.H1, start, end)
	if err != nil {
		c.logger.Warn(ctx, "Asian session fetch failed, keeping cached session levels", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return
	}

	set, err := sessionLevels(bars, today)
	if err != nil {
		c.logger.Warn(ctx, "Asian session empty, no session levels for today", map[string]interface{}{
			"symbol": symbol, "start": start, "end": end,
		})
		return
	}

	entry.asian = set
	entry.asianDay = today
	c.logger.Debug(ctx, "Asian session levels refreshed", map[string]interface{}{
		"symbol": symbol, "day": today,
	})
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
