package monitor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelwatch/internal/domain"
)

func sig(symbol string, barTime time.Time) domain.Signal {
	return domain.Signal{
		Symbol:  symbol,
		Pattern: domain.PatternBull,
		BarTime: barTime,
		Price:   100,
	}
}

func TestStoreAppendDeduplicates(t *testing.T) {
	store := NewStore(10)
	barTime := time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC)

	assert.True(t, store.Append(sig("EURUSD", barTime)))
	assert.False(t, store.Append(sig("EURUSD", barTime)), "same symbol and bar time must not store twice")
	assert.True(t, store.Append(sig("GBPUSD", barTime)), "same bar time on another symbol is distinct")

	history := store.Snapshot()["EURUSD"]
	assert.Len(t, history, 1)
}

func TestStoreEvictsOldest(t *testing.T) {
	store := NewStore(3)
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.True(t, store.Append(sig("EURUSD", base.Add(time.Duration(i)*time.Minute))))
	}

	history := store.Snapshot()["EURUSD"]
	require.Len(t, history, 3)
	assert.Equal(t, base.Add(2*time.Minute), history[0].BarTime)
	assert.Equal(t, base.Add(4*time.Minute), history[2].BarTime)
}

func TestStoreSweepUnconsumedExactlyOnce(t *testing.T) {
	store := NewStore(10)
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	store.Append(sig("GBPUSD", base.Add(time.Minute)))
	store.Append(sig("EURUSD", base))
	store.Append(sig("EURUSD", base.Add(time.Minute)))

	swept := store.SweepUnconsumed()
	require.Len(t, swept, 3)
	// Ordered by bar time, then symbol.
	assert.Equal(t, "EURUSD", swept[0].Symbol)
	assert.Equal(t, base, swept[0].BarTime)
	assert.Equal(t, "EURUSD", swept[1].Symbol)
	assert.Equal(t, "GBPUSD", swept[2].Symbol)
	for _, s := range swept {
		assert.True(t, s.Consumed)
	}

	assert.Empty(t, store.SweepUnconsumed(), "a second sweep must observe nothing")

	// A later signal is swept by the next cycle only.
	store.Append(sig("EURUSD", base.Add(2*time.Minute)))
	again := store.SweepUnconsumed()
	require.Len(t, again, 1)
	assert.Equal(t, base.Add(2*time.Minute), again[0].BarTime)
}

func TestStoreLatest(t *testing.T) {
	store := NewStore(10)
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, ok := store.Latest("EURUSD")
	assert.False(t, ok)

	store.Append(sig("EURUSD", base))
	store.Append(sig("EURUSD", base.Add(time.Minute)))

	latest, ok := store.Latest("EURUSD")
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Minute), latest.BarTime)
}

func TestStoreConcurrentAppendAndSweep(t *testing.T) {
	store := NewStore(100)
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	total := 0
	var totalMu sync.Mutex

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			symbol := fmt.Sprintf("SYM%d", w)
			for i := 0; i < 50; i++ {
				store.Append(sig(symbol, base.Add(time.Duration(i)*time.Minute)))
			}
		}(w)
	}
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				swept := store.SweepUnconsumed()
				totalMu.Lock()
				total += len(swept)
				totalMu.Unlock()
			}
		}()
	}
	wg.Wait()

	total += len(store.SweepUnconsumed())
	assert.Equal(t, 8*50, total, "every signal is swept exactly once across all sweeps")
}
