package monitor

import (
	"sort"
	"sync"

	"levelwatch/internal/domain"
)

const defaultHistoryCapacity = 20

// Store is the shared, bounded per-symbol signal history. Symbol workers
// append under concurrent access and the consolidator sweeps unconsumed
// entries; one mutex guards the whole store. Write frequency is at most one
// signal per symbol per bar close, so coarse locking is fine.
type Store struct {
	mu       sync.Mutex
	capacity int
	signals  map[string][]*domain.Signal
}

// NewStore creates a signal store holding up to capacity signals per symbol.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &Store{
		capacity: capacity,
		signals:  make(map[string][]*domain.Signal),
	}
}

// Append adds a signal to its symbol's history, evicting the oldest entry
// when the capacity is exceeded. It returns false without storing when a
// signal for the same (symbol, bar time) pair already exists, so a re-polled
// bar close never produces a duplicate.
func (s *Store) Append(sig domain.Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.signals[sig.Symbol]
	for _, existing := range history {
		if existing.BarTime.Equal(sig.BarTime) {
			return false
		}
	}

	history = append(history, &sig)
	if len(history) > s.capacity {
		history = history[len(history)-s.capacity:]
	}
	s.signals[sig.Symbol] = history
	return true
}

// SweepUnconsumed flips every unconsumed signal to consumed and returns
// copies of them, ordered by bar time then symbol. The flip and the copy
// happen under one lock acquisition so a sweep observes each signal exactly
// once.
func (s *Store) SweepUnconsumed() []domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []domain.Signal
	for _, history := range s.signals {
		for _, sig := range history {
			if !sig.Consumed {
				sig.Consumed = true
				swept = append(swept, *sig)
			}
		}
	}

	sort.Slice(swept, func(i, j int) bool {
		if !swept[i].BarTime.Equal(swept[j].BarTime) {
			return swept[i].BarTime.Before(swept[j].BarTime)
		}
		return swept[i].Symbol < swept[j].Symbol
	})
	return swept
}

// Latest returns a copy of the most recent signal for a symbol.
func (s *Store) Latest(symbol string) (domain.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.signals[symbol]
	if len(history) == 0 {
		return domain.Signal{}, false
	}
	return *history[len(history)-1], true
}

// Snapshot returns a copy of every symbol's history, oldest first.
func (s *Store) Snapshot() map[string][]domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]domain.Signal, len(s.signals))
	for symbol, history := range s.signals {
		copies := make([]domain.Signal, len(history))
		for i, sig := range history {
			copies[i] = *sig
		}
		out[symbol] = copies
	}
	return out
}
