package memorystore

import (
	"sync"

	"candlesync/internal/candle"
)

// TickerState is the latest trade price shared by every timeframe. Its time
// never goes backwards.
type TickerState struct {
	mu sync.RWMutex
	t  candle.Ticker
}

func NewTickerState() *TickerState {
	return &TickerState{}
}

// Update stores t iff it is not older than the current value.
func (s *TickerState) Update(t candle.Ticker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Time < s.t.Time {
		return false
	}
	s.t = t
	return true
}

func (s *TickerState) Load() candle.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t
}
