package memorystore

import (
	"fmt"
	"sort"
	"sync"

	"candlesync/internal/candle"
)

// CandleStore is the ordered cache of candles for one timeframe. The last
// element is the running candle; everything before it is closed.
//
// One goroutine mutates a store. Readers get copies under the read lock, so a
// snapshot never aliases the backing array.
type CandleStore struct {
	tf    candle.Timeframe
	bound int

	mu         sync.RWMutex
	candles    []candle.Candle
	lastUpdate int64 // event time of the last write to the running candle
	seeded     bool
}

func NewCandleStore(tf candle.Timeframe, bound int) *CandleStore {
	if bound < 1 {
		bound = DefaultEvictionBound
	}
	return &CandleStore{
		tf:      tf,
		bound:   bound,
		candles: make([]candle.Candle, 0, bound+1),
	}
}

func (s *CandleStore) Timeframe() candle.Timeframe {
	return s.tf
}

func (s *CandleStore) Bound() int {
	return s.bound
}

// Tail returns the running candle and the time it was last written.
func (s *CandleStore) Tail() (candle.Candle, int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.candles) == 0 {
		return candle.Candle{}, 0, false
	}
	return s.candles[len(s.candles)-1], s.lastUpdate, true
}

// Append adds c as the new running candle and evicts from the head until the
// store is back within its bound. It returns the number of evicted candles.
func (s *CandleStore) Append(c candle.Candle, updatedAt int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.candles); n > 0 && c.Time <= s.candles[n-1].Time {
		return 0, fmt.Errorf("%w: %d <= %d", ErrOutOfOrder, c.Time, s.candles[n-1].Time)
	}
	s.candles = append(s.candles, c)
	s.lastUpdate = updatedAt
	return s.evictLocked(), nil
}

// ReplaceTail overwrites the running candle in place.
func (s *CandleStore) ReplaceTail(c candle.Candle, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.candles)
	if n == 0 {
		return ErrEmptyStore
	}
	if s.candles[n-1].Time != c.Time {
		return fmt.Errorf("%w: tail %d, got %d", ErrOutOfOrder, s.candles[n-1].Time, c.Time)
	}
	s.candles[n-1] = c
	if updatedAt > s.lastUpdate {
		s.lastUpdate = updatedAt
	}
	return nil
}

// Seed loads closed history. History older than any live candle already in
// the store is prepended; the rest is dropped so live data wins. A store can
// be seeded once.
func (s *CandleStore) Seed(history []candle.Candle) (SeedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SeedResult
	if s.seeded {
		return res, ErrAlreadySeeded
	}

	clean := normalize(history, s.tf, &res)
	if len(s.candles) > 0 {
		res.Merged = true
		first := s.candles[0].Time
		keep := sort.Search(len(clean), func(i int) bool { return clean[i].Time >= first })
		res.Overlap = len(clean) - keep
		merged := make([]candle.Candle, 0, keep+len(s.candles))
		merged = append(merged, clean[:keep]...)
		s.candles = append(merged, s.candles...)
		res.Accepted = keep
	} else {
		s.candles = clean
		res.Accepted = len(clean)
		if len(clean) > 0 {
			s.lastUpdate = clean[len(clean)-1].Time
		}
	}
	res.Evicted = s.evictLocked()
	s.seeded = true
	return res, nil
}

// Snapshot returns a copy of the cached candles and whether the store has
// been seeded.
func (s *CandleStore) Snapshot() ([]candle.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make([]candle.Candle, len(s.candles))
	copy(cp, s.candles)
	return cp, s.seeded
}

func (s *CandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

func (s *CandleStore) Seeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seeded
}

// evictLocked drops the oldest candles beyond the bound. The tail is never
// evicted because bound >= 1.
func (s *CandleStore) evictLocked() int {
	excess := len(s.candles) - s.bound
	if excess <= 0 {
		return 0
	}
	n := copy(s.candles, s.candles[excess:])
	clear(s.candles[n:])
	s.candles = s.candles[:n]
	return excess
}

// normalize sorts history by time, keeps the last of any duplicates and drops
// candles whose time is not a slot start.
func normalize(history []candle.Candle, tf candle.Timeframe, res *SeedResult) []candle.Candle {
	out := make([]candle.Candle, 0, len(history))
	for _, c := range history {
		if candle.Align(c.Time, tf) != c.Time {
			res.Misaligned++
			continue
		}
		out = append(out, c.Clamp())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	dedup := out[:0]
	for i, c := range out {
		if i+1 < len(out) && out[i+1].Time == c.Time {
			res.Duplicates++
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}
