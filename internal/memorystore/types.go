package memorystore

import "errors"

var (
	ErrAlreadySeeded = errors.New("candle store already seeded")
	ErrOutOfOrder    = errors.New("candle is not after the store tail")
	ErrEmptyStore    = errors.New("candle store is empty")
)

// DefaultEvictionBound is the number of candles kept per timeframe.
const DefaultEvictionBound = 1000

// SeedResult describes what a Seed call did with the history it was given.
type SeedResult struct {
	Accepted   int  // history candles now in the store
	Misaligned int  // dropped: time not a multiple of the timeframe width
	Duplicates int  // dropped: same time as another history candle
	Overlap    int  // dropped: not older than the first live candle
	Merged     bool // live candles already existed
	Evicted    int  // removed from the head to respect the bound
}
