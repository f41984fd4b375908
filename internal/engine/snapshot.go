package engine

import (
	"candlesync/internal/candle"
)

// Snapshot is a read view of one timeframe, reconciled with the global
// ticker. It never aliases engine state.
type Snapshot struct {
	Symbol    string
	Timeframe candle.Timeframe
	Candles   []candle.Candle
	Ticker    candle.Ticker

	// TickerAdjusted: the last candle is a clone of the stored tail with the
	// ticker price folded in.
	TickerAdjusted bool
	// Synthetic: the last candle was built from the ticker for a slot the
	// store has not opened yet. It is not written back.
	Synthetic bool
}

// Snapshot returns the cached candles of tf. It fails with ErrNotReady until
// the timeframe has been seeded and holds at least one candle.
func (e *Engine) Snapshot(tf candle.Timeframe) (Snapshot, error) {
	w, err := e.worker(tf)
	if err != nil {
		return Snapshot{}, err
	}
	candles, seeded := w.store.Snapshot()
	if !seeded || len(candles) == 0 {
		return Snapshot{}, ErrNotReady
	}

	snap := Snapshot{
		Symbol:    e.opts.Symbol,
		Timeframe: tf,
		Candles:   candles,
		Ticker:    e.tickers.Load(),
	}
	snap.Candles, snap.TickerAdjusted, snap.Synthetic = reconcile(candles, snap.Ticker, tf)
	return snap, nil
}

// reconcile folds the ticker into a copy of the candle slice. candles must be
// a private copy: its tail may be overwritten.
func reconcile(candles []candle.Candle, t candle.Ticker, tf candle.Timeframe) ([]candle.Candle, bool, bool) {
	if !t.Valid() || len(candles) == 0 {
		return candles, false, false
	}
	last := len(candles) - 1
	tail := candles[last]
	if t.Time < tail.Time {
		return candles, false, false
	}

	tickSlot := candle.SlotOf(t.Time, tf)
	tailSlot := candle.SlotOf(tail.Time, tf)
	switch {
	case tickSlot == tailSlot:
		candles[last] = candle.MergeTicker(tail, t.Price)
		return candles, true, false
	case tickSlot > tailSlot:
		next := candle.RollTicker(tail, candle.SlotStart(tickSlot, tf), t.Price)
		return append(candles, next), false, true
	}
	return candles, false, false
}

func (s Snapshot) Len() int {
	return len(s.Candles)
}

func (s Snapshot) Times() []int64 {
	out := make([]int64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Time
	}
	return out
}

func (s Snapshot) Closes() []float64 {
	return s.series(func(c candle.Candle) float64 { return c.Close })
}

func (s Snapshot) Highs() []float64 {
	return s.series(func(c candle.Candle) float64 { return c.High })
}

func (s Snapshot) Lows() []float64 {
	return s.series(func(c candle.Candle) float64 { return c.Low })
}

func (s Snapshot) series(pick func(candle.Candle) float64) []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = pick(c)
	}
	return out
}
