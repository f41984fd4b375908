package candle

import (
	"fmt"
	"math"
)

// KlineEvent is a normalized update from the kline feed.
// Time is any instant inside the bar, usually its open time, in unix seconds.
// EventTime is when the exchange emitted the update; zero when unknown.
type KlineEvent struct {
	Symbol    string
	Time      int64
	EventTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsClosed  bool
}

// TickerEvent is a normalized last-trade update from the ticker feed.
type TickerEvent struct {
	Symbol string
	Time   int64
	Price  float64
}

// Validate rejects events with missing or non-finite numeric fields.
// Feed adapters mark a missing field with NaN.
func (e KlineEvent) Validate() error {
	if e.Time <= 0 {
		return fmt.Errorf("%w: kline time %d", ErrMalformedEvent, e.Time)
	}
	prices := [...]struct {
		name string
		v    float64
	}{{"open", e.Open}, {"high", e.High}, {"low", e.Low}, {"close", e.Close}}
	for _, p := range prices {
		if !validPrice(p.v) {
			return fmt.Errorf("%w: kline %s %v", ErrMalformedEvent, p.name, p.v)
		}
	}
	if math.IsNaN(e.Volume) || math.IsInf(e.Volume, 0) || e.Volume < 0 {
		return fmt.Errorf("%w: kline volume %v", ErrMalformedEvent, e.Volume)
	}
	return nil
}

// UpdatedAt is the instant the update describes, used to order it against
// ticker prices. Falls back to Time when the feed gave no event time.
func (e KlineEvent) UpdatedAt() int64 {
	if e.EventTime > e.Time {
		return e.EventTime
	}
	return e.Time
}

func (e TickerEvent) Validate() error {
	if e.Time <= 0 {
		return fmt.Errorf("%w: ticker time %d", ErrMalformedEvent, e.Time)
	}
	if !validPrice(e.Price) {
		return fmt.Errorf("%w: ticker price %v", ErrMalformedEvent, e.Price)
	}
	return nil
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
