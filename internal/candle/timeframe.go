package candle

import (
	"fmt"
	"sort"
	"time"
)

// Timeframe identifies a fixed candle width, e.g. "1m" or "1h".
// Values double as the Binance kline interval string.
type Timeframe string

// TimeframeMeta holds the width of a timeframe in seconds.
type TimeframeMeta struct {
	APIValue string
	Seconds  int64
}

const (
	Timeframe1Min   Timeframe = "1m"
	Timeframe3Min   Timeframe = "3m"
	Timeframe5Min   Timeframe = "5m"
	Timeframe15Min  Timeframe = "15m"
	Timeframe30Min  Timeframe = "30m"
	Timeframe1Hour  Timeframe = "1h"
	Timeframe2Hour  Timeframe = "2h"
	Timeframe4Hour  Timeframe = "4h"
	Timeframe6Hour  Timeframe = "6h"
	Timeframe12Hour Timeframe = "12h"
	Timeframe1Day   Timeframe = "1d"
)

// Weekly and monthly bars are not epoch aligned on Binance, so floor(ts/width)
// would put them in the wrong bucket. They are left out on purpose.
var validTimeframes = map[Timeframe]TimeframeMeta{
	Timeframe1Min:   {APIValue: "1m", Seconds: 60},
	Timeframe3Min:   {APIValue: "3m", Seconds: 3 * 60},
	Timeframe5Min:   {APIValue: "5m", Seconds: 5 * 60},
	Timeframe15Min:  {APIValue: "15m", Seconds: 15 * 60},
	Timeframe30Min:  {APIValue: "30m", Seconds: 30 * 60},
	Timeframe1Hour:  {APIValue: "1h", Seconds: 3600},
	Timeframe2Hour:  {APIValue: "2h", Seconds: 2 * 3600},
	Timeframe4Hour:  {APIValue: "4h", Seconds: 4 * 3600},
	Timeframe6Hour:  {APIValue: "6h", Seconds: 6 * 3600},
	Timeframe12Hour: {APIValue: "12h", Seconds: 12 * 3600},
	Timeframe1Day:   {APIValue: "1d", Seconds: 86400},
}

// DefaultTimeframes are the timeframes served when none are configured.
var DefaultTimeframes = []Timeframe{Timeframe1Min, Timeframe5Min, Timeframe1Hour, Timeframe1Day}

// IsValid checks if the Timeframe is one of the predefined widths.
func (t Timeframe) IsValid() bool {
	_, ok := validTimeframes[t]
	return ok
}

// Seconds returns the width of the timeframe, or 0 for an unknown timeframe.
func (t Timeframe) Seconds() int64 {
	return validTimeframes[t].Seconds
}

func (t Timeframe) Duration() time.Duration {
	return time.Duration(t.Seconds()) * time.Second
}

func (t Timeframe) String() string {
	return string(t)
}

// ParseTimeframe parses a string such as "5m" into a valid Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// ParseTimeframes parses a list of timeframe strings, rejecting duplicates.
func ParseTimeframes(values []string) ([]Timeframe, error) {
	seen := make(map[Timeframe]bool, len(values))
	out := make([]Timeframe, 0, len(values))
	for _, v := range values {
		tf, err := ParseTimeframe(v)
		if err != nil {
			return nil, err
		}
		if seen[tf] {
			return nil, fmt.Errorf("duplicate timeframe %q", v)
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out, nil
}

// SortTimeframes orders timeframes from narrowest to widest.
func SortTimeframes(tfs []Timeframe) {
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Seconds() < tfs[j].Seconds() })
}
