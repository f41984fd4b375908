package indicator

// Set is the default indicator bundle served next to a candle snapshot.
type Set struct {
	SMA5  []Point `json:"sma5"`
	SMA20 []Point `json:"sma20"`
	EMA20 []Point `json:"ema20"`
	RSI14 []Point `json:"rsi"`
}

// Compute recomputes the whole bundle from a snapshot's times and closes.
func Compute(times []int64, closes []float64) Set {
	return Set{
		SMA5:  Join(times, SMA(closes, 5)),
		SMA20: Join(times, SMA(closes, 20)),
		EMA20: Join(times, EMA(closes, 20)),
		RSI14: Join(times, RSI(closes, 14)),
	}
}
