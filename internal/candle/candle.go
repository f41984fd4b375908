package candle

// Candle is an aggregated OHLCV bar. Time is the slot start in unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Clamp widens High and Low so that Low <= Open, Close <= High holds.
func (c Candle) Clamp() Candle {
	c.High = max(c.High, c.Open, c.Close)
	c.Low = min(c.Low, c.Open, c.Close)
	return c
}

// Bounded reports whether the OHLC invariant holds.
func (c Candle) Bounded() bool {
	return c.Low <= c.Open && c.Low <= c.Close && c.Open <= c.High && c.Close <= c.High
}
