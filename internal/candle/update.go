package candle

// Source names the feed that triggered an update.
type Source string

const (
	SourceKline  Source = "kline"
	SourceTicker Source = "ticker"
)

// Update is emitted after every event applied to a timeframe. Candle is the
// running candle after the merge.
type Update struct {
	Timeframe Timeframe
	Candle    Candle
	Slot      int64
	IsClosed  bool
	Source    Source
	Ticker    Ticker
}

// RolledOver is emitted when a later slot supersedes the running candle.
// Previous is final from this point on.
type RolledOver struct {
	Timeframe Timeframe
	Previous  Candle
	Next      Candle
	Ticker    Ticker
}
