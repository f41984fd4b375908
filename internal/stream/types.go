package stream

import "candlesync/internal/candle"

// Event type values carried in the "e" field of market stream payloads.
const (
	EventKline  = "kline"
	EventTicker = "24hrTicker"
)

// Ingester accepts normalized feed events. *engine.Engine satisfies it.
type Ingester interface {
	IngestKline(tf candle.Timeframe, ev candle.KlineEvent) error
	IngestTicker(ev candle.TickerEvent) error
}
