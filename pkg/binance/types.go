package binance

import "errors"

var (
	// ErrRateLimited is returned when the exchange rejects a request for weight exhaustion.
	ErrRateLimited = errors.New("binance: rate limited")
	// ErrRetriesExhausted is returned when a page still fails after the configured retries.
	ErrRetriesExhausted = errors.New("binance: retries exhausted")
)

// Kline is one historical kline with numeric fields. Times are unix milliseconds.
type Kline struct {
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// SubscribeRequest is the combined-stream subscription frame.
type SubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}
