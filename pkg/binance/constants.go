package binance

import (
	"strings"
	"time"
)

const (
	DefaultRESTBaseURL = "https://api.binance.com"
	DefaultWSURL       = "wss://stream.binance.com:9443/ws"

	// MaxKlinesPerPage is the page size used for historical kline requests.
	MaxKlinesPerPage = 1000

	DefaultPageDelay      = 300 * time.Millisecond
	DefaultRateLimitWait  = 2 * time.Second
	DefaultErrorWait      = time.Second
	DefaultMaxRetries     = 5
	DefaultReconnectDelay = 5 * time.Second

	// codeTooManyRequests is the API error code for request weight exhaustion.
	codeTooManyRequests = -1003
)

// TickerStream returns the 24h rolling ticker stream name for symbol.
func TickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@ticker"
}

// KlineStream returns the kline stream name for symbol and interval (e.g. "1m").
func KlineStream(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + interval
}

// Streams lists the ticker stream followed by one kline stream per interval.
func Streams(symbol string, intervals []string) []string {
	out := make([]string, 0, len(intervals)+1)
	out = append(out, TickerStream(symbol))
	for _, iv := range intervals {
		out = append(out, KlineStream(symbol, iv))
	}
	return out
}
