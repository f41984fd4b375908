package stream

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"candlesync/internal/candle"
	"candlesync/internal/engine"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// MakeMessageHandler returns a function that parses raw market stream frames
// for symbol and forwards kline and ticker events to the ingester.
// Frames for other symbols, subscription acks and unknown event types are ignored.
func MakeMessageHandler(logger *zap.Logger, symbol string, in Ingester) func(msg []byte) {
	logger = logger.Named("stream")
	symbol = strings.ToUpper(symbol)

	return func(msg []byte) {
		if !gjson.ValidBytes(msg) {
			logger.Warn("invalid json frame", zap.Int("bytes", len(msg)))
			return
		}

		payload := gjson.ParseBytes(msg)
		// Combined stream frames wrap the event in "data".
		if data := payload.Get("data"); data.IsObject() {
			payload = data
		}

		if s := payload.Get("s"); s.Exists() && !strings.EqualFold(s.String(), symbol) {
			return
		}

		switch payload.Get("e").String() {
		case EventKline:
			tf, ev, err := ParseKline(payload)
			if err != nil {
				logger.Warn("failed to parse kline payload", zap.Error(err))
				return
			}
			ev.Symbol = symbol
			if err := in.IngestKline(tf, ev); err != nil {
				logger.Debug("kline not ingested", zap.String("timeframe", tf.String()), zap.Error(err))
			}
		case EventTicker:
			ev := ParseTicker(payload)
			ev.Symbol = symbol
			if err := in.IngestTicker(ev); err != nil && !errors.Is(err, engine.ErrStaleTicker) {
				logger.Debug("ticker not ingested", zap.Error(err))
			}
		}
	}
}

// ParseKline extracts the timeframe and kline event from a kline payload.
// Missing numeric fields come back as NaN so validation rejects the event.
func ParseKline(payload gjson.Result) (candle.Timeframe, candle.KlineEvent, error) {
	k := payload.Get("k")
	tf, err := candle.ParseTimeframe(k.Get("i").String())
	if err != nil {
		return "", candle.KlineEvent{}, err
	}

	return tf, candle.KlineEvent{
		Time:      millisToSeconds(k.Get("t")),
		EventTime: millisToSeconds(payload.Get("E")),
		Open:      number(k.Get("o")),
		High:      number(k.Get("h")),
		Low:       number(k.Get("l")),
		Close:     number(k.Get("c")),
		Volume:    number(k.Get("v")),
		IsClosed:  k.Get("x").Bool(),
	}, nil
}

// ParseTicker extracts the last price and event time from a 24h ticker payload.
func ParseTicker(payload gjson.Result) candle.TickerEvent {
	return candle.TickerEvent{
		Time:  millisToSeconds(payload.Get("E")),
		Price: number(payload.Get("c")),
	}
}

// number reads a decimal that the exchange may send as a string or a number.
func number(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Num
	case gjson.String:
		v, err := strconv.ParseFloat(r.Str, 64)
		if err != nil {
			return math.NaN()
		}
		return v
	default:
		return math.NaN()
	}
}

func millisToSeconds(r gjson.Result) int64 {
	if r.Type != gjson.Number {
		return 0
	}
	return r.Int() / 1000
}
