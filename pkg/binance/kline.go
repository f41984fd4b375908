package binance

import (
	"fmt"
	"strconv"

	gobinance "github.com/adshao/go-binance/v2"
)

// ParseKline converts a go-binance kline into numeric form.
func ParseKline(k *gobinance.Kline) (Kline, error) {
	if k == nil {
		return Kline{}, fmt.Errorf("nil kline")
	}
	out := Kline{OpenTime: k.OpenTime, CloseTime: k.CloseTime}

	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, &out.Open},
		{"high", k.High, &out.High},
		{"low", k.Low, &out.Low},
		{"close", k.Close, &out.Close},
		{"volume", k.Volume, &out.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return Kline{}, fmt.Errorf("parse %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return out, nil
}

// ParseKlineList converts a page of klines, skipping rows that fail to parse.
func ParseKlineList(raw []*gobinance.Kline) []Kline {
	out := make([]Kline, 0, len(raw))
	for _, k := range raw {
		parsed, err := ParseKline(k)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out
}
