package candle

import "errors"

var (
	ErrUnknownTimeframe = errors.New("unknown timeframe")
	ErrMalformedEvent   = errors.New("malformed feed event")
)
