package server

import (
	"errors"
	"net/http"
	"time"

	"candlesync/internal/candle"
	"candlesync/internal/engine"
	"candlesync/internal/indicator"

	"go.uber.org/zap"
)

type candlesResponse struct {
	Success             bool            `json:"success"`
	Symbol              string          `json:"symbol"`
	Timeframe           string          `json:"timeframe"`
	LastUpdated         time.Time       `json:"lastUpdated"`
	GlobalLastTime      int64           `json:"globalLastTime"`
	GlobalLastTimeLocal *string         `json:"globalLastTimeLocal"`
	GlobalLastPrice     float64         `json:"globalLastPrice"`
	TickerAdjusted      bool            `json:"tickerAdjusted"`
	Synthetic           bool            `json:"synthetic"`
	Candles             []candle.Candle `json:"candles"`
	Indicators          indicator.Set   `json:"indicators"`
	Count               int             `json:"count"`
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	tf, err := s.timeframe(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.src.Snapshot(tf)
	switch {
	case errors.Is(err, engine.ErrNotReady):
		s.writeError(w, http.StatusServiceUnavailable, "data not available yet for timeframe "+tf.String())
		return
	case err != nil:
		s.logger.Error("snapshot failed", zap.String("timeframe", tf.String()), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Without a ticker the newest candle stands in for the global clock.
	lastTime, lastPrice := snap.Ticker.Time, snap.Ticker.Price
	if !snap.Ticker.Valid() {
		tail := snap.Candles[snap.Len()-1]
		lastTime, lastPrice = tail.Time, tail.Close
	}

	s.writeJSON(w, http.StatusOK, candlesResponse{
		Success:             true,
		Symbol:              snap.Symbol,
		Timeframe:           tf.String(),
		LastUpdated:         s.now().UTC(),
		GlobalLastTime:      lastTime,
		GlobalLastTimeLocal: s.localTime(lastTime),
		GlobalLastPrice:     lastPrice,
		TickerAdjusted:      snap.TickerAdjusted,
		Synthetic:           snap.Synthetic,
		Candles:             snap.Candles,
		Indicators:          indicator.Compute(snap.Times(), snap.Closes()),
		Count:               snap.Len(),
	})
}

type indicatorsResponse struct {
	Success     bool          `json:"success"`
	Symbol      string        `json:"symbol"`
	Interval    string        `json:"interval"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Indicators  indicator.Set `json:"indicators"`
	Count       int           `json:"count"`
}

// handleIndicators serves the indicator set of the default timeframe for
// clients that predate /api/candles.
func (s *Server) handleIndicators(w http.ResponseWriter, _ *http.Request) {
	tf := DefaultTimeframe
	if err := s.configured(tf); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	snap, err := s.src.Snapshot(tf)
	switch {
	case errors.Is(err, engine.ErrNotReady):
		s.writeError(w, http.StatusServiceUnavailable, "data not available yet for timeframe "+tf.String())
		return
	case err != nil:
		s.logger.Error("snapshot failed", zap.String("timeframe", tf.String()), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, indicatorsResponse{
		Success:     true,
		Symbol:      snap.Symbol,
		Interval:    tf.String(),
		LastUpdated: s.now().UTC(),
		Indicators:  indicator.Compute(snap.Times(), snap.Closes()),
		Count:       snap.Len(),
	})
}

func (s *Server) localTime(ts int64) *string {
	if ts <= 0 {
		return nil
	}
	v := time.Unix(ts, 0).In(s.opts.Location).Format(localTimeLayout)
	return &v
}
