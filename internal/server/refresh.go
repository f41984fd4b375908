package server

import (
	"errors"
	"net/http"

	"candlesync/internal/candle"
	"candlesync/internal/memorystore"

	"go.uber.org/zap"
)

type refreshResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timeframe string `json:"timeframe"`
	Count     int    `json:"count"`
}

// handleRefresh retries the history load of a timeframe whose backfill
// failed. A timeframe that is already seeded is left alone.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.opts.Refresher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backfill is disabled")
		return
	}

	tf, err := candle.ParseTimeframe(r.PathValue("timeframe"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.src.Stats(tf)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if st.Ready {
		s.writeError(w, http.StatusConflict, memorystore.ErrAlreadySeeded.Error())
		return
	}

	err = s.opts.Refresher.Load(r.Context(), tf)
	switch {
	case errors.Is(err, memorystore.ErrAlreadySeeded):
		s.writeError(w, http.StatusConflict, memorystore.ErrAlreadySeeded.Error())
		return
	case err != nil:
		s.logger.Warn("refresh failed", zap.String("timeframe", tf.String()), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "failed to refresh timeframe "+tf.String())
		return
	}

	if st, err = s.src.Stats(tf); err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("timeframe refreshed", zap.String("timeframe", tf.String()), zap.Int("candles", st.Candles))
	s.writeJSON(w, http.StatusOK, refreshResponse{
		Success:   true,
		Message:   "timeframe " + tf.String() + " refreshed",
		Timeframe: tf.String(),
		Count:     st.Candles,
	})
}
