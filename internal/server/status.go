package server

import (
	"net/http"

	"candlesync/internal/candle"
	"candlesync/internal/engine"
)

type timeframeStatus struct {
	engine.Stats
	Subscribers int `json:"subscribers"`
}

type statusResponse struct {
	Success    bool              `json:"success"`
	Symbol     string            `json:"symbol"`
	Ticker     candle.Ticker     `json:"ticker"`
	Timeframes []timeframeStatus `json:"timeframes"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Success: true,
		Symbol:  s.src.Symbol(),
		Ticker:  s.src.Ticker(),
	}
	for _, tf := range s.src.Timeframes() {
		st, err := s.src.Stats(tf)
		if err != nil {
			continue
		}
		resp.Timeframes = append(resp.Timeframes, timeframeStatus{Stats: st, Subscribers: s.subs.Count(tf)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}
