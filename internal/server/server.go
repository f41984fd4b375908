// Package server exposes the engine over HTTP: snapshot and status queries,
// a history refresh and a WebSocket push stream per timeframe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"candlesync/internal/candle"
	"candlesync/internal/engine"
	"candlesync/internal/publisher"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultTimeframe is used when a request omits ?timeframe=.
const DefaultTimeframe = candle.Timeframe1Day

const (
	localTimeLayout = "02/01/2006 15:04:05"
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Source is the read side of the engine.
type Source interface {
	Symbol() string
	Timeframes() []candle.Timeframe
	Ticker() candle.Ticker
	Snapshot(tf candle.Timeframe) (engine.Snapshot, error)
	Stats(tf candle.Timeframe) (engine.Stats, error)
}

// Subscriber hands out push subscriptions.
type Subscriber interface {
	Subscribe(tf candle.Timeframe, buffer int) *publisher.Subscription
	Count(tf candle.Timeframe) int
}

// Refresher reloads history for a timeframe that has not been seeded yet.
// *backfill.Loader satisfies it.
type Refresher interface {
	Load(ctx context.Context, tf candle.Timeframe) error
}

type Options struct {
	Addr string
	// Location renders globalLastTimeLocal; nil means UTC.
	Location *time.Location
	// Buffer is the per-connection push buffer.
	Buffer int
	// Refresher serves /api/refresh; nil when backfill is disabled.
	Refresher Refresher
}

type Server struct {
	src      Source
	subs     Subscriber
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

func New(src Source, subs Subscriber, opts Options, logger *zap.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Buffer < 1 {
		opts.Buffer = publisher.DefaultBuffer
	}
	return &Server{
		src:    src,
		subs:   subs,
		opts:   opts,
		logger: logger.Named("server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/candles", s.handleCandles)
	mux.HandleFunc("GET /api/indicators", s.handleIndicators)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/refresh/{timeframe}", s.handleRefresh)
	mux.HandleFunc("POST /api/refresh/{timeframe}", s.handleRefresh)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// timeframe reads ?timeframe= and checks it against the engine's set.
func (s *Server) timeframe(r *http.Request) (candle.Timeframe, error) {
	raw := r.URL.Query().Get("timeframe")
	if raw == "" {
		return DefaultTimeframe, s.configured(DefaultTimeframe)
	}
	tf, err := candle.ParseTimeframe(raw)
	if err != nil {
		return "", err
	}
	return tf, s.configured(tf)
}

func (s *Server) configured(tf candle.Timeframe) error {
	_, err := s.src.Stats(tf)
	return err
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Success: false, Message: msg})
}
