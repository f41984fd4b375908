package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"candlesync/config"
	"candlesync/internal/candle"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// restServer serves flat one-minute klines for any requested range.
func restServer(t *testing.T) *httptest.Server {
	return flakyRESTServer(t, &atomic.Int32{})
}

// flakyRESTServer answers 500 while failures is positive, decrementing it.
func flakyRESTServer(t *testing.T, failures *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":-1000,"msg":"unknown error"}`))
			return
		}
		q := r.URL.Query()
		start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))

		rows := [][]any{}
		for ot := (start + 59_999) / 60_000 * 60_000; ot <= end && len(rows) < limit; ot += 60_000 {
			rows = append(rows, []any{ot, "100", "101", "99", "100", "1", ot + 59_999, "100", 1, "0.5", "50", "0"})
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

// wsServer accepts the subscription and pushes one live kline for the current minute.
func wsServer(t *testing.T, subscribed chan<- []string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req struct {
			Params []string `json:"params"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- req.Params

		open := time.Now().Truncate(time.Minute).UnixMilli()
		frame := fmt.Sprintf(`{"e":"kline","E":%d,"s":"BTCUSDT","k":{"t":%d,"i":"1m","o":"100","h":"4300","l":"99","c":"4242","v":"3","x":false}}`,
			time.Now().UnixMilli(), open)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func testConfig(restURL, wsURL string) *config.Config {
	return &config.Config{
		Symbol: "BTCUSDT",
		Binance: config.BinanceConfig{
			REST: config.RESTConfig{BaseURL: restURL, Timeout: 5 * time.Second, MaxRetries: 1},
			WS:   config.WSConfig{URL: wsURL, ReconnectDelay: 50 * time.Millisecond},
		},
		Engine: config.EngineConfig{
			Timeframes:    []string{"1m"},
			EvictionBound: 50,
			QueueSize:     64,
			VolumeMode:    "cumulative",
		},
		Backfill: config.BackfillConfig{Enabled: true},
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0", DisplayTimezone: "UTC", PushBuffer: 8},
		Log:      config.LogConfig{Level: "info", Environment: "dev"},
	}
}

func TestCollectorEndToEnd(t *testing.T) {
	rest := restServer(t)
	defer rest.Close()
	subscribed := make(chan []string, 4)
	ws := wsServer(t, subscribed)
	defer ws.Close()

	cfg := testConfig(rest.URL, "ws"+strings.TrimPrefix(ws.URL, "http"))
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case params := <-subscribed:
		assert.Equal(t, []string{"btcusdt@ticker", "btcusdt@kline_1m"}, params)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}

	require.Eventually(t, func() bool {
		snap, err := c.Engine().Snapshot(candle.Timeframe1Min)
		if err != nil {
			return false
		}
		for _, cd := range snap.Candles {
			if cd.Close == 4242 {
				return snap.Len() > 1
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	snap, err := c.Engine().Snapshot(candle.Timeframe1Min)
	require.NoError(t, err)
	assert.LessOrEqual(t, snap.Len(), 50)
	for i := 1; i < snap.Len(); i++ {
		assert.Less(t, snap.Candles[i-1].Time, snap.Candles[i].Time)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCollectorWithoutBackfillSeedsEmpty(t *testing.T) {
	subscribed := make(chan []string, 4)
	ws := wsServer(t, subscribed)
	defer ws.Close()

	cfg := testConfig("http://127.0.0.1:1", "ws"+strings.TrimPrefix(ws.URL, "http"))
	cfg.Backfill.Enabled = false
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap, err := c.Engine().Snapshot(candle.Timeframe1Min)
		return err == nil && snap.Len() == 1 && snap.Candles[0].Close == 4242
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCollectorRetriesFailedBackfill(t *testing.T) {
	failures := &atomic.Int32{}
	failures.Store(4)
	rest := flakyRESTServer(t, failures)
	defer rest.Close()
	subscribed := make(chan []string, 4)
	ws := wsServer(t, subscribed)
	defer ws.Close()

	cfg := testConfig(rest.URL, "ws"+strings.TrimPrefix(ws.URL, "http"))
	cfg.Binance.REST.ErrorWait = time.Millisecond
	cfg.Backfill.RetryMin = 10 * time.Millisecond
	cfg.Backfill.RetryMax = 20 * time.Millisecond
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap, err := c.Engine().Snapshot(candle.Timeframe1Min)
		return err == nil && snap.Len() > 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Less(t, failures.Load(), int32(0))
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig("", "")
	cfg.Engine.Timeframes = []string{"1w"}
	_, err := New(cfg, zap.NewNop())
	assert.ErrorIs(t, err, candle.ErrUnknownTimeframe)
}
