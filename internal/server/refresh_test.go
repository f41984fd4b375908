package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"candlesync/internal/candle"
	"candlesync/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedingRefresher seeds three candles unless fail is set.
type seedingRefresher struct {
	eng   atomic.Pointer[engine.Engine]
	fail  atomic.Bool
	calls atomic.Int32
}

func (r *seedingRefresher) Load(ctx context.Context, tf candle.Timeframe) error {
	r.calls.Add(1)
	if r.fail.Load() {
		return errors.New("binance unreachable")
	}
	history := []candle.Candle{
		{Time: 0, Open: 1, High: 1, Low: 1, Close: 1},
		{Time: tf.Seconds(), Open: 1, High: 2, Low: 1, Close: 2},
		{Time: 2 * tf.Seconds(), Open: 2, High: 3, Low: 2, Close: 3},
	}
	_, err := r.eng.Load().Seed(ctx, tf, history)
	return err
}

func TestRefresh(t *testing.T) {
	ref := &seedingRefresher{}
	ref.fail.Store(true)
	f := newFixtureWith(t, Options{Buffer: 8, Refresher: ref}, candle.Timeframe1Min, candle.Timeframe1Hour)
	ref.eng.Store(f.eng)

	resp, body := f.post(t, "/api/refresh/1m")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	_, err := f.eng.Snapshot(candle.Timeframe1Min)
	assert.ErrorIs(t, err, engine.ErrNotReady)

	ref.fail.Store(false)
	resp, body = f.post(t, "/api/refresh/1m")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "1m", body["timeframe"])
	assert.EqualValues(t, 3, body["count"])

	resp, _ = f.get(t, "/api/candles?timeframe=1m")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Seeded timeframes are refused without another fetch.
	resp, body = f.post(t, "/api/refresh/1m")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "candle store already seeded", body["message"])
	assert.EqualValues(t, 2, ref.calls.Load())

	// GET is accepted as well.
	resp, _ = f.get(t, "/api/refresh/1h")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshErrors(t *testing.T) {
	f := newFixture(t)
	resp, body := f.post(t, "/api/refresh/1m")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "backfill is disabled", body["message"])

	ref := &seedingRefresher{}
	f = newFixtureWith(t, Options{Refresher: ref}, candle.Timeframe1Min)
	ref.eng.Store(f.eng)

	resp, _ = f.post(t, "/api/refresh/2w")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.post(t, "/api/refresh/5m")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, ref.calls.Load())
}

func TestIndicators(t *testing.T) {
	f := newFixtureWith(t, Options{}, candle.Timeframe1Min, candle.Timeframe1Day)

	resp, _ := f.get(t, "/api/indicators")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	f.seed(t, candle.Timeframe1Day, 30)
	resp, body := f.get(t, "/api/indicators")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1d", body["interval"])
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.EqualValues(t, 30, body["count"])
	ind := body["indicators"].(map[string]any)
	assert.Len(t, ind["sma5"], 26)
	assert.Len(t, ind["rsi"], 16)

	// Without a daily timeframe there is nothing to serve.
	resp, _ = newFixture(t).get(t, "/api/indicators")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
