package postgres_test

import (
	"context"
	"testing"
	"time"

	"candlesync/internal/candle"
	"candlesync/pkg/storage/postgres"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stored reads back the archived candles of one symbol, oldest first.
func stored(t *testing.T, client *postgres.PostgresClient, symbol string) []postgres.CandleRecord {
	t.Helper()
	var recs []postgres.CandleRecord
	require.NoError(t, client.DB.Where("symbol = ?", symbol).Order("open_time").Find(&recs).Error)
	return recs
}

func TestToCandleRecord(t *testing.T) {
	c := candle.Candle{Time: 1_700_000_040, Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 7}
	rec := postgres.ToCandleRecord("BTCUSDT", candle.Timeframe1Min, c)

	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, "1m", rec.Timeframe)
	assert.Equal(t, time.Unix(1_700_000_040, 0).UTC(), rec.OpenTime)
	assert.Equal(t, c, rec.Candle())
}

// go test -v --run TestCandleCRUD
func TestCandleCRUD(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	symbol := "TEST" + time.Now().Format("150405.000000")
	base := time.Now().UTC().Truncate(time.Minute)

	rec := postgres.ToCandleRecord(symbol, candle.Timeframe1Min,
		candle.Candle{Time: base.Unix(), Open: 31400, High: 31600, Low: 31300, Close: 31500, Volume: 123.45})
	require.NoError(t, client.UpsertCandle(ctx, rec))

	// Same key again overwrites prices instead of failing.
	rec2 := postgres.ToCandleRecord(symbol, candle.Timeframe1Min,
		candle.Candle{Time: base.Unix(), Open: 31400, High: 31700, Low: 31300, Close: 31650, Volume: 130})
	require.NoError(t, client.UpsertCandle(ctx, rec2))

	list := stored(t, client, symbol)
	require.Len(t, list, 1)
	assert.Equal(t, 31650.0, list[0].Close)
	assert.Equal(t, 130.0, list[0].Volume)

	old := postgres.ToCandleRecord(symbol, candle.Timeframe1Min,
		candle.Candle{Time: base.Add(-48 * time.Hour).Unix(), Open: 1, High: 1, Low: 1, Close: 1})
	require.NoError(t, client.UpsertCandle(ctx, old))

	list = stored(t, client, symbol)
	require.Len(t, list, 2)
	assert.True(t, list[0].OpenTime.Before(list[1].OpenTime))

	deleted, err := client.DeleteOldCandles(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	assert.Len(t, stored(t, client, symbol), 1)
}
