package candle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectivePrice(t *testing.T) {
	open := KlineEvent{Time: 65, Open: 100, High: 102, Low: 99, Close: 101}
	closed := open
	closed.IsClosed = true
	slot := SlotOf(65, Timeframe1Min)

	tests := []struct {
		name       string
		event      KlineEvent
		ticker     Ticker
		lastUpdate int64
		want       float64
	}{
		{"no ticker", open, Ticker{}, 60, 101},
		{"fresh ticker wins", open, Ticker{Price: 103, Time: 70}, 65, 103},
		{"ticker older than last update", open, Ticker{Price: 103, Time: 62}, 65, 101},
		{"ticker in another slot", open, Ticker{Price: 103, Time: 130}, 65, 101},
		{"closed kline is trusted", closed, Ticker{Price: 103, Time: 70}, 65, 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectivePrice(tt.event, tt.ticker, tt.lastUpdate, slot, Timeframe1Min))
		})
	}
}

func TestMergeKlineVolumeModes(t *testing.T) {
	cur := Candle{Time: 60, Open: 100, High: 102, Low: 99, Close: 101, Volume: 5}
	e := KlineEvent{Time: 60, Open: 100, High: 104, Low: 98, Close: 103, Volume: 7}

	cum := MergeKline(cur, e, e.Close, VolumeCumulative)
	assert.Equal(t, Candle{Time: 60, Open: 100, High: 104, Low: 98, Close: 103, Volume: 7}, cum)

	inc := MergeKline(cur, e, e.Close, VolumeIncremental)
	assert.Equal(t, 12.0, inc.Volume)
}

func TestRollTickerClampsOpen(t *testing.T) {
	prev := Candle{Time: 60, Open: 100, High: 103, Low: 99, Close: 103}
	next := RollTicker(prev, 120, 90)
	assert.Equal(t, Candle{Time: 120, Open: 103, High: 103, Low: 90, Close: 90}, next)
}

func TestMergeNeverBreaksBounds(t *testing.T) {
	cur := Candle{Time: 0, Open: 100, High: 100, Low: 100, Close: 100}
	prices := []float64{101, 95, 120, 80, 100.5, 99.9, 130, 1}
	for i, p := range prices {
		if i%2 == 0 {
			cur = MergeTicker(cur, p)
		} else {
			// a source reporting an inconsistent bar must not leak through
			e := KlineEvent{Time: 1, Open: p, High: p - 1, Low: p + 1, Close: p, Volume: 1}
			cur = MergeKline(cur, e, p, VolumeIncremental)
		}
		assert.True(t, cur.Bounded(), "step %d: %+v", i, cur)
	}
	assert.Equal(t, 130.0, cur.High)
	assert.Equal(t, 1.0, cur.Low)
}

func TestOpenFromKline(t *testing.T) {
	e := KlineEvent{Time: 65, Open: 100, High: 102, Low: 99, Close: 101, Volume: 3}
	c := OpenFromKline(60, e, 104)
	assert.Equal(t, Candle{Time: 60, Open: 100, High: 104, Low: 99, Close: 104, Volume: 3}, c)
}

func TestEventValidate(t *testing.T) {
	good := KlineEvent{Time: 65, Open: 100, High: 102, Low: 99, Close: 101}
	assert.NoError(t, good.Validate())

	bad := good
	bad.High = math.NaN()
	assert.ErrorIs(t, bad.Validate(), ErrMalformedEvent)

	bad = good
	bad.Time = 0
	assert.ErrorIs(t, bad.Validate(), ErrMalformedEvent)

	bad = good
	bad.Volume = -1
	assert.ErrorIs(t, bad.Validate(), ErrMalformedEvent)

	assert.NoError(t, TickerEvent{Time: 70, Price: 103}.Validate())
	assert.ErrorIs(t, TickerEvent{Time: 70, Price: math.Inf(1)}.Validate(), ErrMalformedEvent)
	assert.ErrorIs(t, TickerEvent{Time: 70}.Validate(), ErrMalformedEvent)
}

func TestKlineUpdatedAt(t *testing.T) {
	assert.Equal(t, int64(80), KlineEvent{Time: 60, EventTime: 80}.UpdatedAt())
	assert.Equal(t, int64(60), KlineEvent{Time: 60}.UpdatedAt())
}
