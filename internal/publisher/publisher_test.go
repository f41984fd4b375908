package publisher

import (
	"errors"
	"testing"

	"candlesync/internal/candle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishFanOutPerTimeframe(t *testing.T) {
	p := New(zap.NewNop())
	a := p.Subscribe(candle.Timeframe1Min, 4)
	b := p.Subscribe(candle.Timeframe1Min, 4)
	other := p.Subscribe(candle.Timeframe5Min, 4)

	p.EmitUpdate(candle.Update{
		Timeframe: candle.Timeframe1Min,
		Candle:    candle.Candle{Time: 60, Open: 100, High: 103, Low: 99, Close: 103},
		Slot:      1,
		Source:    candle.SourceTicker,
		Ticker:    candle.Ticker{Price: 103, Time: 70},
	})

	for _, s := range []*Subscription{a, b} {
		require.Len(t, s.C(), 1)
		m := <-s.C()
		assert.Equal(t, TypeCandleUpdate, m.Type)
		assert.Equal(t, "1m", m.Timeframe)
		assert.Equal(t, 103.0, m.Close)
		assert.True(t, m.IsTickerUpdate)
		assert.False(t, m.IsClosed)
		assert.Equal(t, int64(70), m.GlobalLastTime)
		assert.Equal(t, 103.0, m.GlobalLastPrice)
	}
	assert.Len(t, other.C(), 0)
}

func TestPublishPrunesBlockedSubscriber(t *testing.T) {
	p := New(zap.NewNop())
	slow := p.Subscribe(candle.Timeframe1Min, 1)
	fast := p.Subscribe(candle.Timeframe1Min, 8)

	for i := 0; i < 3; i++ {
		p.Publish(candle.Timeframe1Min, Message{Type: TypeCandleUpdate, Time: int64(i)})
	}

	assert.Equal(t, 1, p.Count(candle.Timeframe1Min))
	assert.Len(t, fast.C(), 3)

	// the pruned channel drains its buffered message and then reports closed
	_, ok := <-slow.C()
	assert.True(t, ok)
	_, ok = <-slow.C()
	assert.False(t, ok)

	slow.Unsubscribe()
}

func TestPublishPrunesFailingSink(t *testing.T) {
	p := New(zap.NewNop())
	calls := 0
	p.AddSink(candle.Timeframe1Hour, SinkFunc(func(Message) error {
		calls++
		return errors.New("gone")
	}))
	got := 0
	remove := p.AddSink(candle.Timeframe1Hour, SinkFunc(func(Message) error {
		got++
		return nil
	}))

	assert.Equal(t, 1, p.Publish(candle.Timeframe1Hour, Message{}))
	assert.Equal(t, 1, p.Publish(candle.Timeframe1Hour, Message{}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, got)

	remove()
	assert.Equal(t, 0, p.Count(candle.Timeframe1Hour))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	p := New(zap.NewNop())
	s := p.Subscribe(candle.Timeframe1Min, 0)
	s.Unsubscribe()
	s.Unsubscribe()

	_, ok := <-s.C()
	assert.False(t, ok)
	assert.Equal(t, 0, p.Publish(candle.Timeframe1Min, Message{}))
}

func TestEmitRolloverMarksPreviousClosed(t *testing.T) {
	p := New(zap.NewNop())
	s := p.Subscribe(candle.Timeframe1Min, 2)

	p.EmitRollover(candle.RolledOver{
		Timeframe: candle.Timeframe1Min,
		Previous:  candle.Candle{Time: 60, Open: 100, High: 103, Low: 99, Close: 103},
		Next:      candle.Candle{Time: 120, Open: 103, High: 103, Low: 90, Close: 90},
	})

	m := <-s.C()
	assert.Equal(t, TypeCandleClosed, m.Type)
	assert.True(t, m.IsClosed)
	assert.Equal(t, int64(60), m.Time)
	assert.Equal(t, int64(1), m.Slot)
	assert.Zero(t, m.GlobalLastTime)
	assert.Equal(t, candle.Candle{Time: 60, Open: 100, High: 103, Low: 99, Close: 103}, m.Candle())
}
