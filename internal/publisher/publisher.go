package publisher

import (
	"errors"
	"sync"

	"candlesync/internal/candle"

	"go.uber.org/zap"
)

var (
	ErrSinkFull   = errors.New("subscriber buffer full")
	ErrSinkClosed = errors.New("subscriber closed")
)

// DefaultBuffer is the channel capacity of a subscription.
const DefaultBuffer = 64

// Sink receives messages for one timeframe. Deliver is called with the
// timeframe's lock held and must not block; any error prunes the sink.
type Sink interface {
	Deliver(Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Message) error

func (f SinkFunc) Deliver(m Message) error { return f(m) }

// Publisher fans update events out to per-timeframe sink sets. Delivery is
// best effort: a sink that cannot take a message is dropped without
// affecting the others.
type Publisher struct {
	logger *zap.Logger

	globalMu sync.RWMutex
	sets     map[candle.Timeframe]*sinkSet
}

type sinkSet struct {
	mu     sync.Mutex
	sinks  map[uint64]Sink
	nextID uint64
}

func New(logger *zap.Logger) *Publisher {
	return &Publisher{
		logger: logger.Named("publisher"),
		sets:   make(map[candle.Timeframe]*sinkSet),
	}
}

// EmitUpdate publishes the running candle after an applied event.
func (p *Publisher) EmitUpdate(u candle.Update) {
	m := newMessage(TypeCandleUpdate, u.Timeframe, u.Candle, u.Slot, u.Ticker)
	m.IsClosed = u.IsClosed
	m.IsTickerUpdate = u.Source == candle.SourceTicker
	p.Publish(u.Timeframe, m)
}

// EmitRollover publishes the candle that was just superseded as closed.
func (p *Publisher) EmitRollover(r candle.RolledOver) {
	m := newMessage(TypeCandleClosed, r.Timeframe, r.Previous, candle.SlotOf(r.Previous.Time, r.Timeframe), r.Ticker)
	m.IsClosed = true
	p.Publish(r.Timeframe, m)
}

// Publish delivers m to every sink registered for tf and returns how many
// sinks accepted it.
func (p *Publisher) Publish(tf candle.Timeframe, m Message) int {
	set := p.set(tf, false)
	if set == nil {
		return 0
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	delivered := 0
	for id, sink := range set.sinks {
		if err := sink.Deliver(m); err != nil {
			delete(set.sinks, id)
			if c, ok := sink.(*Subscription); ok {
				c.closeLocked()
			}
			p.logger.Debug("pruned subscriber",
				zap.String("timeframe", tf.String()), zap.Uint64("id", id), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// AddSink registers a custom sink and returns a function that removes it.
func (p *Publisher) AddSink(tf candle.Timeframe, sink Sink) (remove func()) {
	set := p.set(tf, true)

	set.mu.Lock()
	id := set.nextID
	set.nextID++
	set.sinks[id] = sink
	set.mu.Unlock()

	return func() {
		set.mu.Lock()
		delete(set.sinks, id)
		set.mu.Unlock()
	}
}

// Subscribe registers a buffered channel subscriber for tf.
func (p *Publisher) Subscribe(tf candle.Timeframe, buffer int) *Subscription {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	set := p.set(tf, true)

	set.mu.Lock()
	defer set.mu.Unlock()

	s := &Subscription{
		id:  set.nextID,
		tf:  tf,
		ch:  make(chan Message, buffer),
		set: set,
	}
	set.nextID++
	set.sinks[s.id] = s
	return s
}

// Count returns the number of sinks registered for tf.
func (p *Publisher) Count(tf candle.Timeframe) int {
	set := p.set(tf, false)
	if set == nil {
		return 0
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.sinks)
}

func (p *Publisher) set(tf candle.Timeframe, create bool) *sinkSet {
	p.globalMu.RLock()
	set, ok := p.sets[tf]
	p.globalMu.RUnlock()
	if ok || !create {
		return set
	}

	p.globalMu.Lock()
	defer p.globalMu.Unlock()
	if set, ok = p.sets[tf]; !ok {
		set = &sinkSet{sinks: make(map[uint64]Sink)}
		p.sets[tf] = set
	}
	return set
}
