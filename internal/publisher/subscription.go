package publisher

import "candlesync/internal/candle"

// Subscription is a channel-backed sink. Its channel is closed when the
// subscriber unsubscribes or is pruned for falling behind.
type Subscription struct {
	id     uint64
	tf     candle.Timeframe
	ch     chan Message
	set    *sinkSet
	closed bool // guarded by set.mu
}

func (s *Subscription) C() <-chan Message {
	return s.ch
}

func (s *Subscription) Timeframe() candle.Timeframe {
	return s.tf
}

func (s *Subscription) Deliver(m Message) error {
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- m:
		return nil
	default:
		return ErrSinkFull
	}
}

// Unsubscribe removes the subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.set.mu.Lock()
	defer s.set.mu.Unlock()

	delete(s.set.sinks, s.id)
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
