package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"candlesync/internal/candle"
	"candlesync/internal/memorystore"

	"go.uber.org/zap"
)

type cmdKind int

const (
	cmdKline cmdKind = iota
	cmdTicker
	cmdSeed
	cmdSync
)

type command struct {
	kind      cmdKind
	kline     candle.KlineEvent
	ticker    candle.TickerEvent
	seed      []candle.Candle
	seedReply chan<- seedReply
	done      chan struct{}
}

type seedReply struct {
	res memorystore.SeedResult
	err error
}

// Stats are per-timeframe counters since start.
type Stats struct {
	Timeframe string `json:"timeframe"`
	Ready     bool   `json:"ready"`
	Candles   int    `json:"candles"`
	Applied   uint64 `json:"applied"`
	Rollovers uint64 `json:"rollovers"`
	Stale     uint64 `json:"stale"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"`
	Evicted   uint64 `json:"evicted"`
}

type counters struct {
	applied   atomic.Uint64
	rollovers atomic.Uint64
	stale     atomic.Uint64
	malformed atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
}

// worker owns the store of one timeframe. Only its run goroutine writes to
// the store.
type worker struct {
	tf      candle.Timeframe
	store   *memorystore.CandleStore
	queue   chan command
	tickers *memorystore.TickerState
	emitter Emitter
	mode    candle.VolumeMode
	logger  *zap.Logger
	stats   counters
}

func newWorker(e *Engine, tf candle.Timeframe) *worker {
	return &worker{
		tf:      tf,
		store:   memorystore.NewCandleStore(tf, e.opts.EvictionBound),
		queue:   make(chan command, e.opts.QueueSize),
		tickers: e.tickers,
		emitter: e.emitter,
		mode:    e.opts.VolumeMode,
		logger:  e.logger.With(zap.String("timeframe", tf.String())),
	}
}

func (w *worker) enqueue(cmd command) error {
	select {
	case w.queue <- cmd:
		return nil
	default:
		w.stats.dropped.Add(1)
		w.logger.Warn("queue full, dropping event", zap.Int("capacity", cap(w.queue)))
		return fmt.Errorf("%w: %s", ErrQueueFull, w.tf)
	}
}

func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.queue:
			w.handle(cmd)
		}
	}
}

func (w *worker) handle(cmd command) {
	switch cmd.kind {
	case cmdKline:
		w.applyKline(cmd.kline)
	case cmdTicker:
		w.applyTicker(cmd.ticker)
	case cmdSeed:
		res, err := w.seed(cmd.seed)
		cmd.seedReply <- seedReply{res: res, err: err}
	case cmdSync:
		close(cmd.done)
	}
}

func (w *worker) applyKline(e candle.KlineEvent) {
	slot := candle.SlotOf(e.Time, w.tf)
	start := candle.SlotStart(slot, w.tf)
	tick := w.tickers.Load()

	tail, lastUpdate, ok := w.store.Tail()
	if !ok {
		c := candle.OpenFromKline(start, e, candle.EffectivePrice(e, tick, start, slot, w.tf))
		if w.append(c, e.UpdatedAt()) {
			w.logger.Debug("opened first candle from kline", zap.Int64("time", c.Time))
			w.emitUpdate(c, slot, e.IsClosed, candle.SourceKline, tick)
		}
		return
	}

	tailSlot := candle.SlotOf(tail.Time, w.tf)
	switch {
	case slot < tailSlot:
		w.discard(candle.SourceKline, e.Time, slot, tailSlot)

	case slot == tailSlot:
		eff := candle.EffectivePrice(e, tick, lastUpdate, slot, w.tf)
		c := candle.MergeKline(tail, e, eff, w.mode)
		if w.replace(c, e.UpdatedAt()) {
			w.emitUpdate(c, slot, e.IsClosed, candle.SourceKline, tick)
		}

	default:
		eff := candle.EffectivePrice(e, tick, start, slot, w.tf)
		w.rollover(tail, candle.RollKline(tail, start, e, eff), slot, e.UpdatedAt(), candle.SourceKline, tick)
	}
}

func (w *worker) applyTicker(e candle.TickerEvent) {
	slot := candle.SlotOf(e.Time, w.tf)
	start := candle.SlotStart(slot, w.tf)
	tick := w.tickers.Load()

	tail, _, ok := w.store.Tail()
	if !ok {
		c := candle.OpenFromTicker(start, e.Price)
		if w.append(c, e.Time) {
			w.logger.Debug("opened first candle from ticker", zap.Int64("time", c.Time))
			w.emitUpdate(c, slot, false, candle.SourceTicker, tick)
		}
		return
	}

	tailSlot := candle.SlotOf(tail.Time, w.tf)
	switch {
	case slot < tailSlot:
		w.discard(candle.SourceTicker, e.Time, slot, tailSlot)

	case slot == tailSlot:
		c := candle.MergeTicker(tail, e.Price)
		if w.replace(c, e.Time) {
			w.emitUpdate(c, slot, false, candle.SourceTicker, tick)
		}

	default:
		w.rollover(tail, candle.RollTicker(tail, start, e.Price), slot, e.Time, candle.SourceTicker, tick)
	}
}

// rollover appends next as the new running candle. prev becomes final and is
// announced before the update for next.
func (w *worker) rollover(prev, next candle.Candle, slot, at int64, src candle.Source, tick candle.Ticker) {
	if !w.append(next, at) {
		return
	}
	w.stats.rollovers.Add(1)
	w.logger.Debug("rolled over",
		zap.Int64("previous", prev.Time), zap.Int64("next", next.Time), zap.String("source", string(src)))
	w.emitter.EmitRollover(candle.RolledOver{Timeframe: w.tf, Previous: prev, Next: next, Ticker: tick})
	w.emitUpdate(next, slot, false, src, tick)
}

func (w *worker) append(c candle.Candle, at int64) bool {
	evicted, err := w.store.Append(c, at)
	if err != nil {
		w.stats.dropped.Add(1)
		w.logger.Error("append rejected", zap.Error(err))
		return false
	}
	w.stats.applied.Add(1)
	if evicted > 0 {
		w.stats.evicted.Add(uint64(evicted))
		w.logger.Debug("evicted candles", zap.Int("count", evicted), zap.Int("bound", w.store.Bound()))
	}
	return true
}

func (w *worker) replace(c candle.Candle, at int64) bool {
	if err := w.store.ReplaceTail(c, at); err != nil {
		w.stats.dropped.Add(1)
		w.logger.Error("tail update rejected", zap.Error(err))
		return false
	}
	w.stats.applied.Add(1)
	return true
}

// discard drops an event for a slot behind the running candle. This is
// expected under feed jitter and replay.
func (w *worker) discard(src candle.Source, at, slot, tailSlot int64) {
	w.stats.stale.Add(1)
	w.logger.Debug("discarding stale event",
		zap.String("source", string(src)), zap.Int64("time", at),
		zap.Int64("slot", slot), zap.Int64("running_slot", tailSlot))
}

func (w *worker) emitUpdate(c candle.Candle, slot int64, closed bool, src candle.Source, tick candle.Ticker) {
	w.emitter.EmitUpdate(candle.Update{
		Timeframe: w.tf,
		Candle:    c,
		Slot:      slot,
		IsClosed:  closed,
		Source:    src,
		Ticker:    tick,
	})
}

func (w *worker) seed(history []candle.Candle) (memorystore.SeedResult, error) {
	res, err := w.store.Seed(history)
	if errors.Is(err, memorystore.ErrAlreadySeeded) {
		w.logger.Warn("ignoring seed for already seeded timeframe", zap.Int("candles", len(history)))
		return res, err
	}
	if err != nil {
		return res, err
	}
	w.stats.evicted.Add(uint64(res.Evicted))

	fields := []zap.Field{
		zap.Int("accepted", res.Accepted),
		zap.Int("misaligned", res.Misaligned),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("evicted", res.Evicted),
		zap.Int("cached", w.store.Len()),
	}
	if res.Merged {
		w.logger.Warn("seeded after live data, merged history", append(fields, zap.Int("overlap", res.Overlap))...)
	} else {
		w.logger.Info("seeded", fields...)
	}
	return res, nil
}

func (w *worker) snapshotStats() Stats {
	return Stats{
		Timeframe: w.tf.String(),
		Ready:     w.store.Seeded(),
		Candles:   w.store.Len(),
		Applied:   w.stats.applied.Load(),
		Rollovers: w.stats.rollovers.Load(),
		Stale:     w.stats.stale.Load(),
		Malformed: w.stats.malformed.Load(),
		Dropped:   w.stats.dropped.Load(),
		Evicted:   w.stats.evicted.Load(),
	}
}
