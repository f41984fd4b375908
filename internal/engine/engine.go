package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"candlesync/internal/candle"
	"candlesync/internal/memorystore"

	"go.uber.org/zap"
)

// DefaultQueueSize is the per-timeframe event queue capacity.
const DefaultQueueSize = 1024

// Emitter receives the engine's update events. Calls come from the worker
// goroutine of the affected timeframe and must not block.
type Emitter interface {
	EmitUpdate(candle.Update)
	EmitRollover(candle.RolledOver)
}

type Options struct {
	Symbol        string
	Timeframes    []candle.Timeframe
	EvictionBound int
	QueueSize     int
	VolumeMode    candle.VolumeMode
}

// Engine reconciles the kline and ticker feeds into one running candle per
// timeframe. Each timeframe has its own store and a single worker goroutine
// that applies events strictly in arrival order; timeframes run in parallel.
type Engine struct {
	opts    Options
	logger  *zap.Logger
	emitter Emitter
	tickers *memorystore.TickerState

	workers map[candle.Timeframe]*worker
	order   []candle.Timeframe

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options, emitter Emitter, logger *zap.Logger) (*Engine, error) {
	if len(opts.Timeframes) == 0 {
		opts.Timeframes = candle.DefaultTimeframes
	}
	if opts.EvictionBound < 1 {
		opts.EvictionBound = memorystore.DefaultEvictionBound
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.VolumeMode == "" {
		opts.VolumeMode = candle.VolumeCumulative
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}

	e := &Engine{
		opts:    opts,
		logger:  logger.Named("engine").With(zap.String("symbol", opts.Symbol)),
		emitter: emitter,
		tickers: memorystore.NewTickerState(),
		workers: make(map[candle.Timeframe]*worker, len(opts.Timeframes)),
	}
	for _, tf := range opts.Timeframes {
		if !tf.IsValid() {
			return nil, fmt.Errorf("%w: %q", candle.ErrUnknownTimeframe, tf)
		}
		if _, dup := e.workers[tf]; dup {
			return nil, fmt.Errorf("duplicate timeframe %q", tf)
		}
		e.workers[tf] = newWorker(e, tf)
		e.order = append(e.order, tf)
	}
	candle.SortTimeframes(e.order)
	return e, nil
}

// Start launches one worker per timeframe. Workers exit when ctx is done or
// Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStart
	}
	ctx, e.cancel = context.WithCancel(ctx)
	for _, tf := range e.order {
		w := e.workers[tf]
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			w.run(ctx)
		}()
	}
	e.logger.Info("engine started",
		zap.Strings("timeframes", tfStrings(e.order)),
		zap.Int("eviction_bound", e.opts.EvictionBound),
		zap.String("volume_mode", string(e.opts.VolumeMode)))
	return nil
}

// Stop makes the engine refuse new events and waits for the workers to exit.
// Events still queued are discarded.
func (e *Engine) Stop() {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

func (e *Engine) Symbol() string {
	return e.opts.Symbol
}

// Timeframes returns the configured timeframes, narrowest first.
func (e *Engine) Timeframes() []candle.Timeframe {
	return append([]candle.Timeframe(nil), e.order...)
}

// Ticker returns the global ticker state.
func (e *Engine) Ticker() candle.Ticker {
	return e.tickers.Load()
}

// IngestKline queues a kline update for its timeframe without blocking.
func (e *Engine) IngestKline(tf candle.Timeframe, ev candle.KlineEvent) error {
	w, err := e.worker(tf)
	if err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		w.stats.malformed.Add(1)
		w.logger.Warn("dropping malformed kline event", zap.Error(err), zap.Int64("time", ev.Time))
		return err
	}
	return w.enqueue(command{kind: cmdKline, kline: ev})
}

// IngestTicker records a trade price in the global ticker state and queues it
// for every timeframe without blocking. A ticker older than the current state
// is dropped.
func (e *Engine) IngestTicker(ev candle.TickerEvent) error {
	if e.stopped.Load() {
		return ErrStopped
	}
	if err := ev.Validate(); err != nil {
		e.logger.Warn("dropping malformed ticker event", zap.Error(err), zap.Int64("time", ev.Time))
		return err
	}
	if !e.tickers.Update(candle.Ticker{Price: ev.Price, Time: ev.Time}) {
		e.logger.Debug("dropping stale ticker event", zap.Int64("time", ev.Time))
		return ErrStaleTicker
	}

	var firstErr error
	for _, tf := range e.order {
		if err := e.workers[tf].enqueue(command{kind: cmdTicker, ticker: ev}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Seed loads closed history into a timeframe. It runs on the timeframe's
// worker, so it is ordered with respect to live events, and blocks until the
// worker has applied it.
func (e *Engine) Seed(ctx context.Context, tf candle.Timeframe, history []candle.Candle) (memorystore.SeedResult, error) {
	w, err := e.worker(tf)
	if err != nil {
		return memorystore.SeedResult{}, err
	}
	reply := make(chan seedReply, 1)
	if err := e.send(ctx, w, command{kind: cmdSeed, seed: history, seedReply: reply}); err != nil {
		return memorystore.SeedResult{}, err
	}
	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return memorystore.SeedResult{}, ctx.Err()
	}
}

// Sync blocks until every event queued before the call has been applied on
// every timeframe.
func (e *Engine) Sync(ctx context.Context) error {
	dones := make([]chan struct{}, 0, len(e.order))
	for _, tf := range e.order {
		done := make(chan struct{})
		if err := e.send(ctx, e.workers[tf], command{kind: cmdSync, done: done}); err != nil {
			return err
		}
		dones = append(dones, done)
	}
	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stats returns the counters of one timeframe.
func (e *Engine) Stats(tf candle.Timeframe) (Stats, error) {
	w, err := e.worker(tf)
	if err != nil {
		return Stats{}, err
	}
	return w.snapshotStats(), nil
}

func (e *Engine) worker(tf candle.Timeframe) (*worker, error) {
	if e.stopped.Load() {
		return nil, ErrStopped
	}
	w, ok := e.workers[tf]
	if !ok {
		return nil, fmt.Errorf("%w: %q", candle.ErrUnknownTimeframe, tf)
	}
	return w, nil
}

// send is the blocking enqueue used by control commands.
func (e *Engine) send(ctx context.Context, w *worker, cmd command) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	if e.stopped.Load() {
		return ErrStopped
	}
	select {
	case w.queue <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopEmitter struct{}

func (nopEmitter) EmitUpdate(candle.Update)       {}
func (nopEmitter) EmitRollover(candle.RolledOver) {}

func tfStrings(tfs []candle.Timeframe) []string {
	out := make([]string, len(tfs))
	for i, tf := range tfs {
		out[i] = tf.String()
	}
	return out
}
