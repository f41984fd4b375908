// Package archive writes closed candles to durable storage and prunes them
// after a retention period. The engine never reads the archive back.
package archive

import (
	"context"
	"sync/atomic"
	"time"

	"candlesync/internal/candle"
	"candlesync/internal/publisher"
	"candlesync/pkg/storage/postgres"

	"go.uber.org/zap"
)

const (
	DefaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Store is the persistence side of the archive. *postgres.PostgresClient satisfies it.
type Store interface {
	UpsertCandle(ctx context.Context, record *postgres.CandleRecord) error
	DeleteOldCandles(ctx context.Context, before time.Time) (int64, error)
}

type Options struct {
	Symbol    string
	QueueSize int
	// Retention is how long closed candles are kept; zero disables pruning.
	Retention time.Duration
}

// Archiver receives candle_closed messages from the publisher and writes them
// from a single goroutine so slow storage never stalls delivery.
type Archiver struct {
	store  Store
	opts   Options
	queue  chan publisher.Message
	logger *zap.Logger
	now    func() time.Time

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func New(store Store, opts Options, logger *zap.Logger) *Archiver {
	if opts.QueueSize < 1 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Archiver{
		store:  store,
		opts:   opts,
		queue:  make(chan publisher.Message, opts.QueueSize),
		logger: logger.Named("archive").With(zap.String("symbol", opts.Symbol)),
		now:    time.Now,
	}
}

// Attach registers the archiver as a sink for every timeframe and returns a
// function that detaches it.
func (a *Archiver) Attach(pub *publisher.Publisher, tfs []candle.Timeframe) (detach func()) {
	removes := make([]func(), 0, len(tfs))
	for _, tf := range tfs {
		removes = append(removes, pub.AddSink(tf, a))
	}
	return func() {
		for _, remove := range removes {
			remove()
		}
	}
}

// Deliver queues closed candles and ignores everything else. A full queue
// drops the candle but keeps the sink registered.
func (a *Archiver) Deliver(m publisher.Message) error {
	if m.Type != publisher.TypeCandleClosed {
		return nil
	}
	select {
	case a.queue <- m:
	default:
		a.dropped.Add(1)
		a.logger.Warn("archive queue full, dropping closed candle",
			zap.String("timeframe", m.Timeframe), zap.Int64("time", m.Time))
	}
	return nil
}

// Run writes queued candles until ctx is done and, when retention is set,
// prunes old records every UTC midnight.
func (a *Archiver) Run(ctx context.Context) {
	if a.opts.Retention > 0 {
		sched := &MidnightScheduler{Job: a.Prune, Now: a.now}
		sched.Start(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-a.queue:
			a.write(ctx, m)
		}
	}
}

func (a *Archiver) write(ctx context.Context, m publisher.Message) {
	tf := candle.Timeframe(m.Timeframe)
	rec := postgres.ToCandleRecord(a.opts.Symbol, tf, m.Candle())

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := a.store.UpsertCandle(wctx, rec); err != nil {
		a.failed.Add(1)
		a.logger.Warn("failed to archive candle",
			zap.String("timeframe", m.Timeframe), zap.Int64("time", m.Time), zap.Error(err))
		return
	}
	a.written.Add(1)
}

// Prune deletes records older than the retention period.
func (a *Archiver) Prune(ctx context.Context) {
	before := a.now().Add(-a.opts.Retention)
	n, err := a.store.DeleteOldCandles(ctx, before)
	if err != nil {
		a.logger.Warn("failed to prune archive", zap.Time("before", before), zap.Error(err))
		return
	}
	a.logger.Info("pruned archive", zap.Time("before", before), zap.Int64("deleted", n))
}

// Stats reports written, dropped and failed candle counts.
func (a *Archiver) Stats() (written, dropped, failed uint64) {
	return a.written.Load(), a.dropped.Load(), a.failed.Load()
}
