// Package backfill seeds the engine with exchange history at startup.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"candlesync/internal/candle"
	"candlesync/internal/memorystore"
	"candlesync/pkg/binance"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// DefaultLookbacks is how far back history is requested per timeframe.
var DefaultLookbacks = map[candle.Timeframe]time.Duration{
	candle.Timeframe1Min:  24 * time.Hour,
	candle.Timeframe5Min:  7 * 24 * time.Hour,
	candle.Timeframe1Hour: 30 * 24 * time.Hour,
	candle.Timeframe1Day:  5 * 365 * 24 * time.Hour,
}

// Default wait bounds between rounds of LoadUntilSeeded.
const (
	DefaultRetryMin = 5 * time.Second
	DefaultRetryMax = 5 * time.Minute
)

// Fetcher returns historical klines. *binance.RESTClient satisfies it.
type Fetcher interface {
	GetKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]binance.Kline, error)
}

// Seeder accepts history for one timeframe. *engine.Engine satisfies it.
type Seeder interface {
	Seed(ctx context.Context, tf candle.Timeframe, history []candle.Candle) (memorystore.SeedResult, error)
}

type Loader struct {
	Symbol    string
	Fetcher   Fetcher
	Seeder    Seeder
	Lookbacks map[candle.Timeframe]time.Duration
	// Bound caps the lookback at Bound candles; zero leaves it unclipped.
	Bound int
	// RetryMin and RetryMax bound the backoff of LoadUntilSeeded.
	RetryMin time.Duration
	RetryMax time.Duration
	Now      func() time.Time
	Logger   *zap.Logger
}

// LoadUntilSeeded loads every timeframe, then keeps retrying the ones that
// failed with exponential backoff until all are seeded or ctx is done.
// A timeframe seeded elsewhere in the meantime counts as done.
func (l *Loader) LoadUntilSeeded(ctx context.Context, tfs []candle.Timeframe) error {
	b := &backoff.Backoff{
		Min:    l.RetryMin,
		Max:    l.RetryMax,
		Factor: 2,
		Jitter: true,
	}
	if b.Min <= 0 {
		b.Min = DefaultRetryMin
	}
	if b.Max < b.Min {
		b.Max = max(DefaultRetryMax, b.Min)
	}

	pending := tfs
	for {
		var failed []candle.Timeframe
		for _, tf := range pending {
			err := l.Load(ctx, tf)
			if err == nil || errors.Is(err, memorystore.ErrAlreadySeeded) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed = append(failed, tf)
		}
		if len(failed) == 0 {
			return nil
		}

		wait := b.Duration()
		l.logger().Warn("backfill incomplete, retrying",
			zap.Strings("timeframes", timeframeStrings(failed)),
			zap.Float64("attempt", b.Attempt()),
			zap.Duration("wait", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		pending = failed
	}
}

// Load fetches the lookback window for tf and seeds it.
func (l *Loader) Load(ctx context.Context, tf candle.Timeframe) error {
	logger := l.logger().With(zap.String("timeframe", tf.String()))

	end := l.now()
	start := end.Add(-l.Lookback(tf))

	klines, err := l.Fetcher.GetKlines(ctx, l.Symbol, tf.String(), start, end)
	if err != nil {
		logger.Error("failed to fetch history", zap.Error(err))
		return fmt.Errorf("backfill %s: %w", tf, err)
	}

	history := ToCandles(klines)
	res, err := l.Seeder.Seed(ctx, tf, history)
	if errors.Is(err, memorystore.ErrAlreadySeeded) {
		logger.Info("timeframe already seeded, history discarded", zap.Int("fetched", len(klines)))
		return fmt.Errorf("seed %s: %w", tf, err)
	}
	if err != nil {
		logger.Error("failed to seed history", zap.Error(err))
		return fmt.Errorf("seed %s: %w", tf, err)
	}

	logger.Info("loaded history",
		zap.Time("from", start),
		zap.Int("fetched", len(klines)),
		zap.Int("accepted", res.Accepted))
	return nil
}

// Lookback returns the configured window for tf clipped to Bound candles.
func (l *Loader) Lookback(tf candle.Timeframe) time.Duration {
	lookbacks := l.Lookbacks
	if lookbacks == nil {
		lookbacks = DefaultLookbacks
	}

	capped := time.Duration(0)
	if l.Bound > 0 {
		capped = time.Duration(l.Bound) * tf.Duration()
	}

	lb, ok := lookbacks[tf]
	if !ok || lb <= 0 {
		if capped > 0 {
			return capped
		}
		return time.Duration(memorystore.DefaultEvictionBound) * tf.Duration()
	}
	if capped > 0 && lb > capped {
		return capped
	}
	return lb
}

// ToCandles converts exchange klines to candles keyed by open time in seconds.
func ToCandles(klines []binance.Kline) []candle.Candle {
	out := make([]candle.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, candle.Candle{
			Time:   k.OpenTime / 1000,
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		})
	}
	return out
}

func timeframeStrings(tfs []candle.Timeframe) []string {
	out := make([]string, len(tfs))
	for i, tf := range tfs {
		out[i] = tf.String()
	}
	return out
}

func (l *Loader) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger != nil {
		return l.Logger.Named("backfill")
	}
	return zap.NewNop()
}
