// Package collector wires the live feed, backfill, engine, publisher, HTTP
// server and optional archive into one running pipeline for a symbol.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"candlesync/config"
	"candlesync/internal/archive"
	"candlesync/internal/backfill"
	"candlesync/internal/candle"
	"candlesync/internal/engine"
	"candlesync/internal/publisher"
	"candlesync/internal/server"
	"candlesync/internal/stream"
	"candlesync/pkg/binance"
	"candlesync/pkg/storage/postgres"

	"go.uber.org/zap"
)

type Collector struct {
	cfg    *config.Config
	logger *zap.Logger
	tfs    []candle.Timeframe

	publisher *publisher.Publisher
	engine    *engine.Engine
	ws        *binance.WSClient
	loader    *backfill.Loader
	server    *server.Server

	archiver *archive.Archiver
	db       *postgres.PostgresClient
}

// New builds every component from cfg. When the archive is enabled it also
// connects to Postgres and migrates the candle table.
func New(cfg *config.Config, logger *zap.Logger) (*Collector, error) {
	tfs, err := cfg.Engine.ParsedTimeframes()
	if err != nil {
		return nil, err
	}
	mode, err := candle.ParseVolumeMode(cfg.Engine.VolumeMode)
	if err != nil {
		return nil, err
	}
	lookbacks, err := cfg.Backfill.ParsedLookbacks()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.HTTP.Location()
	if err != nil {
		return nil, err
	}

	c := &Collector{cfg: cfg, logger: logger, tfs: tfs}
	c.publisher = publisher.New(logger)

	c.engine, err = engine.New(engine.Options{
		Symbol:        cfg.Symbol,
		Timeframes:    tfs,
		EvictionBound: cfg.Engine.EvictionBound,
		QueueSize:     cfg.Engine.QueueSize,
		VolumeMode:    mode,
	}, c.publisher, logger)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	intervals := make([]string, len(tfs))
	for i, tf := range tfs {
		intervals[i] = tf.String()
	}
	c.ws = binance.NewWSClient(cfg.Binance.WS.URL, binance.Streams(cfg.Symbol, intervals), cfg.Binance.WS.ReconnectDelay, logger)
	c.ws.SetMessageHandler(stream.MakeMessageHandler(logger, cfg.Symbol, c.engine))

	if cfg.Backfill.Enabled {
		rest := binance.NewRESTClient(binance.RESTOptions{
			BaseURL:       cfg.Binance.REST.BaseURL,
			Timeout:       cfg.Binance.REST.Timeout,
			PageDelay:     cfg.Binance.REST.PageDelay,
			RateLimitWait: cfg.Binance.REST.RateLimitWait,
			ErrorWait:     cfg.Binance.REST.ErrorWait,
			MaxRetries:    cfg.Binance.REST.MaxRetries,
		}, logger)
		c.loader = &backfill.Loader{
			Symbol:    cfg.Symbol,
			Fetcher:   rest,
			Seeder:    c.engine,
			Lookbacks: lookbacks,
			Bound:     cfg.Engine.EvictionBound,
			RetryMin:  cfg.Backfill.RetryMin,
			RetryMax:  cfg.Backfill.RetryMax,
			Logger:    logger,
		}
	}

	opts := server.Options{
		Addr:     cfg.HTTP.Addr,
		Location: loc,
		Buffer:   cfg.HTTP.PushBuffer,
	}
	if c.loader != nil {
		opts.Refresher = c.loader
	}
	c.server = server.New(c.engine, c.publisher, opts, logger)

	if cfg.Archive.Enabled {
		c.db, err = postgres.InitializeAndMigrateCandleRecord(cfg.Postgres, cfg.Log.Environment, cfg.Archive.CreateDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		c.archiver = archive.New(c.db, archive.Options{
			Symbol:    cfg.Symbol,
			QueueSize: cfg.Archive.QueueSize,
			Retention: cfg.Archive.Retention,
		}, logger)
	}

	return c, nil
}

// Engine exposes the running engine.
func (c *Collector) Engine() *engine.Engine {
	return c.engine
}

// Run starts the pipeline and blocks until ctx is done or the HTTP server
// fails. The live feed is connected before backfill so no events are lost
// while history loads.
func (c *Collector) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.engine.Start(ctx); err != nil {
		return err
	}
	defer c.engine.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	if c.archiver != nil {
		detach := c.archiver.Attach(c.publisher, c.tfs)
		defer detach()
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.archiver.Run(ctx)
		}()
	}

	if err := c.ws.Connect(ctx); err != nil {
		c.logger.Warn("initial websocket connect failed, retrying in background", zap.Error(err))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.ws.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("websocket listener stopped", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.seed(ctx)
	}()

	err := c.server.Run(ctx)
	cancel()
	return err
}

// seed loads history, retrying failed timeframes until ctx is done, or marks
// every timeframe seeded with no history when backfill is disabled so live
// data alone makes them ready.
func (c *Collector) seed(ctx context.Context) {
	if c.loader != nil {
		if err := c.loader.LoadUntilSeeded(ctx, c.tfs); err != nil && ctx.Err() == nil {
			c.logger.Error("backfill stopped", zap.Error(err))
		}
		return
	}
	for _, tf := range c.tfs {
		if _, err := c.engine.Seed(ctx, tf, nil); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to seed timeframe", zap.String("timeframe", tf.String()), zap.Error(err))
		}
	}
}

// Close releases the database connection, if any.
func (c *Collector) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
