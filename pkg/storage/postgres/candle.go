package postgres

import (
	"context"
	"time"

	"candlesync/internal/candle"

	"gorm.io/gorm/clause"
)

// UpsertCandle inserts the record or overwrites the prices of an existing
// candle with the same symbol, timeframe and open time.
func (p *PostgresClient) UpsertCandle(ctx context.Context, record *CandleRecord) error {
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "timeframe"},
			{Name: "open_time"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	}).Create(record).Error
}

// DeleteOldCandles removes candles opened before the cutoff and reports how many went.
func (p *PostgresClient) DeleteOldCandles(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("open_time < ?", before).
		Delete(&CandleRecord{})
	return tx.RowsAffected, tx.Error
}

// ToCandleRecord converts a candle of the given symbol and timeframe into a record.
func ToCandleRecord(symbol string, tf candle.Timeframe, c candle.Candle) *CandleRecord {
	return &CandleRecord{
		Symbol:    symbol,
		Timeframe: tf.String(),
		OpenTime:  time.Unix(c.Time, 0).UTC(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

// Candle converts the record back to a candle.
func (r CandleRecord) Candle() candle.Candle {
	return candle.Candle{
		Time:   r.OpenTime.Unix(),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}
