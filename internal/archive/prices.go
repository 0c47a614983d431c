package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
)

// SavePriceSeries stores every candle of the series. Rows already archived
// for the same (symbol, datetime, interval) are skipped, so re-archiving an
// overlapping window only adds the new candles.
func (a *Archive) SavePriceSeries(ctx context.Context, series model.PriceSeries) error {
	if len(series.Candles) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin prices tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO stock_prices
			(symbol, datetime, interval, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("archive: prepare prices insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range series.Candles {
		if _, err := stmt.ExecContext(ctx,
			series.Symbol, c.Timestamp.UTC().Format(time.RFC3339), series.Interval,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return fmt.Errorf("archive: insert price %s %s: %w", series.Symbol, c.Timestamp.UTC(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit prices tx: %w", err)
	}
	return nil
}

// PriceHistory returns every archived candle for (symbol, interval), oldest
// first. RFC3339 timestamps sort lexically, so the text column orders
// chronologically.
func (a *Archive) PriceHistory(ctx context.Context, symbol, interval string) (model.PriceSeries, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT datetime, open, high, low, close, volume
		FROM stock_prices
		WHERE symbol = ? AND interval = ?
		ORDER BY datetime ASC
	`, symbol, interval)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("archive: query prices: %w", err)
	}
	defer rows.Close()

	series := model.PriceSeries{Symbol: symbol, Interval: interval}
	for rows.Next() {
		var (
			ts string
			c  model.Candle
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return model.PriceSeries{}, fmt.Errorf("archive: scan price row: %w", err)
		}
		c.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return model.PriceSeries{}, fmt.Errorf("archive: parse datetime %q: %w", ts, err)
		}
		series.Candles = append(series.Candles, c)
	}
	if err := rows.Err(); err != nil {
		return model.PriceSeries{}, fmt.Errorf("archive: iterate prices: %w", err)
	}
	return series, nil
}
