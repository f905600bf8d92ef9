package sqlite

import (
	"context"
	"fmt"

	"regime-seeker/internal/model"
)

// ReadCandles returns the most recent limit candles for inst, ordered by
// time ascending. limit <= 0 returns everything.
func (s *Store) ReadCandles(ctx context.Context, inst model.Instrument, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	var candles []model.Candle
	err := s.db.SelectContext(ctx, &candles, `
		SELECT ts AS time, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE exchange = ? AND symbol = ? AND timeframe = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, inst.Exchange, inst.Symbol, inst.Interval, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite read candles %s: %w", inst.Key(), err)
	}
	return candles, nil
}

// Instruments lists every cached instrument.
func (s *Store) Instruments(ctx context.Context) ([]model.Instrument, error) {
	var out []model.Instrument
	err := s.db.SelectContext(ctx, &out, `
		SELECT DISTINCT exchange, symbol, timeframe AS interval
		FROM candles
		ORDER BY exchange, symbol, timeframe
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list instruments: %w", err)
	}
	return out, nil
}
