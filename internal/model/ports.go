package model

import "context"

// ── Storage / fan-out port interfaces ──
// These decouple the watcher from concrete implementations (SQLite, Redis,
// WebSocket hub) so each can be swapped or stubbed in tests.

// CandleStore caches fetched input candles. Computed signals are never stored.
type CandleStore interface {
	// UpsertCandles writes candles for an instrument, replacing bars with the same time.
	UpsertCandles(ctx context.Context, inst Instrument, candles []Candle) error

	// ReadCandles returns the most recent limit candles in ascending time order.
	ReadCandles(ctx context.Context, inst Instrument, limit int) ([]Candle, error)

	// Prune drops all but the newest keep candles for an instrument and
	// returns how many were removed.
	Prune(ctx context.Context, inst Instrument, keep int) (int64, error)

	// Close releases underlying resources.
	Close() error
}

// SnapshotPublisher pushes regime snapshots to live subscribers.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap RegimeSnapshot) error
}
