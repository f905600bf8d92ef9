package sqlite

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"regime-seeker/internal/model"
)

// Config configures the candle cache.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"

	// OnCommit, when set, observes every upsert transaction's duration.
	OnCommit func(time.Duration)
}

// Store caches fetched input candles in SQLite. It never stores computed
// signals. Implements model.CandleStore.
type Store struct {
	db       *sqlx.DB
	onCommit func(time.Duration)
}

var _ model.CandleStore = (*Store)(nil)

// candleRow is one row of the candles table.
type candleRow struct {
	Exchange  string  `db:"exchange"`
	Symbol    string  `db:"symbol"`
	Timeframe string  `db:"timeframe"`
	TS        int64   `db:"ts"`
	Open      float64 `db:"open"`
	High      float64 `db:"high"`
	Low       float64 `db:"low"`
	Close     float64 `db:"close"`
	Volume    float64 `db:"volume"`
}

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened candle cache at %s", cfg.DBPath)
	return &Store{db: db, onCommit: cfg.OnCommit}, nil
}

// DB returns the underlying database for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			exchange   TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			timeframe  TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			PRIMARY KEY (exchange, symbol, timeframe, ts)
		);
	`)
	return err
}

const upsertSQL = `
	INSERT INTO candles (exchange, symbol, timeframe, ts, open, high, low, close, volume)
	VALUES (:exchange, :symbol, :timeframe, :ts, :open, :high, :low, :close, :volume)
	ON CONFLICT (exchange, symbol, timeframe, ts) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume`

// UpsertCandles writes candles in a single transaction. A bar with the same
// time replaces the cached one, so a still-forming bar is refreshed.
func (s *Store) UpsertCandles(ctx context.Context, inst model.Instrument, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		row := candleRow{
			Exchange:  inst.Exchange,
			Symbol:    inst.Symbol,
			Timeframe: inst.Interval,
			TS:        c.Time,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("sqlite upsert %s@%d: %w", inst.Key(), c.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	if s.onCommit != nil {
		s.onCommit(time.Since(start))
	}
	return nil
}

// Prune keeps only the newest keep bars for inst.
func (s *Store) Prune(ctx context.Context, inst model.Instrument, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM candles
		WHERE exchange = ? AND symbol = ? AND timeframe = ? AND ts NOT IN (
			SELECT ts FROM candles
			WHERE exchange = ? AND symbol = ? AND timeframe = ?
			ORDER BY ts DESC
			LIMIT ?
		)`,
		inst.Exchange, inst.Symbol, inst.Interval,
		inst.Exchange, inst.Symbol, inst.Interval, keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite prune %s: %w", inst.Key(), err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
