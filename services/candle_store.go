package services

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"marketdash/models"
)

// CandleStore persists OHLCV candles in a local SQLite database
type CandleStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Global candle store
var GlobalCandleStore *CandleStore

// InitCandleStore opens (creating if needed) the SQLite candle database
func InitCandleStore(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open candle database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping candle database: %w", err)
	}

	store := &CandleStore{db: db}
	if err := store.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	GlobalCandleStore = store
	log.Printf("Candle store initialized at %s", path)
	return nil
}

// Close closes the underlying database
func (s *CandleStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *CandleStore) createTables() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candlesTable := `
		CREATE TABLE IF NOT EXISTS candles (
			provider VARCHAR NOT NULL,
			symbol VARCHAR NOT NULL,
			interval VARCHAR NOT NULL,
			timestamp INTEGER NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (provider, symbol, interval, timestamp)
		)
	`
	if _, err := s.db.Exec(candlesTable); err != nil {
		return fmt.Errorf("failed to create candles table: %w", err)
	}

	indexStmt := `
		CREATE INDEX IF NOT EXISTS idx_candles_lookup
		ON candles (symbol, interval, timestamp DESC)
	`
	if _, err := s.db.Exec(indexStmt); err != nil {
		return fmt.Errorf("failed to create candle index: %w", err)
	}
	return nil
}

// SaveCandles upserts a batch of candles in one transaction. A candle
// for an existing (provider, symbol, interval, timestamp) overwrites
// the stored row; still-forming bars are re-saved on every sync.
func (s *CandleStore) SaveCandles(candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO candles (provider, symbol, interval, timestamp, open, high, low, close, volume, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider, symbol, interval, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(c.Provider, c.Symbol, c.Interval, c.Timestamp,
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert candle %s %s @%d: %w", c.Symbol, c.Interval, c.Timestamp, err)
		}
	}

	return tx.Commit()
}

// Candles returns candles for a feed in [from, to), oldest first,
// capped at limit. Zero from/to mean unbounded; limit <= 0 means 500.
func (s *CandleStore) Candles(provider, symbol, interval string, from, to int64, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	if to == 0 {
		to = time.Now().Add(24 * time.Hour).UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT provider, symbol, interval, timestamp, open, high, low, close, volume
		FROM candles
		WHERE provider = ? AND symbol = ? AND interval = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, provider, symbol, interval, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Provider, &c.Symbol, &c.Interval, &c.Timestamp,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// LatestCandle returns the most recent stored candle for a feed, or
// nil when the feed has no data yet
func (s *CandleStore) LatestCandle(provider, symbol, interval string) (*models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c models.Candle
	err := s.db.QueryRow(`
		SELECT provider, symbol, interval, timestamp, open, high, low, close, volume
		FROM candles
		WHERE provider = ? AND symbol = ? AND interval = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, provider, symbol, interval).Scan(&c.Provider, &c.Symbol, &c.Interval, &c.Timestamp,
		&c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest candle: %w", err)
	}
	return &c, nil
}

// CandleCount returns the total number of stored candles
func (s *CandleStore) CandleCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM candles`).Scan(&count)
	return count, err
}

// DeleteOlderThan removes candles with a bar open time before cutoff.
// Returns the number of deleted rows.
func (s *CandleStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM candles WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old candles: %w", err)
	}
	return res.RowsAffected()
}
