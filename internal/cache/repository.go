// Package cache persists fetched market data and computed indicators with
// TTL-based staleness semantics. One row exists per (symbol, exchange) key;
// writes are idempotent upserts and atomic per key.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"marketmind/internal/database"
	"marketmind/internal/domain"
	"marketmind/internal/indicators"
)

// Entry is one cached (symbol, exchange) payload.
type Entry struct {
	Symbol      string              `json:"symbol"`
	Exchange    string              `json:"exchange"`
	Bars        domain.Series       `json:"bars"`
	Indicators  indicators.Snapshot `json:"indicators"`
	LastUpdated time.Time           `json:"last_updated"`
}

// FreshAt reports whether the entry is fresh at the given instant.
// Pure: no I/O, no wall-clock access.
func (e *Entry) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.LastUpdated) < ttl
}

// IsFresh reports whether the entry is fresh right now.
func IsFresh(e *Entry, ttl time.Duration) bool {
	return e.FreshAt(time.Now(), ttl)
}

// Repository handles stock_data_cache database operations.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a cache repository on the cache database.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "cache").Logger(),
	}
}

// Get retrieves the cache entry for a key. A missing key is not an error:
// found is false and err is nil.
func (r *Repository) Get(symbol, exchange string) (*Entry, bool, error) {
	query := `
		SELECT bars, indicators, last_updated
		FROM stock_data_cache
		WHERE symbol = ? AND exchange = ?
	`

	var barsBlob, indicatorsBlob []byte
	var lastUpdated int64

	err := r.db.QueryRow(query, symbol, exchange).Scan(&barsBlob, &indicatorsBlob, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry for %s.%s: %w", symbol, exchange, err)
	}

	entry := &Entry{
		Symbol:      symbol,
		Exchange:    exchange,
		LastUpdated: time.Unix(lastUpdated, 0).UTC(),
	}

	if err := msgpack.Unmarshal(barsBlob, &entry.Bars); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached bars for %s.%s: %w", symbol, exchange, err)
	}
	if err := msgpack.Unmarshal(indicatorsBlob, &entry.Indicators); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached indicators for %s.%s: %w", symbol, exchange, err)
	}

	return entry, true, nil
}

// Put upserts the cache entry for a key, overwriting any prior row.
// The write is a single statement, so readers never observe a torn entry.
func (r *Repository) Put(entry Entry) error {
	barsBlob, err := msgpack.Marshal(entry.Bars)
	if err != nil {
		return fmt.Errorf("failed to encode bars for %s.%s: %w", entry.Symbol, entry.Exchange, err)
	}
	indicatorsBlob, err := msgpack.Marshal(entry.Indicators)
	if err != nil {
		return fmt.Errorf("failed to encode indicators for %s.%s: %w", entry.Symbol, entry.Exchange, err)
	}

	query := `
		INSERT INTO stock_data_cache (symbol, exchange, bars, indicators, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, exchange) DO UPDATE SET
			bars = excluded.bars,
			indicators = excluded.indicators,
			last_updated = excluded.last_updated
	`

	_, err = r.db.Exec(query, entry.Symbol, entry.Exchange, barsBlob, indicatorsBlob, entry.LastUpdated.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry for %s.%s: %w", entry.Symbol, entry.Exchange, err)
	}

	r.log.Debug().
		Str("symbol", entry.Symbol).
		Str("exchange", entry.Exchange).
		Int("bars", len(entry.Bars)).
		Msg("Cache entry written")

	return nil
}

// SweepOlderThan deletes entries last updated before now-horizon and returns
// the number of rows removed. The retention horizon is independent of the
// freshness TTL: stale entries survive until this sweep so they remain
// available for degraded fallback.
func (r *Repository) SweepOlderThan(horizon time.Duration) (int64, error) {
	cutoff := time.Now().Add(-horizon).Unix()

	result, err := r.db.Exec("DELETE FROM stock_data_cache WHERE last_updated < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache entries: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept cache entries: %w", err)
	}

	if removed > 0 {
		r.log.Info().Int64("removed", removed).Dur("horizon", horizon).Msg("Cache sweep completed")
	}

	return removed, nil
}

// Count returns the number of cached entries. Used by health reporting.
func (r *Repository) Count() (int64, error) {
	var count int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM stock_data_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}
