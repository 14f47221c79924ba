// Package watchlist persists users and their watched symbols.
package watchlist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketmind/internal/database"
	"marketmind/internal/domain"
)

// Repository handles users and watchlist tables on the core database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a watchlist repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "watchlist").Logger(),
	}
}

// GetOrCreateUser returns the user with the given username, creating it on
// first sight. Usernames are the login identity; there is no password.
func (r *Repository) GetOrCreateUser(username string) (*domain.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username must not be empty")
	}

	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO users (username, created_at) VALUES (?, ?)",
		username, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}

	var user domain.User
	err = r.db.QueryRow("SELECT id, username FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", username, err)
	}

	return &user, nil
}

// GetUser returns a user by ID, or nil when absent.
func (r *Repository) GetUser(id int64) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRow("SELECT id, username FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return &user, nil
}

// Add puts a symbol on a user's watchlist. Re-adding an existing entry is
// a no-op.
func (r *Repository) Add(item domain.WatchlistItem) error {
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO watchlist (user_id, symbol, exchange, created_at) VALUES (?, ?, ?, ?)",
		item.UserID, item.Symbol, item.Exchange, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add %s to watchlist: %w", item.Symbol, err)
	}
	return nil
}

// Remove drops a symbol from a user's watchlist.
func (r *Repository) Remove(item domain.WatchlistItem) error {
	result, err := r.db.Exec(
		"DELETE FROM watchlist WHERE user_id = ? AND symbol = ? AND exchange = ?",
		item.UserID, item.Symbol, item.Exchange,
	)
	if err != nil {
		return fmt.Errorf("failed to remove %s from watchlist: %w", item.Symbol, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check watchlist removal: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s is not on the watchlist", item.Symbol)
	}
	return nil
}

// ForUser returns a user's watchlist entries ordered by symbol.
func (r *Repository) ForUser(userID int64) ([]domain.WatchlistItem, error) {
	rows, err := r.db.Query(
		"SELECT user_id, symbol, exchange FROM watchlist WHERE user_id = ? ORDER BY symbol",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get watchlist for user %d: %w", userID, err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// DistinctSymbols returns every (symbol, exchange) pair watched by any
// user, each exactly once. Feeds the proactive refresh job.
func (r *Repository) DistinctSymbols() ([]domain.WatchlistItem, error) {
	rows, err := r.db.Query(
		"SELECT DISTINCT 0, symbol, exchange FROM watchlist ORDER BY symbol, exchange",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get watched symbols: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]domain.WatchlistItem, error) {
	var items []domain.WatchlistItem
	for rows.Next() {
		var item domain.WatchlistItem
		if err := rows.Scan(&item.UserID, &item.Symbol, &item.Exchange); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate watchlist: %w", err)
	}
	return items, nil
}
