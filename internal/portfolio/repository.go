// Package portfolio persists user holdings and values them against live
// quotes.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketmind/internal/clients/marketdata"
	"marketmind/internal/database"
	"marketmind/internal/domain"
)

const dateLayout = "2006-01-02"

// Valuation is one holding priced at the current market quote.
type Valuation struct {
	Holding       domain.Holding `json:"holding"`
	CurrentPrice  float64        `json:"current_price"`
	MarketValue   float64        `json:"market_value"`
	UnrealizedPnL float64        `json:"unrealized_pnl_percent"`
}

// Quoter supplies current prices for valuation.
type Quoter interface {
	GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

// Repository handles portfolio_holdings on the core database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Add records a new holding and returns it with its assigned ID.
func (r *Repository) Add(h domain.Holding) (*domain.Holding, error) {
	if h.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if h.PurchasePrice <= 0 {
		return nil, fmt.Errorf("purchase price must be positive")
	}

	result, err := r.db.Exec(`
		INSERT INTO portfolio_holdings
		(user_id, symbol, exchange, quantity, purchase_price, purchase_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.UserID, h.Symbol, h.Exchange, h.Quantity, h.PurchasePrice,
		h.PurchaseDate.Format(dateLayout), time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add holding %s: %w", h.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get holding id: %w", err)
	}
	h.ID = id

	r.log.Info().Str("symbol", h.Symbol).Float64("quantity", h.Quantity).Msg("Holding added")
	return &h, nil
}

// Remove deletes a holding owned by the given user. The user check stops
// one user deleting another's position.
func (r *Repository) Remove(userID, holdingID int64) error {
	result, err := r.db.Exec(
		"DELETE FROM portfolio_holdings WHERE id = ? AND user_id = ?",
		holdingID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove holding %d: %w", holdingID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check holding removal: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("holding %d not found for user %d", holdingID, userID)
	}
	return nil
}

// ForUser returns a user's holdings ordered by symbol.
func (r *Repository) ForUser(userID int64) ([]domain.Holding, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, symbol, exchange, quantity, purchase_price, purchase_date
		FROM portfolio_holdings WHERE user_id = ? ORDER BY symbol, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings for user %d: %w", userID, err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var purchaseDate string
		if err := rows.Scan(&h.ID, &h.UserID, &h.Symbol, &h.Exchange,
			&h.Quantity, &h.PurchasePrice, &purchaseDate); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if h.PurchaseDate, err = time.Parse(dateLayout, purchaseDate); err != nil {
			return nil, fmt.Errorf("bad purchase_date %q: %w", purchaseDate, err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}

	return holdings, nil
}

// Value prices a user's holdings at current quotes. A holding whose quote
// is unavailable is returned unpriced (CurrentPrice zero) rather than
// failing the whole portfolio.
func (r *Repository) Value(ctx context.Context, userID int64, quotes Quoter) ([]Valuation, error) {
	holdings, err := r.ForUser(userID)
	if err != nil {
		return nil, err
	}

	valuations := make([]Valuation, 0, len(holdings))
	for _, h := range holdings {
		v := Valuation{Holding: h}

		quote, err := quotes.GetQuote(ctx, h.Symbol)
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", h.Symbol).Msg("Quote unavailable for valuation")
			valuations = append(valuations, v)
			continue
		}

		v.CurrentPrice = quote.Price
		v.MarketValue = quote.Price * h.Quantity
		v.UnrealizedPnL = (quote.Price - h.PurchasePrice) / h.PurchasePrice * 100
		valuations = append(valuations, v)
	}

	return valuations, nil
}
