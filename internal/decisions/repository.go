// Package decisions persists completed analyses and their realized outcomes.
package decisions

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"marketmind/internal/database"
	"marketmind/internal/domain"
)

// decisionColumns is the column list for the decisions table.
// Order must match scanDecision.
const decisionColumns = `id, symbol, exchange, decision, confidence, technical_summary, fundamental_summary, sentiment_summary, final_summary, price_at_decision, profit_loss, created_at`

// PerformanceSummary aggregates realized outcomes across all closed calls.
type PerformanceSummary struct {
	TotalTrades   int              `json:"total_trades"`
	WinRatePct    float64          `json:"win_rate_percent"`
	AveragePnLPct float64          `json:"average_pnl_percent"`
	BestTrade     *domain.Decision `json:"best_trade,omitempty"`
	WorstTrade    *domain.Decision `json:"worst_trade,omitempty"`
}

// Repository handles decisions table operations on the core database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a decisions repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "decisions").Logger(),
	}
}

// Create inserts a new decision record. The decision value is validated
// against the closed set before insertion; price_at_decision is never
// updated afterwards.
func (r *Repository) Create(decision domain.Decision) error {
	if _, err := domain.ParseDecisionValue(string(decision.Value)); err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}

	query := `
		INSERT INTO decisions
		(id, symbol, exchange, decision, confidence, technical_summary,
		 fundamental_summary, sentiment_summary, final_summary,
		 price_at_decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		decision.ID,
		decision.Symbol,
		decision.Exchange,
		string(decision.Value),
		decision.Confidence,
		decision.TechnicalSummary,
		decision.FundamentalSummary,
		decision.SentimentSummary,
		decision.FinalSummary,
		decision.PriceAtDecision,
		decision.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}

	r.log.Info().
		Str("symbol", decision.Symbol).
		Str("decision", string(decision.Value)).
		Msg("Decision created")

	return nil
}

// LatestFor returns the most recent decision for a symbol, or nil when
// none exists.
func (r *Repository) LatestFor(symbol string) (*domain.Decision, error) {
	query := "SELECT " + decisionColumns + " FROM decisions WHERE symbol = ? ORDER BY created_at DESC LIMIT 1"

	decision, err := scanDecision(r.db.QueryRow(query, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest decision for %s: %w", symbol, err)
	}

	return &decision, nil
}

// History returns all decisions for a symbol, newest first.
func (r *Repository) History(symbol string) ([]domain.Decision, error) {
	query := "SELECT " + decisionColumns + " FROM decisions WHERE symbol = ? ORDER BY created_at DESC"

	rows, err := r.db.Query(query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get decision history for %s: %w", symbol, err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

// RecentClosed returns the most recent decisions for a symbol that have a
// realized P&L, newest first. Used for the advisor's feedback loop.
func (r *Repository) RecentClosed(symbol string, limit int) ([]domain.Decision, error) {
	query := "SELECT " + decisionColumns + ` FROM decisions
		WHERE symbol = ? AND profit_loss IS NOT NULL
		ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.Query(query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get closed decisions for %s: %w", symbol, err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

// LatestRecommendations returns the newest BUY/SELL call per symbol made
// within the lookback window.
func (r *Repository) LatestRecommendations(lookback time.Duration) ([]domain.Decision, error) {
	cutoff := time.Now().Add(-lookback).Unix()

	// Newest row per symbol via a correlated subquery; SQLite has no
	// DISTINCT ON
	query := "SELECT " + decisionColumns + ` FROM decisions d
		WHERE decision IN ('BUY', 'SELL')
		  AND created_at > ?
		  AND created_at = (
			SELECT MAX(created_at) FROM decisions
			WHERE symbol = d.symbol AND decision IN ('BUY', 'SELL') AND created_at > ?
		  )
		ORDER BY symbol`

	rows, err := r.db.Query(query, cutoff, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest recommendations: %w", err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

// PendingPnL returns BUY/SELL decisions whose realized P&L has not been
// backfilled yet.
func (r *Repository) PendingPnL() ([]domain.Decision, error) {
	query := "SELECT " + decisionColumns + ` FROM decisions
		WHERE profit_loss IS NULL AND decision IN ('BUY', 'SELL')
		ORDER BY created_at`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending P&L decisions: %w", err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

// BackfillPnL sets the realized P&L for a decision. This is the only
// mutation a decision record ever receives.
func (r *Repository) BackfillPnL(id string, pnlPercent float64) error {
	result, err := r.db.Exec("UPDATE decisions SET profit_loss = ? WHERE id = ?", pnlPercent, id)
	if err != nil {
		return fmt.Errorf("failed to backfill P&L for decision %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check P&L backfill for decision %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("decision %s not found", id)
	}

	return nil
}

// Performance computes win rate, average P&L and best/worst closed trades.
func (r *Repository) Performance() (*PerformanceSummary, error) {
	query := "SELECT " + decisionColumns + ` FROM decisions
		WHERE profit_loss IS NOT NULL AND decision IN ('BUY', 'SELL')
		ORDER BY profit_loss DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get performance summary: %w", err)
	}
	defer rows.Close()

	closed, err := collectDecisions(rows)
	if err != nil {
		return nil, err
	}

	summary := &PerformanceSummary{TotalTrades: len(closed)}
	if len(closed) == 0 {
		return summary, nil
	}

	pnls := make([]float64, len(closed))
	wins := 0
	for i, d := range closed {
		pnls[i] = *d.ProfitLoss
		if *d.ProfitLoss > 0 {
			wins++
		}
	}

	summary.WinRatePct = float64(wins) / float64(len(closed)) * 100
	summary.AveragePnLPct = stat.Mean(pnls, nil)

	// closed is ordered by profit_loss DESC
	best := closed[0]
	worst := closed[len(closed)-1]
	summary.BestTrade = &best
	summary.WorstTrade = &worst

	return summary, nil
}

// SweepOlderThan deletes decisions created before now-horizon. Used by the
// long-horizon retention sweep (default 30 days), independent of cache
// freshness.
func (r *Repository) SweepOlderThan(horizon time.Duration) (int64, error) {
	cutoff := time.Now().Add(-horizon).Unix()

	result, err := r.db.Exec("DELETE FROM decisions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep decisions: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept decisions: %w", err)
	}

	if removed > 0 {
		r.log.Info().Int64("removed", removed).Dur("horizon", horizon).Msg("Decision sweep completed")
	}

	return removed, nil
}

// LinkUser associates a decision with a user (ancillary join relation).
func (r *Repository) LinkUser(decisionID string, userID int64) error {
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO decision_users (decision_id, user_id) VALUES (?, ?)",
		decisionID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to link decision %s to user %d: %w", decisionID, userID, err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanDecision.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row rowScanner) (domain.Decision, error) {
	var d domain.Decision
	var value string
	var profitLoss sql.NullFloat64
	var createdAt int64

	err := row.Scan(
		&d.ID, &d.Symbol, &d.Exchange, &value, &d.Confidence,
		&d.TechnicalSummary, &d.FundamentalSummary, &d.SentimentSummary, &d.FinalSummary,
		&d.PriceAtDecision, &profitLoss, &createdAt,
	)
	if err != nil {
		return domain.Decision{}, err
	}

	d.Value = domain.DecisionValue(value)
	if profitLoss.Valid {
		d.ProfitLoss = &profitLoss.Float64
	}
	d.CreatedAt = time.Unix(createdAt, 0).UTC()

	return d, nil
}

func collectDecisions(rows *sql.Rows) ([]domain.Decision, error) {
	var decisions []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return decisions, nil
}
