// Package predictions persists weekly index forecasts and reconciles them
// against realized closes at week end.
package predictions

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"marketmind/internal/database"
	"marketmind/internal/domain"
)

// predictionColumns is the column list for weekly_index_predictions.
// Order must match scanPrediction.
const predictionColumns = `id, symbol, prediction_date, week_start, week_end, daily_forecast, reasoning, status, actual_close, performance_summary, reconciled_at, created_at`

const dateLayout = "2006-01-02"

// ErrDuplicateWeek is returned by Create when a prediction already exists
// for the same (symbol, week_start) pair. Predictions are one-per-week.
var ErrDuplicateWeek = errors.New("prediction already exists for this week")

// Repository handles weekly prediction records on the core database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a predictions repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "predictions").Logger(),
	}
}

// Create inserts a new PENDING prediction. The forecast and reasoning are
// immutable after this write. Inserting a second prediction for the same
// symbol and week returns ErrDuplicateWeek.
func (r *Repository) Create(p domain.WeeklyPrediction) error {
	if len(p.Forecast) == 0 {
		return fmt.Errorf("failed to create prediction for %s: empty forecast", p.Symbol)
	}

	forecast, err := msgpack.Marshal(p.Forecast)
	if err != nil {
		return fmt.Errorf("failed to encode forecast for %s: %w", p.Symbol, err)
	}

	query := `
		INSERT INTO weekly_index_predictions
		(id, symbol, prediction_date, week_start, week_end, daily_forecast,
		 reasoning, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'PENDING', ?)
	`

	_, err = r.db.Exec(query,
		p.ID,
		p.Symbol,
		p.PredictionDate.Format(dateLayout),
		p.WeekStart.Format(dateLayout),
		p.WeekEnd.Format(dateLayout),
		forecast,
		p.Reasoning,
		p.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s week of %s", ErrDuplicateWeek, p.Symbol, p.WeekStart.Format(dateLayout))
		}
		return fmt.Errorf("failed to create prediction for %s: %w", p.Symbol, err)
	}

	r.log.Info().
		Str("symbol", p.Symbol).
		Str("week_start", p.WeekStart.Format(dateLayout)).
		Msg("Weekly prediction created")

	return nil
}

// ForWeek returns the prediction for a symbol and week start, or nil when
// none exists.
func (r *Repository) ForWeek(symbol string, weekStart time.Time) (*domain.WeeklyPrediction, error) {
	query := "SELECT " + predictionColumns + " FROM weekly_index_predictions WHERE symbol = ? AND week_start = ?"

	p, err := scanPrediction(r.db.QueryRow(query, symbol, weekStart.Format(dateLayout)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction for %s: %w", symbol, err)
	}

	return &p, nil
}

// PendingForWeek returns all PENDING predictions whose week started on the
// given date. Used by the weekly review to find last week's unevaluated
// forecasts.
func (r *Repository) PendingForWeek(weekStart time.Time) ([]domain.WeeklyPrediction, error) {
	query := "SELECT " + predictionColumns + ` FROM weekly_index_predictions
		WHERE status = 'PENDING' AND week_start = ?
		ORDER BY symbol`

	rows, err := r.db.Query(query, weekStart.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get pending predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// PendingEnded returns all PENDING predictions whose week has already
// ended. This catches weeks missed by a skipped review run, not just the
// immediately previous one.
func (r *Repository) PendingEnded(before time.Time) ([]domain.WeeklyPrediction, error) {
	query := "SELECT " + predictionColumns + ` FROM weekly_index_predictions
		WHERE status = 'PENDING' AND week_end < ?
		ORDER BY week_start, symbol`

	rows, err := r.db.Query(query, before.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get ended pending predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// Reconcile moves a prediction PENDING -> RECONCILED and records the
// realized close and performance summary. The status guard in the WHERE
// clause makes reconciliation exactly-once: a second call for the same
// prediction affects zero rows and reports it.
func (r *Repository) Reconcile(id string, actualClose float64, summary string, at time.Time) error {
	query := `
		UPDATE weekly_index_predictions
		SET status = 'RECONCILED', actual_close = ?, performance_summary = ?, reconciled_at = ?
		WHERE id = ? AND status = 'PENDING'
	`

	result, err := r.db.Exec(query, actualClose, summary, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to reconcile prediction %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check reconciliation of prediction %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("prediction %s not found or already reconciled", id)
	}

	r.log.Info().Str("id", id).Float64("actual_close", actualClose).Msg("Prediction reconciled")
	return nil
}

// RecentForSymbol returns the newest predictions for a symbol, newest week
// first, up to limit rows.
func (r *Repository) RecentForSymbol(symbol string, limit int) ([]domain.WeeklyPrediction, error) {
	query := "SELECT " + predictionColumns + ` FROM weekly_index_predictions
		WHERE symbol = ?
		ORDER BY week_start DESC LIMIT ?`

	rows, err := r.db.Query(query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get predictions for %s: %w", symbol, err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// RecentEvaluations returns reconciled predictions across all symbols,
// newest week first, up to limit rows.
func (r *Repository) RecentEvaluations(limit int) ([]domain.WeeklyPrediction, error) {
	query := "SELECT " + predictionColumns + ` FROM weekly_index_predictions
		WHERE status = 'RECONCILED'
		ORDER BY week_start DESC, symbol LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent evaluations: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// isUniqueViolation reports whether an error came from the UNIQUE
// (symbol, week_start) constraint. modernc.org/sqlite surfaces constraint
// failures in the error text, not as a typed value.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (domain.WeeklyPrediction, error) {
	var p domain.WeeklyPrediction
	var predictionDate, weekStart, weekEnd, status string
	var forecast []byte
	var actualClose sql.NullFloat64
	var performance sql.NullString
	var reconciledAt sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&p.ID, &p.Symbol, &predictionDate, &weekStart, &weekEnd,
		&forecast, &p.Reasoning, &status,
		&actualClose, &performance, &reconciledAt, &createdAt,
	)
	if err != nil {
		return domain.WeeklyPrediction{}, err
	}

	if p.PredictionDate, err = time.Parse(dateLayout, predictionDate); err != nil {
		return domain.WeeklyPrediction{}, fmt.Errorf("bad prediction_date %q: %w", predictionDate, err)
	}
	if p.WeekStart, err = time.Parse(dateLayout, weekStart); err != nil {
		return domain.WeeklyPrediction{}, fmt.Errorf("bad week_start %q: %w", weekStart, err)
	}
	if p.WeekEnd, err = time.Parse(dateLayout, weekEnd); err != nil {
		return domain.WeeklyPrediction{}, fmt.Errorf("bad week_end %q: %w", weekEnd, err)
	}
	if err := msgpack.Unmarshal(forecast, &p.Forecast); err != nil {
		return domain.WeeklyPrediction{}, fmt.Errorf("failed to decode forecast: %w", err)
	}

	p.Status = domain.PredictionStatus(status)
	if actualClose.Valid {
		p.ActualClose = &actualClose.Float64
	}
	if performance.Valid {
		p.PerformanceSummary = &performance.String
	}
	if reconciledAt.Valid {
		t := time.Unix(reconciledAt.Int64, 0).UTC()
		p.ReconciledAt = &t
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()

	return p, nil
}

func collectPredictions(rows *sql.Rows) ([]domain.WeeklyPrediction, error) {
	var predictions []domain.WeeklyPrediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return predictions, nil
}
