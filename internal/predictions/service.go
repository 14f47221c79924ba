package predictions

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"marketmind/internal/clients/advisor"
	"marketmind/internal/domain"
	"marketmind/internal/metrics"
)

// TrackedIndices are the index symbols the weekly review covers: NIFTY 50
// and the BSE SENSEX.
var TrackedIndices = []string{"^NSEI", "^BSESN"}

// Forecaster produces a day-wise weekly prediction for an index.
type Forecaster interface {
	PredictWeek(ctx context.Context, symbol string, summary advisor.MarketSummary, weekStart, weekEnd time.Time) (*advisor.WeeklyForecast, error)
}

// HistorySource supplies historical index bars.
type HistorySource interface {
	Fetch(ctx context.Context, symbol, exchange string) (domain.Series, error)
	FetchRange(ctx context.Context, symbol string, from, to time.Time) (domain.Series, error)
}

// Store is the prediction persistence surface the service needs.
type Store interface {
	Create(p domain.WeeklyPrediction) error
	ForWeek(symbol string, weekStart time.Time) (*domain.WeeklyPrediction, error)
	PendingEnded(before time.Time) ([]domain.WeeklyPrediction, error)
	Reconcile(id string, actualClose float64, summary string, at time.Time) error
}

// Service runs the weekly prediction cycle: reconcile finished weeks, then
// generate forecasts for the upcoming week.
type Service struct {
	store      Store
	forecaster Forecaster
	market     HistorySource
	metrics    *metrics.Metrics
	symbols    []string
	log        zerolog.Logger
}

// NewService creates the weekly prediction service for the tracked indices.
func NewService(store Store, forecaster Forecaster, market HistorySource, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{
		store:      store,
		forecaster: forecaster,
		market:     market,
		metrics:    m,
		symbols:    TrackedIndices,
		log:        log.With().Str("service", "predictions").Logger(),
	}
}

// RunCycle reconciles all ended weeks and then generates predictions for
// the upcoming week. Partial failures are logged per symbol; one index
// failing never blocks the other.
func (s *Service) RunCycle(ctx context.Context, now time.Time) error {
	var firstErr error

	if err := s.ReconcileEnded(ctx, now); err != nil {
		firstErr = err
	}
	if err := s.GenerateUpcoming(ctx, now); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// GenerateUpcoming creates a PENDING prediction for each tracked index for
// the next trading week. Weeks that already have a prediction are skipped;
// a forecast is never regenerated.
func (s *Service) GenerateUpcoming(ctx context.Context, now time.Time) error {
	weekStart := NextWeekStart(now)
	weekEnd := weekStart.AddDate(0, 0, 4)

	var firstErr error
	for _, symbol := range s.symbols {
		existing, err := s.store.ForWeek(symbol, weekStart)
		if err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("Prediction lookup failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if existing != nil {
			s.log.Debug().Str("symbol", symbol).Msg("Prediction already exists for upcoming week")
			continue
		}

		if err := s.generateOne(ctx, symbol, now, weekStart, weekEnd); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("Weekly prediction failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (s *Service) generateOne(ctx context.Context, symbol string, now, weekStart, weekEnd time.Time) error {
	series, err := s.market.Fetch(ctx, symbol, "")
	if err != nil {
		return fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
	}
	if len(series) == 0 {
		return fmt.Errorf("no history available for %s", symbol)
	}

	forecast, err := s.forecaster.PredictWeek(ctx, symbol, advisor.SummarizeYear(series), weekStart, weekEnd)
	if err != nil {
		return err
	}

	prediction := domain.WeeklyPrediction{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		PredictionDate: now,
		WeekStart:      weekStart,
		WeekEnd:        weekEnd,
		Forecast:       forecast.Days,
		Reasoning:      forecast.Reasoning,
		Status:         domain.PredictionPending,
		CreatedAt:      now,
	}

	if err := s.store.Create(prediction); err != nil {
		return err
	}

	s.log.Info().
		Str("symbol", symbol).
		Str("week_start", weekStart.Format("2006-01-02")).
		Int("days", len(forecast.Days)).
		Msg("Weekly prediction generated")

	return nil
}

// ReconcileEnded evaluates every PENDING prediction whose week has ended
// against the realized daily closes. Reconciliation happens exactly once
// per prediction; the result is a per-day deviation report.
func (s *Service) ReconcileEnded(ctx context.Context, now time.Time) error {
	pending, err := s.store.PendingEnded(now)
	if err != nil {
		return err
	}

	var firstErr error
	for _, p := range pending {
		if err := s.reconcileOne(ctx, p, now); err != nil {
			s.log.Error().Err(err).Str("symbol", p.Symbol).Msg("Prediction reconciliation failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (s *Service) reconcileOne(ctx context.Context, p domain.WeeklyPrediction, now time.Time) error {
	// Fetch through the weekend so the Friday bar is always inside the range.
	actual, err := s.market.FetchRange(ctx, p.Symbol, p.WeekStart, p.WeekEnd.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("failed to fetch actuals for %s: %w", p.Symbol, err)
	}
	if len(actual) == 0 {
		// Data not available yet; leave PENDING for the next run.
		s.log.Warn().Str("symbol", p.Symbol).Msg("No actual closes available, deferring reconciliation")
		return nil
	}

	closeByDay := make(map[string]float64, len(actual))
	for _, bar := range actual {
		closeByDay[bar.Date.Weekday().String()] = bar.Close
	}

	var errorsPct []float64
	var lines []string
	for _, day := range p.Forecast {
		actualClose, ok := closeByDay[day.Day]
		if !ok {
			lines = append(lines, fmt.Sprintf("%s: predicted %.2f, no trading", day.Day, day.PredictedClose))
			continue
		}
		deviation := (day.PredictedClose - actualClose) / actualClose * 100
		errorsPct = append(errorsPct, math.Abs(deviation))
		lines = append(lines, fmt.Sprintf("%s: predicted %.2f, actual %.2f (%+.2f%%)",
			day.Day, day.PredictedClose, actualClose, deviation))
	}
	if len(errorsPct) == 0 {
		return fmt.Errorf("no predicted days matched a trading day for %s week of %s",
			p.Symbol, p.WeekStart.Format("2006-01-02"))
	}

	summary := fmt.Sprintf("Average absolute error %.2f%% over %d trading days.\n%s",
		stat.Mean(errorsPct, nil), len(errorsPct), strings.Join(lines, "\n"))
	finalClose := actual[len(actual)-1].Close

	if err := s.store.Reconcile(p.ID, finalClose, summary, now); err != nil {
		return err
	}

	s.metrics.ReconciledWeeks.Inc()
	s.log.Info().
		Str("symbol", p.Symbol).
		Str("week_start", p.WeekStart.Format("2006-01-02")).
		Float64("avg_abs_error_pct", stat.Mean(errorsPct, nil)).
		Msg("Weekly prediction reconciled")

	return nil
}

// NextWeekStart returns the Monday of the next trading week, in UTC at
// midnight. Run on a Saturday this is the upcoming Monday; run on a Monday
// it is the Monday a week out, keeping forecasts strictly forward-looking.
func NextWeekStart(now time.Time) time.Time {
	day := now.UTC().Truncate(24 * time.Hour)
	offset := (int(time.Monday) - int(day.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, offset)
}
