// Package jobs contains the scheduled background work: the weekly index
// review, realized P&L backfill, proactive watchlist refresh, and the
// retention sweep.
package jobs

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"marketmind/internal/analysis"
	"marketmind/internal/clients/marketdata"
	"marketmind/internal/domain"
	"marketmind/internal/metrics"
)

// priceEpsilon is the minimum price movement treated as a real market
// update. A quote within this delta of the decision price means the market
// has not traded since the call was made (weekend or holiday), so the
// P&L stays open rather than being recorded as zero.
const priceEpsilon = 0.01

// WeeklyReviewer runs one full prediction cycle.
type WeeklyReviewer interface {
	RunCycle(ctx context.Context, now time.Time) error
}

// WeeklyReview reconciles last week's index predictions and generates the
// coming week's forecasts.
type WeeklyReview struct {
	service WeeklyReviewer
	log     zerolog.Logger
}

// NewWeeklyReview creates the weekly review job.
func NewWeeklyReview(service WeeklyReviewer, log zerolog.Logger) *WeeklyReview {
	return &WeeklyReview{
		service: service,
		log:     log.With().Str("job", "weekly_review").Logger(),
	}
}

func (j *WeeklyReview) Name() string { return "weekly_review" }

func (j *WeeklyReview) Run(ctx context.Context) error {
	return j.service.RunCycle(ctx, time.Now().UTC())
}

// PendingDecisionStore is the decisions surface the P&L job needs.
type PendingDecisionStore interface {
	PendingPnL() ([]domain.Decision, error)
	BackfillPnL(id string, pnlPercent float64) error
}

// Quoter supplies a current market quote for a symbol.
type Quoter interface {
	GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

// PnLUpdate backfills realized P&L for open BUY/SELL decisions using the
// latest market price.
type PnLUpdate struct {
	decisions PendingDecisionStore
	quotes    Quoter
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewPnLUpdate creates the P&L backfill job.
func NewPnLUpdate(decisions PendingDecisionStore, quotes Quoter, m *metrics.Metrics, log zerolog.Logger) *PnLUpdate {
	return &PnLUpdate{
		decisions: decisions,
		quotes:    quotes,
		metrics:   m,
		log:       log.With().Str("job", "pnl_update").Logger(),
	}
}

func (j *PnLUpdate) Name() string { return "pnl_update" }

func (j *PnLUpdate) Run(ctx context.Context) error {
	pending, err := j.decisions.PendingPnL()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	updated := 0
	for _, d := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		quote, err := j.quotes.GetQuote(ctx, d.Symbol)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", d.Symbol).Msg("Quote unavailable, skipping")
			continue
		}

		if math.Abs(quote.Price-d.PriceAtDecision) < priceEpsilon {
			continue
		}

		pnl := (quote.Price - d.PriceAtDecision) / d.PriceAtDecision * 100
		if d.Value == domain.DecisionSell {
			// A SELL call profits when the price falls.
			pnl = -pnl
		}

		if err := j.decisions.BackfillPnL(d.ID, pnl); err != nil {
			j.log.Error().Err(err).Str("id", d.ID).Msg("P&L backfill failed")
			continue
		}

		j.metrics.PnLBackfills.Inc()
		updated++
	}

	j.log.Info().Int("pending", len(pending)).Int("updated", updated).Msg("P&L update completed")
	return nil
}

// WatchedSymbols lists the distinct symbols users are watching.
type WatchedSymbols interface {
	DistinctSymbols() ([]domain.WatchlistItem, error)
}

// Analyzer runs one analysis pass for a symbol.
type Analyzer interface {
	Analyze(ctx context.Context, symbol, exchange string, policy analysis.FallbackPolicy) (*analysis.Result, error)
}

// WatchlistRefresh proactively analyzes every watched symbol so interactive
// requests land on a warm cache. Runs with the stale-tolerant policy since
// no user is waiting on the result.
type WatchlistRefresh struct {
	watchlist WatchedSymbols
	analyzer  Analyzer
	log       zerolog.Logger
}

// NewWatchlistRefresh creates the watchlist refresh job.
func NewWatchlistRefresh(watchlist WatchedSymbols, analyzer Analyzer, log zerolog.Logger) *WatchlistRefresh {
	return &WatchlistRefresh{
		watchlist: watchlist,
		analyzer:  analyzer,
		log:       log.With().Str("job", "watchlist_refresh").Logger(),
	}
}

func (j *WatchlistRefresh) Name() string { return "watchlist_refresh" }

func (j *WatchlistRefresh) Run(ctx context.Context) error {
	items, err := j.watchlist.DistinctSymbols()
	if err != nil {
		return err
	}

	failures := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := j.analyzer.Analyze(ctx, item.Symbol, item.Exchange, analysis.ServeStale); err != nil {
			failures++
			j.log.Warn().Err(err).Str("symbol", item.Symbol).Msg("Watchlist analysis failed")
		}
	}

	j.log.Info().Int("symbols", len(items)).Int("failures", failures).Msg("Watchlist refresh completed")
	return nil
}

// BackupRunner creates and rotates cloud backups.
type BackupRunner interface {
	CreateAndUploadBackup(ctx context.Context) error
	RotateOldBackups(ctx context.Context, retentionDays int) error
}

// CloudBackup snapshots the databases to object storage and rotates aged
// archives.
type CloudBackup struct {
	backups       BackupRunner
	retentionDays int
	log           zerolog.Logger
}

// NewCloudBackup creates the cloud backup job.
func NewCloudBackup(backups BackupRunner, retentionDays int, log zerolog.Logger) *CloudBackup {
	return &CloudBackup{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "cloud_backup").Logger(),
	}
}

func (j *CloudBackup) Name() string { return "cloud_backup" }

func (j *CloudBackup) Run(ctx context.Context) error {
	if err := j.backups.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	if err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// CacheSweeper removes cache rows older than a horizon.
type CacheSweeper interface {
	SweepOlderThan(horizon time.Duration) (int64, error)
}

// DecisionSweeper removes decision rows older than a horizon.
type DecisionSweeper interface {
	SweepOlderThan(horizon time.Duration) (int64, error)
}

// RetentionSweep deletes aged cache entries and decision records. Retention
// horizons are independent of the cache freshness TTL: a stale entry stays
// available for degraded fallback until the sweep removes it.
type RetentionSweep struct {
	cache             CacheSweeper
	decisions         DecisionSweeper
	cacheRetention    time.Duration
	decisionRetention time.Duration
	metrics           *metrics.Metrics
	log               zerolog.Logger
}

// NewRetentionSweep creates the retention sweep job.
func NewRetentionSweep(cache CacheSweeper, decisions DecisionSweeper, cacheRetention, decisionRetention time.Duration, m *metrics.Metrics, log zerolog.Logger) *RetentionSweep {
	return &RetentionSweep{
		cache:             cache,
		decisions:         decisions,
		cacheRetention:    cacheRetention,
		decisionRetention: decisionRetention,
		metrics:           m,
		log:               log.With().Str("job", "retention_sweep").Logger(),
	}
}

func (j *RetentionSweep) Name() string { return "retention_sweep" }

func (j *RetentionSweep) Run(ctx context.Context) error {
	sweptCache, err := j.cache.SweepOlderThan(j.cacheRetention)
	if err != nil {
		return err
	}
	j.metrics.SweptCacheRows.Add(float64(sweptCache))

	sweptDecisions, err := j.decisions.SweepOlderThan(j.decisionRetention)
	if err != nil {
		return err
	}
	j.metrics.SweptDecisions.Add(float64(sweptDecisions))

	j.log.Info().
		Int64("cache_rows", sweptCache).
		Int64("decision_rows", sweptDecisions).
		Msg("Retention sweep completed")

	return nil
}
