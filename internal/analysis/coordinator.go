// Package analysis contains the fetch coordinator: the component that
// decides, for a (symbol, exchange) key, whether to serve cached market
// data and decisions or to fetch and recompute, while guaranteeing at
// most one in-flight external fetch per key.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/stat"

	"marketmind/internal/cache"
	"marketmind/internal/domain"
	"marketmind/internal/indicators"
	"marketmind/internal/metrics"
)

// MarketDataSource supplies raw OHLCV series for a symbol.
// Implementations must return *DataFetchError for provider failures.
type MarketDataSource interface {
	Fetch(ctx context.Context, symbol, exchange string) (domain.Series, error)
}

// DecisionRequest carries everything the decision provider needs.
type DecisionRequest struct {
	Symbol          string
	Exchange        string
	Bars            domain.Series
	Indicators      indicators.Snapshot
	PastPerformance string
}

// Advice is a validated, structured decision from the AI provider.
type Advice struct {
	Value              domain.DecisionValue
	Confidence         string
	TechnicalSummary   string
	FundamentalSummary string
	SentimentSummary   string
	FinalSummary       string
}

// DecisionSource supplies a structured decision given data and indicators.
type DecisionSource interface {
	Decide(ctx context.Context, req DecisionRequest) (*Advice, error)
}

// CacheStore is the persistence contract the coordinator needs.
type CacheStore interface {
	Get(symbol, exchange string) (*cache.Entry, bool, error)
	Put(entry cache.Entry) error
}

// DecisionStore persists and reads decision records.
type DecisionStore interface {
	Create(decision domain.Decision) error
	LatestFor(symbol string) (*domain.Decision, error)
	RecentClosed(symbol string, limit int) ([]domain.Decision, error)
}

// FallbackPolicy selects the behavior when a fetch fails on a key that
// still has a stale cache entry.
type FallbackPolicy int

const (
	// FailFast propagates the fetch error. Default for interactive requests.
	FailFast FallbackPolicy = iota
	// ServeStale returns the stale entry flagged stale=true.
	// Used by scheduled and background work.
	ServeStale
)

// Result is the payload returned to every caller of Analyze.
type Result struct {
	Symbol      string              `json:"symbol"`
	Exchange    string              `json:"exchange"`
	Bars        domain.Series       `json:"data"`
	Indicators  indicators.Snapshot `json:"indicators"`
	Decision    *domain.Decision    `json:"decision,omitempty"`
	Cached      bool                `json:"cached"`
	Stale       bool                `json:"stale"`
	LastUpdated time.Time           `json:"last_updated"`
}

// Coordinator orchestrates cache lookups, deduplicated fetches, indicator
// computation and persistence. It owns no entries itself: the CacheStore
// is the single synchronization point, constructed once at startup and
// injected here.
type Coordinator struct {
	marketData MarketDataSource
	decider    DecisionSource
	cacheRepo  CacheStore
	decisions  DecisionStore
	ttl        time.Duration
	metrics    *metrics.Metrics
	log        zerolog.Logger

	group singleflight.Group
}

// NewCoordinator creates the fetch coordinator.
func NewCoordinator(
	marketData MarketDataSource,
	decider DecisionSource,
	cacheRepo CacheStore,
	decisions DecisionStore,
	ttl time.Duration,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		marketData: marketData,
		decider:    decider,
		cacheRepo:  cacheRepo,
		decisions:  decisions,
		ttl:        ttl,
		metrics:    m,
		log:        log.With().Str("component", "coordinator").Logger(),
	}
}

// fetchOutcome is what the singleflight leader hands to every waiter.
type fetchOutcome struct {
	entry       cache.Entry
	decision    *domain.Decision
	decisionErr error
}

// Analyze returns the analysis payload for a (symbol, exchange) request.
//
// Fresh cache hits return immediately without external calls. Otherwise at
// most one concurrent fetch runs per key; all racing callers share its
// outcome. On a fetch failure with a stale entry present, the policy decides
// between propagating the error and serving the stale entry flagged stale.
//
// A decisioning failure after a successful data refresh still updates the
// cache; the returned Result then carries the fresh data alongside a
// non-nil *DecisionError so callers can tell "no fresh data" apart from
// "data fresh but no decision".
func (c *Coordinator) Analyze(ctx context.Context, rawSymbol, rawExchange string, policy FallbackPolicy) (*Result, error) {
	symbol, exchange, err := NormalizeSymbol(rawSymbol, rawExchange)
	if err != nil {
		return nil, err
	}

	entry, found, err := c.cacheRepo.Get(symbol, exchange)
	if err != nil {
		return nil, &PersistenceError{Op: "cache lookup", Err: err}
	}

	now := time.Now()
	if found && entry.FreshAt(now, c.ttl) {
		c.metrics.CacheHits.Inc()
		return c.cachedResult(entry, false), nil
	}

	c.metrics.CacheMisses.Inc()

	var stale *cache.Entry
	if found {
		stale = entry
	}

	key := symbol + "|" + exchange
	// The leader runs detached from the caller's context: a caller timing
	// out abandons only its own wait, the in-flight fetch completes and
	// future requests still benefit from it.
	leaderCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.leaderFetch(leaderCtx, symbol, exchange)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case res := <-ch:
		if res.Shared {
			c.metrics.DedupedRequests.Inc()
		}

		if res.Err != nil {
			if fe, ok := IsDataFetch(res.Err); ok {
				c.metrics.FetchErrors.WithLabelValues(string(fe.Kind)).Inc()
				if policy == ServeStale && stale != nil {
					c.metrics.StaleFallbacks.Inc()
					c.log.Warn().
						Str("symbol", symbol).
						Str("kind", string(fe.Kind)).
						Msg("Fetch failed, serving stale cache entry")
					return c.cachedResult(stale, true), nil
				}
			}
			return nil, res.Err
		}

		outcome := res.Val.(*fetchOutcome)
		result := &Result{
			Symbol:      symbol,
			Exchange:    exchange,
			Bars:        outcome.entry.Bars,
			Indicators:  outcome.entry.Indicators,
			Decision:    outcome.decision,
			Cached:      false,
			Stale:       false,
			LastUpdated: outcome.entry.LastUpdated,
		}

		if outcome.decisionErr != nil {
			// Data was refreshed and cached; only decisioning failed
			return result, outcome.decisionErr
		}
		return result, nil
	}
}

// cachedResult assembles a Result from a cache entry, attaching the most
// recent persisted decision for the symbol when one exists.
func (c *Coordinator) cachedResult(entry *cache.Entry, staleServe bool) *Result {
	decision, err := c.decisions.LatestFor(entry.Symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", entry.Symbol).Msg("Failed to load latest decision for cached result")
	}

	return &Result{
		Symbol:      entry.Symbol,
		Exchange:    entry.Exchange,
		Bars:        entry.Bars,
		Indicators:  entry.Indicators,
		Decision:    decision,
		Cached:      true,
		Stale:       staleServe,
		LastUpdated: entry.LastUpdated,
	}
}

// leaderFetch performs the single external fetch for a key: market data,
// indicator computation, AI decision, then persistence. Exactly one
// leaderFetch runs per key at any time.
func (c *Coordinator) leaderFetch(ctx context.Context, symbol, exchange string) (*fetchOutcome, error) {
	start := time.Now()
	defer func() {
		c.metrics.FetchDur.Observe(time.Since(start).Seconds())
	}()

	bars, err := c.marketData.Fetch(ctx, symbol, exchange)
	if err != nil {
		// A failed fetch never overwrites the existing entry
		if _, ok := IsDataFetch(err); !ok {
			err = NewDataFetchError(symbol, FetchUnavailable, err)
		}
		return nil, err
	}

	// An empty series is a fetch failure too: it must never reach the
	// cache, where it would overwrite a good entry.
	last, ok := bars.Last()
	if !ok {
		return nil, NewDataFetchError(symbol, FetchUnavailable, fmt.Errorf("provider returned an empty series"))
	}

	snapshot := indicators.Compute(bars)

	advice, decisionErr := c.decider.Decide(ctx, DecisionRequest{
		Symbol:          symbol,
		Exchange:        exchange,
		Bars:            bars,
		Indicators:      snapshot,
		PastPerformance: c.pastPerformance(symbol),
	})

	entry := cache.Entry{
		Symbol:      symbol,
		Exchange:    exchange,
		Bars:        bars,
		Indicators:  snapshot,
		LastUpdated: time.Now().UTC(),
	}

	// Fresh data is cached even when decisioning failed, so future
	// requests benefit from the fetch that already happened
	if err := c.cacheRepo.Put(entry); err != nil {
		return nil, &PersistenceError{Op: "cache write", Err: err}
	}

	if decisionErr != nil {
		c.metrics.DecisionErrors.Inc()
		if !IsDecision(decisionErr) {
			decisionErr = &DecisionError{Symbol: symbol, Err: decisionErr}
		}
		return &fetchOutcome{entry: entry, decisionErr: decisionErr}, nil
	}

	decision := domain.Decision{
		ID:                 uuid.NewString(),
		Symbol:             symbol,
		Exchange:           exchange,
		Value:              advice.Value,
		Confidence:         advice.Confidence,
		TechnicalSummary:   advice.TechnicalSummary,
		FundamentalSummary: advice.FundamentalSummary,
		SentimentSummary:   advice.SentimentSummary,
		FinalSummary:       advice.FinalSummary,
		PriceAtDecision:    last.Close,
		CreatedAt:          time.Now().UTC(),
	}

	if err := c.decisions.Create(decision); err != nil {
		return nil, &PersistenceError{Op: "decision write", Err: err}
	}

	c.metrics.DecisionsTotal.WithLabelValues(string(decision.Value)).Inc()
	c.log.Info().
		Str("symbol", symbol).
		Str("decision", string(decision.Value)).
		Float64("price", decision.PriceAtDecision).
		Msg("Analysis completed")

	return &fetchOutcome{entry: entry, decision: &decision}, nil
}

// pastPerformance summarizes the model's own recent track record on a
// symbol for the decision prompt, mirroring the feedback loop the advisor
// expects. Failures degrade to the no-data message.
func (c *Coordinator) pastPerformance(symbol string) string {
	closed, err := c.decisions.RecentClosed(symbol, 3)
	if err != nil || len(closed) == 0 {
		return "No past performance data available for this item."
	}

	calls := make([]string, len(closed))
	pnls := make([]float64, 0, len(closed))
	for i, d := range closed {
		calls[i] = string(d.Value)
		if d.ProfitLoss != nil {
			pnls = append(pnls, *d.ProfitLoss)
		}
	}

	avg := stat.Mean(pnls, nil)
	return fmt.Sprintf("Your last %d recommendations were [%s]. Average P&L: %.2f%%.",
		len(closed), strings.Join(calls, ", "), avg)
}
