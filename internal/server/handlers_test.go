package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketmind/internal/analysis"
	"marketmind/internal/cache"
	"marketmind/internal/clients/marketdata"
	"marketmind/internal/decisions"
	"marketmind/internal/domain"
	"marketmind/internal/portfolio"
)

type stubAnalysis struct {
	result *analysis.Result
	err    error
	policy analysis.FallbackPolicy
}

func (s *stubAnalysis) Analyze(_ context.Context, symbol, exchange string, policy analysis.FallbackPolicy) (*analysis.Result, error) {
	s.policy = policy
	return s.result, s.err
}

type stubDecisions struct {
	history         []domain.Decision
	recommendations []domain.Decision
	performance     *decisions.PerformanceSummary
}

func (s *stubDecisions) History(string) ([]domain.Decision, error) { return s.history, nil }

func (s *stubDecisions) LatestRecommendations(time.Duration) ([]domain.Decision, error) {
	return s.recommendations, nil
}

func (s *stubDecisions) Performance() (*decisions.PerformanceSummary, error) {
	return s.performance, nil
}

type stubCache struct {
	entry *cache.Entry
}

func (s *stubCache) Get(string, string) (*cache.Entry, bool, error) {
	return s.entry, s.entry != nil, nil
}

type stubQuotes struct {
	quotes map[string]float64
}

func (s *stubQuotes) GetQuote(_ context.Context, symbol string) (*marketdata.Quote, error) {
	price, ok := s.quotes[symbol]
	if !ok {
		return nil, errors.New("no quote")
	}
	return &marketdata.Quote{Symbol: symbol, Price: price}, nil
}

type stubPredictions struct {
	recent      []domain.WeeklyPrediction
	evaluations []domain.WeeklyPrediction
}

func (s *stubPredictions) RecentForSymbol(string, int) ([]domain.WeeklyPrediction, error) {
	return s.recent, nil
}

func (s *stubPredictions) RecentEvaluations(int) ([]domain.WeeklyPrediction, error) {
	return s.evaluations, nil
}

type stubUsers struct {
	users   map[string]*domain.User
	items   map[int64][]domain.WatchlistItem
	nextID  int64
	removed []domain.WatchlistItem
}

func newStubUsers() *stubUsers {
	return &stubUsers{users: map[string]*domain.User{}, items: map[int64][]domain.WatchlistItem{}}
}

func (s *stubUsers) GetOrCreateUser(username string) (*domain.User, error) {
	if user, ok := s.users[username]; ok {
		return user, nil
	}
	s.nextID++
	user := &domain.User{ID: s.nextID, Username: username}
	s.users[username] = user
	return user, nil
}

func (s *stubUsers) GetUser(id int64) (*domain.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, nil
}

func (s *stubUsers) Add(item domain.WatchlistItem) error {
	s.items[item.UserID] = append(s.items[item.UserID], item)
	return nil
}

func (s *stubUsers) Remove(item domain.WatchlistItem) error {
	s.removed = append(s.removed, item)
	return nil
}

func (s *stubUsers) ForUser(userID int64) ([]domain.WatchlistItem, error) {
	return s.items[userID], nil
}

type stubPortfolio struct {
	holdings map[int64][]domain.Holding
	nextID   int64
}

func newStubPortfolio() *stubPortfolio {
	return &stubPortfolio{holdings: map[int64][]domain.Holding{}}
}

func (s *stubPortfolio) Add(h domain.Holding) (*domain.Holding, error) {
	if h.Quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}
	s.nextID++
	h.ID = s.nextID
	s.holdings[h.UserID] = append(s.holdings[h.UserID], h)
	return &h, nil
}

func (s *stubPortfolio) Remove(userID, holdingID int64) error {
	kept := s.holdings[userID][:0]
	found := false
	for _, h := range s.holdings[userID] {
		if h.ID == holdingID {
			found = true
			continue
		}
		kept = append(kept, h)
	}
	if !found {
		return errors.New("holding not found")
	}
	s.holdings[userID] = kept
	return nil
}

func (s *stubPortfolio) ForUser(userID int64) ([]domain.Holding, error) {
	return s.holdings[userID], nil
}

func (s *stubPortfolio) Value(_ context.Context, userID int64, quotes portfolio.Quoter) ([]portfolio.Valuation, error) {
	var valuations []portfolio.Valuation
	for _, h := range s.holdings[userID] {
		v := portfolio.Valuation{Holding: h}
		if quote, err := quotes.GetQuote(context.Background(), h.Symbol); err == nil {
			v.CurrentPrice = quote.Price
			v.MarketValue = quote.Price * h.Quantity
		}
		valuations = append(valuations, v)
	}
	return valuations, nil
}

type testDeps struct {
	analysis    *stubAnalysis
	decisions   *stubDecisions
	cache       *stubCache
	quotes      *stubQuotes
	predictions *stubPredictions
	users       *stubUsers
	portfolio   *stubPortfolio
}

func newTestServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		analysis:    &stubAnalysis{},
		decisions:   &stubDecisions{},
		cache:       &stubCache{},
		quotes:      &stubQuotes{quotes: map[string]float64{}},
		predictions: &stubPredictions{},
		users:       newStubUsers(),
		portfolio:   newStubPortfolio(),
	}

	srv := New(Config{
		Port: 0,
		Log:  zerolog.Nop(),
		Deps: Deps{
			Analysis:    deps.analysis,
			Decisions:   deps.decisions,
			Cache:       deps.cache,
			Quotes:      deps.quotes,
			Predictions: deps.predictions,
			Users:       deps.users,
			Portfolio:   deps.portfolio,
		},
		DevMode: true,
	})

	return srv, deps
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestAnalyzeReturnsResultWithFailFastPolicy(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.analysis.result = &analysis.Result{
		Symbol:      "RELIANCE.NS",
		Exchange:    "NSE",
		Cached:      true,
		LastUpdated: time.Now().UTC(),
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/analyze/RELIANCE", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "RELIANCE.NS", body["symbol"])
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, analysis.FailFast, deps.analysis.policy)
}

func TestAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "validation",
			err:        &analysis.ValidationError{Field: "symbol", Value: "bad$", Reason: "illegal characters"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not found",
			err:        analysis.NewDataFetchError("NOPE.NS", analysis.FetchNotFound, errors.New("unknown symbol")),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "rate limited",
			err:        analysis.NewDataFetchError("RELIANCE.NS", analysis.FetchRateLimited, errors.New("429")),
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "unavailable",
			err:        analysis.NewDataFetchError("RELIANCE.NS", analysis.FetchUnavailable, errors.New("timeout")),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "persistence",
			err:        &analysis.PersistenceError{Op: "cache write", Err: errors.New("disk full")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, deps := newTestServer(t)
			deps.analysis.err = tt.err

			rec := doRequest(t, srv, http.MethodGet, "/api/analyze/RELIANCE", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAnalyzeDecisionFailureStillReturnsData(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.analysis.result = &analysis.Result{Symbol: "RELIANCE.NS", Exchange: "NSE"}
	deps.analysis.err = &analysis.DecisionError{Symbol: "RELIANCE.NS", Err: errors.New("provider down")}

	rec := doRequest(t, srv, http.MethodGet, "/api/analyze/RELIANCE", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "RELIANCE.NS", body["symbol"])
	assert.Contains(t, body["decision_error"], "provider down")
}

func TestCacheEntryEndpoint(t *testing.T) {
	srv, deps := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/cache/RELIANCE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	deps.cache.entry = &cache.Entry{Symbol: "RELIANCE.NS", Exchange: "NSE", LastUpdated: time.Now().UTC()}
	rec = doRequest(t, srv, http.MethodGet, "/api/cache/RELIANCE", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/cache/bad$symbol", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.decisions.history = []domain.Decision{
		{ID: "d1", Symbol: "RELIANCE.NS", Value: domain.DecisionBuy},
		{ID: "d2", Symbol: "RELIANCE.NS", Value: domain.DecisionHold},
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/history/RELIANCE", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, "RELIANCE.NS", body["symbol"])
}

func TestRecommendationsAndPerformanceEndpoints(t *testing.T) {
	srv, deps := newTestServer(t)
	pnl := 4.2
	deps.decisions.recommendations = []domain.Decision{
		{ID: "d1", Symbol: "TCS.NS", Value: domain.DecisionBuy},
	}
	deps.decisions.performance = &decisions.PerformanceSummary{
		TotalTrades:   3,
		WinRatePct:    66.7,
		AveragePnLPct: pnl,
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/recommendations/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = doRequest(t, srv, http.MethodGet, "/api/performance/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["total_trades"])
}

func TestIndicesSummaryToleratesMissingQuote(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.quotes.quotes["^NSEI"] = 24500.5
	// ^BSESN quote missing

	rec := doRequest(t, srv, http.MethodGet, "/api/indices/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	indices := decodeBody(t, rec)["indices"].([]interface{})
	require.Len(t, indices, 2)

	nsei := indices[0].(map[string]interface{})
	assert.Equal(t, "^NSEI", nsei["symbol"])
	assert.Equal(t, 24500.5, nsei["price"])

	bsesn := indices[1].(map[string]interface{})
	assert.Equal(t, "quote unavailable", bsesn["error"])
}

func TestWeeklyForecastEndpoints(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.predictions.recent = []domain.WeeklyPrediction{{ID: "p1", Symbol: "^NSEI"}}
	deps.predictions.evaluations = []domain.WeeklyPrediction{{ID: "p0", Symbol: "^NSEI", Status: domain.PredictionReconciled}}

	rec := doRequest(t, srv, http.MethodGet, "/api/indices/weekly-forecast", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "^NSEI")
	assert.Contains(t, body, "^BSESN")

	rec = doRequest(t, srv, http.MethodGet, "/api/indices/weekly-forecast/evaluations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestUserLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/users", map[string]string{"username": "asha"})
	require.Equal(t, http.StatusOK, rec.Code)
	userID := int64(decodeBody(t, rec)["id"].(float64))

	// Watchlist add, list, remove.
	rec = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/users/%d/watchlist", userID),
		map[string]string{"symbol": "RELIANCE"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/users/%d/watchlist", userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["watchlist"].([]interface{})
	require.Len(t, items, 1)

	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/users/%d/watchlist/RELIANCE", userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUserEndpointsRejectBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/users", map[string]string{"username": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/users/999/watchlist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/users/abc/watchlist", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchlistRejectsInvalidSymbol(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/users", map[string]string{"username": "asha"})
	userID := int64(decodeBody(t, rec)["id"].(float64))

	rec = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/users/%d/watchlist", userID),
		map[string]string{"symbol": "bad$symbol"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortfolioLifecycle(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.quotes.quotes["RELIANCE.NS"] = 2750

	rec := doRequest(t, srv, http.MethodPost, "/api/users", map[string]string{"username": "asha"})
	userID := int64(decodeBody(t, rec)["id"].(float64))

	rec = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/users/%d/portfolio", userID),
		map[string]interface{}{
			"symbol":         "RELIANCE",
			"quantity":       10,
			"purchase_price": 2500,
			"purchase_date":  "2025-01-15",
		})
	require.Equal(t, http.StatusCreated, rec.Code)
	holdingID := int64(decodeBody(t, rec)["id"].(float64))

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/users/%d/portfolio", userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 27500.0, body["total_value"])

	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/users/%d/portfolio/%d", userID, holdingID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/users/%d/portfolio/%d", userID, holdingID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPortfolioRejectsInvalidHolding(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/users", map[string]string{"username": "asha"})
	userID := int64(decodeBody(t, rec)["id"].(float64))

	rec = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/users/%d/portfolio", userID),
		map[string]interface{}{"symbol": "RELIANCE", "quantity": 0, "purchase_price": 2500})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
