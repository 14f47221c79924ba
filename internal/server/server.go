// Package server exposes the HTTP API: analysis, history, recommendations,
// index forecasts, users, watchlists, portfolios and system monitoring.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"marketmind/internal/analysis"
	"marketmind/internal/cache"
	"marketmind/internal/clients/marketdata"
	"marketmind/internal/database"
	"marketmind/internal/decisions"
	"marketmind/internal/domain"
	"marketmind/internal/portfolio"
)

// AnalysisService is the coordinator surface the API uses.
type AnalysisService interface {
	Analyze(ctx context.Context, symbol, exchange string, policy analysis.FallbackPolicy) (*analysis.Result, error)
}

// DecisionReader reads persisted decisions for the read-only endpoints.
type DecisionReader interface {
	History(symbol string) ([]domain.Decision, error)
	LatestRecommendations(lookback time.Duration) ([]domain.Decision, error)
	Performance() (*decisions.PerformanceSummary, error)
}

// CacheReader inspects cache entries without triggering fetches.
type CacheReader interface {
	Get(symbol, exchange string) (*cache.Entry, bool, error)
}

// QuoteService supplies current quotes for the index summary.
type QuoteService interface {
	GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

// PredictionReader reads weekly index forecasts.
type PredictionReader interface {
	RecentForSymbol(symbol string, limit int) ([]domain.WeeklyPrediction, error)
	RecentEvaluations(limit int) ([]domain.WeeklyPrediction, error)
}

// UserService manages users and watchlists.
type UserService interface {
	GetOrCreateUser(username string) (*domain.User, error)
	GetUser(id int64) (*domain.User, error)
	Add(item domain.WatchlistItem) error
	Remove(item domain.WatchlistItem) error
	ForUser(userID int64) ([]domain.WatchlistItem, error)
}

// PortfolioService manages holdings.
type PortfolioService interface {
	Add(h domain.Holding) (*domain.Holding, error)
	Remove(userID, holdingID int64) error
	ForUser(userID int64) ([]domain.Holding, error)
	Value(ctx context.Context, userID int64, quotes portfolio.Quoter) ([]portfolio.Valuation, error)
}

// Deps bundles everything the server serves.
type Deps struct {
	Analysis    AnalysisService
	Decisions   DecisionReader
	Cache       CacheReader
	Quotes      QuoteService
	Predictions PredictionReader
	Users       UserService
	Portfolio   PortfolioService
	CoreDB      *database.DB
	CacheDB     *database.DB
	Registry    *prometheus.Registry
}

// Config holds server configuration
type Config struct {
	Port    int
	Log     zerolog.Logger
	Deps    Deps
	DevMode bool
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	deps   Deps
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		deps:   cfg.Deps,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the underlying handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	// Analyses can take a while on a cold cache: data fetch plus an AI call.
	s.router.Use(middleware.Timeout(90 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/analyze/{symbol}", s.handleAnalyze)
		r.Get("/cache/{symbol}", s.handleCacheEntry)
		r.Get("/history/{symbol}", s.handleHistory)

		r.Get("/recommendations/latest", s.handleLatestRecommendations)
		r.Get("/performance/summary", s.handlePerformanceSummary)

		r.Route("/indices", func(r chi.Router) {
			r.Get("/summary", s.handleIndicesSummary)
			r.Get("/weekly-forecast", s.handleWeeklyForecast)
			r.Get("/weekly-forecast/evaluations", s.handleForecastEvaluations)
		})

		r.Post("/users", s.handleCreateUser)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/watchlist", s.handleGetWatchlist)
			r.Post("/watchlist", s.handleAddToWatchlist)
			r.Delete("/watchlist/{symbol}", s.handleRemoveFromWatchlist)

			r.Get("/portfolio", s.handleGetPortfolio)
			r.Post("/portfolio", s.handleAddHolding)
			r.Delete("/portfolio/{holdingID}", s.handleRemoveHolding)
		})

		r.Get("/system/health", s.handleSystemHealth)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
