package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marketmind/internal/analysis"
)

// recommendationLookback bounds how old a BUY/SELL call may be and still
// count as a current recommendation.
const recommendationLookback = 72 * time.Hour

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "marketmind",
	})
}

// handleAnalyze runs (or serves from cache) a full analysis for a symbol.
// GET /api/analyze/{symbol}?exchange=NSE
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	exchange := r.URL.Query().Get("exchange")

	result, err := s.deps.Analysis.Analyze(r.Context(), symbol, exchange, analysis.FailFast)
	if err != nil && result == nil {
		s.writeAnalysisError(w, err)
		return
	}

	response := map[string]interface{}{
		"symbol":       result.Symbol,
		"exchange":     result.Exchange,
		"data":         result.Bars,
		"indicators":   result.Indicators,
		"decision":     result.Decision,
		"cached":       result.Cached,
		"stale":        result.Stale,
		"last_updated": result.LastUpdated,
	}
	if err != nil {
		// Data refreshed but the decision provider failed.
		response["decision_error"] = err.Error()
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleCacheEntry returns the cached entry for a symbol without fetching.
// GET /api/cache/{symbol}?exchange=NSE
func (s *Server) handleCacheEntry(w http.ResponseWriter, r *http.Request) {
	rawSymbol := chi.URLParam(r, "symbol")
	rawExchange := r.URL.Query().Get("exchange")

	symbol, exchange, err := analysis.NormalizeSymbol(rawSymbol, rawExchange)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, found, err := s.deps.Cache.Get(symbol, exchange)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "cache lookup failed")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "no cache entry for "+symbol)
		return
	}

	s.writeJSON(w, http.StatusOK, entry)
}

// handleHistory returns all persisted decisions for a symbol, newest first.
// GET /api/history/{symbol}?exchange=NSE
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rawSymbol := chi.URLParam(r, "symbol")
	rawExchange := r.URL.Query().Get("exchange")

	symbol, _, err := analysis.NormalizeSymbol(rawSymbol, rawExchange)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := s.deps.Decisions.History(symbol)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"count":     len(history),
		"decisions": history,
	})
}

// handleLatestRecommendations returns the newest BUY/SELL call per symbol.
// GET /api/recommendations/latest
func (s *Server) handleLatestRecommendations(w http.ResponseWriter, r *http.Request) {
	recommendations, err := s.deps.Decisions.LatestRecommendations(recommendationLookback)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load recommendations")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":           len(recommendations),
		"recommendations": recommendations,
	})
}

// handlePerformanceSummary returns the realized track record.
// GET /api/performance/summary
func (s *Server) handlePerformanceSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Decisions.Performance()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to compute performance")
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

// writeAnalysisError maps the typed analysis errors onto HTTP statuses.
func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	if analysis.IsValidation(err) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if fe, ok := analysis.IsDataFetch(err); ok {
		switch fe.Kind {
		case analysis.FetchNotFound:
			s.writeError(w, http.StatusNotFound, err.Error())
		case analysis.FetchRateLimited:
			s.writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			s.writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	s.log.Error().Err(err).Msg("Analysis failed")
	s.writeError(w, http.StatusInternalServerError, "analysis failed")
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
