package server

import (
	"net/http"
	"strconv"

	"marketmind/internal/predictions"
)

// handleIndicesSummary returns current quotes for the tracked indices.
// GET /api/indices/summary
func (s *Server) handleIndicesSummary(w http.ResponseWriter, r *http.Request) {
	summaries := make([]map[string]interface{}, 0, len(predictions.TrackedIndices))

	for _, symbol := range predictions.TrackedIndices {
		entry := map[string]interface{}{"symbol": symbol}

		quote, err := s.deps.Quotes.GetQuote(r.Context(), symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Index quote unavailable")
			entry["error"] = "quote unavailable"
		} else {
			entry["price"] = quote.Price
			entry["change"] = quote.Change
			entry["change_percent"] = quote.ChangePercent
		}

		summaries = append(summaries, entry)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"indices": summaries})
}

// handleWeeklyForecast returns recent forecasts per tracked index, the
// current week's first.
// GET /api/indices/weekly-forecast?limit=4
func (s *Server) handleWeeklyForecast(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 4)

	forecast := make(map[string]interface{}, len(predictions.TrackedIndices))
	for _, symbol := range predictions.TrackedIndices {
		recent, err := s.deps.Predictions.RecentForSymbol(symbol, limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to load forecasts")
			return
		}
		forecast[symbol] = recent
	}

	s.writeJSON(w, http.StatusOK, forecast)
}

// handleForecastEvaluations returns reconciled predictions with their
// performance summaries.
// GET /api/indices/weekly-forecast/evaluations?limit=10
func (s *Server) handleForecastEvaluations(w http.ResponseWriter, r *http.Request) {
	evaluations, err := s.deps.Predictions.RecentEvaluations(queryLimit(r, 10))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load evaluations")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(evaluations),
		"evaluations": evaluations,
	})
}

// queryLimit reads a positive "limit" query parameter, falling back to a
// default.
func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
