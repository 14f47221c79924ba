package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"marketmind/internal/analysis"
	"marketmind/internal/domain"
)

// handleCreateUser creates a user on first login and returns the existing
// one afterwards.
// POST /api/users {"username": "..."}
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Username == "" {
		s.writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	user, err := s.deps.Users.GetOrCreateUser(body.Username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	s.writeJSON(w, http.StatusOK, user)
}

// userFromPath resolves the {userID} path parameter to an existing user.
func (s *Server) userFromPath(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return nil, false
	}

	user, err := s.deps.Users.GetUser(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil, false
	}
	if user == nil {
		s.writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}

	return user, true
}

// handleGetWatchlist lists a user's watched symbols.
// GET /api/users/{userID}/watchlist
func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}

	items, err := s.deps.Users.ForUser(user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load watchlist")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   user.ID,
		"watchlist": items,
	})
}

// handleAddToWatchlist adds a symbol to a user's watchlist.
// POST /api/users/{userID}/watchlist {"symbol": "...", "exchange": "NSE"}
func (s *Server) handleAddToWatchlist(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Symbol   string `json:"symbol"`
		Exchange string `json:"exchange"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Validate before persisting; the watchlist stores raw symbols.
	_, exchange, err := analysis.NormalizeSymbol(body.Symbol, body.Exchange)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item := domain.WatchlistItem{UserID: user.ID, Symbol: body.Symbol, Exchange: exchange}
	if err := s.deps.Users.Add(item); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to add to watchlist")
		return
	}

	s.writeJSON(w, http.StatusCreated, item)
}

// handleRemoveFromWatchlist drops a symbol from a user's watchlist.
// DELETE /api/users/{userID}/watchlist/{symbol}?exchange=NSE
func (s *Server) handleRemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}

	exchange := r.URL.Query().Get("exchange")
	if exchange == "" {
		exchange = analysis.ExchangeNSE
	}

	item := domain.WatchlistItem{
		UserID:   user.ID,
		Symbol:   chi.URLParam(r, "symbol"),
		Exchange: exchange,
	}
	if err := s.deps.Users.Remove(item); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handleGetPortfolio returns a user's holdings valued at current quotes.
// GET /api/users/{userID}/portfolio
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}

	valuations, err := s.deps.Portfolio.Value(r.Context(), user.ID, s.deps.Quotes)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to value portfolio")
		return
	}

	var totalValue float64
	for _, v := range valuations {
		totalValue += v.MarketValue
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     user.ID,
		"total_value": totalValue,
		"holdings":    valuations,
	})
}

// handleAddHolding records a new portfolio position.
// POST /api/users/{userID}/portfolio
func (s *Server) handleAddHolding(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Symbol        string  `json:"symbol"`
		Exchange      string  `json:"exchange"`
		Quantity      float64 `json:"quantity"`
		PurchasePrice float64 `json:"purchase_price"`
		PurchaseDate  string  `json:"purchase_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	symbol, exchange, err := analysis.NormalizeSymbol(body.Symbol, body.Exchange)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	purchaseDate := time.Now().UTC()
	if body.PurchaseDate != "" {
		purchaseDate, err = time.Parse("2006-01-02", body.PurchaseDate)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "purchase_date must be YYYY-MM-DD")
			return
		}
	}

	holding, err := s.deps.Portfolio.Add(domain.Holding{
		UserID:        user.ID,
		Symbol:        symbol,
		Exchange:      exchange,
		Quantity:      body.Quantity,
		PurchasePrice: body.PurchasePrice,
		PurchaseDate:  purchaseDate,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, holding)
}

// handleRemoveHolding deletes a holding owned by the user.
// DELETE /api/users/{userID}/portfolio/{holdingID}
func (s *Server) handleRemoveHolding(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromPath(w, r)
	if !ok {
		return
	}

	holdingID, err := strconv.ParseInt(chi.URLParam(r, "holdingID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid holding id")
		return
	}

	if err := s.deps.Portfolio.Remove(user.ID, holdingID); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
