// Package domain contains the core data types shared across the service.
// Domain types are pure: no database, HTTP, or provider dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Bar is a single OHLCV record for one trading period, daily unless noted.
type Bar struct {
	Date   time.Time `json:"date" msgpack:"date"`
	Open   float64   `json:"open" msgpack:"open"`
	High   float64   `json:"high" msgpack:"high"`
	Low    float64   `json:"low" msgpack:"low"`
	Close  float64   `json:"close" msgpack:"close"`
	Volume int64     `json:"volume" msgpack:"volume"`
}

// Series is an ordered sequence of bars, oldest first.
type Series []Bar

// Closes returns the closing prices in series order.
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, b := range s {
		closes[i] = b.Close
	}
	return closes
}

// Last returns the most recent bar. The second return is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// DecisionValue is the closed set of trading calls the service produces.
type DecisionValue string

const (
	DecisionBuy  DecisionValue = "BUY"
	DecisionSell DecisionValue = "SELL"
	DecisionHold DecisionValue = "HOLD"
)

// ParseDecisionValue validates a raw decision string against the closed set.
// Provider responses are normalized to upper case before comparison.
func ParseDecisionValue(raw string) (DecisionValue, error) {
	switch DecisionValue(strings.ToUpper(strings.TrimSpace(raw))) {
	case DecisionBuy:
		return DecisionBuy, nil
	case DecisionSell:
		return DecisionSell, nil
	case DecisionHold:
		return DecisionHold, nil
	default:
		return "", fmt.Errorf("invalid decision value %q", raw)
	}
}

// Decision is one completed analysis for a symbol.
// PriceAtDecision is immutable once written; ProfitLoss is backfilled later
// by the P&L review job and is the only field that ever changes.
type Decision struct {
	ID                 string        `json:"id"`
	Symbol             string        `json:"symbol"`
	Exchange           string        `json:"exchange"`
	Value              DecisionValue `json:"decision"`
	Confidence         string        `json:"confidence"`
	TechnicalSummary   string        `json:"technical_summary"`
	FundamentalSummary string        `json:"fundamental_summary"`
	SentimentSummary   string        `json:"sentiment_summary"`
	FinalSummary       string        `json:"final_summary"`
	PriceAtDecision    float64       `json:"price_at_decision"`
	ProfitLoss         *float64      `json:"profit_loss,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// PredictionStatus tracks the weekly prediction lifecycle.
// A prediction moves PENDING -> RECONCILED exactly once and never back.
type PredictionStatus string

const (
	PredictionPending    PredictionStatus = "PENDING"
	PredictionReconciled PredictionStatus = "RECONCILED"
)

// DayForecast is one predicted daily close within a weekly forecast.
type DayForecast struct {
	Day            string  `json:"day" msgpack:"day"`
	PredictedClose float64 `json:"predicted_close" msgpack:"predicted_close"`
}

// WeeklyPrediction is a day-wise index forecast for one (symbol, week).
// The forecast and reasoning are immutable once written; ActualClose,
// PerformanceSummary and ReconciledAt are filled in exactly once at
// week-end reconciliation.
type WeeklyPrediction struct {
	ID                 string           `json:"id"`
	Symbol             string           `json:"symbol"`
	PredictionDate     time.Time        `json:"prediction_date"`
	WeekStart          time.Time        `json:"week_start"`
	WeekEnd            time.Time        `json:"week_end"`
	Forecast           []DayForecast    `json:"daily_forecast"`
	Reasoning          string           `json:"reasoning"`
	Status             PredictionStatus `json:"status"`
	ActualClose        *float64         `json:"actual_close,omitempty"`
	PerformanceSummary *string          `json:"performance_summary,omitempty"`
	ReconciledAt       *time.Time       `json:"reconciled_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// User is an ancillary entity; referenced as foreign-key context only.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// WatchlistItem is one (user, symbol, exchange) watchlist entry.
type WatchlistItem struct {
	UserID   int64  `json:"user_id"`
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// Holding is one portfolio position owned by a user.
type Holding struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Symbol        string    `json:"symbol"`
	Exchange      string    `json:"exchange"`
	Quantity      float64   `json:"quantity"`
	PurchasePrice float64   `json:"purchase_price"`
	PurchaseDate  time.Time `json:"purchase_date"`
}
