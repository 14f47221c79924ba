// Package advisor implements the DecisionSource interface against an
// OpenAI-compatible chat completions API. Model responses are free-form
// text; everything leaving this package is validated, typed structure.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"marketmind/internal/analysis"
	"marketmind/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o-mini"
)

// jsonObjectRe extracts the first JSON object from a model response that
// may be wrapped in prose or markdown fences.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Config holds advisor client configuration.
type Config struct {
	BaseURL string // empty selects the public OpenAI endpoint
	APIKey  string
	Model   string // empty selects gpt-4o-mini
}

// Client talks to the chat completions API.
type Client struct {
	http  *resty.Client
	model string
	log   zerolog.Logger
}

// NewClient creates an advisor client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetAuthToken(cfg.APIKey)

	return &Client{
		http:  http,
		model: model,
		log:   log.With().Str("client", "advisor").Logger(),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// analysisPayload is the raw JSON shape the model is asked to produce.
type analysisPayload struct {
	Decision           string `json:"decision"`
	Confidence         string `json:"confidence"`
	TechnicalSummary   string `json:"technical_summary"`
	FundamentalSummary string `json:"fundamental_summary"`
	SentimentSummary   string `json:"sentiment_summary"`
	FinalSummary       string `json:"final_summary"`
}

// Decide requests a structured trading decision. The decision value is
// validated against the closed {BUY, SELL, HOLD} set at this boundary;
// an out-of-set value is a provider failure, never passed through.
func (c *Client) Decide(ctx context.Context, req analysis.DecisionRequest) (*analysis.Advice, error) {
	content, err := c.complete(ctx, buildAnalysisPrompt(req))
	if err != nil {
		return nil, &analysis.DecisionError{Symbol: req.Symbol, Err: err}
	}

	raw := jsonObjectRe.FindString(content)
	if raw == "" {
		return nil, &analysis.DecisionError{Symbol: req.Symbol,
			Err: fmt.Errorf("no JSON object in model response")}
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &analysis.DecisionError{Symbol: req.Symbol,
			Err: fmt.Errorf("failed to parse model response: %w", err)}
	}

	value, err := domain.ParseDecisionValue(payload.Decision)
	if err != nil {
		return nil, &analysis.DecisionError{Symbol: req.Symbol, Err: err}
	}

	confidence := payload.Confidence
	if confidence == "" {
		confidence = "Low"
	}

	return &analysis.Advice{
		Value:              value,
		Confidence:         confidence,
		TechnicalSummary:   payload.TechnicalSummary,
		FundamentalSummary: payload.FundamentalSummary,
		SentimentSummary:   payload.SentimentSummary,
		FinalSummary:       payload.FinalSummary,
	}, nil
}

// forecastPayload is the raw JSON shape for weekly predictions.
type forecastPayload struct {
	WeeklyReasoning  string `json:"weekly_reasoning"`
	DailyPredictions []struct {
		Day            string  `json:"day"`
		PredictedPrice float64 `json:"predicted_price"`
	} `json:"daily_predictions"`
}

// WeeklyForecast is a validated day-wise prediction for one index week.
type WeeklyForecast struct {
	Reasoning string
	Days      []domain.DayForecast
}

// PredictWeek requests a Monday-to-Friday closing price forecast for an
// index symbol.
func (c *Client) PredictWeek(ctx context.Context, symbol string, summary MarketSummary, weekStart, weekEnd time.Time) (*WeeklyForecast, error) {
	content, err := c.complete(ctx, buildForecastPrompt(symbol, summary, weekStart, weekEnd))
	if err != nil {
		return nil, fmt.Errorf("weekly forecast failed for %s: %w", symbol, err)
	}

	raw := jsonObjectRe.FindString(content)
	if raw == "" {
		return nil, fmt.Errorf("weekly forecast for %s: no JSON object in model response", symbol)
	}

	var payload forecastPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("weekly forecast for %s: failed to parse model response: %w", symbol, err)
	}
	if len(payload.DailyPredictions) == 0 {
		return nil, fmt.Errorf("weekly forecast for %s: model returned no daily predictions", symbol)
	}

	forecast := &WeeklyForecast{Reasoning: payload.WeeklyReasoning}
	for _, day := range payload.DailyPredictions {
		if day.PredictedPrice <= 0 {
			return nil, fmt.Errorf("weekly forecast for %s: non-positive predicted price for %s", symbol, day.Day)
		}
		forecast.Days = append(forecast.Days, domain.DayForecast{
			Day:            day.Day,
			PredictedClose: day.PredictedPrice,
		})
	}

	return forecast, nil
}

// complete performs one chat completion call and returns the text content.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	var parsed chatResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       c.model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: 0.2,
		}).
		SetResult(&parsed).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if resp.IsError() {
		if parsed.Error != nil {
			return "", fmt.Errorf("provider error (%s): %s", parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode())
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
