package advisor

import (
	"fmt"
	"strings"
	"time"

	"marketmind/internal/analysis"
	"marketmind/internal/domain"
)

// fmtIndicator renders an optional indicator value for the prompt.
func fmtIndicator(v *float64) string {
	if v == nil {
		return "unavailable"
	}
	return fmt.Sprintf("%.2f", *v)
}

// buildAnalysisPrompt renders the structured analysis request for one symbol.
// The model is instructed to answer with a single JSON object so the
// response can be validated against the closed decision set.
func buildAnalysisPrompt(req analysis.DecisionRequest) string {
	var close float64
	if last, ok := req.Bars.Last(); ok {
		close = last.Close
	}

	macdDiff := "unavailable"
	if req.Indicators.MACDHist != nil {
		macdDiff = fmt.Sprintf("%.2f", *req.Indicators.MACDHist)
	}

	var b strings.Builder
	b.WriteString("You are an expert financial analyst for the Indian stock market. ")
	b.WriteString("Provide a clear, evidence-based recommendation.\n\n")
	fmt.Fprintf(&b, "Item for analysis: %s (%s)\n\n", req.Symbol, req.Exchange)
	b.WriteString("Quantitative data:\n")
	fmt.Fprintf(&b, "- Close price: %.2f\n", close)
	fmt.Fprintf(&b, "- RSI (14): %s\n", fmtIndicator(req.Indicators.RSI14))
	fmt.Fprintf(&b, "- MACD histogram: %s\n", macdDiff)
	fmt.Fprintf(&b, "- SMA 20: %s\n", fmtIndicator(req.Indicators.SMA20))
	fmt.Fprintf(&b, "- SMA 50: %s\n", fmtIndicator(req.Indicators.SMA50))
	b.WriteString("\nPast performance feedback (your own track record for this item):\n")
	fmt.Fprintf(&b, "- %s\n\n", req.PastPerformance)
	b.WriteString("Respond with a single valid JSON object only, no markdown:\n")
	b.WriteString(`{"decision": "BUY|SELL|HOLD", "confidence": "High|Medium|Low", `)
	b.WriteString(`"technical_summary": "...", "fundamental_summary": "...", `)
	b.WriteString(`"sentiment_summary": "...", "final_summary": "..."}`)

	return b.String()
}

// buildForecastPrompt renders the weekly index prediction request.
func buildForecastPrompt(symbol string, summary MarketSummary, weekStart, weekEnd time.Time) string {
	var b strings.Builder
	b.WriteString("You are an expert market analyst specializing in Indian indices. ")
	fmt.Fprintf(&b, "Predict the daily closing price of %s for each trading day of the week %s to %s.\n\n",
		symbol, weekStart.Format("2006-01-02"), weekEnd.Format("2006-01-02"))
	b.WriteString("Historical data summary:\n")
	fmt.Fprintf(&b, "- Current price: %.2f\n", summary.CurrentPrice)
	fmt.Fprintf(&b, "- 52-week high: %.2f\n", summary.YearHigh)
	fmt.Fprintf(&b, "- 52-week low: %.2f\n", summary.YearLow)
	fmt.Fprintf(&b, "- 50-day average: %.2f\n", summary.FiftyDayAvg)
	fmt.Fprintf(&b, "- 200-day average: %.2f\n\n", summary.TwoHundredDayAvg)
	b.WriteString("Respond with a single valid JSON object only, no markdown. ")
	b.WriteString("Each predicted price must be a JSON number:\n")
	b.WriteString(`{"weekly_reasoning": "...", "daily_predictions": [`)
	b.WriteString(`{"day": "Monday", "predicted_price": 0.0}, {"day": "Tuesday", "predicted_price": 0.0}, `)
	b.WriteString(`{"day": "Wednesday", "predicted_price": 0.0}, {"day": "Thursday", "predicted_price": 0.0}, `)
	b.WriteString(`{"day": "Friday", "predicted_price": 0.0}]}`)

	return b.String()
}

// MarketSummary condenses a year of history for the forecast prompt.
type MarketSummary struct {
	CurrentPrice     float64
	YearHigh         float64
	YearLow          float64
	FiftyDayAvg      float64
	TwoHundredDayAvg float64
}

// SummarizeYear computes the forecast prompt inputs from a daily series.
func SummarizeYear(series domain.Series) MarketSummary {
	var summary MarketSummary
	if len(series) == 0 {
		return summary
	}

	summary.CurrentPrice = series[len(series)-1].Close
	summary.YearHigh = series[0].High
	summary.YearLow = series[0].Low
	for _, bar := range series {
		if bar.High > summary.YearHigh {
			summary.YearHigh = bar.High
		}
		if bar.Low < summary.YearLow {
			summary.YearLow = bar.Low
		}
	}

	summary.FiftyDayAvg = tailMean(series, 50)
	summary.TwoHundredDayAvg = tailMean(series, 200)
	return summary
}

func tailMean(series domain.Series, n int) float64 {
	if len(series) < n {
		n = len(series)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, bar := range series[len(series)-n:] {
		sum += bar.Close
	}
	return sum / float64(n)
}
