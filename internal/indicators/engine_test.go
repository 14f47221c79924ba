package indicators

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketmind/internal/domain"
)

// makeSeries builds a bar series from closing prices, one bar per day.
func makeSeries(closes []float64) domain.Series {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(domain.Series, len(closes))
	for i, c := range closes {
		series[i] = domain.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c - 1,
			High:   c + 2,
			Low:    c - 2,
			Close:  c,
			Volume: 1000 + int64(i),
		}
	}
	return series
}

func TestSMA(t *testing.T) {
	closes := []float64{10, 20, 30, 40, 50}

	sma := SMA(closes, 5)
	require.NotNil(t, sma)
	assert.InDelta(t, 30.0, *sma, 1e-9)

	// Insufficient data
	assert.Nil(t, SMA(closes, 6))
}

func TestRSI_AllGainingSeriesIsOneHundred(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}

	rsi := RSI(closes, RSIPeriod)
	require.NotNil(t, rsi)
	assert.InDelta(t, 100.0, *rsi, 1e-9)
}

func TestRSI_AllLosingSeriesIsZero(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 200 - float64(i)*2
	}

	rsi := RSI(closes, RSIPeriod)
	require.NotNil(t, rsi)
	assert.InDelta(t, 0.0, *rsi, 1e-9)
}

func TestRSI_InsufficientData(t *testing.T) {
	// Wilder's RSI needs period+1 bars
	closes := make([]float64, RSIPeriod)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	assert.Nil(t, RSI(closes, RSIPeriod))
}

func TestMACDValues_InsufficientData(t *testing.T) {
	closes := make([]float64, MACDSlow+MACDSignal-1)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	macd, sig, hist := MACDValues(closes, MACDFast, MACDSlow, MACDSignal)
	assert.Nil(t, macd)
	assert.Nil(t, sig)
	assert.Nil(t, hist)
}

func TestCompute_ShortSeriesDegradesGracefully(t *testing.T) {
	// 10 bars: SMA20/SMA50/EMA20/RSI14/MACD all unavailable,
	// but Compute must not fail
	series := makeSeries([]float64{10, 11, 12, 11, 13, 12, 14, 13, 15, 14})

	snap := Compute(series)
	assert.Nil(t, snap.SMA20)
	assert.Nil(t, snap.SMA50)
	assert.Nil(t, snap.EMA20)
	assert.Nil(t, snap.RSI14)
	assert.Nil(t, snap.MACD)
}

func TestCompute_FullSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 10*float64(i%7) + float64(i)
	}
	snap := Compute(makeSeries(closes))

	require.NotNil(t, snap.SMA20)
	require.NotNil(t, snap.SMA50)
	require.NotNil(t, snap.EMA20)
	require.NotNil(t, snap.RSI14)
	require.NotNil(t, snap.MACD)
	require.NotNil(t, snap.MACDSignal)
	require.NotNil(t, snap.MACDHist)

	assert.GreaterOrEqual(t, *snap.RSI14, 0.0)
	assert.LessOrEqual(t, *snap.RSI14, 100.0)
	assert.InDelta(t, *snap.MACD-*snap.MACDSignal, *snap.MACDHist, 1e-9)
}

func TestCompute_Deterministic(t *testing.T) {
	// Property-style check over randomly generated series: identical input
	// always yields identical output
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		n := 40 + rng.Intn(160)
		closes := make([]float64, n)
		price := 100.0
		for i := range closes {
			price += (rng.Float64() - 0.5) * 4
			if price < 1 {
				price = 1
			}
			closes[i] = price
		}
		series := makeSeries(closes)

		first := Compute(series)
		second := Compute(series)
		assert.Equal(t, first, second, "trial %d: snapshots differ for identical input", trial)
	}
}
