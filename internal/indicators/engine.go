// Package indicators computes technical indicators from OHLCV series.
//
// All functions are pure and deterministic: identical input always yields
// identical output, with no hidden state and no wall-clock dependency.
// When a series is shorter than an indicator's look-back window that
// indicator is reported as unavailable (nil) rather than failing the
// whole computation.
package indicators

import (
	"github.com/markcheno/go-talib"

	"marketmind/internal/domain"
)

// Standard periods. RSI follows Wilder's 14-period convention, MACD the
// 12/26/9 EMA convention.
const (
	SMAShortPeriod = 20
	SMALongPeriod  = 50
	EMAPeriod      = 20
	RSIPeriod      = 14
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
)

// Snapshot holds the computed indicator values for one series.
// Nil fields mean the series was too short for that indicator.
type Snapshot struct {
	SMA20      *float64 `json:"sma_20,omitempty" msgpack:"sma_20"`
	SMA50      *float64 `json:"sma_50,omitempty" msgpack:"sma_50"`
	EMA20      *float64 `json:"ema_20,omitempty" msgpack:"ema_20"`
	RSI14      *float64 `json:"rsi_14,omitempty" msgpack:"rsi_14"`
	MACD       *float64 `json:"macd,omitempty" msgpack:"macd"`
	MACDSignal *float64 `json:"macd_signal,omitempty" msgpack:"macd_signal"`
	MACDHist   *float64 `json:"macd_hist,omitempty" msgpack:"macd_hist"`
}

// Compute calculates the full indicator snapshot for a series of bars
// (oldest to newest). Indicators whose look-back exceeds the series
// length are left nil.
func Compute(series domain.Series) Snapshot {
	closes := series.Closes()

	snap := Snapshot{
		SMA20: SMA(closes, SMAShortPeriod),
		SMA50: SMA(closes, SMALongPeriod),
		EMA20: EMA(closes, EMAPeriod),
		RSI14: RSI(closes, RSIPeriod),
	}

	snap.MACD, snap.MACDSignal, snap.MACDHist = MACDValues(closes, MACDFast, MACDSlow, MACDSignal)

	return snap
}

// SMA returns the current simple moving average, or nil with insufficient data.
func SMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	return lastValid(talib.Sma(closes, period))
}

// EMA returns the current exponential moving average, or nil with insufficient data.
func EMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	return lastValid(talib.Ema(closes, period))
}

// RSI returns the current Relative Strength Index (0-100), or nil with
// insufficient data. Zero-division cases follow the mathematical limit:
// a window with no losses yields 100, a window with no gains yields 0.
func RSI(closes []float64, period int) *float64 {
	// Wilder's RSI needs one extra bar to seed the first gain/loss delta
	if len(closes) < period+1 {
		return nil
	}
	return lastValid(talib.Rsi(closes, period))
}

// MACDValues returns the current MACD line, signal line and histogram,
// or nils with insufficient data.
func MACDValues(closes []float64, fast, slow, signal int) (*float64, *float64, *float64) {
	// The signal line is an EMA over the MACD line, so the full warm-up
	// is the slow period plus the signal period
	if len(closes) < slow+signal {
		return nil, nil, nil
	}

	macd, sig, hist := talib.Macd(closes, fast, slow, signal)
	return lastValid(macd), lastValid(sig), lastValid(hist)
}

// lastValid returns a pointer to the final value of a talib output array,
// or nil when the array is empty or ends in NaN.
func lastValid(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	v := values[len(values)-1]
	if v != v { // NaN
		return nil
	}
	return &v
}
