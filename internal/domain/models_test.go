package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected DecisionValue
		wantErr  bool
	}{
		{name: "buy", raw: "BUY", expected: DecisionBuy},
		{name: "sell", raw: "SELL", expected: DecisionSell},
		{name: "hold", raw: "HOLD", expected: DecisionHold},
		{name: "lower case", raw: "buy", expected: DecisionBuy},
		{name: "surrounding whitespace", raw: "  HOLD \n", expected: DecisionHold},
		{name: "qualified value rejected", raw: "STRONG BUY", wantErr: true},
		{name: "empty rejected", raw: "", wantErr: true},
		{name: "unknown rejected", raw: "ACCUMULATE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := ParseDecisionValue(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestSeriesCloses(t *testing.T) {
	series := Series{
		{Date: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), Close: 100},
		{Date: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), Close: 101.5},
		{Date: time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), Close: 99.25},
	}

	assert.Equal(t, []float64{100, 101.5, 99.25}, series.Closes())
	assert.Empty(t, Series{}.Closes())
}

func TestSeriesLast(t *testing.T) {
	_, ok := Series{}.Last()
	assert.False(t, ok)

	series := Series{
		{Close: 100},
		{Close: 105},
	}
	last, ok := series.Last()
	require.True(t, ok)
	assert.Equal(t, 105.0, last.Close)
}
