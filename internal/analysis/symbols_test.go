package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		name         string
		symbol       string
		exchange     string
		wantSymbol   string
		wantExchange string
		wantErr      bool
	}{
		{name: "NSE suffix added", symbol: "RELIANCE", exchange: "NSE", wantSymbol: "RELIANCE.NS", wantExchange: "NSE"},
		{name: "BSE suffix added", symbol: "RELIANCE", exchange: "BSE", wantSymbol: "RELIANCE.BO", wantExchange: "BSE"},
		{name: "lowercase input normalized", symbol: "reliance", exchange: "nse", wantSymbol: "RELIANCE.NS", wantExchange: "NSE"},
		{name: "already suffixed", symbol: "TCS.NS", exchange: "NSE", wantSymbol: "TCS.NS", wantExchange: "NSE"},
		{name: "suffix fixes defaulted exchange", symbol: "TCS.BO", exchange: "", wantSymbol: "TCS.BO", wantExchange: "BSE"},
		{name: "NSE suffix against BSE rejected", symbol: "TCS.NS", exchange: "BSE", wantErr: true},
		{name: "BSE suffix against NSE rejected", symbol: "TCS.BO", exchange: "NSE", wantErr: true},
		{name: "index passthrough", symbol: "^NSEI", exchange: "NSE", wantSymbol: "^NSEI", wantExchange: "NSE"},
		{name: "empty exchange defaults to NSE", symbol: "INFY", exchange: "", wantSymbol: "INFY.NS", wantExchange: "NSE"},
		{name: "ampersand ticker", symbol: "M&M", exchange: "NSE", wantSymbol: "M&M.NS", wantExchange: "NSE"},
		{name: "hyphenated ticker", symbol: "BAJAJ-AUTO", exchange: "NSE", wantSymbol: "BAJAJ-AUTO.NS", wantExchange: "NSE"},
		{name: "empty symbol", symbol: "", exchange: "NSE", wantErr: true},
		{name: "whitespace only", symbol: "   ", exchange: "NSE", wantErr: true},
		{name: "embedded space", symbol: "RELI ANCE", exchange: "NSE", wantErr: true},
		{name: "caret not leading", symbol: "NS^EI", exchange: "NSE", wantErr: true},
		{name: "unknown exchange", symbol: "RELIANCE", exchange: "NASDAQ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			symbol, exchange, err := NormalizeSymbol(tt.symbol, tt.exchange)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSymbol, symbol)
			assert.Equal(t, tt.wantExchange, exchange)
		})
	}
}

func TestIsIndex(t *testing.T) {
	assert.True(t, IsIndex("^NSEI"))
	assert.True(t, IsIndex("^BSESN"))
	assert.False(t, IsIndex("RELIANCE.NS"))
}
