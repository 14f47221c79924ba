package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketmind/internal/analysis"
)

// chartBody builds a minimal valid chart payload with n daily bars.
func chartBody(symbol string, n int) string {
	timestamps := ""
	opens, highs, lows, closes, volumes := "", "", "", "", ""
	for i := 0; i < n; i++ {
		sep := ""
		if i > 0 {
			sep = ","
		}
		price := 100.0 + float64(i)
		timestamps += fmt.Sprintf("%s%d", sep, 1756000000+i*86400)
		opens += fmt.Sprintf("%s%g", sep, price-1)
		highs += fmt.Sprintf("%s%g", sep, price+2)
		lows += fmt.Sprintf("%s%g", sep, price-2)
		closes += fmt.Sprintf("%s%g", sep, price)
		volumes += fmt.Sprintf("%s%d", sep, 10000+i)
	}

	return fmt.Sprintf(`{"chart":{"result":[{
		"meta":{"symbol":"%s","regularMarketPrice":%g,"chartPreviousClose":%g},
		"timestamp":[%s],
		"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}]}
	}],"error":null}}`, symbol, 100.0+float64(n-1), 100.0+float64(n-2), timestamps, opens, highs, lows, closes, volumes)
}

func TestClient_FetchParsesSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/RELIANCE.NS")
		fmt.Fprint(w, chartBody("RELIANCE.NS", 30))
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	series, err := client.Fetch(context.Background(), "RELIANCE.NS", "NSE")
	require.NoError(t, err)

	require.Len(t, series, 30)
	assert.InDelta(t, 100.0, series[0].Close, 1e-9)
	assert.InDelta(t, 129.0, series[29].Close, 1e-9)
	assert.True(t, series[0].Date.Before(series[29].Date), "bars must be oldest first")
}

func TestClient_FetchSkipsNullBars(t *testing.T) {
	body := `{"chart":{"result":[{
		"meta":{"symbol":"TCS.NS","regularMarketPrice":101,"chartPreviousClose":100},
		"timestamp":[1756000000,1756086400,1756172800],
		"indicators":{"quote":[{
			"open":[100,null,102],"high":[103,null,105],"low":[99,null,100],
			"close":[101,null,104],"volume":[5000,null,6000]
		}]}
	}],"error":null}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	series, err := client.Fetch(context.Background(), "TCS.NS", "NSE")
	require.NoError(t, err)
	assert.Len(t, series, 2)
}

func TestClient_FetchErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind analysis.FetchErrorKind
	}{
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			wantKind: analysis.FetchRateLimited,
		},
		{
			name:     "not found status",
			status:   http.StatusNotFound,
			wantKind: analysis.FetchNotFound,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			wantKind: analysis.FetchUnavailable,
		},
		{
			name:     "provider error payload",
			status:   http.StatusOK,
			body:     `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`,
			wantKind: analysis.FetchNotFound,
		},
		{
			name:     "malformed payload",
			status:   http.StatusOK,
			body:     `{"chart":`,
			wantKind: analysis.FetchUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(server.URL, zerolog.Nop())
			_, err := client.Fetch(context.Background(), "GHOST.NS", "NSE")
			require.Error(t, err)

			fe, ok := analysis.IsDataFetch(err)
			require.True(t, ok, "expected DataFetchError, got %T", err)
			assert.Equal(t, tt.wantKind, fe.Kind)
		})
	}
}

func TestClient_GetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody("^NSEI", 5))
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	quote, err := client.GetQuote(context.Background(), "^NSEI")
	require.NoError(t, err)

	assert.InDelta(t, 104.0, quote.Price, 1e-9)
	assert.InDelta(t, 1.0, quote.Change, 1e-9)
	assert.InDelta(t, 100.0/103.0, quote.ChangePercent, 1e-9)
}
