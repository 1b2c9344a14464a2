package polygon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paper-trade-go/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().
		SetBaseURL(server.URL).
		SetQueryParam("apiKey", "test_api_key")

	rc := &RestClient{
		client:  client,
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestLastTrade(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/last/trade/AAPL", r.URL.Path)
			assert.Equal(t, "test_api_key", r.URL.Query().Get("apiKey"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"OK","results":{"T":"AAPL","p":189.5,"s":100,"t":1700000000000000000}}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		trade, err := rc.LastTrade(context.Background(), "AAPL")

		require.NoError(t, err)
		assert.Equal(t, "AAPL", trade.Symbol)
		assert.Equal(t, 189.5, trade.Price)
		assert.Equal(t, 100.0, trade.Size)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), trade.Time)
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"status":"NOT_AUTHORIZED"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		trade, err := rc.LastTrade(context.Background(), "AAPL")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get last trade for AAPL")
		assert.Contains(t, err.Error(), "request failed") // Check for the error from doRequest
		assert.Nil(t, trade)
	})

	t.Run("NoPrice", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"OK","results":{}}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.LastTrade(context.Background(), "AAPL")
		assert.ErrorContains(t, err, "no last trade available")
	})

	t.Run("NoRetryOnServerError", func(t *testing.T) {
		calls := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.LastTrade(context.Background(), "AAPL")
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestTickerDetails(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/reference/tickers/MSFT", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"ticker":"MSFT","name":"Microsoft Corp","description":"Software",
			"homepage_url":"https://www.microsoft.com","market_cap":3.1e12,
			"branding":{"logo_url":"https://api.polygon.io/logo.svg"}}}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	details, err := rc.TickerDetails(context.Background(), "MSFT")

	require.NoError(t, err)
	assert.Equal(t, "MSFT", details.Symbol)
	assert.Equal(t, "Microsoft Corp", details.Name)
	assert.Equal(t, "Software", details.Description)
	assert.Equal(t, "https://www.microsoft.com", details.HomepageURL)
	assert.Equal(t, "https://api.polygon.io/logo.svg", details.LogoURL)
	assert.Equal(t, 3.1e12, details.MarketCap)
}

func TestDailyOpenClose(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/open-close/TSLA/2024-03-08", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("adjusted"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","symbol":"TSLA","from":"2024-03-08","open":181.5,"high":183,"low":175.1,"close":175.34,"volume":85315300}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	oc, err := rc.DailyOpenClose(context.Background(), "TSLA", "2024-03-08")

	require.NoError(t, err)
	assert.Equal(t, "TSLA", oc.Symbol)
	assert.Equal(t, "2024-03-08", oc.Date)
	assert.Equal(t, 181.5, oc.Open)
	assert.Equal(t, 175.34, oc.Close)
	assert.Equal(t, 85315300.0, oc.Volume)
}

func TestDailyBars(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/NVDA/range/1/day/2024-01-02/2024-01-03", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"o":49.2,"h":49.3,"l":47.6,"c":48.1,"v":411254000,"t":1704171600000},
			{"o":47.4,"h":48.1,"l":47.3,"c":47.5,"v":320896000,"t":1704258000000}]}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	bars, err := rc.DailyBars(context.Background(), "NVDA", "2024-01-02", "2024-01-03")

	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-02", bars[0].Date)
	assert.Equal(t, 48.1, bars[0].Close)
	assert.Equal(t, "2024-01-03", bars[1].Date)
	assert.Equal(t, 320896000.0, bars[1].Volume)
}

func TestNews(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/reference/news", r.URL.Path)
		assert.Equal(t, "AMZN", r.URL.Query().Get("ticker"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"Amazon beats","article_url":"https://news.example/1",
			"published_utc":"2024-05-01T12:00:00Z","publisher":{"name":"Wire"}}]}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	articles, err := rc.News(context.Background(), "AMZN", 3)

	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Amazon beats", articles[0].Title)
	assert.Equal(t, "https://news.example/1", articles[0].URL)
	assert.Equal(t, "Wire", articles[0].Publisher.Name)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), articles[0].PublishedAt)
}

func TestDoRequest_ContextCancelled(t *testing.T) {
	rc, server := setupTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	rc.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	require.True(t, rc.limiter.Allow()) // drain the only token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rc.LastTrade(ctx, "AAPL")
	assert.ErrorContains(t, err, "rate limiter wait failed")
}

func TestNewRestClient(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		rc := NewRestClient(&config.Polygon{}, zap.NewNop())
		assert.NotNil(t, rc)
		assert.Equal(t, rate.Inf, rc.limiter.Limit())
		assert.Equal(t, 1, rc.limiter.Burst())
	})

	t.Run("Configured", func(t *testing.T) {
		cfg := &config.Polygon{ApiKey: "k", BaseURL: "http://localhost", RateLimit: 5, RateLimitBurst: 2, Timeout: time.Second}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.Equal(t, rate.Limit(5), rc.limiter.Limit())
		assert.Equal(t, 2, rc.limiter.Burst())
		assert.Equal(t, "http://localhost", rc.client.BaseURL)
		assert.Equal(t, "k", rc.client.QueryParam.Get("apiKey"))
	})
}
