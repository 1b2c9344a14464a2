package polygon

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"paper-trade-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.polygon.io"

// RestClientInterface defines the market data calls the rest of the service relies on.
type RestClientInterface interface {
	LastTrade(ctx context.Context, symbol string) (*LastTrade, error)
	TickerDetails(ctx context.Context, symbol string) (*TickerDetails, error)
	DailyOpenClose(ctx context.Context, symbol, date string) (*DailyOpenClose, error)
	DailyBars(ctx context.Context, symbol, from, to string) ([]Bar, error)
	News(ctx context.Context, symbol string, limit int) ([]Article, error)
}

// RestClient is a client for the Polygon.io REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Polygon REST API client. Every request carries the
// API key and waits on a client-side limiter so the provider quota is respected
// no matter how many users fan out at once.
func NewRestClient(cfg *config.Polygon, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	if url == "" {
		url = defaultBaseURL
	}
	if cfg.ApiKey == "" {
		logger.Warn("Polygon API key is empty, market data requests will be rejected")
	}

	client := resty.New().
		SetBaseURL(url).
		SetQueryParam("apiKey", cfg.ApiKey).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &RestClient{
		client:  client,
		logger:  logger.Named("polygon"),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// doRequest waits for the rate limiter and executes the request once.
// Failed calls are reported to the caller as-is; there is no retry.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
	resp, err := req.SetContext(ctx).Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
	}
	return resp, nil
}

// LastTrade is the most recent trade printed for a ticker.
type LastTrade struct {
	Symbol string
	Price  float64
	Size   float64
	Time   time.Time
}

type lastTradeResponse struct {
	Status  string `json:"status"`
	Results struct {
		Ticker    string  `json:"T"`
		Price     float64 `json:"p"`
		Size      float64 `json:"s"`
		Timestamp int64   `json:"t"` // nanoseconds
	} `json:"results"`
}

// LastTrade fetches the last trade for a ticker.
func (c *RestClient) LastTrade(ctx context.Context, symbol string) (*LastTrade, error) {
	req := c.client.R().
		SetPathParam("symbol", symbol).
		SetResult(&lastTradeResponse{})

	resp, err := c.doRequest(ctx, resty.MethodGet, "/v2/last/trade/{symbol}", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get last trade for %s: %w", symbol, err)
	}

	result := resp.Result().(*lastTradeResponse)
	if result.Results.Price <= 0 {
		return nil, fmt.Errorf("no last trade available for %s", symbol)
	}
	return &LastTrade{
		Symbol: symbol,
		Price:  result.Results.Price,
		Size:   result.Results.Size,
		Time:   time.Unix(0, result.Results.Timestamp).UTC(),
	}, nil
}

// TickerDetails is the reference data for an instrument.
type TickerDetails struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	HomepageURL string  `json:"homepageUrl"`
	LogoURL     string  `json:"logoUrl"`
	MarketCap   float64 `json:"marketCap"`
}

type tickerDetailsResponse struct {
	Results struct {
		Ticker      string  `json:"ticker"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		HomepageURL string  `json:"homepage_url"`
		MarketCap   float64 `json:"market_cap"`
		Branding    struct {
			LogoURL string `json:"logo_url"`
		} `json:"branding"`
	} `json:"results"`
}

// TickerDetails fetches name, description, homepage, logo and market cap for a ticker.
func (c *RestClient) TickerDetails(ctx context.Context, symbol string) (*TickerDetails, error) {
	req := c.client.R().
		SetPathParam("symbol", symbol).
		SetResult(&tickerDetailsResponse{})

	resp, err := c.doRequest(ctx, resty.MethodGet, "/v3/reference/tickers/{symbol}", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker details for %s: %w", symbol, err)
	}

	r := resp.Result().(*tickerDetailsResponse).Results
	return &TickerDetails{
		Symbol:      symbol,
		Name:        r.Name,
		Description: r.Description,
		HomepageURL: r.HomepageURL,
		LogoURL:     r.Branding.LogoURL,
		MarketCap:   r.MarketCap,
	}, nil
}

// DailyOpenClose holds the session summary of one ticker on one date.
type DailyOpenClose struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"from"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// DailyOpenClose fetches the adjusted open/close for a ticker on a date (YYYY-MM-DD).
func (c *RestClient) DailyOpenClose(ctx context.Context, symbol, date string) (*DailyOpenClose, error) {
	req := c.client.R().
		SetPathParams(map[string]string{"symbol": symbol, "date": date}).
		SetQueryParam("adjusted", "true").
		SetResult(&DailyOpenClose{})

	resp, err := c.doRequest(ctx, resty.MethodGet, "/v1/open-close/{symbol}/{date}", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get open/close for %s on %s: %w", symbol, date, err)
	}

	result := resp.Result().(*DailyOpenClose)
	if result.Symbol == "" {
		result.Symbol = symbol
	}
	return result, nil
}

// Bar is one daily aggregate.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type aggregatesResponse struct {
	Results []struct {
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		Timestamp int64   `json:"t"` // milliseconds
	} `json:"results"`
}

// DailyBars fetches adjusted daily bars between two dates, inclusive.
func (c *RestClient) DailyBars(ctx context.Context, symbol, from, to string) ([]Bar, error) {
	req := c.client.R().
		SetPathParams(map[string]string{"symbol": symbol, "from": from, "to": to}).
		SetQueryParams(map[string]string{"adjusted": "true", "sort": "asc"}).
		SetResult(&aggregatesResponse{})

	resp, err := c.doRequest(ctx, resty.MethodGet, "/v2/aggs/ticker/{symbol}/range/1/day/{from}/{to}", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily bars for %s: %w", symbol, err)
	}

	result := resp.Result().(*aggregatesResponse)
	bars := make([]Bar, 0, len(result.Results))
	for _, r := range result.Results {
		bars = append(bars, Bar{
			Date:   time.UnixMilli(r.Timestamp).UTC().Format(time.DateOnly),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

// Article is a news item mentioning a ticker.
type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"article_url"`
	ImageURL    string    `json:"image_url"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"published_utc"`
	Publisher   struct {
		Name string `json:"name"`
	} `json:"publisher"`
}

type newsResponse struct {
	Results []Article `json:"results"`
}

// News fetches the latest articles for a ticker.
func (c *RestClient) News(ctx context.Context, symbol string, limit int) ([]Article, error) {
	req := c.client.R().
		SetQueryParams(map[string]string{
			"ticker": symbol,
			"limit":  strconv.Itoa(limit),
		}).
		SetResult(&newsResponse{})

	resp, err := c.doRequest(ctx, resty.MethodGet, "/v2/reference/news", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get news for %s: %w", symbol, err)
	}

	return resp.Result().(*newsResponse).Results, nil
}
