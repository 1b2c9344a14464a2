package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/config"
	"paper-trade-go/internal/database"
	"paper-trade-go/internal/polygon"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockRestClient is a mock implementation of the polygon.RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

func (m *MockRestClient) LastTrade(ctx context.Context, symbol string) (*polygon.LastTrade, error) {
	args := m.Called(symbol)
	trade, _ := args.Get(0).(*polygon.LastTrade)
	return trade, args.Error(1)
}

func (m *MockRestClient) TickerDetails(ctx context.Context, symbol string) (*polygon.TickerDetails, error) {
	args := m.Called(symbol)
	details, _ := args.Get(0).(*polygon.TickerDetails)
	return details, args.Error(1)
}

func (m *MockRestClient) DailyOpenClose(ctx context.Context, symbol, date string) (*polygon.DailyOpenClose, error) {
	args := m.Called(symbol, date)
	oc, _ := args.Get(0).(*polygon.DailyOpenClose)
	return oc, args.Error(1)
}

func (m *MockRestClient) DailyBars(ctx context.Context, symbol, from, to string) ([]polygon.Bar, error) {
	args := m.Called(symbol, from, to)
	bars, _ := args.Get(0).([]polygon.Bar)
	return bars, args.Error(1)
}

func (m *MockRestClient) News(ctx context.Context, symbol string, limit int) ([]polygon.Article, error) {
	args := m.Called(symbol, limit)
	articles, _ := args.Get(0).([]polygon.Article)
	return articles, args.Error(1)
}

// Wednesday
var fixedNow = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func setupTest(t *testing.T, ttl time.Duration) (*Service, *MockRestClient, *gorm.DB) {
	db, err := database.NewDatabase(config.Database{Driver: "sqlite", DSN: "file::memory:"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.SeedInstruments(db, []config.Instrument{
		{Symbol: "AAPL", Name: "Apple Inc."},
		{Symbol: "MSFT", Name: "Microsoft Corp."},
		{Symbol: "TSLA", Name: "Tesla Inc."},
	}))

	mockClient := new(MockRestClient)
	svc := NewService(mockClient, db, ttl, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, mockClient, db
}

func TestLastWorkingDay(t *testing.T) {
	testCases := []struct {
		name     string
		now      time.Time
		expected string
	}{
		{"Sunday goes back to Friday", time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), "2024-03-08"},
		{"Monday goes back to Friday", time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), "2024-03-08"},
		{"Wednesday goes back one day", time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), "2024-03-12"},
		{"Saturday goes back to Friday", time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC), "2024-03-08"},
		{"Across a month boundary", time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), "2024-03-29"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, LastWorkingDay(tc.now))
		})
	}
}

func TestLastPrice_CachedWithinTTL(t *testing.T) {
	svc, mockClient, _ := setupTest(t, time.Minute)
	mockClient.On("LastTrade", "AAPL").Return(&polygon.LastTrade{Symbol: "AAPL", Price: 190}, nil).Once()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			price, err := svc.LastPrice(context.Background(), "AAPL")
			assert.NoError(t, err)
			assert.Equal(t, 190.0, price)
		}()
	}
	wg.Wait()

	mockClient.AssertNumberOfCalls(t, "LastTrade", 1)
}

func TestLastPrice_RefetchedAfterTTL(t *testing.T) {
	svc, mockClient, _ := setupTest(t, time.Minute)
	mockClient.On("LastTrade", "AAPL").Return(&polygon.LastTrade{Symbol: "AAPL", Price: 190}, nil).Once()
	mockClient.On("LastTrade", "AAPL").Return(&polygon.LastTrade{Symbol: "AAPL", Price: 195}, nil).Once()

	price, err := svc.LastPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.0, price)

	svc.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
	price, err = svc.LastPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 195.0, price)

	mockClient.AssertExpectations(t)
}

func TestLastPrice_ErrorIsNotCached(t *testing.T) {
	svc, mockClient, _ := setupTest(t, time.Minute)
	mockClient.On("LastTrade", "AAPL").Return(nil, errors.New("boom")).Once()
	mockClient.On("LastTrade", "AAPL").Return(&polygon.LastTrade{Symbol: "AAPL", Price: 190}, nil).Once()

	_, err := svc.LastPrice(context.Background(), "AAPL")
	assert.Error(t, err)

	price, err := svc.LastPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.0, price)
}

// gatedClient holds LastTrade until released and records the context it ran with.
type gatedClient struct {
	*MockRestClient
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	calls  int
	ctxErr error
}

func (c *gatedClient) LastTrade(ctx context.Context, symbol string) (*polygon.LastTrade, error) {
	c.once.Do(func() { close(c.started) })
	<-c.release
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.ctxErr = ctx.Err()
	return &polygon.LastTrade{Symbol: symbol, Price: 190}, nil
}

func TestLastPrice_CancelledCallerDoesNotFailOthers(t *testing.T) {
	svc, mockClient, _ := setupTest(t, time.Minute)
	client := &gatedClient{MockRestClient: mockClient, started: make(chan struct{}), release: make(chan struct{})}
	svc.client = client

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.LastPrice(ctx, "AAPL")
		firstErr <- err
	}()
	<-client.started

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	secondPrice := make(chan float64, 1)
	go func() {
		price, err := svc.LastPrice(context.Background(), "AAPL")
		assert.NoError(t, err)
		secondPrice <- price
	}()
	close(client.release)

	assert.Equal(t, 190.0, <-secondPrice)
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 1, client.calls)
	assert.NoError(t, client.ctxErr)
}

func TestOverview(t *testing.T) {
	setup := func(t *testing.T) (*Service, *MockRestClient) {
		svc, mockClient, _ := setupTest(t, 0)
		mockClient.On("DailyOpenClose", "AAPL", "2024-03-12").Return(&polygon.DailyOpenClose{Open: 172, Close: 173.2, Volume: 59e6}, nil)
		mockClient.On("DailyOpenClose", "MSFT", "2024-03-12").Return(nil, errors.New("request failed with status 429"))
		mockClient.On("DailyOpenClose", "TSLA", "2024-03-12").Return(&polygon.DailyOpenClose{Open: 177, Close: 178.1, Volume: 87e6}, nil)
		return svc, mockClient
	}

	t.Run("SortByName drops failures", func(t *testing.T) {
		svc, mockClient := setup(t)

		quotes, err := svc.Overview(context.Background(), "")

		require.NoError(t, err)
		require.Len(t, quotes, 2)
		assert.Equal(t, "AAPL", quotes[0].Symbol)
		assert.Equal(t, "Apple Inc.", quotes[0].Name)
		assert.Equal(t, "2024-03-12", quotes[0].Date)
		assert.Equal(t, "TSLA", quotes[1].Symbol)
		mockClient.AssertNumberOfCalls(t, "DailyOpenClose", 3)
	})

	t.Run("SortByVolume", func(t *testing.T) {
		svc, _ := setup(t)

		quotes, err := svc.Overview(context.Background(), SortByVolume)

		require.NoError(t, err)
		require.Len(t, quotes, 2)
		assert.Equal(t, "TSLA", quotes[0].Symbol)
		assert.Equal(t, "AAPL", quotes[1].Symbol)
	})

	t.Run("InvalidSort", func(t *testing.T) {
		svc, _, _ := setupTest(t, 0)

		_, err := svc.Overview(context.Background(), "price")
		assert.ErrorIs(t, err, apperror.ErrInvalidSort)
	})
}

func TestDetails(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc, mockClient, _ := setupTest(t, time.Minute)
		mockClient.On("TickerDetails", "AAPL").Return(&polygon.TickerDetails{Symbol: "AAPL", Name: "Apple Inc.", MarketCap: 2.7e12}, nil)
		mockClient.On("LastTrade", "AAPL").Return(&polygon.LastTrade{Price: 173}, nil)

		details, err := svc.Details(context.Background(), "aapl")

		require.NoError(t, err)
		assert.Equal(t, "Apple Inc.", details.Name)
		require.NotNil(t, details.Price)
		assert.Equal(t, 173.0, *details.Price)
	})

	t.Run("PriceUnavailable", func(t *testing.T) {
		svc, mockClient, _ := setupTest(t, time.Minute)
		mockClient.On("TickerDetails", "AAPL").Return(&polygon.TickerDetails{Symbol: "AAPL"}, nil)
		mockClient.On("LastTrade", "AAPL").Return(nil, errors.New("timeout"))

		details, err := svc.Details(context.Background(), "AAPL")

		require.NoError(t, err)
		assert.Equal(t, "Apple Inc.", details.Name) // falls back to the instrument list
		assert.Nil(t, details.Price)
	})

	t.Run("UnknownSymbol", func(t *testing.T) {
		svc, mockClient, _ := setupTest(t, time.Minute)

		_, err := svc.Details(context.Background(), "GME")

		assert.ErrorIs(t, err, apperror.ErrUnknownSymbol)
		mockClient.AssertNotCalled(t, "TickerDetails", mock.Anything)
	})

	t.Run("DisabledSymbol", func(t *testing.T) {
		svc, _, db := setupTest(t, time.Minute)
		require.NoError(t, database.SeedInstruments(db, []config.Instrument{{Symbol: "AAPL", Name: "Apple Inc."}}))

		_, err := svc.Details(context.Background(), "MSFT")
		assert.ErrorIs(t, err, apperror.ErrUnknownSymbol)
	})
}

func TestHistory(t *testing.T) {
	t.Run("DefaultRange", func(t *testing.T) {
		svc, mockClient, _ := setupTest(t, 0)
		mockClient.On("DailyBars", "TSLA", "2024-02-11", "2024-03-12").Return([]polygon.Bar{{Date: "2024-03-12", Close: 177}}, nil)

		bars, err := svc.History(context.Background(), "TSLA", "", "")

		require.NoError(t, err)
		assert.Len(t, bars, 1)
	})

	t.Run("InvalidRange", func(t *testing.T) {
		svc, _, _ := setupTest(t, 0)

		_, err := svc.History(context.Background(), "TSLA", "2024-03-12", "2024-03-01")
		assert.ErrorIs(t, err, apperror.ErrInvalidDateRange)

		_, err = svc.History(context.Background(), "TSLA", "yesterday", "2024-03-01")
		assert.ErrorIs(t, err, apperror.ErrInvalidDateRange)
	})

	t.Run("ProviderFailure", func(t *testing.T) {
		svc, mockClient, _ := setupTest(t, 0)
		mockClient.On("DailyBars", "TSLA", "2024-03-01", "2024-03-08").Return(nil, errors.New("boom"))

		_, err := svc.History(context.Background(), "TSLA", "2024-03-01", "2024-03-08")
		assert.ErrorIs(t, err, apperror.ErrMarketData)
	})
}

func TestNews_DropsFailedSymbols(t *testing.T) {
	svc, mockClient, _ := setupTest(t, 0)
	mockClient.On("News", "AAPL", 2).Return([]polygon.Article{{Title: "a"}, {Title: "b"}}, nil)
	mockClient.On("News", "MSFT", 2).Return(nil, errors.New("boom"))
	mockClient.On("News", "TSLA", 2).Return([]polygon.Article{{Title: "c"}}, nil)

	news := svc.News(context.Background(), []string{"TSLA", "MSFT", "AAPL"}, 2)

	require.Len(t, news, 2)
	assert.Equal(t, "TSLA", news[0].Symbol)
	assert.Equal(t, "AAPL", news[1].Symbol)
	assert.Len(t, news[1].Articles, 2)
}
