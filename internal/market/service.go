package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/models"
	"paper-trade-go/internal/polygon"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	SortByName   = "name"
	SortByVolume = "volume"

	// priceFetchTimeout bounds a shared last-price request, which no longer
	// follows any single caller's context.
	priceFetchTimeout = 10 * time.Second

	defaultHistoryDays = 30
)

// Quote is the daily summary of one instrument shown on the market overview.
type Quote struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Details is the instrument page: reference data plus the last traded price.
type Details struct {
	polygon.TickerDetails
	Price *float64 `json:"price,omitempty"`
}

// SymbolNews groups the articles fetched for one symbol.
type SymbolNews struct {
	Symbol   string            `json:"symbol"`
	Articles []polygon.Article `json:"articles"`
}

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

// Service aggregates provider calls for the fixed instrument list. Last prices
// are cached for a short TTL and concurrent lookups for the same symbol share
// one provider request.
type Service struct {
	client polygon.RestClientInterface
	db     *gorm.DB
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	prices map[string]cachedPrice
	group  singleflight.Group
}

// NewService creates a market Service. A zero ttl disables the price cache.
func NewService(client polygon.RestClientInterface, db *gorm.DB, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		client: client,
		db:     db,
		logger: logger.Named("market"),
		ttl:    ttl,
		now:    time.Now,
		prices: make(map[string]cachedPrice),
	}
}

// Instrument returns the enabled instrument for symbol or ErrUnknownSymbol.
func (s *Service) Instrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	var instrument models.Instrument
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND enabled = ?", strings.ToUpper(symbol), true).
		First(&instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrUnknownSymbol
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument %s: %w", symbol, err)
	}
	return &instrument, nil
}

// Instruments returns the enabled instruments ordered by symbol.
func (s *Service) Instruments(ctx context.Context) ([]models.Instrument, error) {
	var instruments []models.Instrument
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("symbol").Find(&instruments).Error; err != nil {
		return nil, fmt.Errorf("failed to load instruments: %w", err)
	}
	return instruments, nil
}

// LastPrice returns the last traded price for symbol. Concurrent callers share
// one provider request; a caller giving up does not fail the others.
func (s *Service) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := s.cachedPrice(symbol); ok {
		return price, nil
	}

	ch := s.group.DoChan(symbol, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), priceFetchTimeout)
		defer cancel()
		if price, ok := s.cachedPrice(symbol); ok {
			return price, nil
		}
		trade, err := s.client.LastTrade(fetchCtx, symbol)
		if err != nil {
			return 0.0, err
		}
		s.mu.Lock()
		s.prices[symbol] = cachedPrice{price: trade.Price, fetchedAt: s.now()}
		s.mu.Unlock()
		return trade.Price, nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	}
}

func (s *Service) cachedPrice(symbol string) (float64, bool) {
	if s.ttl <= 0 {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := s.prices[symbol]
	if !ok || s.now().Sub(cached.fetchedAt) >= s.ttl {
		return 0, false
	}
	return cached.price, true
}

// Overview fetches the last working day's open/close for every enabled
// instrument concurrently. Instruments whose request fails are logged and left
// out of the result.
func (s *Service) Overview(ctx context.Context, sortBy string) ([]Quote, error) {
	if sortBy == "" {
		sortBy = SortByName
	}
	if sortBy != SortByName && sortBy != SortByVolume {
		return nil, apperror.ErrInvalidSort
	}

	instruments, err := s.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	date := LastWorkingDay(s.now())

	results := make([]*Quote, len(instruments))
	var wg sync.WaitGroup
	for i, instrument := range instruments {
		wg.Add(1)
		go func(i int, instrument models.Instrument) {
			defer wg.Done()
			oc, err := s.client.DailyOpenClose(ctx, instrument.Symbol, date)
			if err != nil {
				s.logger.Warn("Dropping instrument from overview",
					zap.String("symbol", instrument.Symbol), zap.String("date", date), zap.Error(err))
				return
			}
			results[i] = &Quote{
				Symbol: instrument.Symbol,
				Name:   instrument.Name,
				Date:   date,
				Open:   oc.Open,
				High:   oc.High,
				Low:    oc.Low,
				Close:  oc.Close,
				Volume: oc.Volume,
			}
		}(i, instrument)
	}
	wg.Wait()

	quotes := make([]Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}

	switch sortBy {
	case SortByVolume:
		sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Volume > quotes[j].Volume })
	default:
		sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
	}
	return quotes, nil
}

// LastWorkingDay returns the most recent weekday strictly before now, as YYYY-MM-DD.
// Exchange holidays are not taken into account.
func LastWorkingDay(now time.Time) string {
	days := 1
	switch now.Weekday() {
	case time.Sunday:
		days = 2
	case time.Monday:
		days = 3
	}
	return now.AddDate(0, 0, -days).Format(time.DateOnly)
}

// Details returns reference data for a known instrument. The last price is
// included when it can be fetched.
func (s *Service) Details(ctx context.Context, symbol string) (*Details, error) {
	instrument, err := s.Instrument(ctx, symbol)
	if err != nil {
		return nil, err
	}

	td, err := s.client.TickerDetails(ctx, instrument.Symbol)
	if err != nil {
		s.logger.Error("Ticker details failed", zap.String("symbol", instrument.Symbol), zap.Error(err))
		return nil, apperror.ErrMarketData
	}
	if td.Name == "" {
		td.Name = instrument.Name
	}

	details := &Details{TickerDetails: *td}
	if price, err := s.LastPrice(ctx, instrument.Symbol); err != nil {
		s.logger.Warn("Last price unavailable", zap.String("symbol", instrument.Symbol), zap.Error(err))
	} else {
		details.Price = &price
	}
	return details, nil
}

// History returns daily bars for a known instrument. Empty bounds default to
// the 30 days ending on the last working day.
func (s *Service) History(ctx context.Context, symbol, from, to string) ([]polygon.Bar, error) {
	instrument, err := s.Instrument(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if to == "" {
		to = LastWorkingDay(s.now())
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return nil, apperror.ErrInvalidDateRange
	}
	if from == "" {
		from = end.AddDate(0, 0, -defaultHistoryDays).Format(time.DateOnly)
	}
	start, err := time.Parse(time.DateOnly, from)
	if err != nil || start.After(end) {
		return nil, apperror.ErrInvalidDateRange
	}

	bars, err := s.client.DailyBars(ctx, instrument.Symbol, from, to)
	if err != nil {
		s.logger.Error("Daily bars failed", zap.String("symbol", instrument.Symbol), zap.Error(err))
		return nil, apperror.ErrMarketData
	}
	return bars, nil
}

// News fetches up to limit articles for each symbol concurrently. Symbols
// whose request fails are logged and left out; the input order is kept.
func (s *Service) News(ctx context.Context, symbols []string, limit int) []SymbolNews {
	results := make([]*SymbolNews, len(symbols))
	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			articles, err := s.client.News(ctx, symbol, limit)
			if err != nil {
				s.logger.Warn("Dropping symbol from news", zap.String("symbol", symbol), zap.Error(err))
				return
			}
			results[i] = &SymbolNews{Symbol: symbol, Articles: articles}
		}(i, symbol)
	}
	wg.Wait()

	news := make([]SymbolNews, 0, len(results))
	for _, n := range results {
		if n != nil {
			news = append(news, *n)
		}
	}
	return news
}
