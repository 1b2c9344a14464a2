package portfolio

import (
	"context"
	"sort"
	"sync"

	"paper-trade-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Position is the per-symbol summary derived from a user's trade history.
type Position struct {
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	NetAmount        decimal.Decimal `json:"netAmount"`
	BuyAmount        decimal.Decimal `json:"buyAmount"`
	SellAmount       decimal.Decimal `json:"sellAmount"`
	TotalBuyCost     decimal.Decimal `json:"totalBuyCost"`
	TotalSellCost    decimal.Decimal `json:"totalSellCost"`
	AverageBuyPrice  decimal.Decimal `json:"averageBuyPrice"`
	AverageSellPrice decimal.Decimal `json:"averageSellPrice"`
	RealizedPL       decimal.Decimal `json:"realizedPL"`
	CurrentPrice     decimal.Decimal `json:"currentPrice"`
	UnrealizedPL     decimal.Decimal `json:"unrealizedPL"`
}

// Aggregate folds a user's orders into one Position per symbol.
//
// Orders are folded oldest first; orders with equal timestamps keep their
// input order. A sell realizes (price - average buy price so far) * amount.
// Averages with a zero denominator are zero. Positions are returned in the
// order their symbol first appears in the folded sequence.
func Aggregate(orders []models.Order) []Position {
	sorted := make([]models.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	index := make(map[string]int)
	positions := make([]Position, 0)
	for _, o := range sorted {
		i, ok := index[o.Symbol]
		if !ok {
			i = len(positions)
			index[o.Symbol] = i
			positions = append(positions, Position{Symbol: o.Symbol, Name: o.Name})
		}
		positions[i].apply(o)
	}
	return positions
}

func (p *Position) apply(o models.Order) {
	amount := decimal.NewFromFloat(o.Amount)
	price := decimal.NewFromFloat(o.Price)
	cost := amount.Mul(price)

	switch o.Side {
	case models.SideBuy:
		p.NetAmount = p.NetAmount.Add(amount)
		p.BuyAmount = p.BuyAmount.Add(amount)
		p.TotalBuyCost = p.TotalBuyCost.Add(cost)
	case models.SideSell:
		p.NetAmount = p.NetAmount.Sub(amount)
		p.SellAmount = p.SellAmount.Add(amount)
		p.TotalSellCost = p.TotalSellCost.Add(cost)
		p.RealizedPL = p.RealizedPL.Add(price.Sub(p.AverageBuyPrice).Mul(amount))
	default:
		return
	}

	p.AverageBuyPrice = average(p.TotalBuyCost, p.BuyAmount)
	p.AverageSellPrice = average(p.TotalSellCost, p.SellAmount)
}

func average(total, amount decimal.Decimal) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	return total.Div(amount)
}

// PriceSource provides the last traded price of a symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Enrich looks up the current price of every position concurrently and sets
// CurrentPrice and UnrealizedPL. A failed lookup is logged and leaves that
// position's fields untouched; the others are still enriched.
func Enrich(ctx context.Context, positions []Position, prices PriceSource, logger *zap.Logger) {
	var wg sync.WaitGroup
	for i := range positions {
		wg.Add(1)
		go func(p *Position) {
			defer wg.Done()
			price, err := prices.LastPrice(ctx, p.Symbol)
			if err != nil {
				logger.Warn("Could not fetch current price", zap.String("symbol", p.Symbol), zap.Error(err))
				return
			}
			p.CurrentPrice = decimal.NewFromFloat(price)
			p.UnrealizedPL = p.CurrentPrice.Sub(p.AverageBuyPrice).Mul(p.NetAmount)
		}(&positions[i])
	}
	wg.Wait()
}
