package api

import (
	"net/http"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/auth"
	"paper-trade-go/internal/models"
	"paper-trade-go/internal/trading"

	"go.uber.org/zap"
)

type orderRequest struct {
	Symbol string  `json:"symbol" validate:"required,max=12"`
	Type   string  `json:"type" validate:"required,oneof=buy sell"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) getPortfolio(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	snapshot, err := h.Portfolio.Snapshot(r.Context(), sess.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, snapshot)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	orders, err := h.Portfolio.Orders(r.Context(), sess.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, orders)
}

// submitOrder executes at the instrument's last traded price.
func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req orderRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	instrument, err := h.Market.Instrument(r.Context(), req.Symbol)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	price, err := h.Market.LastPrice(r.Context(), instrument.Symbol)
	if err != nil {
		h.logger.Warn("No price for order", zap.String("symbol", instrument.Symbol), zap.Error(err))
		h.fail(w, r, apperror.ErrQuoteUnavailable)
		return
	}

	result, err := h.Trading.Submit(r.Context(), trading.OrderRequest{
		UserID: sess.UserID,
		Symbol: instrument.Symbol,
		Side:   models.Side(req.Type),
		Amount: req.Amount,
		Price:  price,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, result)
}
