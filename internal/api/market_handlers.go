package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) marketOverview(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.Market.Overview(r.Context(), r.URL.Query().Get("sort"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, quotes)
}

func (h *Handler) marketDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.Market.Details(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, details)
}

func (h *Handler) marketHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bars, err := h.Market.History(r.Context(), chi.URLParam(r, "symbol"), q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, bars)
}
