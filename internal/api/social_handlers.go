package api

import (
	"net/http"
	"strconv"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/auth"
	"paper-trade-go/internal/market"

	"github.com/go-chi/chi/v5"
)

var errInvalidLimit = apperror.New(http.StatusBadRequest, "limit must be a positive integer")

func (h *Handler) listWatchlist(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	entries, err := h.Watchlist.List(r.Context(), sess.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, entries)
}

func (h *Handler) addToWatchlist(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := h.Watchlist.Add(r.Context(), sess.UserID, chi.URLParam(r, "symbol")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.listWatchlist(w, r, sess)
}

func (h *Handler) removeFromWatchlist(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := h.Watchlist.Remove(r.Context(), sess.UserID, chi.URLParam(r, "symbol")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.listWatchlist(w, r, sess)
}

// news returns the latest articles for every symbol on the caller's watchlist.
func (h *Handler) news(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	symbols, err := h.Watchlist.Symbols(r.Context(), sess.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(symbols) == 0 {
		h.success(w, []market.SymbolNews{})
		return
	}
	h.success(w, h.Market.News(r.Context(), symbols, h.opts.NewsLimit))
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := h.opts.LeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(w, r, errInvalidLimit)
			return
		}
		if limit <= 0 || n < limit {
			limit = n
		}
	}
	entries, err := h.Leaderboard.Top(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, entries)
}
