package api

import (
	"net/http"
	"strings"
	"time"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/auth"
	"paper-trade-go/internal/events"
	"paper-trade-go/internal/leaderboard"
	"paper-trade-go/internal/market"
	"paper-trade-go/internal/portfolio"
	"paper-trade-go/internal/profile"
	"paper-trade-go/internal/trading"
	"paper-trade-go/internal/watchlist"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxJSONBody = 1 << 20
	tokenCookie = "token"
)

// Services are the application services the HTTP surface exposes.
type Services struct {
	DB          *gorm.DB
	Auth        *auth.Service
	Market      *market.Service
	Portfolio   *portfolio.Service
	Trading     *trading.Service
	Profile     *profile.Service
	Watchlist   *watchlist.Service
	Leaderboard *leaderboard.Service
	Bus         *events.Bus
}

// Options tune request handling.
type Options struct {
	RequestTimeout   time.Duration
	NewsLimit        int
	LeaderboardLimit int
	MaxImageBytes    int64
	SecureCookies    bool
}

// Handler serves the JSON API.
type Handler struct {
	Services
	opts     Options
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(services Services, opts Options, logger *zap.Logger) *Handler {
	return &Handler{
		Services: services,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Named("api"),
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		// The stream outlives any request timeout.
		r.Get("/portfolio/stream", h.authenticated(h.stream, true))

		r.Group(func(r chi.Router) {
			if h.opts.RequestTimeout > 0 {
				r.Use(middleware.Timeout(h.opts.RequestTimeout))
			}

			r.Post("/auth/register", h.register)
			r.Post("/auth/login", h.login)
			r.Post("/auth/logout", h.authenticated(h.logout, false))
			r.Post("/auth/password", h.authenticated(h.changePassword, false))

			r.Get("/market", h.marketOverview)
			r.Get("/market/{symbol}", h.marketDetails)
			r.Get("/market/{symbol}/history", h.marketHistory)

			r.Get("/me", h.authenticated(h.getProfile, false))
			r.Patch("/me", h.authenticated(h.updateProfile, false))
			r.Get("/me/picture", h.authenticated(h.getPicture, false))
			r.Put("/me/picture", h.authenticated(h.putPicture, false))
			r.Delete("/me/picture", h.authenticated(h.deletePicture, false))

			r.Get("/portfolio", h.authenticated(h.getPortfolio, false))
			r.Get("/orders", h.authenticated(h.listOrders, false))
			r.Post("/orders", h.authenticated(h.submitOrder, false))

			r.Get("/watchlist", h.authenticated(h.listWatchlist, false))
			r.Put("/watchlist/{symbol}", h.authenticated(h.addToWatchlist, false))
			r.Delete("/watchlist/{symbol}", h.authenticated(h.removeFromWatchlist, false))

			r.Get("/news", h.authenticated(h.news, false))
			r.Get("/leaderboard", h.leaderboard)
		})
	})

	return r
}

// sessionHandler is an endpoint that needs to know who is calling.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess auth.Session)

// authenticated resolves the caller's session and rejects anonymous callers.
// The query parameter is only consulted when allowQuery is set, since browsers
// cannot attach headers to websocket handshakes.
func (h *Handler) authenticated(next sessionHandler, allowQuery bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := h.Auth.Resolve(r.Context(), tokenFrom(r, allowQuery))
		if !sess.Authenticated() {
			h.fail(w, r, apperror.ErrUnauthenticated)
			return
		}
		next(w, r, sess)
	}
}

func tokenFrom(r *http.Request, allowQuery bool) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(tokenCookie); err == nil {
		return cookie.Value
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := Response{Status: "success"}
	database, code := "healthy", http.StatusOK
	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
		resp.Status = "error"
		database, code = "unhealthy", http.StatusServiceUnavailable
	}
	resp.Data = map[string]string{
		"database":  database,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	h.writeJSON(w, code, resp)
}
