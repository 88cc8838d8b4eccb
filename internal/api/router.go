package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/auth"
)

// RouterConfig carries the cross-cutting pieces of the HTTP surface.
type RouterConfig struct {
	Auth        auth.Middleware
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter wires every endpoint behind CORS, request logging, and bearer auth.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(cfg.Auth.Wrap)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(auth.ScopeHabitsRead))
			r.Get("/profile", h.getProfile)
			r.Get("/habits", h.listHabits)
			r.Get("/view", h.viewSnapshot)
			r.Get("/view/stream", h.streamView)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(auth.ScopeHabitsWrite))
			r.Post("/session", h.signIn)
			r.Post("/habits", h.createHabit)
			r.Post("/habits/{habitID}/increment", h.incrementStreak)
			r.Post("/habits/{habitID}/reset", h.resetStreak)
			r.Delete("/habits/{habitID}", h.deleteHabit)
		})
	})
	return r
}

// RequestLogger logs one line per request with status and latency.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
