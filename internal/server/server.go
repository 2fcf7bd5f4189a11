package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Options — параметры HTTP-сервера.
type Options struct {
	MaxBodyBytes int64
	APIKeys      map[string]struct{}
	RateLimiter  *RateLimiter // nil — без ограничения
	// Ready проверяет зависимости для /readyz (обычно пинг БД).
	Ready func(ctx context.Context) error
}

// Mount подключает маршруты фичи к защищённой группе.
type Mount func(r chi.Router)

// NewRouter собирает роутер: общие middleware, /healthz, /readyz
// и маршруты фич под проверкой API-ключа.
func NewRouter(opts Options, mounts ...Mount) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Recoverer)
	r.Use(Identify)
	r.Use(RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				// Причину пишем только в лог: /readyz доступен без ключа
				log.WithError(err).Warn("Проверка готовности не прошла")
				WriteError(w, http.StatusServiceUnavailable, "NOT_READY", "database unavailable")
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Group(func(r chi.Router) {
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Middleware)
		}
		r.Use(APIKeyAuth(opts.APIKeys))
		r.Use(BodyLimit(opts.MaxBodyBytes))
		r.Use(RequireJSON)
		for _, m := range mounts {
			m(r)
		}
	})
	return r
}

// NewHTTPServer создаёт http.Server с таймаутами.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
