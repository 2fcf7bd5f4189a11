package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Заголовки, которые выставляет шлюз после аутентификации.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserHandle = "X-User-Handle"
	HeaderAPIKey     = "X-API-Key"
)

type contextKey string

const callerCtxKey contextKey = "caller"

// Caller — пользователь, от имени которого пришёл запрос.
type Caller struct {
	UserID int64
	Handle string
}

// CallerFrom возвращает пользователя из контекста запроса.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerCtxKey).(Caller)
	return c, ok
}

// WithCaller кладёт пользователя в контекст.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerCtxKey, c)
}

// Identify читает X-User-ID/X-User-Handle, если они есть. Запрос не отклоняет.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := parseCaller(r); ok {
			r = r.WithContext(WithCaller(r.Context(), c))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCaller отвечает 401, если шлюз не передал пользователя.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFrom(r.Context()); !ok {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+HeaderUserID)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseCaller(r *http.Request) (Caller, bool) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return Caller{}, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Caller{}, false
	}
	return Caller{UserID: id, Handle: strings.TrimSpace(r.Header.Get(HeaderUserHandle))}, true
}

// APIKeyAuth пропускает только запросы с ключом из списка.
// Пустой список — проверка выключена.
func APIKeyAuth(allowed map[string]struct{}) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !keyAllowed(allowed, r.Header.Get(HeaderAPIKey)) {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keyAllowed(allowed map[string]struct{}, key string) bool {
	if key == "" {
		return false
	}
	ok := false
	for k := range allowed {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

// BodyLimit ограничивает размер тела запроса.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON требует Content-Type: application/json для POST.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := strings.ToLower(r.Header.Get("Content-Type"))
		if r.Method == http.MethodPost && r.ContentLength != 0 && !strings.HasPrefix(ct, "application/json") {
			WriteError(w, http.StatusUnsupportedMediaType, "INVALID_REQUEST", "expected application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger логирует каждый запрос: метод, путь, статус, длительность.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"remote":     r.RemoteAddr,
			"request_id": middleware.GetReqID(r.Context()),
		}
		if c, ok := CallerFrom(r.Context()); ok {
			fields["user_id"] = c.UserID
		}
		entry := log.WithFields(fields)
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP-запрос завершён с ошибкой")
			return
		}
		entry.Debug("HTTP-запрос")
	})
}

// Recoverer перехватывает панику в обработчике и отвечает 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.WithFields(log.Fields{
				"component": "panic_recovery",
				"panic":     fmt.Sprintf("%v", rec),
				"path":      r.URL.Path,
				"stack":     string(debug.Stack()),
			}).Error("ПАНИКА в обработчике — восстановлено")
			WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}

// clientKey — IP клиента без порта.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
