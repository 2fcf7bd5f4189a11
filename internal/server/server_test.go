package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func okRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"pong": "1"})
	})
	r.With(RequireCaller).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		c, _ := CallerFrom(r.Context())
		WriteJSON(w, http.StatusOK, c)
	})
	r.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyAuth(t *testing.T) {
	h := NewRouter(Options{APIKeys: map[string]struct{}{"secret-key": {}}}, okRoutes)

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/ping", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("без ключа: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderAPIKey, "secret-key")
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Errorf("с ключом: %d", rec.Code)
	}

	// Проверки живости доступны без ключа.
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz: %d", rec.Code)
	}
}

func TestRequireCaller(t *testing.T) {
	h := NewRouter(Options{}, okRoutes)

	for _, id := range []string{"", "abc", "-1", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if id != "" {
			req.Header.Set(HeaderUserID, id)
		}
		if rec := serve(h, req); rec.Code != http.StatusUnauthorized {
			t.Errorf("X-User-ID=%q: %d", id, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "77")
	req.Header.Set(HeaderUserHandle, "mas")
	rec := serve(h, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"UserID":77`) {
		t.Errorf("%d %s", rec.Code, rec.Body.String())
	}
}

func TestRecovererReturns500(t *testing.T) {
	h := NewRouter(Options{}, okRoutes)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("%d %s", rec.Code, rec.Body.String())
	}
}

func TestRequireJSON(t *testing.T) {
	h := NewRouter(Options{}, func(r chi.Router) {
		r.Post("/echo", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := serve(h, req); rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status %d", rec.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	h := NewRouter(Options{MaxBodyBytes: 16}, func(r chi.Router) {
		r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
			var v map[string]string
			if err := DecodeJSON(r, &v); err != nil {
				WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "too big")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"k":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(h, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	h := NewRouter(Options{Ready: func(context.Context) error {
		return errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
	}})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "10.0.0.5") || !strings.Contains(body, "database unavailable") {
		t.Errorf("тело ответа раскрывает причину: %s", body)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.1.1.1") || !rl.Allow("1.1.1.1") {
		t.Fatal("первые два запроса должны пройти")
	}
	if rl.Allow("1.1.1.1") {
		t.Error("третий запрос в окне прошёл")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("лимит общий для разных клиентов")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("1.1.1.1") {
		t.Error("окно не сдвинулось")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	h := NewRouter(Options{RateLimiter: rl}, okRoutes)

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ping", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		return r
	}
	if rec := serve(h, req()); rec.Code != http.StatusOK {
		t.Fatalf("первый: %d", rec.Code)
	}
	rec := serve(h, req())
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
		t.Errorf("второй: %d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
}
