package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/voucher-ledger/internal/observability"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func testConfig() *Config {
	return &Config{AppEnv: "test", RateLimitPerMinute: 1000, BaseCurrency: "INR"}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  testConfig(),
		Metrics: observability.NewMetrics(),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ledger_http_requests_total")
}

func TestRouterReadiness(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(RouterParams{Logger: logger, Config: testConfig(), Readiness: map[string]Pinger{
		"postgres": pingStub{},
		"redis":    pingStub{err: errors.New("down")},
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"postgres":"up","redis":"down"}`, rec.Body.String())
}

func TestActorMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(ActorMiddleware)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if id, ok := shared.ActorFromContext(r.Context()); ok {
			w.Header().Set("X-Seen-Actor", "yes")
			require.Equal(t, int64(42), id)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		header string
		code   int
		seen   string
	}{
		{"", http.StatusNoContent, ""},
		{"42", http.StatusNoContent, "yes"},
		{"abc", http.StatusUnauthorized, ""},
		{"-3", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set(ActorHeader, tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, tc.code, rec.Code, tc.header)
		require.Equal(t, tc.seen, rec.Header().Get("X-Seen-Actor"))
	}
}
