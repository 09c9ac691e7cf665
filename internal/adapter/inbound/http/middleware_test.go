package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestIDMiddlewareGenerates(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestIDMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if !strings.HasPrefix(seen, "req_") || len(seen) != len("req_")+12 {
		t.Errorf("generated id = %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Error("response header does not echo the request id")
	}
}

func TestRequestIDMiddlewareHonoursInbound(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestIDMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "req_caller_chose")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "req_caller_chose" {
		t.Errorf("id = %q, want caller's", seen)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		xff    string
		realIP string
		remote string
		want   string
	}{
		{"forwarded-for first entry", "203.0.113.9, 10.0.0.1", "", "10.0.0.2:1234", "203.0.113.9"},
		{"real-ip fallback", "", "198.51.100.7", "10.0.0.2:1234", "198.51.100.7"},
		{"remote addr fallback", "", "", "192.0.2.4:5678", "192.0.2.4"},
		{"remote addr without port", "", "", "192.0.2.4", "192.0.2.4"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := clientIP(r); got != tc.want {
				t.Errorf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMetricsMiddlewareCounts(t *testing.T) {
	t.Parallel()

	m := NewMetrics(nil)
	h := MetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/boom", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "ok")); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "ok")); got != 0 {
		t.Errorf("health probe counted: %v", got)
	}
}
