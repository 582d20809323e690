package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/galactic-archives/internal/auth"
	"github.com/dukerupert/galactic-archives/internal/metrics"
	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

type fakeAuthenticator struct {
	tokens map[string]*model.User
	err    error
}

func (f *fakeAuthenticator) Resolve(_ context.Context, bearer string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.tokens[bearer]
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return u, nil
}

func (f *fakeAuthenticator) ResolveOptional(ctx context.Context, bearer string) auth.Identity {
	u, err := f.Resolve(ctx, bearer)
	if err != nil {
		return auth.Identity{}
	}
	return auth.Identity{User: u}
}

var alice = &model.User{ID: "65f1c0ffee0000000000abcd", Email: "alice@x.com"}

func testAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{tokens: map[string]*model.User{"good-token": alice}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unreachable(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func TestRequireAuthRejectsUniformly(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic good-token"},
		{"no token", "Bearer"},
		{"unknown token", "Bearer bad-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAuth(testAuthenticator(), nil, discardLogger())(unreachable(t))

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
				t.Errorf("WWW-Authenticate = %q, want %q", got, "Bearer")
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != "Could not validate credentials" {
				t.Errorf("error = %q", body["error"])
			}
		})
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	var got *model.User
	handler := RequireAuth(testAuthenticator(), nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.UserFromContext(r.Context())
		if !ok {
			t.Fatal("expected user in request context")
		}
		got = u
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got != alice {
		t.Errorf("user = %+v, want alice", got)
	}
}

func TestRequireAuthStoreFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unavailable", store.ErrUnavailable, http.StatusServiceUnavailable},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAuthenticator{err: tt.err}
			handler := RequireAuth(a, nil, discardLogger())(unreachable(t))

			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", "Bearer good-token")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAuthCountsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	handler := RequireAuth(testAuthenticator(), m, discardLogger())(unreachable(t))

	for _, h := range []string{"", "Bearer bad-token"} {
		req := httptest.NewRequest("GET", "/", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != "archives_auth_failures_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	if total != 2 {
		t.Errorf("auth failures = %v, want 2", total)
	}
}

func TestRequireStreamAuthQueryToken(t *testing.T) {
	reached := false
	handler := RequireStreamAuth(testAuthenticator(), nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest("GET", "/stream?token=good-token", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !reached {
		t.Error("query token should authenticate stream requests")
	}

	plain := RequireAuth(testAuthenticator(), nil, discardLogger())(unreachable(t))
	rec := httptest.NewRecorder()
	plain.ServeHTTP(rec, httptest.NewRequest("GET", "/notes?token=good-token", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("query token on a plain route: status = %d, want 401", rec.Code)
	}
}

func TestOptionalAuth(t *testing.T) {
	var got auth.Identity
	handler := OptionalAuth(testAuthenticator())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !got.Authenticated() {
		t.Error("expected authenticated identity")
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got.Authenticated() {
		t.Error("expected anonymous identity for bad token")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"BEARER abc":   "abc",
		"Bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", header)
		if got := BearerToken(req); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
