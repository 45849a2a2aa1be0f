package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell/inkwell-api/internal/admin"
	"github.com/inkwell/inkwell-api/internal/events"
	"github.com/inkwell/inkwell-api/internal/handlers"
	"github.com/inkwell/inkwell-api/internal/middleware"
	"github.com/inkwell/inkwell-api/internal/models"
	"github.com/inkwell/inkwell-api/internal/ratelimit"
	"github.com/inkwell/inkwell-api/internal/services/auth"
)

// headerResolver treats the bearer token as the user id.
type headerResolver struct{}

func (headerResolver) Resolve(_ context.Context, r *http.Request) (*models.User, error) {
	token, err := auth.TokenFromRequest(r, "")
	if err != nil {
		return nil, err
	}
	return &models.User{ID: token}, nil
}

type fakeSession struct {
	user  *models.User
	roles map[string]models.Role
}

func (s fakeSession) CurrentUser(context.Context) (*models.User, error) { return s.user, nil }

func (s fakeSession) LookupRole(_ context.Context, id string) (*models.Profile, error) {
	role, ok := s.roles[id]
	if !ok {
		return nil, nil
	}
	return &models.Profile{ID: id, Role: role}, nil
}

type stubPosts struct{}

func (stubPosts) SearchPublished(_ context.Context, q string, _ int) ([]*models.PostSummary, error) {
	if q == "fail" {
		return nil, errors.New("boom")
	}
	return []*models.PostSummary{}, nil
}

func testRouter(t *testing.T, tiers ratelimit.Tiers) http.Handler {
	t.Helper()
	if tiers == nil {
		tiers = ratelimit.DefaultTiers()
	}
	limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), tiers)
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}

	roles := map[string]models.Role{"admin-1": models.RoleAdmin, "reader-1": models.RoleReader}
	gate := admin.NewGate(admin.Deps{
		NewSessionClient: func(r *http.Request) (admin.SessionClient, error) {
			user, err := headerResolver{}.Resolve(r.Context(), r)
			if err != nil {
				return fakeSession{roles: roles}, nil
			}
			return fakeSession{user: user, roles: roles}, nil
		},
		NewServiceClient: func() (admin.RoleLookup, error) { return nil, nil },
	}, zap.NewNop())

	return newRouter(routerDeps{
		log:       zap.NewNop(),
		limiter:   limiter,
		gate:      gate,
		resolver:  headerResolver{},
		posts:     stubPosts{},
		health:    handlers.NewHealthChecker(),
		publisher: events.Noop{},
		frontend:  "https://inkwell.example",
	})
}

func do(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "203.0.113.9:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	rec := do(t, testRouter(t, nil), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected hardening headers")
	}
}

func TestRouter_AdminCheck(t *testing.T) {
	t.Parallel()

	h := testRouter(t, nil)
	tests := []struct {
		name  string
		token string
		want  int
		code  string
	}{
		{"anonymous", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"no profile", "stranger", http.StatusForbidden, "FORBIDDEN"},
		{"reader", "reader-1", http.StatusForbidden, "FORBIDDEN"},
		{"admin", "admin-1", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/admin/check", tt.token)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.code == "" {
				return
			}
			var body struct {
				Code string `json:"code"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}

func TestRouter_AuthMeRequiresUser(t *testing.T) {
	t.Parallel()

	h := testRouter(t, nil)
	if rec := do(t, h, http.MethodGet, "/api/auth/me", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/auth/me", "reader-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"reader-1"`) {
		t.Errorf("body %s does not carry the user id", rec.Body.String())
	}
}

func TestRouter_SearchTierLimits(t *testing.T) {
	t.Parallel()

	tiers := ratelimit.DefaultTiers()
	tiers[ratelimit.TierSearch] = ratelimit.Config{Window: time.Minute, MaxRequests: 2, BlockDuration: time.Minute}
	h := testRouter(t, tiers)

	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodGet, "/api/search?q=go", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/api/search?q=go", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}

	// A signed-in caller is keyed by user, not by the shared address.
	if rec := do(t, h, http.MethodGet, "/api/search?q=go", "reader-1"); rec.Code != http.StatusOK {
		t.Errorf("user status = %d, want 200", rec.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "https://inkwell.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://inkwell.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q", got)
	}
}

func TestRouter_UnblockClearsKey(t *testing.T) {
	t.Parallel()

	tiers := ratelimit.DefaultTiers()
	tiers[ratelimit.TierSearch] = ratelimit.Config{Window: time.Minute, MaxRequests: 1, BlockDuration: time.Hour}
	h := testRouter(t, tiers)

	do(t, h, http.MethodGet, "/api/search?q=go", "reader-1")
	if rec := do(t, h, http.MethodGet, "/api/search?q=go", "reader-1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	rec := do(t, h, http.MethodDelete, "/api/admin/ratelimit/search/user:reader-1", "admin-1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unblock status = %d, want 204; body %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/search?q=go", "reader-1"); rec.Code != http.StatusOK {
		t.Errorf("after unblock status = %d, want 200", rec.Code)
	}
}
