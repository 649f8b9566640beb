package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/adapters/driven/auth"
	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

func newTestAuthMiddleware(t *testing.T, keys []PublishableKey) (*AuthMiddleware, driven.AuthAdapter) {
	t.Helper()
	adapter := auth.NewAdapterWithCost("test-secret", 4)
	return NewAuthMiddleware(AuthMiddlewareConfig{Auth: adapter, Keys: keys}), adapter
}

func scopeEcho(t *testing.T, wantOrg, wantAgent string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := GetScope(r.Context())
		if scope == nil {
			t.Error("expected scope in context")
			return
		}
		if scope.OrganizationID != wantOrg {
			t.Errorf("expected org %s, got %s", wantOrg, scope.OrganizationID)
		}
		if scope.AgentID != wantAgent {
			t.Errorf("expected agent %s, got %s", wantAgent, scope.AgentID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidJWT(t *testing.T) {
	m, adapter := newTestAuthMiddleware(t, nil)

	now := time.Now()
	token, err := adapter.GenerateToken(&driven.TokenClaims{
		OrganizationID: "org-1",
		AgentID:        "agent-1",
		IssuedAt:       now.Unix(),
		ExpiresAt:      now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/sources", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	m.Authenticate(scopeEcho(t, "org-1", "agent-1")).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

func TestAuthMiddleware_ExpiredJWT(t *testing.T) {
	m, adapter := newTestAuthMiddleware(t, nil)

	token, err := adapter.GenerateToken(&driven.TokenClaims{
		OrganizationID: "org-1",
		IssuedAt:       time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt:      time.Now().Add(-time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/sources", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	m.Authenticate(scopeEcho(t, "", "")).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
}

func TestAuthMiddleware_MissingCredentials(t *testing.T) {
	m, _ := newTestAuthMiddleware(t, nil)

	req := httptest.NewRequest("GET", "/api/v1/sources", nil)
	rr := httptest.NewRecorder()

	m.Authenticate(scopeEcho(t, "", "")).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
}

func TestAuthMiddleware_PublishableKey(t *testing.T) {
	adapter := auth.NewAdapterWithCost("test-secret", 4)
	hash, err := adapter.HashAPIKey("pk_live_widget")
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}

	m := NewAuthMiddleware(AuthMiddlewareConfig{
		Auth: adapter,
		Keys: []PublishableKey{
			{Hash: hash, OrganizationID: "org-2", AgentID: "agent-2"},
		},
	})

	req := httptest.NewRequest("POST", "/api/v1/chat", nil)
	req.Header.Set("X-Api-Key", "pk_live_widget")
	rr := httptest.NewRecorder()

	m.Authenticate(scopeEcho(t, "org-2", "agent-2")).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

func TestAuthMiddleware_UnknownAPIKey(t *testing.T) {
	adapter := auth.NewAdapterWithCost("test-secret", 4)
	hash, _ := adapter.HashAPIKey("pk_live_widget")

	m := NewAuthMiddleware(AuthMiddlewareConfig{
		Auth: adapter,
		Keys: []PublishableKey{{Hash: hash, OrganizationID: "org-2"}},
	})

	req := httptest.NewRequest("POST", "/api/v1/chat", nil)
	req.Header.Set("X-Api-Key", "pk_live_other")
	rr := httptest.NewRecorder()

	m.Authenticate(scopeEcho(t, "", "")).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"missing", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := extractBearerToken(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://widget.example.com"})

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest("OPTIONS", "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://widget.example.com")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://widget.example.com" {
		t.Errorf("expected origin to be allowed, got %q", got)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://widget.example.com"})

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/sources", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers for disallowed origin, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	m := NewRecoveryMiddleware(nil)

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rr.Code)
	}
}
