package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gitethanwoo/openbase-sub001/internal/core/ports/driven"
)

// Context keys
type contextKey string

const scopeContextKey contextKey = "tenant_scope"

// Scope is the tenant binding extracted from the request credential. Every
// authenticated handler reads organization (and optionally agent) from here,
// never from the request body.
type Scope struct {
	OrganizationID string
	AgentID        string
}

// AuthMiddleware validates scoping credentials at the boundary: service JWTs
// in the Authorization header, or publishable widget keys in X-Api-Key
// checked against their configured bcrypt hashes.
type AuthMiddleware struct {
	auth   driven.AuthAdapter
	keys   []PublishableKey
	logger *slog.Logger
}

// PublishableKey binds a stored key hash to its tenant scope. Keys are
// widget-embedded and therefore public; the hash comparison only proves the
// key was issued, the scope comes from configuration.
type PublishableKey struct {
	Hash           string
	OrganizationID string
	AgentID        string
}

// AuthMiddlewareConfig holds configuration for AuthMiddleware
type AuthMiddlewareConfig struct {
	Auth   driven.AuthAdapter
	Keys   []PublishableKey
	Logger *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(cfg AuthMiddlewareConfig) *AuthMiddleware {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		auth:   cfg.Auth,
		keys:   cfg.Keys,
		logger: logger,
	}
}

// Authenticate validates the request credential and adds the tenant scope
// to the request context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := extractBearerToken(r); token != "" {
			claims, err := m.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			scope := &Scope{
				OrganizationID: claims.OrganizationID,
				AgentID:        claims.AgentID,
			}
			next.ServeHTTP(w, r.WithContext(withScope(r.Context(), scope)))
			return
		}

		if key := r.Header.Get("X-Api-Key"); key != "" {
			for _, pk := range m.keys {
				if m.auth.VerifyAPIKey(key, pk.Hash) {
					scope := &Scope{
						OrganizationID: pk.OrganizationID,
						AgentID:        pk.AgentID,
					}
					next.ServeHTTP(w, r.WithContext(withScope(r.Context(), scope)))
					return
				}
			}
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		writeError(w, http.StatusUnauthorized, "missing credentials")
	})
}

func withScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey, scope)
}

// GetScope retrieves the tenant scope from the request context
func GetScope(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	scope, ok := ctx.Value(scopeContextKey).(*Scope)
	if !ok {
		return nil
	}
	return scope
}

// extractBearerToken extracts the Bearer token from Authorization header
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// LoggingMiddleware logs HTTP requests
type LoggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware
func NewLoggingMiddleware(logger *slog.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMiddleware{logger: logger}
}

// Handler wraps an http.Handler with request logging
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushing so streamed responses pass through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// CORSMiddleware handles CORS for the browser-embedded widget
type CORSMiddleware struct {
	allowedOrigins []string
}

// NewCORSMiddleware creates a new CORSMiddleware
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	return &CORSMiddleware{
		allowedOrigins: allowedOrigins,
	}
}

// Handler wraps an http.Handler with CORS headers
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range m.allowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key")
			w.Header().Set("Access-Control-Expose-Headers", "X-Conversation-Id, X-Message-Id")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware recovers from panics
type RecoveryMiddleware struct {
	logger *slog.Logger
}

// NewRecoveryMiddleware creates a new RecoveryMiddleware
func NewRecoveryMiddleware(logger *slog.Logger) *RecoveryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryMiddleware{logger: logger}
}

// Handler wraps an http.Handler with panic recovery
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
