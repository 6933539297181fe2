// Package middleware authenticates API keys and enforces per-client rate
// limits in front of the retriever's routes.
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/auth/apikey"
)

type contextKey string

const apiKeyInfoKey contextKey = "api_key_info"

// KeyValidator resolves a raw key; *apikey.Validator satisfies it.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// RequiresKey reports whether a route mutates state. Searches, evaluation,
// stats and health stay anonymous.
func RequiresKey(r *http.Request) bool {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && (path == "/api/v1/search" || path == "/api/v1/evaluate"):
		return false
	case r.Method == http.MethodGet, r.Method == http.MethodHead, r.Method == http.MethodOptions:
		return false
	default:
		return strings.HasPrefix(path, "/api/")
	}
}

// Auth validates keys sent as Authorization: Bearer or X-API-Key. A key is
// optional on read routes; when present it is still validated so its own
// rate limit applies. /api/v1/admin/ requires adminToken instead, and is
// closed entirely when adminToken is empty.
func Auth(validator KeyValidator, adminToken string) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			key := extractAPIKey(r)

			if strings.HasPrefix(r.URL.Path, "/api/v1/admin/") {
				switch {
				case adminToken == "":
					writeError(w, http.StatusForbidden, "admin api disabled")
				case subtle.ConstantTimeCompare([]byte(key), []byte(adminToken)) != 1:
					writeError(w, http.StatusUnauthorized, "invalid admin token")
				default:
					next.ServeHTTP(w, r)
				}
				return
			}

			if key == "" {
				if RequiresKey(r) {
					writeError(w, http.StatusUnauthorized, "missing api key")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			info, err := validator.Validate(r.Context(), key)
			if err != nil {
				switch {
				case errors.Is(err, apikey.ErrInvalidKey):
					writeError(w, http.StatusUnauthorized, "invalid api key")
				case errors.Is(err, apikey.ErrExpiredKey):
					writeError(w, http.StatusUnauthorized, "expired api key")
				default:
					logger.Error("api key validation failed", "error", err)
					writeError(w, http.StatusInternalServerError, "authentication error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyInfo returns the key validated by Auth, or nil for anonymous calls.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey).(*apikey.KeyInfo)
	return info
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// clientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
