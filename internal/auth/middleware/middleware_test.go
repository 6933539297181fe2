package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/auth/ratelimit"
)

type fakeValidator map[string]*apikey.KeyInfo

func (f fakeValidator) Validate(ctx context.Context, raw string) (*apikey.KeyInfo, error) {
	switch raw {
	case "expired":
		return nil, apikey.ErrExpiredKey
	case "broken":
		return nil, errors.New("connection reset")
	}
	if info, ok := f[raw]; ok {
		return info, nil
	}
	return nil, apikey.ErrInvalidKey
}

var validator = fakeValidator{"good": {ID: "k1", Name: "ops", RateLimit: 2}}

func echo() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info := GetKeyInfo(r.Context()); info != nil {
			w.Header().Set("X-Key-ID", info.ID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func do(h http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequiresKey(t *testing.T) {
	cases := []struct {
		method, path string
		want         bool
	}{
		{http.MethodGet, "/api/v1/search", false},
		{http.MethodPost, "/api/v1/search", false},
		{http.MethodPost, "/api/v1/evaluate", false},
		{http.MethodPost, "/api/v1/passages", true},
		{http.MethodDelete, "/api/v1/passages/m1", true},
		{http.MethodPost, "/api/v1/index/rebuild", true},
		{http.MethodPost, "/api/v1/cache/invalidate", true},
		{http.MethodGet, "/api/v1/analytics", false},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			assert.Equal(t, tc.want, RequiresKey(httptest.NewRequest(tc.method, tc.path, nil)))
		})
	}
}

func TestAuth(t *testing.T) {
	h := Auth(validator, "admin-secret")(echo())

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/search?q=x", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health/ready", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/v1/index/rebuild", "").Code)

	rec := do(h, http.MethodPost, "/api/v1/index/rebuild", "good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "k1", rec.Header().Get("X-Key-ID"))

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/v1/search", "nope").Code)
	assert.Contains(t, do(h, http.MethodPost, "/api/v1/passages", "expired").Body.String(), "expired")
	assert.Equal(t, http.StatusInternalServerError, do(h, http.MethodPost, "/api/v1/passages", "broken").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/passages", nil)
	req.Header.Set("X-API-Key", "good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAdmin(t *testing.T) {
	h := Auth(validator, "admin-secret")(echo())
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/admin/keys", "admin-secret").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/v1/admin/keys", "good").Code)

	closed := Auth(validator, "")(echo())
	assert.Equal(t, http.StatusForbidden, do(closed, http.MethodGet, "/api/v1/admin/keys", "").Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(time.Hour)
	h := Auth(validator, "")(RateLimit(limiter, 1)(echo()))

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/search", "").Code)
	rec := do(h, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))

	// The key carries its own budget of two.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/search", "good").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/search", "good").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/api/v1/search", "good").Code)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health/live", "").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", clientIP(req))
}
