package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/auth/ratelimit"
)

// RateLimit applies the validated key's own limit, or anonymousLimit per
// client IP when the request carries no key.
func RateLimit(limiter *ratelimit.Limiter, anonymousLimit int) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(limiter.Window().Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key, limit := "ip:"+clientIP(r), anonymousLimit
			if info := GetKeyInfo(r.Context()); info != nil {
				key, limit = "key:"+info.ID, info.RateLimit
			}
			if !limiter.Allow(key, limit) {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
