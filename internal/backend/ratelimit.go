package backend

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit caps the sustained request rate on the API with a shared
// token bucket. Requests over the limit are dropped with 429, not
// queued.
func RateLimit(perSec float64, burst int) func(http.Handler) http.Handler {
	if perSec <= 0 {
		perSec = 50
	}
	if burst <= 0 {
		burst = int(perSec)
	}
	limiter := rate.NewLimiter(rate.Limit(perSec), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
