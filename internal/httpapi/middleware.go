package httpapi

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"
)

type contextKey int

const projectIDKey contextKey = 0

// securityHeadersMiddleware adds the same baseline security headers the
// teacher applies to every response.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// RateLimiter wraps a token-bucket limiter shared across all routes.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst)}
}

func rateLimitMiddleware(next http.Handler, rl *RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// projectMiddleware resolves project context per spec §6: X-Project-Id
// header, falling back to the configured default; 400 if neither is set.
func projectMiddleware(defaultProjectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			projectID := r.Header.Get("X-Project-Id")
			if projectID == "" {
				projectID = defaultProjectID
			}
			if projectID == "" {
				writeValidationError(w, "project_id_required", "X-Project-Id header or a configured default project id is required")
				return
			}
			ctx := context.WithValue(r.Context(), projectIDKey, projectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func projectIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(projectIDKey).(string)
	return id
}
