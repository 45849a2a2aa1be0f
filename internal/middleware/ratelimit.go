package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	logpkg "github.com/inkwell/inkwell-api/internal/logger"
	"github.com/inkwell/inkwell-api/internal/ratelimit"
	"github.com/inkwell/inkwell-api/internal/request"
)

// RateLimitedResponse is the 429 body shared by every limiter.
type RateLimitedResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

func writeRateLimited(w http.ResponseWriter, retryAfter int) {
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(RateLimitedResponse{
		Error:      "Rate limit exceeded",
		Message:    fmt.Sprintf("Too many requests. Please try again in %d seconds.", retryAfter),
		RetryAfter: retryAfter,
	})
}

// RateLimitKey identifies the caller: the authenticated user when known, the client IP otherwise.
func RateLimitKey(r *http.Request, trustProxy bool) string {
	if user := request.UserFromContext(r); user != nil && user.ID != "" {
		return "user:" + user.ID
	}
	return "ip:" + request.ClientIP(r, trustProxy)
}

// RateLimit enforces tier on the wrapped handler. Limiter failures let the request through.
func RateLimit(l *ratelimit.Limiter, tier string, trustProxy bool, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := RateLimitKey(r, trustProxy)

			d, err := safeCheck(r.Context(), l, tier, key)
			if err != nil {
				log.Error("rate_limit_check_failed",
					zap.String("tier", tier),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.String("ratelimit.tier", tier),
				attribute.Bool("ratelimit.allowed", d.Allowed),
			)

			if !d.Allowed {
				log.Info("rate_limit_exceeded",
					zap.String("tier", tier),
					zap.String("key", logpkg.SanitizeString(key, logpkg.MaxIPLength+8)),
					zap.Int("retry_after", d.RetryAfter),
				)
				writeRateLimited(w, d.RetryAfter)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func safeCheck(ctx context.Context, l *ratelimit.Limiter, tier, key string) (d ratelimit.Decision, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rate limit check panicked: %v", p)
		}
	}()
	return l.Check(ctx, tier, key)
}
