package middleware

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell/inkwell-api/internal/events"
	logpkg "github.com/inkwell/inkwell-api/internal/logger"
	"github.com/inkwell/inkwell-api/internal/request"
)

// publishTimeout bounds each forwarded publish when Audit wraps the publisher itself.
const publishTimeout = 2 * time.Second

// Audit logs 401, 403 and 429 responses and publishes them as security events.
// Events go through a bounded queue, so a slow broker drops events instead of holding responses.
// Publishers that are not already an *events.AsyncPublisher are wrapped in one.
func Audit(logger *zap.Logger, publisher events.Publisher, trustProxy bool) func(http.Handler) http.Handler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if _, ok := publisher.(*events.AsyncPublisher); !ok {
		publisher = events.NewAsyncPublisher(publisher, events.DefaultQueueSize, publishTimeout, logger)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			ip := request.ClientIP(r, trustProxy)
			var userID string
			if user := request.UserFromContext(r); user != nil {
				userID = user.ID
			}
			event, ok := events.NewSecurityEvent(r, wrapped.statusCode, ip, userID, request.RequestID(r.Context()), time.Now())
			if !ok {
				return
			}

			logger.Warn("security_event",
				zap.String("type", string(event.Type)),
				zap.Int("status_code", event.StatusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeIP(ip)),
				zap.String("user_id", logpkg.SanitizeUserID(userID)),
				zap.String("request_id", event.RequestID),
			)

			if err := publisher.Publish(r.Context(), event); err != nil {
				if errors.Is(err, events.ErrQueueFull) {
					logger.Debug("security_event_dropped", zap.String("event_id", event.ID))
					return
				}
				logger.Warn("security_event_publish_failed",
					zap.String("error", logpkg.SanitizeError(err)),
					zap.String("event_id", event.ID),
				)
			}
		})
	}
}
