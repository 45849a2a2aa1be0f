package events

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell/inkwell-api/internal/models"
)

// TypeForStatus maps a rejection status to its event type.
func TypeForStatus(status int) (models.SecurityEventType, bool) {
	switch status {
	case http.StatusUnauthorized:
		return models.SecurityEventUnauthorized, true
	case http.StatusForbidden:
		return models.SecurityEventForbidden, true
	case http.StatusTooManyRequests:
		return models.SecurityEventRateLimited, true
	}
	return "", false
}

// NewSecurityEvent builds an event for a rejected request. ok is false for statuses that
// are not security rejections.
func NewSecurityEvent(r *http.Request, status int, ip, userID, requestID string, now time.Time) (*models.SecurityEvent, bool) {
	typ, ok := TypeForStatus(status)
	if !ok {
		return nil, false
	}
	return &models.SecurityEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Method:     r.Method,
		Path:       r.URL.Path,
		IP:         ip,
		UserID:     userID,
		RequestID:  requestID,
		StatusCode: status,
		OccurredAt: now.UTC(),
	}, true
}
