package models

import "time"

// SecurityEventType classifies a rejected request.
type SecurityEventType string

const (
	SecurityEventUnauthorized SecurityEventType = "unauthorized"
	SecurityEventForbidden    SecurityEventType = "forbidden"
	SecurityEventRateLimited  SecurityEventType = "rate_limited"
)

// SecurityEvent is published whenever a request is rejected by authentication,
// authorization, or rate limiting.
type SecurityEvent struct {
	ID         string            `json:"id"`
	Type       SecurityEventType `json:"type"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	IP         string            `json:"ip"`
	UserID     string            `json:"user_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	StatusCode int               `json:"status_code"`
	OccurredAt time.Time         `json:"occurred_at"`
}
