// Package events publishes security events for rejected requests.
package events

import (
	"context"

	"github.com/inkwell/inkwell-api/internal/models"
)

// Publisher delivers security events to interested consumers.
type Publisher interface {
	// Publish sends one event. Callers treat failures as non-fatal.
	Publish(ctx context.Context, event *models.SecurityEvent) error

	// HealthCheck reports whether the publisher can currently deliver.
	HealthCheck(ctx context.Context) error

	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, *models.SecurityEvent) error { return nil }
func (Noop) HealthCheck(context.Context) error                    { return nil }
func (Noop) Close() error                                         { return nil }
