package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/inkwell/inkwell-api/internal/models"
)

func TestNewSecurityEvent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	tests := []struct {
		status   int
		wantType models.SecurityEventType
		wantOK   bool
	}{
		{http.StatusUnauthorized, models.SecurityEventUnauthorized, true},
		{http.StatusForbidden, models.SecurityEventForbidden, true},
		{http.StatusTooManyRequests, models.SecurityEventRateLimited, true},
		{http.StatusOK, "", false},
		{http.StatusInternalServerError, "", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/admin/check?x=1", nil)
		event, ok := NewSecurityEvent(r, tt.status, "1.2.3.4", "u1", "req-1", now)
		if ok != tt.wantOK {
			t.Fatalf("status %d: ok = %v, want %v", tt.status, ok, tt.wantOK)
		}
		if !ok {
			continue
		}
		if event.Type != tt.wantType {
			t.Errorf("status %d: type = %q, want %q", tt.status, event.Type, tt.wantType)
		}
		if event.ID == "" || event.Path != "/api/admin/check" || event.IP != "1.2.3.4" {
			t.Errorf("unexpected event %+v", event)
		}
		if event.OccurredAt.Location() != time.UTC {
			t.Errorf("OccurredAt not UTC: %v", event.OccurredAt)
		}
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var p Publisher = Noop{}
	if err := p.Publish(context.Background(), &models.SecurityEvent{}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestRabbitMQPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("RABBITMQ_TEST_URL")
	if url == "" {
		t.Skip("RABBITMQ_TEST_URL not set")
	}

	p, err := NewRabbitMQPublisher(url)
	if err != nil {
		t.Fatalf("NewRabbitMQPublisher: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, _, err := p.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sent := &models.SecurityEvent{ID: "evt-1", Type: models.SecurityEventRateLimited, StatusCode: 429, OccurredAt: time.Now().UTC()}
	if err := p.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-events:
		if got == nil || got.ID != sent.ID || got.Type != sent.Type {
			t.Errorf("received %+v, want %+v", got, sent)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

var _ Publisher = (*RabbitMQPublisher)(nil)
var _ Publisher = Noop{}
