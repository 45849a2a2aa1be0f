package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	logpkg "github.com/inkwell/inkwell-api/internal/logger"
	"github.com/inkwell/inkwell-api/internal/models"
)

// DefaultQueueSize bounds the events buffered ahead of a slow broker.
const DefaultQueueSize = 1024

var (
	// ErrQueueFull is returned when the buffer is full and the event was dropped.
	ErrQueueFull = errors.New("security event queue full")
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("security event publisher closed")
)

// AsyncPublisher queues events for a single background goroutine that forwards them to the
// wrapped publisher. Publish never blocks; when the queue is full the event is dropped.
type AsyncPublisher struct {
	inner   Publisher
	queue   chan *models.SecurityEvent
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

// NewAsyncPublisher starts the forwarding goroutine. timeout bounds each forwarded Publish call
// and the time Close waits for the queue to drain.
func NewAsyncPublisher(inner Publisher, size int, timeout time.Duration, log *zap.Logger) *AsyncPublisher {
	if inner == nil {
		inner = Noop{}
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &AsyncPublisher{
		inner:   inner,
		queue:   make(chan *models.SecurityEvent, size),
		timeout: timeout,
		log:     log,
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.inner.Publish(ctx, event)
		cancel()
		if err != nil {
			p.log.Warn("security_event_publish_failed",
				zap.String("error", logpkg.SanitizeError(err)),
				zap.String("event_id", event.ID),
			)
		}
	}
}

// Publish enqueues event without waiting for the broker. ctx is not used.
func (p *AsyncPublisher) Publish(_ context.Context, event *models.SecurityEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// HealthCheck delegates to the wrapped publisher.
func (p *AsyncPublisher) HealthCheck(ctx context.Context) error {
	return p.inner.HealthCheck(ctx)
}

// Close stops accepting events, waits up to the publish timeout for queued ones, then closes
// the wrapped publisher.
func (p *AsyncPublisher) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
	case <-time.After(p.timeout):
		p.log.Warn("security_event_queue_not_drained", zap.Int("pending", len(p.queue)))
	}
	return p.inner.Close()
}
