// Package notify delivers booking, payment and stock events to users. Services
// publish events after their transaction commits; delivery happens on a
// background worker and never fails the publishing operation.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cafehub/internal/models"
	"cafehub/internal/monitoring"
)

// Event is one outbound notification.
type Event struct {
	Type       models.NotificationType `json:"type"`
	Title      string                  `json:"title"`
	Message    string                  `json:"message"`
	CustomerID *uint                   `json:"customer_id,omitempty"`
	BookingID  *uint                   `json:"booking_id,omitempty"`
	// ActorID is excluded from the recipients. Zero means nobody is excluded.
	ActorID    uint      `json:"actor_id,omitempty"`
	Audience   Audience  `json:"audience,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Audience selects who receives an event.
type Audience string

const (
	// AudienceAll reaches the customer and every staff member.
	AudienceAll      Audience = ""
	AudienceStaff    Audience = "staff"
	AudienceCustomer Audience = "customer"
)

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(event Event)
}

// Sink delivers an event to its resolved recipients.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event, recipients []uint) error
}

// Resolver maps an event to user ids.
type Resolver interface {
	Recipients(ctx context.Context, event Event) ([]uint, error)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Dispatcher fans events out to sinks from a single worker goroutine.
type Dispatcher struct {
	events   chan Event
	resolver Resolver
	sinks    []Sink
	logger   *zap.Logger
	metrics  *monitoring.Collector
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the worker. buffer bounds how many events may wait.
func NewDispatcher(resolver Resolver, logger *zap.Logger, metrics *monitoring.Collector, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		events:   make(chan Event, buffer),
		resolver: resolver,
		sinks:    sinks,
		logger:   logger.Named("notify"),
		metrics:  metrics,
		timeout:  5 * time.Second,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues an event. When the buffer is full or the dispatcher is
// closed the event is dropped and logged.
func (d *Dispatcher) Publish(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event", zap.String("type", string(event.Type)))
		return
	}

	select {
	case d.events <- event:
	default:
		d.metrics.NotificationDelivery("dispatcher", "dropped")
		d.logger.Warn("notification buffer full, dropping event", zap.String("type", string(event.Type)))
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	recipients, err := d.resolver.Recipients(ctx, event)
	if err != nil {
		d.metrics.NotificationDelivery("resolver", "error")
		d.logger.Error("failed to resolve recipients", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		return
	}

	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, event, recipients); err != nil {
			d.metrics.NotificationDelivery(sink.Name(), "error")
			d.logger.Error("notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("type", string(event.Type)),
				zap.Error(err))
			continue
		}
		d.metrics.NotificationDelivery(sink.Name(), "ok")
	}
}
