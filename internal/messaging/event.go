package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	EventTenantRegistered     = "tenant.registered"
	EventTenantDeleted        = "tenant.deleted"
	EventPaymentCreated       = "payment.created"
	EventPaymentStatusChanged = "payment.status_changed"
	EventImageUploaded        = "image.uploaded"
	EventImageDeleted         = "image.deleted"
)

// Event is a domain change, published after it has been persisted.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	TenantID   int64                  `json:"tenant_id"`
	TenantName string                 `json:"tenant_name,omitempty"`
	Email      string                 `json:"email,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func NewEvent(eventType string, tenantID int64, tenantName string, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   tenantID,
		TenantName: tenantName,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to whatever processes them.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Emit publishes ev and only logs a failure. Mutations are already
// committed when events go out, so a lost event must not fail the request.
func Emit(ctx context.Context, pub Publisher, log logrus.FieldLogger, ev Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"event":     ev.Type,
			"tenant_id": ev.TenantID,
		}).Warn("event publish failed")
	}
}

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Submitter runs jobs in the background; worker.Pool implements it.
type Submitter interface {
	Submit(name string, job func(ctx context.Context) error) error
}

// LocalPublisher processes events in-process on a worker pool. It is used
// when no broker is configured.
type LocalPublisher struct {
	pool    Submitter
	handler HandlerFunc
}

func NewLocalPublisher(pool Submitter, handler HandlerFunc) *LocalPublisher {
	return &LocalPublisher{pool: pool, handler: handler}
}

func (p *LocalPublisher) Publish(_ context.Context, ev Event) error {
	return p.pool.Submit(ev.Type, func(ctx context.Context) error {
		return p.handler(ctx, ev)
	})
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
