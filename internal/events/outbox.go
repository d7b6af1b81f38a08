package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types written to the outbox.
const (
	TypeBookingCreated       = "booking.created"
	TypeBookingStatusChanged = "booking.status_changed"
	TypeCatalogImageUploaded = "catalog.image_uploaded"
	TypePrescriptionUploaded = "prescription.uploaded"
)

// Entry represents a pending event.
type Entry struct {
	ID          string          `json:"id" dynamodbav:"event_id"`
	Type        string          `json:"type" dynamodbav:"event_type"`
	AggregateID string          `json:"aggregate_id" dynamodbav:"aggregate_id"`
	Payload     json.RawMessage `json:"payload" dynamodbav:"payload"`
	Attempts    int             `json:"attempts" dynamodbav:"attempts"`
	LastError   string          `json:"last_error,omitempty" dynamodbav:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at" dynamodbav:"created_at"`
}

// NewEntry marshals payload into a fresh entry.
func NewEntry(eventType, aggregateID string, payload any, now time.Time) (Entry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	return Entry{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     data,
		CreatedAt:   now.UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (e Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("events: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Handler emits events to downstream transports.
type Handler interface {
	Handle(ctx context.Context, entry Entry) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, entry Entry) error

func (f HandlerFunc) Handle(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// Outbox persists events for reliable delivery.
type Outbox interface {
	Enqueue(ctx context.Context, entry Entry) error
	FetchPending(ctx context.Context, limit int) ([]Entry, error)
	MarkDelivered(ctx context.Context, entry Entry) error
	MarkFailed(ctx context.Context, entry Entry, cause error) error
	MarkDead(ctx context.Context, entry Entry, cause error) error
}

// Publisher enqueues a domain event.
type Publisher interface {
	Publish(ctx context.Context, eventType, aggregateID string, payload any) error
}

// OutboxPublisher builds entries and writes them to an Outbox.
type OutboxPublisher struct {
	outbox Outbox
	now    func() time.Time
}

func NewOutboxPublisher(outbox Outbox) *OutboxPublisher {
	if outbox == nil {
		panic("events: outbox required")
	}
	return &OutboxPublisher{outbox: outbox, now: time.Now}
}

func (p *OutboxPublisher) Publish(ctx context.Context, eventType, aggregateID string, payload any) error {
	entry, err := NewEntry(eventType, aggregateID, payload, p.now())
	if err != nil {
		return err
	}
	return p.outbox.Enqueue(ctx, entry)
}
