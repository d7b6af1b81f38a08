package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/catalog"
)

// CatalogReader fetches catalog items, retired ones included. Implementations
// must not serve cached data.
type CatalogReader interface {
	Get(ctx context.Context, kind catalog.Kind, id string) (*catalog.Item, error)
}

// Builder turns a validated draft into a Booking using the current catalog state.
type Builder struct {
	catalog CatalogReader
	now     func() time.Time
	newID   func() string
}

func NewBuilder(reader CatalogReader) *Builder {
	if reader == nil {
		panic("booking: catalog reader required")
	}
	return &Builder{catalog: reader, now: time.Now, newID: uuid.NewString}
}

// WithClock overrides the timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// Build re-fetches the referenced item. A missing or retired item, or a price
// that differs from the requester's snapshot, is rejected as stale.
func (b *Builder) Build(ctx context.Context, requesterID string, draft Draft) (*Booking, error) {
	item, err := b.catalog.Get(ctx, draft.SubjectType.Kind(), draft.SubjectRef)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Stale("unavailable", map[string]any{"subject_ref": draft.SubjectRef})
		}
		return nil, err
	}
	if !item.Available() {
		return nil, apperr.Stale("unavailable", map[string]any{"subject_ref": draft.SubjectRef})
	}
	if draft.Snapshot != nil && draft.Snapshot.Price != nil && *draft.Snapshot.Price != item.Price {
		return nil, apperr.Stale("price_changed", map[string]any{
			"subject_ref":     item.ID,
			"current_price":   item.Price,
			"current_version": item.Version,
		})
	}

	now := b.now().UTC()
	booking := &Booking{
		ID:                b.newID(),
		SubjectType:       draft.SubjectType,
		SubjectRef:        item.ID,
		SubjectName:       item.Name,
		SubjectVersion:    item.Version,
		ServiceCollection: draft.SubjectType.Collection(),
		RequesterID:       requesterID,
		Patient:           draft.Patient,
		PaymentMethod:     PaymentMethod(draft.PaymentMethod),
		Price:             item.Price,
		CaseDescription:   draft.CaseDescription,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if draft.Schedule != nil {
		s := *draft.Schedule
		booking.Schedule = &s
	}
	return booking, nil
}
