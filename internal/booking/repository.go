package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/events"
)

// Repository persists bookings. Create and UpdateStatus are atomic across the
// canonical record, both read views, the slot lock, the idempotency record
// and the outbox entry.
type Repository interface {
	// Create stores b. When b.IdempotencyKey was already used by the same
	// requester the earlier booking is returned with created=false.
	// A taken slot yields apperr.ErrBookingConflict.
	Create(ctx context.Context, b *Booking, event events.Entry) (stored *Booking, created bool, err error)
	Get(ctx context.Context, id string) (*Booking, error)
	// FindByIdempotencyKey returns the booking stored under the requester's
	// key, or found=false when the key is unused.
	FindByIdempotencyKey(ctx context.Context, requesterID, key string) (b *Booking, found bool, err error)
	// ListByRequester and ListByService return newest first.
	ListByRequester(ctx context.Context, requesterID string) ([]*Booking, error)
	ListByService(ctx context.Context, collection string) ([]*Booking, error)
	// UpdateStatus applies from -> to only if the booking is still in from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time, event events.Entry) (*Booking, error)
	// TakenSlots reports which of slots are held for subjectRef on date.
	TakenSlots(ctx context.Context, subjectRef, date string, slots []string) (map[string]bool, error)
}

func statusChanged(current Status) error {
	return &apperr.Error{
		Kind:    apperr.ErrConcurrentModification,
		Message: "the booking status was changed by someone else, reload and try again",
		Details: map[string]any{"current_status": string(current)},
	}
}

func idempotencyKey(requesterID, key string) string { return requesterID + "#" + key }

// MemoryRepository keeps bookings in process. All invariants are enforced
// under one mutex.
type MemoryRepository struct {
	mu          sync.Mutex
	bookings    map[string]*Booking
	slots       map[string]string
	idempotency map[string]string
	outbox      events.Outbox
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty repository. Events are enqueued on
// outbox when it is non-nil.
func NewMemoryRepository(outbox events.Outbox) *MemoryRepository {
	return &MemoryRepository{
		bookings:    make(map[string]*Booking),
		slots:       make(map[string]string),
		idempotency: make(map[string]string),
		outbox:      outbox,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, b *Booking, event events.Entry) (*Booking, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.IdempotencyKey != "" {
		if id, ok := r.idempotency[idempotencyKey(b.RequesterID, b.IdempotencyKey)]; ok {
			return r.bookings[id].Clone(), false, nil
		}
	}
	if _, exists := r.bookings[b.ID]; exists {
		return nil, false, apperr.Persistence(errDuplicateID)
	}
	if b.HoldsSlot() {
		if _, taken := r.slots[slotKey(b.SubjectRef, *b.Schedule)]; taken {
			return nil, false, apperr.Conflict(nil)
		}
	}
	if r.outbox != nil && event.ID != "" {
		if err := r.outbox.Enqueue(ctx, event); err != nil {
			return nil, false, apperr.Persistence(err)
		}
	}

	stored := b.Clone()
	r.bookings[b.ID] = stored
	if b.HoldsSlot() {
		r.slots[slotKey(b.SubjectRef, *b.Schedule)] = b.ID
	}
	if b.IdempotencyKey != "" {
		r.idempotency[idempotencyKey(b.RequesterID, b.IdempotencyKey)] = b.ID
	}
	return stored.Clone(), true, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking")
	}
	return b.Clone(), nil
}

func (r *MemoryRepository) FindByIdempotencyKey(_ context.Context, requesterID, key string) (*Booking, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.idempotency[idempotencyKey(requesterID, key)]
	if !ok {
		return nil, false, nil
	}
	return r.bookings[id].Clone(), true, nil
}

func (r *MemoryRepository) ListByRequester(_ context.Context, requesterID string) ([]*Booking, error) {
	return r.list(func(b *Booking) bool { return b.RequesterID == requesterID }), nil
}

func (r *MemoryRepository) ListByService(_ context.Context, collection string) ([]*Booking, error) {
	return r.list(func(b *Booking) bool { return b.ServiceCollection == collection }), nil
}

func (r *MemoryRepository) list(match func(*Booking) bool) []*Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Booking
	for _, b := range r.bookings {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sortNewestFirst(out)
	return out
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time, event events.Entry) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking")
	}
	if b.Status != from {
		return nil, statusChanged(b.Status)
	}
	if r.outbox != nil && event.ID != "" {
		if err := r.outbox.Enqueue(ctx, event); err != nil {
			return nil, apperr.Persistence(err)
		}
	}
	heldSlot := b.HoldsSlot()
	b.Status = to
	b.UpdatedAt = at
	if heldSlot && !b.HoldsSlot() {
		key := slotKey(b.SubjectRef, *b.Schedule)
		if r.slots[key] == b.ID {
			delete(r.slots, key)
		}
	}
	return b.Clone(), nil
}

func (r *MemoryRepository) TakenSlots(_ context.Context, subjectRef, date string, slots []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	taken := make(map[string]bool)
	for _, slot := range slots {
		if _, ok := r.slots[slotKey(subjectRef, Schedule{Date: date, Time: slot})]; ok {
			taken[slot] = true
		}
	}
	return taken, nil
}

func sortNewestFirst(bookings []*Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].ID > bookings[j].ID
		}
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
}
