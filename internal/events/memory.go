package events

import (
	"context"
	"sort"
	"sync"
)

// MemoryOutbox keeps entries in process. Used by tests and local runs
// without DynamoDB.
type MemoryOutbox struct {
	mu      sync.Mutex
	pending map[string]Entry
	dead    []Entry
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{pending: make(map[string]Entry)}
}

func (o *MemoryOutbox) Enqueue(_ context.Context, entry Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[entry.ID] = entry
	return nil
}

func (o *MemoryOutbox) FetchPending(_ context.Context, limit int) ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := make([]Entry, 0, len(o.pending))
	for _, e := range o.pending {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (o *MemoryOutbox) MarkDelivered(_ context.Context, entry Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pending, entry.ID)
	return nil
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, entry Entry, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.pending[entry.ID]; ok {
		current.Attempts++
		if cause != nil {
			current.LastError = cause.Error()
		}
		o.pending[entry.ID] = current
	}
	return nil
}

func (o *MemoryOutbox) MarkDead(_ context.Context, entry Entry, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pending, entry.ID)
	if cause != nil {
		entry.LastError = cause.Error()
	}
	o.dead = append(o.dead, entry)
	return nil
}

// Pending returns a snapshot of undelivered entries.
func (o *MemoryOutbox) Pending() []Entry {
	entries, _ := o.FetchPending(context.Background(), 0)
	return entries
}

// Dead returns entries dropped after too many attempts.
func (o *MemoryOutbox) Dead() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Entry(nil), o.dead...)
}
