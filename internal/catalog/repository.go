package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
)

// Repository stores catalog items. Get and List include retired items;
// filtering is the caller's decision.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, kind Kind, id string) (*Item, error)
	List(ctx context.Context, kind Kind) ([]*Item, error)
	// Replace overwrites the item only if the stored version equals
	// expectedVersion. item.Version must already carry the new version.
	Replace(ctx context.Context, item *Item, expectedVersion int64) error
}

// MemoryRepository keeps items in process with the same version checks as
// the DynamoDB implementation.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[Kind]map[string]Item
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[Kind]map[string]Item)}
}

func (r *MemoryRepository) Create(_ context.Context, item *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items[item.Kind] == nil {
		r.items[item.Kind] = make(map[string]Item)
	}
	if _, exists := r.items[item.Kind][item.ID]; exists {
		return apperr.Validation(map[string]string{"id": "an item with this id already exists"})
	}
	r.items[item.Kind][item.ID] = cloneItem(*item)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, kind Kind, id string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[kind][id]
	if !ok {
		return nil, apperr.NotFound(string(kind))
	}
	out := cloneItem(item)
	return &out, nil
}

func (r *MemoryRepository) List(_ context.Context, kind Kind) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Item, 0, len(r.items[kind]))
	for _, item := range r.items[kind] {
		c := cloneItem(item)
		out = append(out, &c)
	}
	sortByCreated(out)
	return out, nil
}

func (r *MemoryRepository) Replace(_ context.Context, item *Item, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[item.Kind][item.ID]
	if !ok {
		return apperr.NotFound(string(item.Kind))
	}
	if current.Version != expectedVersion {
		return apperr.Modified(current.Version)
	}
	r.items[item.Kind][item.ID] = cloneItem(*item)
	return nil
}

func cloneItem(item Item) Item {
	item.Tags = append([]string(nil), item.Tags...)
	item.Features = append([]string(nil), item.Features...)
	return item
}

func sortByCreated(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
