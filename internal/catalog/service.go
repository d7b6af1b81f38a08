package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/internal/media"
	"github.com/wolfman30/healthcare-booking/internal/observability/metrics"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

var catalogTracer = otel.Tracer("healthcare.internal.catalog")

// Service implements the public directory and the admin panels.
type Service struct {
	repo      Repository
	uploader  *media.Uploader
	publisher events.Publisher
	metrics   *metrics.CatalogMetrics
	logger    *logging.Logger
	timeout   time.Duration
	now       func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

func WithUploader(u *media.Uploader) ServiceOption {
	return func(s *Service) { s.uploader = u }
}

func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.CatalogMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithStoreTimeout bounds every repository call.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("catalog: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, logger: logger, timeout: 5 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// storeErr classifies errors escaping a store call.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Persistence(fmt.Errorf("catalog: store call timed out: %w", err))
	}
	return err
}

// List returns the offered items of kind. Packages list featured items first.
func (s *Service) List(ctx context.Context, kind Kind, filter ListFilter) ([]*Item, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	items, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Item, 0, len(items))
	for _, item := range items {
		if item.Available() && filter.matches(item) {
			out = append(out, item)
		}
	}
	if kind.IsPackage() {
		sort.SliceStable(out, func(i, j int) bool { return out[i].IsFeatured && !out[j].IsFeatured })
	}
	return out, nil
}

// Get returns an offered item; retired items are reported as not found.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (*Item, error) {
	item, err := s.lookup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !item.Available() {
		return nil, apperr.NotFound(string(kind))
	}
	return item, nil
}

func (s *Service) lookup(ctx context.Context, kind Kind, id string) (*Item, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	item, err := s.repo.Get(ctx, kind, id)
	return item, storeErr(err)
}

// Create validates and stores a new item at version 1.
func (s *Service) Create(ctx context.Context, actor string, input Item) (*Item, error) {
	ctx, span := catalogTracer.Start(ctx, "catalog.create")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.kind", string(input.Kind)))

	item := input
	if strings.TrimSpace(item.ID) == "" {
		item.ID = uuid.NewString()
	}
	item.normalize()
	if err := item.Validate(); err != nil {
		s.metrics.ObserveWrite(string(item.Kind), "create", "invalid")
		return nil, err
	}
	now := s.now().UTC()
	item.Version = 1
	item.Retired = false
	item.CreatedAt = now
	item.UpdatedAt = now

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.Create(storeCtx, &item); err != nil {
		span.RecordError(err)
		s.metrics.ObserveWrite(string(item.Kind), "create", "error")
		return nil, storeErr(err)
	}
	s.metrics.ObserveWrite(string(item.Kind), "create", "ok")
	s.logger.WithContext(ctx).Info("catalog item created", "kind", string(item.Kind), "item_id", item.ID, "actor", actor)
	return &item, nil
}

// Update replaces the editable attributes of an item if expectedVersion is current.
func (s *Service) Update(ctx context.Context, actor string, kind Kind, id string, input Item, expectedVersion int64) (*Item, error) {
	return s.mutate(ctx, actor, "update", kind, id, expectedVersion, func(current *Item) error {
		next := input
		next.ID = current.ID
		next.Kind = current.Kind
		next.CreatedAt = current.CreatedAt
		next.Retired = current.Retired
		if next.ImageURL == "" {
			next.ImageURL = current.ImageURL
		}
		next.normalize()
		if err := next.Validate(); err != nil {
			return err
		}
		*current = next
		return nil
	})
}

// Retire soft-deletes an item. Historical bookings keep referencing it.
func (s *Service) Retire(ctx context.Context, actor string, kind Kind, id string, expectedVersion int64) (*Item, error) {
	return s.mutate(ctx, actor, "retire", kind, id, expectedVersion, func(current *Item) error {
		current.Retired = true
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, actor, op string, kind Kind, id string, expectedVersion int64, apply func(*Item) error) (*Item, error) {
	ctx, span := catalogTracer.Start(ctx, "catalog."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("catalog.kind", string(kind)),
		attribute.String("catalog.item_id", id),
		attribute.Int64("catalog.expected_version", expectedVersion),
	)

	current, err := s.lookup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		s.metrics.ObserveWrite(string(kind), op, "conflict")
		return nil, apperr.Modified(current.Version)
	}
	if err := apply(current); err != nil {
		s.metrics.ObserveWrite(string(kind), op, "invalid")
		return nil, err
	}
	current.Version = expectedVersion + 1
	current.UpdatedAt = s.now().UTC()

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.Replace(storeCtx, current, expectedVersion); err != nil {
		span.RecordError(err)
		outcome := "error"
		if errors.Is(err, apperr.ErrConcurrentModification) {
			outcome = "conflict"
		}
		s.metrics.ObserveWrite(string(kind), op, outcome)
		return nil, storeErr(err)
	}
	s.metrics.ObserveWrite(string(kind), op, "ok")
	s.logger.WithContext(ctx).Info("catalog item changed",
		"op", op,
		"kind", string(kind),
		"item_id", id,
		"version", current.Version,
		"actor", actor,
	)
	return current, nil
}

// ImageUpload is a file posted to an admin panel.
type ImageUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// UploadImage stores an image and points the item at it. In degraded mode
// the placeholder URL is recorded and Stored.Degraded is set.
func (s *Service) UploadImage(ctx context.Context, actor string, kind Kind, id string, file ImageUpload) (*Item, media.Stored, error) {
	if s.uploader == nil {
		return nil, media.Stored{}, apperr.Upload(errors.New("catalog: uploads are not configured"))
	}
	current, err := s.lookup(ctx, kind, id)
	if err != nil {
		return nil, media.Stored{}, err
	}
	stored, err := s.uploader.UploadOrPlaceholder(ctx, media.Object{
		Category:    media.CategoryCatalog,
		Kind:        string(kind),
		OwnerID:     id,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Body:        file.Body,
	})
	if err != nil {
		return nil, media.Stored{}, err
	}
	item, err := s.mutate(ctx, actor, "image", kind, id, current.Version, func(it *Item) error {
		it.ImageURL = stored.URL
		return nil
	})
	if err != nil {
		return nil, media.Stored{}, err
	}
	if !stored.Degraded && s.publisher != nil {
		err := s.publisher.Publish(ctx, events.TypeCatalogImageUploaded, item.ID, events.CatalogImageUploadedV1{
			Kind:       string(kind),
			ItemID:     item.ID,
			ItemName:   item.Name,
			URL:        stored.URL,
			Filename:   stored.Filename,
			UploadedAt: s.now().UTC(),
		})
		if err != nil {
			s.logger.WithContext(ctx).Error("failed to enqueue image uploaded event", "error", err, "item_id", item.ID)
		}
	}
	return item, stored, nil
}
