package media

import (
	"context"

	"github.com/wolfman30/healthcare-booking/internal/observability/metrics"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// Uploader applies the degraded-mode policy on top of a Store.
type Uploader struct {
	store            Store
	placeholderURL   string
	allowPlaceholder bool
	metrics          *metrics.CatalogMetrics
	logger           *logging.Logger
}

func NewUploader(store Store, placeholderURL string, allowPlaceholder bool, m *metrics.CatalogMetrics, logger *logging.Logger) *Uploader {
	if logger == nil {
		logger = logging.Default()
	}
	return &Uploader{
		store:            store,
		placeholderURL:   placeholderURL,
		allowPlaceholder: allowPlaceholder && placeholderURL != "",
		metrics:          m,
		logger:           logger,
	}
}

// Upload stores obj with no fallback.
func (u *Uploader) Upload(ctx context.Context, obj Object) (Stored, error) {
	stored, err := u.upload(ctx, obj)
	if err != nil {
		u.metrics.ObserveUpload(string(obj.Category), "error")
		return Stored{}, err
	}
	u.metrics.ObserveUpload(string(obj.Category), "ok")
	return stored, nil
}

// UploadOrPlaceholder stores a catalog image. When storage fails and
// placeholders are allowed the placeholder URL is returned with
// Degraded set. Prescriptions and validation failures never degrade.
func (u *Uploader) UploadOrPlaceholder(ctx context.Context, obj Object) (Stored, error) {
	stored, err := u.upload(ctx, obj)
	if err == nil {
		u.metrics.ObserveUpload(string(obj.Category), "ok")
		return stored, nil
	}
	if obj.Category != CategoryCatalog || !u.allowPlaceholder || !isStorageFailure(err) {
		u.metrics.ObserveUpload(string(obj.Category), "error")
		return Stored{}, err
	}
	u.logger.WithContext(ctx).Warn("image upload failed, using placeholder",
		"degraded", true,
		"error", err,
		"kind", obj.Kind,
		"item_id", obj.OwnerID,
	)
	u.metrics.ObserveUpload(string(obj.Category), "degraded")
	return Stored{URL: u.placeholderURL, Filename: obj.Filename, Degraded: true}, nil
}

func (u *Uploader) upload(ctx context.Context, obj Object) (Stored, error) {
	if u.store == nil {
		return Stored{}, errStorageUnavailable
	}
	return u.store.Upload(ctx, obj)
}
