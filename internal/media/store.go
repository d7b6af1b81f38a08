package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// Category selects the key layout and degradation policy of an upload.
type Category string

const (
	CategoryCatalog      Category = "catalog"
	CategoryPrescription Category = "prescription"
)

var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Object is a blob to upload. Kind and OwnerID pick the key prefix:
// catalog/<kind>/<owner>/ or prescriptions/<owner>/<yyyy>/<mm>/.
type Object struct {
	Category    Category
	Kind        string
	OwnerID     string
	Filename    string
	ContentType string
	Body        io.Reader
}

// Stored describes an uploaded object.
type Stored struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Store uploads a blob and returns a stable retrievable URL.
type Store interface {
	Upload(ctx context.Context, obj Object) (Stored, error)
}

// S3Store writes objects to a bucket served from publicBaseURL.
type S3Store struct {
	client        S3API
	bucket        string
	publicBaseURL string
	maxBytes      int64
	now           func() time.Time
	logger        *logging.Logger
}

func NewS3Store(client S3API, bucket, publicBaseURL string, maxBytes int64, logger *logging.Logger) *S3Store {
	if client == nil {
		panic("media: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("media: bucket cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxBytes:      maxBytes,
		now:           time.Now,
		logger:        logger,
	}
}

func (s *S3Store) Upload(ctx context.Context, obj Object) (Stored, error) {
	if obj.Body == nil {
		return Stored{}, apperr.Validation(map[string]string{"file": "file is required"})
	}
	data, err := io.ReadAll(io.LimitReader(obj.Body, s.maxBytes+1))
	if err != nil {
		return Stored{}, apperr.Upload(fmt.Errorf("media: read upload: %w", err))
	}
	if len(data) == 0 {
		return Stored{}, apperr.Validation(map[string]string{"file": "file is empty"})
	}
	if int64(len(data)) > s.maxBytes {
		return Stored{}, apperr.Validation(map[string]string{"file": fmt.Sprintf("file is larger than %d bytes", s.maxBytes)})
	}
	contentType := normalizeContentType(obj.ContentType, data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return Stored{}, apperr.Validation(map[string]string{"file": "only jpeg, png, webp or pdf files are accepted"})
	}

	key, err := s.objectKey(obj, ext)
	if err != nil {
		return Stored{}, err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return Stored{}, apperr.Upload(fmt.Errorf("media: s3 put %s: %w", key, err))
	}
	s.logger.Info("object uploaded", "key", key, "category", string(obj.Category), "bytes", len(data))

	filename := obj.Filename
	if filename == "" {
		filename = path.Base(key)
	}
	return Stored{Key: key, URL: s.publicBaseURL + "/" + key, Filename: filename}, nil
}

func (s *S3Store) objectKey(obj Object, ext string) (string, error) {
	owner := sanitizeSegment(obj.OwnerID)
	if owner == "" {
		return "", apperr.Validation(map[string]string{"owner": "owner is required"})
	}
	name := uuid.NewString() + ext
	switch obj.Category {
	case CategoryCatalog:
		kind := sanitizeSegment(obj.Kind)
		if kind == "" {
			return "", apperr.Validation(map[string]string{"kind": "kind is required"})
		}
		return fmt.Sprintf("catalog/%s/%s/%s", kind, owner, name), nil
	case CategoryPrescription:
		now := s.now().UTC()
		return fmt.Sprintf("prescriptions/%s/%d/%02d/%s", owner, now.Year(), now.Month(), name), nil
	default:
		return "", apperr.Validation(map[string]string{"category": "unknown upload category"})
	}
}

func normalizeContentType(declared string, data []byte) string {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = ct[:i]
		}
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return ct
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "..", "-")
	return s
}
