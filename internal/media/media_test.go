package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/internal/http/middleware"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

type mockS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.inputs = append(m.inputs, params)
	data, _ := io.ReadAll(params.Body)
	m.bodies = append(m.bodies, data)
	return &s3.PutObjectOutput{}, m.err
}

func quiet() *logging.Logger { return logging.NewWithWriter("error", &bytes.Buffer{}) }

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestS3StoreCatalogKey(t *testing.T) {
	mock := &mockS3{}
	store := NewS3Store(mock, "media-bucket", "https://cdn.example.com/", 1024, quiet())

	stored, err := store.Upload(context.Background(), Object{
		Category: CategoryCatalog,
		Kind:     "doctor",
		OwnerID:  "D1",
		Filename: "sara.png",
		Body:     bytes.NewReader(pngHeader),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Key, "catalog/doctor/D1/"), stored.Key)
	assert.True(t, strings.HasSuffix(stored.Key, ".png"), stored.Key)
	assert.Equal(t, "https://cdn.example.com/"+stored.Key, stored.URL)
	assert.Equal(t, "image/png", aws.ToString(mock.inputs[0].ContentType))
	assert.Equal(t, pngHeader, mock.bodies[0])
}

func TestS3StorePrescriptionKey(t *testing.T) {
	mock := &mockS3{}
	store := NewS3Store(mock, "media-bucket", "", 1024, quiet())
	store.now = func() time.Time { return time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC) }

	stored, err := store.Upload(context.Background(), Object{
		Category:    CategoryPrescription,
		OwnerID:     "u/../1",
		ContentType: "image/jpeg",
		Body:        strings.NewReader("jpeg-bytes"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Key, "prescriptions/u---1/2025/03/"), stored.Key)
	assert.True(t, strings.HasPrefix(stored.URL, "https://media-bucket.s3.amazonaws.com/"))
}

func TestS3StoreRejectsBadInput(t *testing.T) {
	store := NewS3Store(&mockS3{}, "b", "", 8, quiet())
	ctx := context.Background()

	_, err := store.Upload(ctx, Object{Category: CategoryCatalog, Kind: "doctor", OwnerID: "D1", ContentType: "image/png", Body: strings.NewReader("123456789")})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "oversized file")

	_, err = store.Upload(ctx, Object{Category: CategoryCatalog, Kind: "doctor", OwnerID: "D1", ContentType: "text/html", Body: strings.NewReader("<html>")})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "unsupported type")

	_, err = store.Upload(ctx, Object{Category: CategoryCatalog, Kind: "doctor", OwnerID: "D1", Body: strings.NewReader("")})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "empty file")
}

func TestS3StoreWrapsPutFailures(t *testing.T) {
	store := NewS3Store(&mockS3{err: errors.New("SlowDown")}, "b", "", 1024, quiet())
	_, err := store.Upload(context.Background(), Object{Category: CategoryCatalog, Kind: "offer", OwnerID: "O1", ContentType: "image/webp", Body: strings.NewReader("webp")})
	assert.True(t, errors.Is(err, apperr.ErrUpload))
}

func TestUploadOrPlaceholderPolicy(t *testing.T) {
	failing := NewS3Store(&mockS3{err: errors.New("unavailable")}, "b", "", 1024, quiet())
	uploader := NewUploader(failing, "/images/placeholder.png", true, nil, quiet())
	ctx := context.Background()

	stored, err := uploader.UploadOrPlaceholder(ctx, Object{Category: CategoryCatalog, Kind: "doctor", OwnerID: "D1", ContentType: "image/png", Body: bytes.NewReader(pngHeader)})
	require.NoError(t, err)
	assert.True(t, stored.Degraded)
	assert.Equal(t, "/images/placeholder.png", stored.URL)

	_, err = uploader.UploadOrPlaceholder(ctx, Object{Category: CategoryPrescription, OwnerID: "u1", ContentType: "image/png", Body: bytes.NewReader(pngHeader)})
	assert.True(t, errors.Is(err, apperr.ErrUpload), "prescriptions never degrade")

	_, err = uploader.UploadOrPlaceholder(ctx, Object{Category: CategoryCatalog, Kind: "doctor", OwnerID: "D1", ContentType: "text/plain", Body: strings.NewReader("x")})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "validation failures never degrade")

	strict := NewUploader(failing, "/images/placeholder.png", false, nil, quiet())
	_, err = strict.UploadOrPlaceholder(ctx, Object{Category: CategoryCatalog, Kind: "doctor", OwnerID: "D1", ContentType: "image/png", Body: bytes.NewReader(pngHeader)})
	assert.True(t, errors.Is(err, apperr.ErrUpload))
}

func multipartBody(t *testing.T, patientName string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("patient_name", patientName))
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="rx.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write(pngHeader)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestPrescriptionHandlerUploadsAndEnqueues(t *testing.T) {
	mock := &mockS3{}
	outbox := events.NewMemoryOutbox()
	uploader := NewUploader(NewS3Store(mock, "b", "https://cdn.example.com", 1024, quiet()), "", false, nil, quiet())
	handler := NewPrescriptionHandler(uploader, events.NewOutboxPublisher(outbox), 1024, quiet())

	body, contentType := multipartBody(t, "Omar")
	req := httptest.NewRequest(http.MethodPost, "/me/prescriptions", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.WithRequester(req.Context(), middleware.Requester{ID: "u1"}))
	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var stored Stored
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.True(t, strings.HasPrefix(stored.Key, "prescriptions/u1/"))

	pending := outbox.Pending()
	require.Len(t, pending, 1)
	var evt events.PrescriptionUploadedV1
	require.NoError(t, pending[0].Decode(&evt))
	assert.Equal(t, "u1", evt.RequesterID)
	assert.Equal(t, "Omar", evt.PatientName)
	assert.Equal(t, stored.URL, evt.URL)
}

func TestPrescriptionHandlerFailureIsVisible(t *testing.T) {
	outbox := events.NewMemoryOutbox()
	uploader := NewUploader(NewS3Store(&mockS3{err: errors.New("down")}, "b", "", 1024, quiet()), "/p.png", true, nil, quiet())
	handler := NewPrescriptionHandler(uploader, events.NewOutboxPublisher(outbox), 1024, quiet())

	body, contentType := multipartBody(t, "Omar")
	req := httptest.NewRequest(http.MethodPost, "/me/prescriptions", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.WithRequester(req.Context(), middleware.Requester{ID: "u1"}))
	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, outbox.Pending())
}
