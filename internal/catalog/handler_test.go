package catalog

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthcare-booking/internal/media"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

func newTestRouter(t *testing.T, opts ...ServiceOption) (http.Handler, *Service) {
	t.Helper()
	svc, _ := newTestService(t, opts...)
	h := NewHandler(svc, 1<<20, logging.NewWithWriter("error", &bytes.Buffer{}))
	r := chi.NewRouter()
	r.Get("/catalog/{kind}", h.List)
	r.Get("/catalog/{kind}/{id}", h.Get)
	r.Post("/admin/catalog/{kind}", h.Create)
	r.Put("/admin/catalog/{kind}/{id}", h.Update)
	r.Delete("/admin/catalog/{kind}/{id}", h.Retire)
	r.Post("/admin/catalog/{kind}/{id}/image", h.UploadImage)
	return r, svc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAdminLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/admin/catalog/doctor", `{"id":"D1","name":"Dr. Sara","specialty":"ENT","price":300}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPut, "/admin/catalog/doctor/D1", `{"name":"Dr. Sara","specialty":"ENT","price":350,"version":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPut, "/admin/catalog/doctor/D1", `{"name":"Dr. Sara","specialty":"ENT","price":320,"version":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "concurrent_modification")

	rec = do(t, router, http.MethodGet, "/catalog/doctor/D1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var item Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, Major(350), item.Price)

	rec = do(t, router, http.MethodDelete, "/admin/catalog/doctor/D1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, "/admin/catalog/doctor/D1?version=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/catalog/doctor/D1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerUnknownKind(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/catalog/pharmacy", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListResponse(t *testing.T) {
	router, _ := newTestRouter(t)
	do(t, router, http.MethodPost, "/admin/catalog/lab-test", `{"name":"CBC","price":"85.50"}`)

	rec := do(t, router, http.MethodGet, "/catalog/lab-test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, Money(8550), resp.Items[0].Price)
}

func TestHandlerUploadImage(t *testing.T) {
	store := &fakeMediaStore{}
	router, _ := newTestRouter(t, WithUploader(media.NewUploader(store, "/placeholder.png", true, nil, nil)))
	do(t, router, http.MethodPost, "/admin/catalog/doctor", `{"id":"D1","name":"Dr. Sara","specialty":"ENT","price":300}`)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="sara.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake-png"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/catalog/doctor/D1/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ImageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Degraded)
	assert.Equal(t, "https://cdn.example.com/x.jpg", resp.URL)
	require.Len(t, store.uploads, 1)
	assert.Equal(t, "image/png", store.uploads[0].ContentType)
	assert.Equal(t, "D1", store.uploads[0].OwnerID)
}
