package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/http/middleware"
	"github.com/wolfman30/healthcare-booking/internal/http/respond"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// Handler serves the public directory and the admin catalog panels.
type Handler struct {
	service        *Service
	maxUploadBytes int64
	logger         *logging.Logger
}

func NewHandler(service *Service, maxUploadBytes int64, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &Handler{service: service, maxUploadBytes: maxUploadBytes, logger: logger}
}

// ListResponse is returned by the list endpoints.
type ListResponse struct {
	Kind  Kind    `json:"kind"`
	Items []*Item `json:"items"`
	Count int     `json:"count"`
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (Kind, bool) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		respond.Error(w, r, h.logger, apperr.NotFound("catalog"))
	}
	return kind, ok
}

// List handles GET /catalog/{kind}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	filter := ListFilter{
		Specialty: r.URL.Query().Get("specialty"),
		Query:     r.URL.Query().Get("q"),
	}
	items, err := h.service.List(r.Context(), kind, filter)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ListResponse{Kind: kind, Items: items, Count: len(items)})
}

// Get handles GET /catalog/{kind}/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, item)
}

func actor(r *http.Request) string {
	if requester, ok := middleware.RequesterFromContext(r.Context()); ok {
		return requester.ID
	}
	return ""
}

func decodeItem(r *http.Request) (Item, error) {
	var item Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		return Item{}, apperr.Validation(map[string]string{"body": "invalid JSON body"})
	}
	return item, nil
}

// Create handles POST /admin/catalog/{kind}.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	input, err := decodeItem(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	input.Kind = kind
	item, err := h.service.Create(r.Context(), actor(r), input)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, item)
}

// Update handles PUT /admin/catalog/{kind}/{id}. The body's version is the
// version the operator edited.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	input, err := decodeItem(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if input.Version <= 0 {
		respond.Error(w, r, h.logger, apperr.Validation(map[string]string{"version": "version is required"}))
		return
	}
	item, err := h.service.Update(r.Context(), actor(r), kind, chi.URLParam(r, "id"), input, input.Version)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, item)
}

// Retire handles DELETE /admin/catalog/{kind}/{id}?version=N.
func (h *Handler) Retire(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version <= 0 {
		respond.Error(w, r, h.logger, apperr.Validation(map[string]string{"version": "version is required"}))
		return
	}
	item, err := h.service.Retire(r.Context(), actor(r), kind, chi.URLParam(r, "id"), version)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, item)
}

// ImageResponse reports the stored image and whether the placeholder was used.
type ImageResponse struct {
	Item     *Item  `json:"item"`
	URL      string `json:"url"`
	Degraded bool   `json:"degraded"`
}

// UploadImage handles POST /admin/catalog/{kind}/{id}/image (multipart field "file").
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, r, h.logger, apperr.Validation(map[string]string{"file": "a file is required"}))
		return
	}
	defer file.Close()

	item, stored, err := h.service.UploadImage(r.Context(), actor(r), kind, chi.URLParam(r, "id"), ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, ImageResponse{Item: item, URL: stored.URL, Degraded: stored.Degraded})
}
