package booking

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/http/middleware"
	"github.com/wolfman30/healthcare-booking/internal/http/respond"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// IdempotencyHeader carries the client's submission key.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// maxDraftBytes caps the submission body.
const maxDraftBytes = 64 << 10

// Handler exposes the booking workflow over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

func requesterID(r *http.Request) (string, error) {
	requester, ok := middleware.RequesterFromContext(r.Context())
	if !ok || requester.ID == "" {
		return "", apperr.AuthenticationRequired("")
	}
	return requester.ID, nil
}

// Submit handles POST /bookings.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	uid, err := requesterID(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxDraftBytes)
	var draft Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respond.Error(w, r, h.logger, apperr.Validation(map[string]string{"body": "invalid JSON body"}))
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		respond.Error(w, r, h.logger, apperr.Validation(map[string]string{"idempotency_key": "key is too long"}))
		return
	}

	result, err := h.service.Submit(r.Context(), uid, SubmitRequest{Draft: draft, IdempotencyKey: key})
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respond.JSON(w, status, result)
}

// ListMine handles GET /me/bookings.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	uid, err := requesterID(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	mine, err := h.service.ListMine(r.Context(), uid)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, mine)
}

// GetMine handles GET /me/bookings/{id}.
func (h *Handler) GetMine(w http.ResponseWriter, r *http.Request) {
	uid, err := requesterID(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	b, err := h.service.Get(r.Context(), uid, chi.URLParam(r, "id"), false)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

// Cancel handles POST /me/bookings/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	uid, err := requesterID(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	b, err := h.service.Cancel(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

// SlotsResponse lists the free slots of a doctor on one day.
type SlotsResponse struct {
	SubjectRef string   `json:"subject_ref"`
	Date       string   `json:"date"`
	Available  []string `json:"available"`
}

// Slots handles GET /catalog/doctor/{id}/slots?date=YYYY-MM-DD.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "id")
	date := r.URL.Query().Get("date")
	free, err := h.service.AvailableSlots(r.Context(), ref, date)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, SlotsResponse{SubjectRef: ref, Date: date, Available: free})
}

// AdminList handles GET /admin/bookings?collection=.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	bookings, err := h.service.ListForService(r.Context(), collection)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"collection": collection,
		"bookings":   bookings,
		"count":      len(bookings),
	})
}

// AdminGet handles GET /admin/bookings/{id}.
func (h *Handler) AdminGet(w http.ResponseWriter, r *http.Request) {
	actor, err := requesterID(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	b, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"), true)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

type statusRequest struct {
	Status Status `json:"status"`
}

// ChangeStatus handles PATCH /admin/bookings/{id}/status.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := requesterID(r)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		respond.Error(w, r, h.logger, apperr.Validation(map[string]string{"status": "status is required"}))
		return
	}
	b, err := h.service.ChangeStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}
