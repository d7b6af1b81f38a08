package media

import (
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/internal/http/middleware"
	"github.com/wolfman30/healthcare-booking/internal/http/respond"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// PrescriptionHandler accepts prescription photos from requesters.
type PrescriptionHandler struct {
	uploader  *Uploader
	publisher events.Publisher
	maxBytes  int64
	now       func() time.Time
	logger    *logging.Logger
}

func NewPrescriptionHandler(uploader *Uploader, publisher events.Publisher, maxBytes int64, logger *logging.Logger) *PrescriptionHandler {
	if uploader == nil {
		panic("media: uploader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &PrescriptionHandler{uploader: uploader, publisher: publisher, maxBytes: maxBytes, now: time.Now, logger: logger}
}

// Upload handles POST /me/prescriptions (multipart: file, patient_name).
// Prescriptions never fall back to a placeholder.
func (h *PrescriptionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	requester, ok := middleware.RequesterFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, apperr.AuthenticationRequired(""))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, r, h.logger, apperr.Validation(map[string]string{"file": "a file is required"}))
		return
	}
	defer file.Close()
	patientName := strings.TrimSpace(r.FormValue("patient_name"))

	stored, err := h.uploader.Upload(r.Context(), Object{
		Category:    CategoryPrescription,
		OwnerID:     requester.ID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}

	if h.publisher != nil {
		err := h.publisher.Publish(r.Context(), events.TypePrescriptionUploaded, requester.ID, events.PrescriptionUploadedV1{
			RequesterID: requester.ID,
			PatientName: patientName,
			URL:         stored.URL,
			Filename:    stored.Filename,
			UploadedAt:  h.now().UTC(),
		})
		if err != nil {
			h.logger.WithContext(r.Context()).Error("failed to enqueue prescription event", "error", err, "key", stored.Key)
		}
	}
	respond.JSON(w, http.StatusCreated, stored)
}
