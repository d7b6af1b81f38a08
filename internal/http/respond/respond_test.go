package respond

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		apperr.Validation(nil):                 http.StatusBadRequest,
		apperr.AuthenticationRequired("/login"): http.StatusUnauthorized,
		apperr.Forbidden("admin"):              http.StatusForbidden,
		apperr.NotFound("booking"):             http.StatusNotFound,
		apperr.Stale("unavailable", nil):       http.StatusConflict,
		apperr.Conflict(nil):                   http.StatusConflict,
		apperr.Modified(3):                     http.StatusConflict,
		apperr.Upload(errors.New("s3")):        http.StatusBadGateway,
		apperr.Persistence(errors.New("ddb")):  http.StatusServiceUnavailable,
		errors.New("boom"):                     http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, Status(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestErrorBodyCarriesFieldsAndLoginURL(t *testing.T) {
	logger := logging.NewWithWriter("error", &bytes.Buffer{})
	req := httptest.NewRequest(http.MethodPost, "/bookings", nil)

	rec := httptest.NewRecorder()
	Error(rec, req, logger, apperr.Validation(map[string]string{"patient.name": "required"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, "required", body.Fields["patient.name"])

	rec = httptest.NewRecorder()
	Error(rec, req, logger, apperr.AuthenticationRequired("https://app.example.com/login"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://app.example.com/login", body.LoginURL)
}

func TestUnclassifiedErrorIsHidden(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewWithWriter("info", &logs)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	Error(rec, req, logger, errors.New("secret internals"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret internals")
	assert.Contains(t, logs.String(), "secret internals")
}
