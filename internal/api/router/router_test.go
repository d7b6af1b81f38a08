package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthcare-booking/internal/booking"
	"github.com/wolfman30/healthcare-booking/internal/catalog"
	"github.com/wolfman30/healthcare-booking/internal/handoff"
	httpmiddleware "github.com/wolfman30/healthcare-booking/internal/http/middleware"
	"github.com/wolfman30/healthcare-booking/internal/http/respond"
	"github.com/wolfman30/healthcare-booking/internal/observability/metrics"
	"github.com/wolfman30/healthcare-booking/internal/roles"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

var testSecret = []byte("router-test-signing-key")

type testEnv struct {
	handler http.Handler
	roles   *roles.MemoryStore
}

func newTestRouter(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.NewWithWriter("error", &bytes.Buffer{})
	now := func() time.Time { return time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC) }

	catalogRepo := catalog.NewMemoryRepository()
	catalogSvc := catalog.NewService(catalogRepo, logger, catalog.WithClock(now))
	_, err := catalogSvc.Create(context.Background(), "seed", catalog.Item{
		ID: "D1", Kind: catalog.KindDoctor, Name: "Dr. Sara", Specialty: "Cardiology", Price: catalog.Major(300),
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	bookingSvc := booking.NewService(
		booking.NewMemoryRepository(nil),
		booking.NewBuilder(catalogRepo).WithClock(now),
		handoff.NewComposer("966500000000", handoff.LocaleArabic),
		logger,
		booking.WithSlots([]string{"10:00 ص", "11:00 ص"}, time.UTC),
		booking.WithClock(now),
		booking.WithMetrics(metrics.NewBookingMetrics(reg)),
	)

	store := roles.NewMemoryStore()
	env := &testEnv{roles: store}
	env.handler = New(&Config{
		Logger:         logger,
		Catalog:        catalog.NewHandler(catalogSvc, 1<<20, logger),
		Bookings:       booking.NewHandler(bookingSvc, logger),
		JWTSecret:      testSecret,
		LoginURL:       "https://app.example.com/login",
		Roles:          store,
		BookingLimiter: httpmiddleware.NewRateLimiter(0.001, 2),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return env
}

func token(t *testing.T, uid string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.RequesterClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uid, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, uid))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

const bookingBody = `{"subject_type":"doctor-appointment","subject_ref":"D1",
	"patient":{"name":"Omar","phone":"0500000000"},
	"schedule":{"date":"2025-01-10","time":"10:00 ص"},"payment_method":"cash"}`

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t)
	rec := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterPublicCatalog(t *testing.T) {
	env := newTestRouter(t)

	rec := env.do(t, http.MethodGet, "/catalog/doctor", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dr. Sara")

	rec = env.do(t, http.MethodGet, "/catalog/doctor/D1/slots?date=2025-01-10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "10:00 ص")
}

func TestRouterBookingRequiresSignIn(t *testing.T) {
	env := newTestRouter(t)

	rec := env.do(t, http.MethodPost, "/bookings", "", bookingBody)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body respond.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication_required", body.Error)
	assert.Equal(t, "https://app.example.com/login", body.LoginURL)

	req := httptest.NewRequest(http.MethodGet, "/me/bookings", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	bad := httptest.NewRecorder()
	env.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestRouterSubmitAndRateLimit(t *testing.T) {
	env := newTestRouter(t)

	rec := env.do(t, http.MethodPost, "/bookings", "u1", bookingBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "https://wa.me/966500000000?text=")

	rec = env.do(t, http.MethodPost, "/bookings", "u1", bookingBody)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/bookings", "u1", bookingBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(t, http.MethodGet, "/me/bookings", "u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterAdminRequiresRole(t *testing.T) {
	env := newTestRouter(t)

	rec := env.do(t, http.MethodGet, "/admin/bookings?collection=doctor_bookings", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/bookings?collection=doctor_bookings", "op-1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, env.roles.Grant(context.Background(), "op-1", AdminRole, "test"))
	rec = env.do(t, http.MethodGet, "/admin/bookings?collection=doctor_bookings", "op-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/catalog/lab-test", "op-1", `{"name":"CBC","price":80}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/catalog/lab-test", "", "")
	assert.Contains(t, rec.Body.String(), "CBC")
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := newTestRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/bookings", "u1", bookingBody).Code)

	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthcare_booking_submitted_total")
	assert.Contains(t, rec.Body.String(), "healthcare_booking_handoff_links_total")
}
