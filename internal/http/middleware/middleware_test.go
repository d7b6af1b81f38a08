package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

var testSecret = []byte("test-signing-key")

func signedToken(t *testing.T, secret []byte, subject string) string {
	t.Helper()
	claims := RequesterClaims{
		Email: "patient@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", &bytes.Buffer{})
}

func TestAuthenticateRejectsMissingAndInvalidTokens(t *testing.T) {
	mw := Authenticate(testSecret, "https://app.example.com/login", quietLogger())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	})

	for name, header := range map[string]string{
		"missing":      "",
		"wrong secret": "Bearer " + signedToken(t, []byte("other"), "user-1"),
		"no subject":   "Bearer " + signedToken(t, testSecret, ""),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			mw(next).ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "authentication_required", body["error"])
			assert.Equal(t, "https://app.example.com/login", body["login_url"])
		})
	}
}

func TestAuthenticateStoresRequester(t *testing.T) {
	mw := Authenticate(testSecret, "/login", quietLogger())
	req := httptest.NewRequest(http.MethodGet, "/me/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret, "user-42"))
	rec := httptest.NewRecorder()

	var got Requester
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = RequesterFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", got.ID)
	assert.Equal(t, "patient@example.com", got.Email)
}

func TestAuthenticateAcceptsQueryTokenOnWebsocketUpgrade(t *testing.T) {
	mw := Authenticate(testSecret, "/login", quietLogger())
	req := httptest.NewRequest(http.MethodGet, "/admin/bookings/live?token="+signedToken(t, testSecret, "op-1"), nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubRoles struct {
	roles map[string]bool
	err   error
}

func (s stubRoles) HasRole(_ context.Context, requesterID, role string) (bool, error) {
	return s.roles[requesterID+"/"+role], s.err
}

func TestRequireRole(t *testing.T) {
	checker := stubRoles{roles: map[string]bool{"op-1/admin": true}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name    string
		ctx     context.Context
		checker RoleChecker
		want    int
	}{
		{"anonymous", context.Background(), checker, http.StatusUnauthorized},
		{"patient", WithRequester(context.Background(), Requester{ID: "user-1"}), checker, http.StatusForbidden},
		{"operator", WithRequester(context.Background(), Requester{ID: "op-1"}), checker, http.StatusNoContent},
		{"store down", WithRequester(context.Background(), Requester{ID: "op-1"}), stubRoles{err: errors.New("timeout")}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/bookings", nil).WithContext(tc.ctx)
			rec := httptest.NewRecorder()
			RequireRole(tc.checker, "admin", quietLogger())(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRateLimitPerRequester(t *testing.T) {
	limiter := NewRateLimiter(0, 2)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(id string) int {
		req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
		req = req.WithContext(WithRequester(req.Context(), Requester{ID: id}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send("a"))
	assert.Equal(t, http.StatusCreated, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusCreated, send("b"))
}

func TestRateLimiterRefillsAndEvicts(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	require.True(t, limiter.Allow("k"))
	require.False(t, limiter.Allow("k"))
	now = now.Add(time.Second)
	require.True(t, limiter.Allow("k"))

	now = now.Add(time.Hour)
	limiter.evictIdle(10 * time.Minute)
	assert.Empty(t, limiter.buckets)
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		name      string
		allowed   []string
		origin    string
		method    string
		wantCode  int
		wantAllow string
	}{
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", http.MethodGet, http.StatusOK, "https://app.example.com"},
		{"unknown origin", []string{"https://app.example.com"}, "https://evil.example", http.MethodGet, http.StatusOK, ""},
		{"wildcard", []string{"*"}, "https://any.example", http.MethodGet, http.StatusOK, "https://any.example"},
		{"preflight", []string{"https://app.example.com"}, "https://app.example.com", http.MethodOptions, http.StatusNoContent, "https://app.example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/bookings", nil)
			req.Header.Set("Origin", tc.origin)
			if tc.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(tc.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			if tc.wantAllow != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
			}
		})
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var logs bytes.Buffer
	handler := RequestLogger(logging.NewWithWriter("info", &logs))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/bookings", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, float64(http.StatusConflict), entry["status"])
	assert.Equal(t, "/bookings", entry["path"])
}
