package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/http/respond"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

type contextKey string

const requesterKey contextKey = "requester"

// Requester is the authenticated caller.
type Requester struct {
	ID    string
	Email string
}

// RequesterClaims are the JWT claims issued by the identity provider.
type RequesterClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// WithRequester stores r in ctx. Tests use it to bypass token parsing.
func WithRequester(ctx context.Context, r Requester) context.Context {
	ctx = logging.WithRequester(ctx, r.ID)
	return context.WithValue(ctx, requesterKey, r)
}

// RequesterFromContext returns the authenticated requester if present.
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(requesterKey).(Requester)
	return r, ok && r.ID != ""
}

// Authenticate enforces an HMAC-signed bearer token whose subject is the
// requester id. Unauthenticated calls get 401 with the login URL.
func Authenticate(secret []byte, loginURL string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester, ok := parseRequester(r, secret)
			if !ok {
				respond.Error(w, r, logger, apperr.AuthenticationRequired(loginURL))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRequester(r.Context(), requester)))
		})
	}
}

func parseRequester(r *http.Request, secret []byte) (Requester, bool) {
	if len(secret) == 0 {
		return Requester{}, false
	}
	tokenString := bearerToken(r)
	if tokenString == "" {
		return Requester{}, false
	}
	claims := RequesterClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return Requester{}, false
	}
	return Requester{ID: claims.Subject, Email: claims.Email}, true
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for websocket upgrades that cannot set headers.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// RoleChecker resolves role membership per request.
type RoleChecker interface {
	HasRole(ctx context.Context, requesterID, role string) (bool, error)
}

// RequireRole lets the request through only when the requester holds role.
// It must run after Authenticate.
func RequireRole(checker RoleChecker, role string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester, ok := RequesterFromContext(r.Context())
			if !ok {
				respond.Error(w, r, logger, apperr.AuthenticationRequired(""))
				return
			}
			allowed, err := checker.HasRole(r.Context(), requester.ID, role)
			if err != nil {
				respond.Error(w, r, logger, apperr.Persistence(err))
				return
			}
			if !allowed {
				logger.WithContext(r.Context()).Warn("role check denied", "role", role, "path", r.URL.Path)
				respond.Error(w, r, logger, apperr.Forbidden(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
