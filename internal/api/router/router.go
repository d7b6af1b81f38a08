package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/healthcare-booking/internal/booking"
	"github.com/wolfman30/healthcare-booking/internal/catalog"
	httpmiddleware "github.com/wolfman30/healthcare-booking/internal/http/middleware"
	"github.com/wolfman30/healthcare-booking/internal/http/respond"
	"github.com/wolfman30/healthcare-booking/internal/media"
	"github.com/wolfman30/healthcare-booking/internal/roles"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// AdminRole is required for every /admin route.
const AdminRole = roles.RoleAdmin

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Catalog       *catalog.Handler
	Bookings      *booking.Handler
	Prescriptions *media.PrescriptionHandler
	// LiveFeed serves the admin websocket stream (optional).
	LiveFeed http.Handler

	// JWTSecret verifies requester tokens. Without it every authenticated
	// route answers 401.
	JWTSecret []byte
	LoginURL  string
	Roles     httpmiddleware.RoleChecker

	BookingLimiter     *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	authenticate := httpmiddleware.Authenticate(cfg.JWTSecret, cfg.LoginURL, cfg.Logger)

	// Public directory
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Catalog != nil {
			public.Get("/catalog/{kind}", cfg.Catalog.List)
			public.Get("/catalog/{kind}/{id}", cfg.Catalog.Get)
		}
		if cfg.Bookings != nil {
			public.Get("/catalog/doctor/{id}/slots", cfg.Bookings.Slots)
		}
	})

	// Requester routes
	r.Group(func(me chi.Router) {
		me.Use(authenticate)
		if cfg.Bookings != nil {
			submit := http.Handler(http.HandlerFunc(cfg.Bookings.Submit))
			if cfg.BookingLimiter != nil {
				submit = httpmiddleware.RateLimit(cfg.BookingLimiter)(submit)
			}
			me.Method(http.MethodPost, "/bookings", submit)
			me.Get("/me/bookings", cfg.Bookings.ListMine)
			me.Get("/me/bookings/{id}", cfg.Bookings.GetMine)
			me.Post("/me/bookings/{id}/cancel", cfg.Bookings.Cancel)
		}
		if cfg.Prescriptions != nil {
			me.Post("/me/prescriptions", cfg.Prescriptions.Upload)
		}
	})

	// Operator panels
	if cfg.Roles != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(authenticate)
			admin.Use(httpmiddleware.RequireRole(cfg.Roles, AdminRole, cfg.Logger))
			if cfg.Catalog != nil {
				admin.Route("/catalog/{kind}", func(c chi.Router) {
					c.Post("/", cfg.Catalog.Create)
					c.Put("/{id}", cfg.Catalog.Update)
					c.Delete("/{id}", cfg.Catalog.Retire)
					c.Post("/{id}/image", cfg.Catalog.UploadImage)
				})
			}
			if cfg.Bookings != nil {
				admin.Get("/bookings", cfg.Bookings.AdminList)
				admin.Get("/bookings/{id}", cfg.Bookings.AdminGet)
				admin.Patch("/bookings/{id}/status", cfg.Bookings.ChangeStatus)
			}
			if cfg.LiveFeed != nil {
				admin.Handle("/bookings/live", cfg.LiveFeed)
			}
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
