/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (logrus)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/attendance/*     Check-in/out, reads, overrides, weekend marking
  /api/employees/*      Local employee registry
  /api/leaves           Local leave records
  /api/sweeps           Weekend sweep history
  /images/*             Stored images (local image backend only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// RouterOptions configures the parts of the router that depend on deployment.
type RouterOptions struct {
	AllowedOrigins []string

	// ImageDir is served under ImagePrefix when set (local image backend).
	ImageDir    string
	ImagePrefix string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/attendance", func(r chi.Router) {
			r.Post("/checkin", h.CheckIn)
			r.Post("/checkout", h.CheckOut)
			r.Post("/recognize", h.Recognize)
			r.Get("/daily/{employeeId}/{date}", h.GetDay)
			r.Get("/monthly/{employeeId}/{year}/{month}", h.GetMonth)
			r.Get("/breakdown/{employeeId}/{year}/{month}", h.GetBreakdown)
			r.Post("/mark-bulk", h.MarkBulk)
			r.Post("/mark-weekends", h.MarkAllWeekends)
			r.Post("/mark-weekends/{employeeId}/{year}/{month}", h.MarkWeekends)
			r.Post("/backfill/{employeeId}", h.Backfill)
		})

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.RegisterEmployee)
			r.Get("/{id}", h.GetEmployee)
		})

		r.Post("/leaves", h.CreateLeave)
		r.Get("/sweeps", h.ListSweepRuns)
	})

	if opts.ImageDir != "" && strings.HasPrefix(opts.ImagePrefix, "/") {
		prefix := strings.TrimSuffix(opts.ImagePrefix, "/")
		fs := http.StripPrefix(prefix, http.FileServer(http.Dir(opts.ImageDir)))
		r.Handle(prefix+"/*", fs)
	}

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(logrus.Fields{
				"component":   "http",
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			switch {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request served")
			}
		})
	}
}
