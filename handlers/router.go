package handlers

import (
	"net/http"

	"timekeeping/middleware"
	"timekeeping/rbac"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	Attendance   *AttendanceHandler
	Corrections  *CorrectionHandler
	Health       *HealthHandler
	Authorizer   rbac.Authorizer
	Logger       *zap.Logger
	CaptureRate  rate.Limit
	CaptureBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID(cfg.Logger))
	router.Use(middleware.AccessLog)
	router.Use(chimiddleware.Recoverer)

	if cfg.Health != nil {
		router.Get("/health", cfg.Health.Health)
	}

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		r.Route("/attendance", func(r chi.Router) {
			// Captures are throttled per user; reads are not.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(cfg.Authorizer, rbac.ObjAttendance, rbac.ActCapture))
				r.Use(middleware.RateLimitByUser(cfg.CaptureRate, cfg.CaptureBurst))
				r.Post("/time-in", cfg.Attendance.TimeIn)
				r.Post("/time-out", cfg.Attendance.TimeOut)
			})
			r.Get("/daily", cfg.Attendance.Daily)
			r.Get("/sessions", cfg.Attendance.Sessions)
		})

		// Review and read_any are decided per request by the correction service.
		r.Route("/corrections", func(r chi.Router) {
			r.Post("/", cfg.Corrections.Submit)
			r.With(middleware.RequirePermission(cfg.Authorizer, rbac.ObjCorrection, rbac.ActList)).
				Get("/", cfg.Corrections.List)
			r.Get("/mine", cfg.Corrections.Mine)
			r.Get("/{id}", cfg.Corrections.Get)
			r.Delete("/{id}", cfg.Corrections.Withdraw)
			r.Post("/{id}/review", cfg.Corrections.Review)
		})
	})

	return router
}
