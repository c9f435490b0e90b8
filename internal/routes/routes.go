package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/oryxcrm/branchgate/internal/auth"
	"github.com/oryxcrm/branchgate/internal/handlers"
	"github.com/oryxcrm/branchgate/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	deviceHandler *handlers.DeviceHandler,
	qrHandler *handlers.QRMasterHandler,
	sessionIssuer *auth.SessionIssuer,
) {
	loginLimit := middleware.DefaultLoginRateLimit()
	enrollLimit := middleware.DefaultEnrollmentRateLimit()

	// Public routes - the login terminal has no session yet
	router.With(middleware.RateLimitByIP(loginLimit)).Post("/auth/login", authHandler.Login)
	router.Get("/devices/check", deviceHandler.Check)
	router.With(middleware.RateLimitByIP(enrollLimit)).Post("/devices/register", deviceHandler.Register)

	// Admin routes - superuser session required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(sessionIssuer))
		r.Use(auth.RequireSuperuser())

		r.Get("/qr-master", qrHandler.GetActive)
		r.Post("/qr-master/rotate", qrHandler.Rotate)
	})
}
