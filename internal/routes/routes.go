package routes

import (
	"github.com/BradenHooton/scholar/internal/auth"
	"github.com/BradenHooton/scholar/internal/handlers"
	"github.com/BradenHooton/scholar/internal/metrics"
	"github.com/BradenHooton/scholar/internal/middleware"
	"github.com/BradenHooton/scholar/internal/models"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth      *handlers.AuthHandler
	TwoFactor *handlers.TwoFactorHandler
	Accounts  *handlers.AccountHandler
	Health    *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokens auth.AccessTokenValidator,
	accounts auth.AccountLoader,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.Get("/health", h.Health.Health)
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentHandler)

		// Public routes - no authentication required. Credential endpoints are
		// limited per client IP and per submitted email.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(rateLimitConfig))
			r.Use(middleware.RateLimitByEmail(rateLimitConfig))

			r.Post("/auth/login", h.Auth.Login)
			r.Post("/auth/register", h.Auth.Register)
			r.Post("/auth/forgot-password", h.Auth.ForgotPassword)
			r.Post("/auth/resend-verification", h.Auth.ResendVerification)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(rateLimitConfig))

			r.Post("/auth/refresh", h.Auth.Refresh)
			r.Post("/auth/reset-password", h.Auth.ResetPassword)
			r.Post("/auth/verify-email", h.Auth.VerifyEmail)
		})

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(tokens, accounts))

			r.Get("/accounts/me", h.Accounts.Me)
			r.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/accounts/me/password", h.Auth.ChangePassword)

			r.Post("/auth/2fa/enable", h.TwoFactor.Enable)
			r.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/2fa/verify", h.TwoFactor.Verify)
			// Removing the second factor requires a session that has already passed it
			r.With(auth.RequireTwoFactor).Post("/auth/2fa/disable", h.TwoFactor.Disable)

			// Admin-only routes. Admins with 2FA enabled must present a verified token.
			r.Route("/admin/accounts", func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Use(auth.RequireTwoFactor)

				r.Get("/", h.Accounts.List)
				r.Get("/{id}", h.Accounts.Get)
				r.Patch("/{id}/status", h.Accounts.SetActive)
				r.Patch("/{id}/role", h.Accounts.ChangeRole)
				r.Post("/{id}/unlock", h.Accounts.Unlock)
			})
		})
	})
}
