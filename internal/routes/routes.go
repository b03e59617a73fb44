package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/handlers"
	"github.com/payward/payward/internal/middleware"
	"github.com/payward/payward/internal/models"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth         *handlers.AuthHandler
	User         *handlers.UserHandler
	Subscription *handlers.SubscriptionHandler
	Transaction  *handlers.TransactionHandler
	Webhook      *handlers.WebhookHandler
	Admin        *handlers.AdminHandler
}

// RegisterRoutes mounts the API under /api/v1.
//
// Three access tiers: public endpoints (registration, login, the plan
// catalog, provider webhooks), authenticated endpoints, and the admin area.
// The unauthenticated auth endpoints additionally sit behind a per-IP
// request limit.
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	users auth.UserResolver,
) {
	authRateLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())

	router.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Group(func(r chi.Router) {
			r.Use(authRateLimit)
			r.Post("/auth/register", h.Auth.Register)
			r.Post("/auth/login", h.Auth.Login)
			r.Post("/auth/verify-email", h.Auth.VerifyEmail)
			r.Post("/auth/resend-verification", h.Auth.ResendVerification)
			r.Post("/auth/forgot-password", h.Auth.ForgotPassword)
			r.Post("/auth/reset-password", h.Auth.ResetPassword)
		})

		// The plan catalog personalizes for a signed-in caller but never
		// requires one.
		r.With(auth.OptionalAuthenticate(tokenManager, users)).
			Get("/subscriptions/plans", h.Subscription.ListPlans)

		// Provider callbacks authenticate by payload signature, not bearer
		// token.
		r.Post("/webhooks/billing", h.Webhook.HandleBilling)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(tokenManager, users))

			r.Get("/users/me", h.User.Me)
			r.Put("/users/me", h.User.UpdateMe)
			r.Delete("/users/me", h.User.DeleteMe)

			r.Post("/subscriptions", h.Subscription.Subscribe)
			r.Delete("/subscriptions", h.Subscription.Cancel)
			r.Get("/cards", h.Subscription.ListCards)

			// Wallet access is a paid feature: a subscription that lapses
			// mid-session is cut off here on its next request.
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireSubscription(auth.SubscriptionEntitlements{}))
				r.Post("/transactions/deposit", h.Transaction.Deposit)
				r.Post("/transactions/transfer", h.Transaction.Transfer)
				r.Get("/transactions", h.Transaction.History)
				r.Get("/transactions/statement", h.Transaction.Statement)
			})

			// Admin-only
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Get("/admin/dashboard", h.Admin.Dashboard)
				r.Get("/admin/users", h.Admin.ListUsers)
				r.Get("/admin/login-attempts", h.Admin.LoginAttempts)
				r.Post("/admin/users/{userID}/unlock", h.Admin.UnlockAccount)
				r.Put("/admin/users/{userID}/role", h.Admin.ChangeRole)
				r.Delete("/admin/users/{userID}", h.Admin.DeleteUser)
				r.Delete("/admin/users/{userID}/subscription", h.Admin.CancelSubscription)
			})
		})
	})
}
