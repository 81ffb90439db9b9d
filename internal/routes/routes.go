package routes

import (
	"net/http"

	"github.com/openloop/accounts/internal/app"
	"github.com/openloop/accounts/internal/handler"
	"github.com/openloop/accounts/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	auth := handler.NewAuthHandler(app.AuthService, app.Registry)

	mux := http.NewServeMux()

	// Credential endpoints are rate limited per IP
	rateLimiter := middleware.RateLimitAuth()

	// JSON API
	mux.HandleFunc("POST /api/register", rateLimiter(auth.Register))
	mux.HandleFunc("POST /api/login", rateLimiter(auth.Login))
	mux.HandleFunc("POST /api/login/{social}", rateLimiter(auth.SocialLogin))
	mux.HandleFunc("POST /api/logout", auth.Logout)
	mux.HandleFunc("POST /api/refresh", rateLimiter(auth.Refresh))
	mux.HandleFunc("GET /api/me", middleware.RequireAuth(auth.Me))
	mux.HandleFunc("POST /api/verification/resend", rateLimiter(auth.ResendVerification))
	mux.HandleFunc("POST /api/password/forgot", rateLimiter(auth.ForgotPassword))
	mux.HandleFunc("PUT /api/password", middleware.RequireAuth(auth.ChangePassword))

	// Browser flows
	mux.HandleFunc("GET /verify", auth.Verify)
	mux.HandleFunc("GET /password/reset", auth.ResetForm)
	mux.HandleFunc("POST /password/reset", auth.CompleteReset)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.AuthMiddleware(app.AuthService),
	)
}
