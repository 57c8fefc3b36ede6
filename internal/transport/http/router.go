package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-telegram-otp/internal/config"
	jwtinfra "github.com/go-telegram-otp/internal/infrastructure/jwt"
	"github.com/go-telegram-otp/internal/transport/http/handler"
	appmiddleware "github.com/go-telegram-otp/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds the application router. The returned close func stops
// the per-IP limiter's cleanup goroutine.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, func()) {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 per client IP on the public OTP endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.BotUsername, deps.Webhook != nil)
	otpH := handler.NewOTPHandler(deps.LinkTokens, deps.Linking, deps.OTP)
	adminH := handler.NewAdminHandler(deps.LinkTokens, deps.Linking)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", healthH.Health)

		r.Route("/otp", func(r chi.Router) {
			r.Use(sensitiveRL.Limit)
			r.Post("/link-token", otpH.LinkToken)
			r.Post("/request", otpH.Request)
			r.Post("/verify", otpH.Verify)
			r.Post("/unlink", otpH.Unlink)
			r.Get("/linked/{userID}", otpH.Linked)
		})

		if deps.Webhook != nil {
			tgH := handler.NewTelegramHandler(deps.Webhook, deps.Linking)
			r.Post("/telegram/webhook", tgH.Webhook)
		}

		if deps.JWTProvider != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(appmiddleware.Auth(deps.JWTProvider))
				r.Use(appmiddleware.RequireRole(jwtinfra.RoleAdmin))

				r.Get("/links", adminH.Data)
				r.Delete("/links/{userID}", adminH.UnlinkUser)
				r.Delete("/tokens/{token}", adminH.RevokeToken)
			})
		}
	})

	return r, sensitiveRL.Close
}
