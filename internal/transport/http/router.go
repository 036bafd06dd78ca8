package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/cashcached/auth-api/internal/application/auth"
	"github.com/cashcached/auth-api/internal/application/otp"
	"github.com/cashcached/auth-api/internal/application/session"
	"github.com/cashcached/auth-api/internal/config"
	"github.com/cashcached/auth-api/internal/transport/http/handler"
	appmiddleware "github.com/cashcached/auth-api/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	sessionSvc := session.NewService(deps.KV, cfg.SessionTTL, cfg.SessionIdleTTL)
	otpSvc := otp.NewService(deps.KV, cfg.OTPTTL)
	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:  deps.UserRepo,
		Sessions:  sessionSvc,
		OTPs:      otpSvc,
		Audit:     deps.Audit,
		Mailer:    deps.Mailer,
		SMSSender: deps.SMSSender,
		Tokens:    deps.JWTProvider,
	})

	authH := handler.NewAuthHandler(authSvc)
	healthH := handler.NewHealthHandler()

	// Every request passes the gateway; it attaches a principal when the
	// credential resolves to a live session and lets the rest through
	// unauthenticated.
	r.Use(appmiddleware.Gateway(sessionSvc, deps.JWTProvider))

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check", healthH.Ping)

		r.With(sensitiveRL.Limit).Post("/auth/register", authH.Register)
		r.With(sensitiveRL.Limit).Post("/auth/login", authH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/verify-otp", authH.VerifyOTP)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.RequireAuth)

			r.Post("/auth/logout", authH.Logout)
			r.Get("/auth/me", authH.Me)
			r.Get("/auth/activity", authH.Activity)
			r.Put("/auth/password", authH.ChangePassword)
		})
	})

	return r
}
