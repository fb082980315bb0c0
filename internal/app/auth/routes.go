package auth

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	// Регистрация swagger-спецификации.
	_ "github.com/magabrotheeeer/glassworks-auth/docs"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth/forceclear"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth/google"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth/history"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth/profile"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/middlewarectx"
	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, authService *services.AuthService, limiter *middlewarectx.IPRateLimiter, googleEnabled bool) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middlewarectx.PeerAddr,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, limiter))
			r.Post("/register", register.New(logger, authService).ServeHTTP)
			r.Post("/login", login.New(logger, authService).ServeHTTP)
			if googleEnabled {
				r.Post("/login/google", google.New(logger, authService).ServeHTTP)
			}
			r.Post("/sessions/force-clear", forceclear.New(logger, authService).ServeHTTP)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Post("/logout", logout.New(logger, authService).ServeHTTP)
			r.Get("/me", profile.New(logger, authService).ServeHTTP)
			r.Get("/sessions/events", history.New(logger, authService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
