// Package middlewarectx содержит HTTP middleware: проверку JWT с привязкой
// к активной сессии устройства и ограничение частоты запросов.
//
// JWTMiddleware проверяет токен из заголовка Authorization и в случае успеха
// кладёт в контекст ID учётной записи, роль и устройство.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/glassworks-auth/internal/http/response"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/sl"
	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
	"github.com/magabrotheeeer/glassworks-auth/internal/session"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// AccountID — ключ для ID учётной записи в контексте
	AccountID Key = "account_id"
	// Role — ключ для роли в контексте
	Role Key = "role"
	// DeviceID — ключ для устройства, к которому привязан токен
	DeviceID Key = "device_id"
)

// Service описывает интерфейс сервиса для валидации JWT токена.
type Service interface {
	ValidateToken(ctx context.Context, token string) (*services.TokenInfo, error)
}

// AccountIDFrom извлекает ID учётной записи из контекста.
func AccountIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AccountID).(string)
	return id, ok && id != ""
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
//
// Токен устройства, чья сессия вытеснена или завершена, отклоняется с 401.
func JWTMiddleware(authService Service, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Info("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorWithCode("missing or invalid authorization header", session.CodeUnauthorized))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			info, err := authService.ValidateToken(r.Context(), tokenStr)
			if err != nil {
				if services.ErrorCode(err) == session.CodeInternal {
					log.Error("token validation failed", sl.Err(err))
					render.Status(r, http.StatusInternalServerError)
					render.JSON(w, r, response.ErrorWithCode(response.Message(session.CodeInternal), session.CodeInternal))
					return
				}
				log.Info("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorWithCode("invalid or expired token", session.CodeUnauthorized))
				return
			}

			ctx := context.WithValue(r.Context(), AccountID, info.AccountID)
			ctx = context.WithValue(ctx, Role, info.Role)
			ctx = context.WithValue(ctx, DeviceID, info.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
