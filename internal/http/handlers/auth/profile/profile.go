// Package profile реализует HTTP-обработчик чтения профиля текущей учётной записи.
package profile

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/middlewarectx"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/response"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
	"github.com/magabrotheeeer/glassworks-auth/internal/session"
)

// Service описывает интерфейс чтения профиля.
type Service interface {
	Profile(ctx context.Context, accountID string) (*models.Profile, error)
}

// Handler отдаёт профиль.
type Handler struct {
	log         *slog.Logger
	authService Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, authService Service) *Handler {
	return &Handler{log: log, authService: authService}
}

// ServeHTTP godoc
// @Summary Профиль
// @Description Возвращает профиль учётной записи, подписку и активную сессию.
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Профиль"
// @Failure 401 {object} response.ErrorResponse "Нет действующего токена"
// @Failure 404 {object} response.ErrorResponse "Учётная запись не найдена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.profile"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accountID, ok := middlewarectx.AccountIDFrom(r.Context())
	if !ok {
		log.Error("account id missing in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.ErrorWithCode("unauthorized", session.CodeUnauthorized))
		return
	}

	p, err := h.authService.Profile(r.Context(), accountID)
	if err != nil {
		auth.WriteServiceError(w, r, log, "failed to load profile", err)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"profile": p,
	}))
}
