// Package history реализует HTTP-обработчик истории сессий текущей учётной записи.
package history

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/middlewarectx"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/response"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
	"github.com/magabrotheeeer/glassworks-auth/internal/session"
)

// Service описывает интерфейс чтения истории сессий.
type Service interface {
	SessionHistory(ctx context.Context, accountID string, limit int) ([]models.SessionEvent, error)
}

// Handler отдаёт историю сессий.
type Handler struct {
	log         *slog.Logger
	authService Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, authService Service) *Handler {
	return &Handler{log: log, authService: authService}
}

// ServeHTTP godoc
// @Summary История сессий
// @Description Последние входы, вытеснения и сбросы сессии, новые первыми.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Количество событий (по умолчанию 20, максимум 100)"
// @Success 200 {object} response.Response "События сессий"
// @Failure 400 {object} response.ErrorResponse "Некорректный limit"
// @Failure 401 {object} response.ErrorResponse "Нет действующего токена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /sessions/events [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.history"

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

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			log.Info("invalid limit", slog.String("limit", raw))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ErrorWithCode("limit must be a non-negative integer", response.CodeBadRequest))
			return
		}
		limit = n
	}

	events, err := h.authService.SessionHistory(r.Context(), accountID, limit)
	if err != nil {
		auth.WriteServiceError(w, r, log, "failed to load session history", err)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"events": events,
	}))
}
