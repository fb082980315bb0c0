// Package forceclear реализует HTTP-обработчик принудительного сброса сессии.
//
// Используется для восстановления доступа, когда закреплённое устройство потеряно:
// после повторной проверки пароля сбрасываются и закреплённое устройство, и активная сессия.
package forceclear

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/glassworks-auth/internal/http/handlers/auth"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/response"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/sl"
	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
)

// Service описывает интерфейс бизнес-логики сброса сессии.
type Service interface {
	ForceClearSession(ctx context.Context, in services.ForceClearInput) error
}

// Request — входные данные сброса.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Handler обрабатывает принудительный сброс сессии.
type Handler struct {
	log         *slog.Logger
	authService Service
	validate    *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, authService Service) *Handler {
	return &Handler{
		log:         log,
		authService: authService,
		validate:    validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Принудительный сброс сессии
// @Description Сбрасывает закреплённое устройство и активную сессию после проверки пароля.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Почта и пароль"
// @Success 200 {object} response.Response "Сессия сброшена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверный пароль"
// @Failure 404 {object} response.ErrorResponse "Учётная запись не найдена"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /sessions/force-clear [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.forceclear"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorWithCode("invalid request body", response.CodeBadRequest))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	err := h.authService.ForceClearSession(r.Context(), services.ForceClearInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		auth.WriteServiceError(w, r, log, "force clear failed", err)
		return
	}

	log.Info("session force-cleared", slog.String("email", req.Email))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "session cleared",
	}))
}
