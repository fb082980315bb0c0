// Package google реализует HTTP-обработчик входа через Google ID‑токен.
package google

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

// Service описывает интерфейс бизнес-логики входа через Google.
type Service interface {
	GoogleLogin(ctx context.Context, in services.GoogleLoginInput) (*services.LoginResult, error)
}

// Request — входные данные входа через Google.
type Request struct {
	IDToken    string `json:"id_token" validate:"required"`
	DeviceID   string `json:"device_id" validate:"max=128"`
	DeviceName string `json:"device_name" validate:"max=100"`
	Platform   string `json:"platform" validate:"max=32"`
	Override   bool   `json:"override"`
}

// Handler обрабатывает вход через Google.
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
// @Summary Вход через Google
// @Description Проверяет ID‑токен Google, при первом входе создаёт учётную запись без пароля и допускает вход с устройства.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "ID‑токен и устройство"
// @Success 200 {object} response.Response "Успешная авторизация"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Токен не подтверждён"
// @Failure 409 {object} response.ErrorResponse "Активная сессия на другом устройстве"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /login/google [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.google"

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

	res, err := h.authService.GoogleLogin(r.Context(), services.GoogleLoginInput{
		IDToken:    req.IDToken,
		DeviceID:   req.DeviceID,
		DeviceInfo: auth.DeviceInfo(r, req.DeviceName, req.Platform),
		Override:   req.Override,
	})
	if err != nil {
		auth.WriteServiceError(w, r, log, "google login failed", err)
		return
	}

	log.Info("google login success", slog.String("account_id", res.Profile.ID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token":   res.Token,
		"profile": res.Profile,
	}))
}
