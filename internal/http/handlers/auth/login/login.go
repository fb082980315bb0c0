// Package login реализует HTTP-обработчик входа по почте и паролю.
//
// Вход допускается политикой единственной сессии: если учётная запись активна
// на другом устройстве, возвращается 409 с кодом DEVICE_CONFLICT, и клиент
// может повторить запрос с override=true.
package login

import (
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

// Request — структура входных данных для авторизации.
type Request struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	DeviceID   string `json:"device_id" validate:"max=128"`
	DeviceName string `json:"device_name" validate:"max=100"`
	Platform   string `json:"platform" validate:"max=32"`
	Override   bool   `json:"override"`
}

// Handler обрабатывает HTTP-запросы для авторизации.
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
// @Summary Вход по паролю
// @Description Проверяет пароль и допускает вход с устройства. Возвращает JWT и профиль.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Учетные данные и устройство"
// @Success 200 {object} response.Response "Успешная авторизация"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 404 {object} response.ErrorResponse "Учётная запись не найдена"
// @Failure 409 {object} response.ErrorResponse "Активная сессия на другом устройстве"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

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
	log.Info("request body decoded",
		slog.String("email", req.Email),
		sl.Redacted("password", req.Password),
		slog.String("device_id", req.DeviceID),
	)

	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.authService.Login(r.Context(), services.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		DeviceInfo: auth.DeviceInfo(r, req.DeviceName, req.Platform),
		Override:   req.Override,
	})
	if err != nil {
		auth.WriteServiceError(w, r, log, "login failed", err)
		return
	}

	log.Info("login success", slog.String("account_id", res.Profile.ID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token":   res.Token,
		"profile": res.Profile,
	}))
}
