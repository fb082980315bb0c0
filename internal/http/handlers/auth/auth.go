// Package auth содержит общие части HTTP-обработчиков аутентификации.
package auth

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/glassworks-auth/internal/http/response"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/sl"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
	"github.com/magabrotheeeer/glassworks-auth/internal/session"
)

// NewValidator возвращает валидатор с дополнительным тегом maxbytes=N,
// ограничивающим длину строки в байтах, а не в символах.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	return v
}

// DeviceInfo собирает метаданные устройства из тела запроса и самого запроса.
func DeviceInfo(r *http.Request, name, platform string) models.DeviceInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return models.DeviceInfo{
		Name:      name,
		Platform:  platform,
		UserAgent: r.UserAgent(),
		IP:        ip,
	}
}

// WriteServiceError пишет ответ с кодом ошибки сервиса.
// Внутренние ошибки логируются с уровнем Error, отказы бизнес-логики с уровнем Info.
func WriteServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	code := services.ErrorCode(err)
	if code == session.CodeInternal {
		log.Error(msg, sl.Err(err))
	} else {
		log.Info(msg, slog.String("code", code))
	}
	render.Status(r, response.HTTPStatus(code))
	render.JSON(w, r, response.ErrorWithCode(response.Message(code), code))
}
