package session

import (
	"errors"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

var (
	// ErrNotFound — учётная запись не найдена.
	ErrNotFound = models.ErrAccountNotFound
	// ErrUnauthorized — учётные данные не подтверждены.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDeviceConflict — у учётной записи есть свежая сессия на другом устройстве.
	ErrDeviceConflict = errors.New("account is active on another device")
)

// Машиночитаемые коды ошибок для клиентов.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeDeviceConflict = "DEVICE_CONFLICT"
	CodeInternal       = "INTERNAL"
)

// Code возвращает машиночитаемый код ошибки допуска.
// Для инфраструктурных ошибок возвращается CodeInternal.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrDeviceConflict):
		return CodeDeviceConflict
	default:
		return CodeInternal
	}
}
