package login

import (
	"context"

	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
)

// Service описывает интерфейс бизнес-логики входа по паролю.
type Service interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
}
