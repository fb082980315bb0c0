package register

import (
	"context"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
)

// Service описывает интерфейс бизнес-логики регистрации.
type Service interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.Profile, error)
}
