// Package oauth проверяет ID‑токены Google локально по опубликованным сертификатам.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

// ErrInvalidToken возвращается, если токен не прошёл проверку.
var ErrInvalidToken = errors.New("invalid oauth token")

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// Identity — подтверждённое провайдером утверждение о личности.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// Verifier проверяет ID‑токен внешнего провайдера.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// GoogleVerifier реализует Verifier для Google.
type GoogleVerifier struct {
	clientID  string
	validator *idtoken.Validator
}

// NewGoogleVerifier создаёт верификатор для приложения clientID.
// Сертификаты Google загружаются и кэшируются валидатором.
func NewGoogleVerifier(ctx context.Context, clientID string, opts ...option.ClientOption) (*GoogleVerifier, error) {
	const op = "oauth.NewGoogleVerifier"
	v, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &GoogleVerifier{clientID: clientID, validator: v}, nil
}

// Verify проверяет подпись, audience, срок действия, издателя и подтверждённость почты.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	const op = "oauth.GoogleVerifier.Verify"
	if idToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	payload, err := v.validator.Validate(ctx, idToken, v.clientID)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if !googleIssuers[payload.Issuer] || payload.Subject == "" {
		return nil, fmt.Errorf("%s: unexpected issuer or subject: %w", op, ErrInvalidToken)
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%s: email missing: %w", op, ErrInvalidToken)
	}
	if !emailVerified(payload.Claims["email_verified"]) {
		return nil, fmt.Errorf("%s: email not verified: %w", op, ErrInvalidToken)
	}
	name, _ := payload.Claims["name"].(string)

	return &Identity{
		Provider: models.ProviderGoogle,
		Subject:  payload.Subject,
		Email:    email,
		Name:     name,
	}, nil
}

// emailVerified принимает как булево значение, так и строку "true".
func emailVerified(claim any) bool {
	switch v := claim.(type) {
	case bool:
		return v
	case string:
		ok, _ := strconv.ParseBool(v)
		return ok
	}
	return false
}
