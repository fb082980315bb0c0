package jwt

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken возвращается для токенов с неверной подписью, истёкших или повреждённых.
var ErrInvalidToken = errors.New("invalid token")

// CustomClaims — данные, хранящиеся в токене доступа.
// Subject содержит ID учётной записи.
type CustomClaims struct {
	Role                 string `json:"role"`
	DeviceID             string `json:"did,omitempty"`
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt, Subject и пр.
}

// AccountID возвращает ID учётной записи из sub.
func (c *CustomClaims) AccountID() string {
	return c.Subject
}

// GenerateToken создаёт токен и подписывает его секретным ключом.
func (j *MakerImpl) GenerateToken(accountID, role, deviceID string) (string, error) {
	const op = "jwt.GenerateToken"
	if accountID == "" {
		return "", fmt.Errorf("%s: empty account id", op)
	}
	now := j.now()
	claims := CustomClaims{
		Role:     role,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// ParseToken разбирает токен, проверяет подпись, алгоритм, издателя и срок действия.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}
