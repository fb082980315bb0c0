// Package jwt реализует выпуск и проверку JWT, привязанных к учётной записи и устройству.
package jwt

import (
	"time"
)

// Maker описывает выпуск и разбор токенов доступа.
type Maker interface {
	// GenerateToken выпускает токен для учётной записи, роли и устройства (может быть пустым).
	GenerateToken(accountID, role, deviceID string) (string, error)
	// ParseToken проверяет подпись и срок действия и возвращает claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker на HS256 с общим секретом.
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
	issuer    string
	now       func() time.Time
}

// Issuer — значение iss в выпускаемых токенах.
const Issuer = "glassworks-auth"

// NewJWTMaker создаёт MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		issuer:    Issuer,
		now:       time.Now,
	}
}
