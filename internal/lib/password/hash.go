// Package password реализует хеширование и проверку паролей владельцев учётных записей.
//
// GetHash создаёт bcrypt‑хеш для хранения, CompareHash проверяет введённый пароль,
// Verify — то же для учётных записей, у которых пароля может не быть (вход только через OAuth).
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch возвращается, если пароль не соответствует хешу.
var ErrMismatch = errors.New("password does not match")

// Cost — стоимость bcrypt для новых хешей.
var Cost = bcrypt.DefaultCost

// GetHash принимает пароль и возвращает его bcrypt‑хеш.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash сравнивает bcrypt‑хеш с введённым паролем.
//
// При несовпадении возвращает ошибку, оборачивающую ErrMismatch.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("%s: %w", op, ErrMismatch)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Verify сообщает, подходит ли пароль к хешу. Для nil или пустого хеша всегда false.
func Verify(hash *string, externalPassword string) bool {
	if hash == nil || *hash == "" {
		return false
	}
	return CompareHash(*hash, externalPassword) == nil
}
