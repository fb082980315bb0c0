package models

import "errors"

var (
	// ErrAccountNotFound возвращается хранилищем, если учётная запись не найдена.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailTaken возвращается при попытке зарегистрировать занятую почту.
	ErrEmailTaken = errors.New("email already registered")
	// ErrVersionConflict возвращается, если запись изменилась между чтением и записью.
	ErrVersionConflict = errors.New("account version conflict")
)
