// Package sl содержит вспомогательные атрибуты для логгера slog.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
//
// Пример:
//
//	log.Error("failed to admit login", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Redacted возвращает атрибут, скрывающий значение секрета. Пустое значение остаётся пустым,
// чтобы по логу было видно, передавал ли клиент поле.
func Redacted(key, secret string) slog.Attr {
	if secret == "" {
		return slog.String(key, "")
	}
	return slog.String(key, "[REDACTED]")
}
