package config

import "errors"

var (
	// ErrInvalidConfig — конфигурация не прошла проверку.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrServicesFile — файл провайдеров не читается или не парсится.
	ErrServicesFile = errors.New("invalid providers file")
)
