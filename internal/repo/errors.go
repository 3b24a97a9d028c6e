package repo

import (
	"errors"
	"fmt"

	"github.com/shaiso/Processa/internal/domain"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	// Оборачивает domain.ErrNodeNotFound: промах поиска повтором не исправить.
	ErrNotFound = fmt.Errorf("%w: record not found", domain.ErrNodeNotFound)

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — операция невозможна в текущем состоянии
	// (например, статус уже изменён другим процессом).
	ErrInvalidState = errors.New("invalid state")
)
