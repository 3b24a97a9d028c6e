package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Processa/internal/domain"
)

// Ошибки разбора BPMN. Все оборачивают domain.ErrInvalidSchema.
var (
	// ErrNoProcess — в definitions нет элемента process.
	ErrNoProcess = fmt.Errorf("%w: no process element", domain.ErrInvalidSchema)

	// ErrMalformedXML — XML не парсится.
	ErrMalformedXML = fmt.Errorf("%w: malformed xml", domain.ErrInvalidSchema)

	// ErrEmptyElementID — элемент процесса без id.
	ErrEmptyElementID = fmt.Errorf("%w: element has empty id", domain.ErrInvalidSchema)

	// ErrDuplicateElementID — несколько элементов с одинаковым id.
	ErrDuplicateElementID = fmt.Errorf("%w: duplicate element id", domain.ErrInvalidSchema)
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ErrExpression — JMESPath выражение не компилируется или не вычисляется.
var ErrExpression = errors.New("expression failed")

// SchemaError — ошибка разбора с контекстом элемента.
type SchemaError struct {
	ElementID string // ID элемента, где произошла ошибка
	Message   string // описание ошибки
	Err       error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *SchemaError) Error() string {
	if e.ElementID != "" {
		return "element " + e.ElementID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *SchemaError) Unwrap() error {
	return e.Err
}
