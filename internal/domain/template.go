package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowTemplate — шаблон процесса, нарисованный в BPMN-редакторе.
//
// XML шаблона парсится Schema Cache в ProcessGraph.
// Неактивные шаблоны в кэш не попадают.
type WorkflowTemplate struct {
	// ID — уникальный идентификатор шаблона.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя процесса.
	Name string `json:"name"`

	// XML — BPMN-диаграмма (bpmn: или bpmn2: префиксы).
	XML string `json:"xml"`

	// IsActive — активен ли шаблон.
	IsActive bool `json:"is_active"`

	// UpdatedAt — время последнего изменения диаграммы.
	UpdatedAt time.Time `json:"updated_at"`
}
