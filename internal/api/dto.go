package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
)

// Template DTOs

// CreateTemplateRequest — запрос на создание шаблона процесса.
type CreateTemplateRequest struct {
	Name     string `json:"name"`
	XML      string `json:"xml"`
	IsActive bool   `json:"is_active"`
}

// SetActiveRequest — запрос на включение/выключение шаблона.
type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// TemplateResponse — ответ с шаблоном.
type TemplateResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`

	// XML отдаётся только для одного шаблона, не в списке.
	XML string `json:"xml,omitempty"`

	// Warnings — висячие рёбра и прочее, что не мешает загрузке.
	Warnings []string `json:"warnings,omitempty"`
}

// TemplateFromDomain конвертирует domain.WorkflowTemplate в TemplateResponse.
func TemplateFromDomain(t domain.WorkflowTemplate, withXML bool) TemplateResponse {
	resp := TemplateResponse{
		ID:        t.ID,
		Name:      t.Name,
		IsActive:  t.IsActive,
		UpdatedAt: t.UpdatedAt,
	}
	if withXML {
		resp.XML = t.XML
	}
	return resp
}

// ReloadResponse — итог перезагрузки Schema Cache.
type ReloadResponse struct {
	Loaded     int   `json:"loaded"`
	Failed     int   `json:"failed"`
	Warnings   int   `json:"warnings"`
	DurationMs int64 `json:"duration_ms"`
}

// Workflow DTOs

// StartWorkflowRequest — запрос на запуск процесса.
type StartWorkflowRequest struct {
	WorkflowTemplateID uuid.UUID      `json:"workflowTemplateId"`
	UserID             string         `json:"userId,omitempty"`
	Payload            map[string]any `json:"payload,omitempty"`
}

// WorkflowResponse — ответ с экземпляром процесса.
type WorkflowResponse struct {
	ID                  uuid.UUID               `json:"id"`
	TemplateID          uuid.UUID               `json:"workflowTemplateId"`
	UserID              string                  `json:"userId,omitempty"`
	IsFinal             bool                    `json:"isFinal"`
	HasUnresolvedErrors bool                    `json:"hasUnresolvedErrors"`
	Payload             map[string]any          `json:"payload,omitempty"`
	History             []domain.HistoryMessage `json:"history,omitempty"`
	Nodes               []NodeResponse          `json:"nodes,omitempty"`
	Errors              []ErrorResponseItem     `json:"errors,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
}

// WorkflowFromDomain конвертирует domain.WorkflowInstance в WorkflowResponse.
func WorkflowFromDomain(w *domain.WorkflowInstance) WorkflowResponse {
	return WorkflowResponse{
		ID:                  w.ID,
		TemplateID:          w.TemplateID,
		UserID:              w.UserID,
		IsFinal:             w.IsFinal,
		HasUnresolvedErrors: w.HasUnresolvedErrors,
		Payload:             w.Payload,
		History:             w.History,
		CreatedAt:           w.CreatedAt,
	}
}

// NodeResponse — запись выполненного узла.
type NodeResponse struct {
	ID              uuid.UUID      `json:"id"`
	Kind            string         `json:"kind"`
	TemplateNodeID  string         `json:"templateNodeId"`
	Status          string         `json:"status"`
	ResultSequences []string       `json:"resultSequences,omitempty"`
	Outputs         map[string]any `json:"outputs,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NodeFromDomain конвертирует domain.NodeRecord в NodeResponse.
func NodeFromDomain(n domain.NodeRecord) NodeResponse {
	return NodeResponse{
		ID:              n.ID,
		Kind:            string(n.Kind),
		TemplateNodeID:  n.TemplateNodeID,
		Status:          string(n.Status),
		ResultSequences: n.ResultSequences,
		Outputs:         n.Outputs,
		Error:           n.Error,
		CreatedAt:       n.CreatedAt,
	}
}

// ErrorResponseItem — запись журнала ошибок процесса.
type ErrorResponseItem struct {
	ID        uuid.UUID `json:"id"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}
