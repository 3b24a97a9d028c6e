package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
	"github.com/shaiso/Processa/internal/telemetry"
)

// ListTemplates возвращает список шаблонов процессов.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if HandleRepoError(w, r, err, "") {
		return
	}

	result := make([]TemplateResponse, len(templates))
	for i, t := range templates {
		result[i] = TemplateFromDomain(t, false)
	}

	List(w, result, len(result))
}

// CreateTemplate сохраняет BPMN-шаблон.
// POST /api/v1/templates
//
// XML разбирается до сохранения: шаблон, который Schema Cache
// не сможет загрузить, не принимается.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if strings.TrimSpace(req.XML) == "" {
		BadRequest(w, "xml is required")
		return
	}

	graph, err := engine.ParseBPMN([]byte(req.XML))
	if HandleRepoError(w, r, err, "") {
		return
	}

	tmpl := &domain.WorkflowTemplate{
		ID:        uuid.New(),
		Name:      req.Name,
		XML:       req.XML,
		IsActive:  req.IsActive,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.templates.Create(r.Context(), tmpl); HandleRepoError(w, r, err, "") {
		return
	}

	telemetry.FromContext(r.Context()).Info("template created",
		"template_id", tmpl.ID,
		"name", tmpl.Name,
		"nodes", graph.Size(),
	)

	resp := TemplateFromDomain(*tmpl, false)
	resp.Warnings = graph.Validate()
	Created(w, resp)
}

// GetTemplate возвращает шаблон по ID вместе с XML.
// GET /api/v1/templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	tmpl, err := h.templates.GetByID(r.Context(), id)
	if HandleRepoError(w, r, err, "template not found") {
		return
	}

	Success(w, TemplateFromDomain(*tmpl, true))
}

// SetTemplateActive включает или выключает шаблон.
// PUT /api/v1/templates/{id}/active
//
// В Schema Cache изменение попадёт на следующей перезагрузке.
func (h *Handler) SetTemplateActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.templates.SetActive(r.Context(), id, req.IsActive); HandleRepoError(w, r, err, "template not found") {
		return
	}

	tmpl, err := h.templates.GetByID(r.Context(), id)
	if HandleRepoError(w, r, err, "template not found") {
		return
	}

	Success(w, TemplateFromDomain(*tmpl, false))
}

// ReloadTemplates перезагружает Schema Cache вне расписания.
// POST /api/v1/templates/reload
func (h *Handler) ReloadTemplates(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reloader.Reload(r.Context())
	if err != nil {
		InternalError(w, r, err)
		return
	}

	Success(w, ReloadResponse{
		Loaded:     stats.Loaded,
		Failed:     stats.Failed,
		Warnings:   stats.Warnings,
		DurationMs: stats.Duration.Milliseconds(),
	})
}
