package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/telemetry"
)

// StartWorkflow запускает экземпляр процесса.
// POST /api/v1/workflows
//
// Если экземпляр создан, но обход от стартового события упал,
// отвечаем 202: ошибка уже записана в журнал экземпляра.
func (h *Handler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req StartWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.WorkflowTemplateID == uuid.Nil {
		BadRequest(w, "workflowTemplateId is required")
		return
	}

	inst, err := h.starter.StartWorkflow(r.Context(), domain.StartRequest{
		WorkflowTemplateID: req.WorkflowTemplateID,
		UserID:             req.UserID,
		Payload:            req.Payload,
	})
	if err != nil && inst == nil {
		HandleRepoError(w, r, err, "workflow template not loaded")
		return
	}

	resp := WorkflowFromDomain(inst)
	if err != nil {
		telemetry.FromContext(r.Context()).Warn("workflow started with errors",
			"workflow_id", inst.ID,
			"error", err,
			"retriable", domain.IsRetriable(err),
		)
		JSON(w, http.StatusAccepted, DataResponse{Data: resp})
		return
	}

	Created(w, resp)
}

// GetWorkflow возвращает экземпляр процесса с узлами и ошибками.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	inst, err := h.instances.GetByID(r.Context(), id)
	if HandleRepoError(w, r, err, "workflow not found") {
		return
	}

	resp := WorkflowFromDomain(inst)

	if h.nodes != nil {
		nodes, err := h.nodes.ListByWorkflow(r.Context(), id)
		if err != nil && !errors.Is(err, domain.ErrNodeNotFound) {
			InternalError(w, r, err)
			return
		}
		for _, n := range nodes {
			resp.Nodes = append(resp.Nodes, NodeFromDomain(n))
		}
	}

	if h.errorLog != nil {
		entries, err := h.errorLog.ListByWorkflow(r.Context(), id)
		if err != nil && !errors.Is(err, domain.ErrNodeNotFound) {
			InternalError(w, r, err)
			return
		}
		for _, e := range entries {
			resp.Errors = append(resp.Errors, ErrorResponseItem{
				ID:        e.ID,
				Error:     e.Error,
				CreatedAt: e.CreatedAt,
			})
		}
	}

	Success(w, resp)
}
