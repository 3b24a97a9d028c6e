package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/mq"
	"github.com/shaiso/Processa/internal/telemetry"
)

// startNamespace — пространство имён ID экземпляров, выведенных
// из amqpMessageId стартового сообщения.
var startNamespace = uuid.MustParse("6f1c1f8e-3b7a-4d52-9a57-0c2f9d4e8b11")

// HandleMessage — обработчик очереди manager.
//
// Неповторяемые ошибки (битое сообщение, отсутствующий узел, ошибка схемы)
// подтверждаются: повтор их не исправит. Остальные возвращаются consumer'у,
// и сообщение уходит в лестницу ретраев.
func (o *Orchestrator) HandleMessage(ctx context.Context, d *mq.Delivery) error {
	logger := telemetry.WithMessageID(o.logger, d.MessageID)

	notice, err := domain.ParseCompletionNotice(d.Body)
	if err != nil {
		telemetry.TraversalErrors.WithLabelValues("false").Inc()
		logger.Error("invalid manager message, dropping",
			"error", err,
			"body", telemetry.Redact(d.Body, 512),
		)
		return nil
	}

	var result *Result
	if notice.Start != nil {
		result = &Result{TemplateID: notice.Start.WorkflowTemplateID}
		req := *notice.Start
		if req.WorkflowID == uuid.Nil && d.MessageID != "" {
			// Повтор того же сообщения не создаёт второй экземпляр
			req.WorkflowID = uuid.NewSHA1(startNamespace, []byte(d.MessageID))
		}
		var inst *domain.WorkflowInstance
		inst, err = o.StartWorkflow(ctx, req)
		if inst != nil {
			result.WorkflowID = inst.ID
		}
	} else {
		result, err = o.ProcessCompletion(ctx, notice)
	}

	if err == nil {
		return nil
	}
	return o.handleFailure(ctx, result, d, err)
}

// handleFailure пишет ошибку в журнал процесса, помечает экземпляр
// и уведомляет подписчиков шаблона.
//
// Возвращает err для повторяемых ошибок и nil для остальных.
func (o *Orchestrator) handleFailure(ctx context.Context, result *Result, d *mq.Delivery, cause error) error {
	retriable := domain.IsRetriable(cause)
	telemetry.TraversalErrors.WithLabelValues(strconv.FormatBool(retriable)).Inc()

	logger := telemetry.WithMessageID(o.logger, d.MessageID)
	if result != nil && result.WorkflowID != uuid.Nil {
		logger = telemetry.WithWorkflowID(logger, result.WorkflowID.String())
	}
	logger.Error("traversal failed",
		"error", cause,
		"retriable", retriable,
		"retry_iterator", d.RetryIterator,
	)

	// Без экземпляра писать некуда
	if result == nil || result.WorkflowID == uuid.Nil {
		if retriable {
			return cause
		}
		return nil
	}

	// 1. Журнал ошибок
	entry := &domain.ErrorLogEntry{
		ID:         uuid.New(),
		WorkflowID: result.WorkflowID,
		Error:      cause.Error(),
		Message:    d.Body,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.errorLog.Create(ctx, entry); err != nil {
		logger.Error("failed to write error log", "error", err)
	}

	// 2. Флаг экземпляра
	if err := o.instances.FlagErrors(ctx, result.WorkflowID); err != nil {
		logger.Error("failed to flag workflow errors", "error", err)
	}

	// 3. Подписчики шаблона
	if result.TemplateID != uuid.Nil {
		o.notifySubscribers(ctx, result, cause)
	}

	if retriable {
		return cause
	}
	return nil
}

// notifySubscribers создаёт уведомление каждому подписчику шаблона.
func (o *Orchestrator) notifySubscribers(ctx context.Context, result *Result, cause error) {
	if o.notifier == nil {
		return
	}

	users, err := o.notifier.Subscribers(ctx, result.TemplateID)
	if err != nil {
		o.logger.Error("failed to list template subscribers",
			"template_id", result.TemplateID,
			"error", err,
		)
		return
	}

	details, _ := json.Marshal(map[string]string{
		"workflowId": result.WorkflowID.String(),
		"error":      cause.Error(),
	})

	for _, user := range users {
		n := &domain.Notification{
			ID:         uuid.New(),
			UserID:     user,
			WorkflowID: result.WorkflowID,
			Title:      fmt.Sprintf("Workflow %s failed", result.WorkflowID),
			Message:    string(details),
			CreatedAt:  time.Now().UTC(),
		}
		if err := o.notifier.Create(ctx, n); err != nil {
			o.logger.Error("failed to notify subscriber", "user_id", user, "error", err)
		}
	}
}
