package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/mq"
	"github.com/shaiso/Processa/internal/telemetry"
)

// HandleMessage — обработчик очереди роли.
//
// Неповторяемые ошибки (битый work item, узла нет в схеме, бизнес-ошибка
// сервиса) подтверждаются и пишутся в журнал ошибок процесса.
// Остальные возвращаются consumer'у и уходят в лестницу ретраев.
func (w *Worker) HandleMessage(ctx context.Context, d *mq.Delivery) error {
	logger := telemetry.WithMessageID(w.logger, d.MessageID)

	item, err := mq.Decode[domain.WorkItem](d)
	if err != nil {
		logger.Error("invalid work item, dropping",
			"error", err,
			"body", telemetry.Redact(d.Body, 512),
		)
		return nil
	}

	record, err := w.process(ctx, &item)
	if err == nil {
		return nil
	}
	return w.handleFailure(ctx, &item, record, d, err)
}

// process выполняет work item.
//
// Возвращает запись узла (если она успела создаться) для журнала ошибок.
func (w *Worker) process(ctx context.Context, item *domain.WorkItem) (*domain.NodeRecord, error) {
	// 1. Вид узла должен совпадать с ролью
	kind, templateNodeID, err := item.NodeKind()
	if err != nil {
		return nil, err
	}
	if kind != w.role {
		return nil, fmt.Errorf("%w: %s %s in %s queue", ErrWrongQueue, kind, templateNodeID, w.role)
	}

	// 2. Граф и узел
	graph, ok := w.graphs.FindByID(item.WorkflowTemplateID)
	if !ok {
		return nil, fmt.Errorf("%w: template %s is not loaded", domain.ErrNodeNotFound, item.WorkflowTemplateID)
	}
	node, ok := graph.Node(templateNodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s not in template %s", domain.ErrNodeNotFound, templateNodeID, item.WorkflowTemplateID)
	}

	inst, err := w.instances.GetByID(ctx, item.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", item.WorkflowID, err)
	}

	logger := telemetry.WithNodeID(telemetry.WithWorkflowID(w.logger, inst.ID.String()), templateNodeID)

	// Процесс уже завершён другой веткой: узел не выполняем
	if inst.IsFinal {
		logger.Info("workflow is final, skipping work item")
		return nil, nil
	}

	// 3. Запись узла
	record := &domain.NodeRecord{
		ID:             uuid.New(),
		WorkflowID:     inst.ID,
		Kind:           kind,
		TemplateNodeID: templateNodeID,
		Status:         domain.NodeStatusRunning,
		CreatedAt:      time.Now().UTC(),
	}
	if err := w.nodes.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create node record: %w", err)
	}

	// 4. Выполнение
	executor, err := w.registry.Get(kind)
	if err != nil {
		return record, err
	}

	start := time.Now()
	outcome, err := executor.Execute(ctx, &Job{
		Item:     item,
		Instance: inst,
		Graph:    graph,
		Node:     node,
		Record:   record,
	})
	if err != nil {
		record.MarkFailed(err.Error())
		if uerr := w.nodes.Update(ctx, record); uerr != nil {
			logger.Error("failed to mark node failed", "error", uerr)
		}
		telemetry.NodesExecuted.WithLabelValues(string(kind), "failed").Inc()
		return record, err
	}

	// 5. Данные процесса
	if len(outcome.Patch) > 0 {
		if err := w.instances.MergePayload(ctx, inst.ID, outcome.Patch); err != nil {
			return record, fmt.Errorf("merge workflow payload: %w", err)
		}
	}

	record.ResultSequences = outcome.ResultSequences

	// 6. Ожидание внешнего сервиса: уведомление отправит poller
	if outcome.Wait != nil {
		record.Outputs = outcome.Outputs
		record.MarkWaiting()
		if err := w.nodes.Update(ctx, record); err != nil {
			return record, fmt.Errorf("mark node waiting: %w", err)
		}
		if err := w.statuses.Create(ctx, outcome.Wait); err != nil {
			return record, fmt.Errorf("create external status: %w", err)
		}

		telemetry.NodesExecuted.WithLabelValues(string(kind), "waiting").Inc()
		logger.Info("node waits for external service",
			"service", outcome.Wait.Service,
			"external_id", outcome.Wait.ExternalID,
			"duration", time.Since(start),
		)
		return record, nil
	}

	record.MarkCompleted(outcome.Outputs)
	if err := w.nodes.Update(ctx, record); err != nil {
		return record, fmt.Errorf("mark node completed: %w", err)
	}
	telemetry.NodesExecuted.WithLabelValues(string(kind), "completed").Inc()

	logger.Info("node completed",
		"record_id", record.ID,
		"result_sequences", record.ResultSequences,
		"duration", time.Since(start),
	)

	// 7. Уведомление manager
	notice := domain.NoticeFor(record)
	notice.UserID = item.UserID
	if _, err := w.publisher.Publish(ctx, w.queues.Manager, notice); err != nil {
		return record, fmt.Errorf("publish completion: %w", err)
	}
	return record, nil
}

// handleFailure пишет ошибку в журнал процесса и помечает экземпляр.
//
// Возвращает err для повторяемых ошибок и nil для остальных.
func (w *Worker) handleFailure(ctx context.Context, item *domain.WorkItem, record *domain.NodeRecord, d *mq.Delivery, cause error) error {
	retriable := domain.IsRetriable(cause)

	logger := telemetry.WithMessageID(w.logger, d.MessageID)
	if item.WorkflowID != uuid.Nil {
		logger = telemetry.WithWorkflowID(logger, item.WorkflowID.String())
	}
	attrs := []any{
		"error", cause,
		"retriable", retriable,
		"retry_iterator", d.RetryIterator,
	}
	if record != nil {
		attrs = append(attrs, "record_id", record.ID)
	}
	logger.Error("work item failed", attrs...)

	if item.WorkflowID == uuid.Nil {
		return retryOrAck(retriable, cause)
	}

	// 1. Журнал ошибок
	if w.errorLog != nil {
		entry := &domain.ErrorLogEntry{
			ID:         uuid.New(),
			WorkflowID: item.WorkflowID,
			Error:      cause.Error(),
			Message:    d.Body,
			CreatedAt:  time.Now().UTC(),
		}
		if err := w.errorLog.Create(ctx, entry); err != nil {
			logger.Error("failed to write error log", "error", err)
		}
	}

	// 2. Флаг экземпляра
	if err := w.instances.FlagErrors(ctx, item.WorkflowID); err != nil {
		logger.Error("failed to flag workflow errors", "error", err)
	}

	return retryOrAck(retriable, cause)
}

func retryOrAck(retriable bool, cause error) error {
	if retriable {
		return cause
	}
	return nil
}
