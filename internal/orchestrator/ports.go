package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

// Graphs — Schema Cache.
type Graphs interface {
	FindByID(templateID uuid.UUID) (*engine.ProcessGraph, bool)
}

// Instances — хранилище экземпляров процессов (repo.InstanceRepo).
type Instances interface {
	Create(ctx context.Context, w *domain.WorkflowInstance) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)

	// AppendHistory атомарно дописывает сообщение и возвращает
	// экземпляр сразу после записи.
	AppendHistory(ctx context.Context, id uuid.UUID, msg domain.HistoryMessage) (*domain.WorkflowInstance, error)

	// AppendOutboundOnce дописывает сообщение, если исходящего сообщения
	// с ребром claimFlowID в истории ещё нет.
	AppendOutboundOnce(ctx context.Context, id uuid.UUID, msg domain.HistoryMessage, claimFlowID string) (bool, error)

	// MarkClaimPublished отмечает, что work item за ребром claimFlowID опубликован.
	MarkClaimPublished(ctx context.Context, id uuid.UUID, claimFlowID string) error

	MarkFinal(ctx context.Context, id uuid.UUID) error
	FlagErrors(ctx context.Context, id uuid.UUID) error
}

// Nodes — записи выполненных узлов (repo.NodeRepo).
type Nodes interface {
	Create(ctx context.Context, n *domain.NodeRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.NodeRecord, error)
}

// ErrorLog — журнал ошибок процесса (repo.ErrorLogRepo).
type ErrorLog interface {
	Create(ctx context.Context, e *domain.ErrorLogEntry) error
}

// Notifier — подписчики шаблона и их уведомления (repo.NotificationRepo).
type Notifier interface {
	Subscribers(ctx context.Context, templateID uuid.UUID) ([]string, error)
	Create(ctx context.Context, n *domain.Notification) error
}

// Publisher — отправка work items (mq.Publisher).
type Publisher interface {
	Publish(ctx context.Context, queue string, msg any) (string, error)
}
