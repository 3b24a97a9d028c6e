package worker

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
	"github.com/shaiso/Processa/internal/provider"
)

// Graphs — Schema Cache.
type Graphs interface {
	FindByID(templateID uuid.UUID) (*engine.ProcessGraph, bool)
}

// Instances — экземпляры процессов (repo.InstanceRepo).
type Instances interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)
	MergePayload(ctx context.Context, id uuid.UUID, patch map[string]any) error
	FlagErrors(ctx context.Context, id uuid.UUID) error
}

// Nodes — записи узлов (repo.NodeRepo).
type Nodes interface {
	Create(ctx context.Context, n *domain.NodeRecord) error
	Update(ctx context.Context, n *domain.NodeRecord) error
}

// Statuses — статусы асинхронных запросов (repo.ExternalStatusRepo).
type Statuses interface {
	Create(ctx context.Context, s *domain.ExternalServiceStatus) error
}

// ErrorLog — журнал ошибок процесса (repo.ErrorLogRepo).
type ErrorLog interface {
	Create(ctx context.Context, e *domain.ErrorLogEntry) error
}

// Providers — внешние сервисы (provider.Registry).
type Providers interface {
	Send(ctx context.Context, req *provider.Request) (*provider.Response, error)
	StatusChecker(service string) (provider.StatusChecker, bool)
}

// Publisher — отправка уведомлений в manager (mq.Publisher).
type Publisher interface {
	Publish(ctx context.Context, queue string, msg any) (string, error)
}
