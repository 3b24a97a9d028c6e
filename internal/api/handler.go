package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/schema"
)

// Templates — шаблоны процессов (repo.TemplateRepo).
type Templates interface {
	Create(ctx context.Context, t *domain.WorkflowTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowTemplate, error)
	List(ctx context.Context) ([]domain.WorkflowTemplate, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// Instances — экземпляры процессов (repo.InstanceRepo).
type Instances interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)
}

// Nodes — записи узлов (repo.NodeRepo).
type Nodes interface {
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]domain.NodeRecord, error)
}

// ErrorLog — журнал ошибок (repo.ErrorLogRepo).
type ErrorLog interface {
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]domain.ErrorLogEntry, error)
}

// Starter запускает процессы (orchestrator.Orchestrator).
type Starter interface {
	StartWorkflow(ctx context.Context, req domain.StartRequest) (*domain.WorkflowInstance, error)
}

// Reloader — Schema Cache.
type Reloader interface {
	Reload(ctx context.Context) (schema.ReloadStats, error)
}

// Check — проверка зависимости для /healthz.
type Check func(ctx context.Context) error

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	templates Templates
	instances Instances
	nodes     Nodes
	errorLog  ErrorLog
	starter   Starter
	reloader  Reloader

	checks map[string]Check
	system SystemSampler

	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
//
// Репозитории и Starter нужны только manager: без них маршруты
// /api/v1 не регистрируются.
type Config struct {
	Templates Templates
	Instances Instances
	Nodes     Nodes
	ErrorLog  ErrorLog
	Starter   Starter
	Reloader  Reloader

	// Checks — проверки /healthz по имени ("database", "rabbitmq").
	Checks map[string]Check

	// System — снимок хоста для /monitors/system (default: gopsutil).
	System SystemSampler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	system := cfg.System
	if system == nil {
		system = HostSnapshot
	}

	return &Handler{
		templates: cfg.Templates,
		instances: cfg.Instances,
		nodes:     cfg.Nodes,
		errorLog:  cfg.ErrorLog,
		starter:   cfg.Starter,
		reloader:  cfg.Reloader,
		checks:    cfg.Checks,
		system:    system,
		logger:    logger,
	}
}
