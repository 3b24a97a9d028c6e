package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

// Job — всё, что нужно executor'у для выполнения узла.
type Job struct {
	Item     *domain.WorkItem
	Instance *domain.WorkflowInstance
	Graph    *engine.ProcessGraph
	Node     *engine.Node

	// Record — запись узла, уже сохранённая в статусе RUNNING.
	Record *domain.NodeRecord
}

// Outcome — результат выполнения узла.
type Outcome struct {
	// Outputs — результат для NodeRecord.Outputs.
	Outputs map[string]any

	// ResultSequences — выбранные рёбра (только для шлюзов).
	ResultSequences []string

	// Patch — ключи, дописываемые в payload процесса.
	Patch map[string]any

	// Wait — узел ждёт ответа внешнего сервиса. Уведомление в manager
	// отправит poller, когда статус станет терминальным.
	Wait *domain.ExternalServiceStatus
}

// Executor выполняет узел определённого вида.
//
// Реализации: TaskExecutor, GatewayExecutor, EventExecutor.
type Executor interface {
	Execute(ctx context.Context, job *Job) (*Outcome, error)
}

// Registry — executor'ы по виду узла.
type Registry struct {
	executors map[domain.NodeKind]Executor
}

// NewRegistry создаёт реестр с executor'ами по умолчанию.
// providers нужен только задачам с атрибутом service.
func NewRegistry(providers Providers) *Registry {
	r := &Registry{executors: make(map[domain.NodeKind]Executor)}
	r.Register(domain.NodeKindTask, &TaskExecutor{Providers: providers})
	r.Register(domain.NodeKindGateway, &GatewayExecutor{})
	r.Register(domain.NodeKindEvent, &EventExecutor{})
	return r
}

// Register добавляет или заменяет executor.
func (r *Registry) Register(kind domain.NodeKind, executor Executor) {
	r.executors[kind] = executor
}

// Get возвращает executor для вида узла.
func (r *Registry) Get(kind domain.NodeKind) (Executor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExecutor, kind)
	}
	return executor, nil
}
