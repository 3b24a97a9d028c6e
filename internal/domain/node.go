package domain

import (
	"time"

	"github.com/google/uuid"
)

// NodeKind — вид узла BPMN.
type NodeKind string

const (
	NodeKindTask    NodeKind = "task"
	NodeKindGateway NodeKind = "gateway"
	NodeKindEvent   NodeKind = "event"
)

// GatewayKind — вид шлюза. Каждый вид хранится в своём разделе графа.
type GatewayKind string

const (
	GatewayExclusive GatewayKind = "exclusive"
	GatewayParallel  GatewayKind = "parallel"
	GatewayInclusive GatewayKind = "inclusive"
)

// NodeRecord — выполненный (или выполняющийся) узел процесса.
//
// Worker создаёт NodeRecord, когда берёт work item из очереди,
// и после выполнения отправляет в manager уведомление с ID записи
// ({taskId}, {gatewayId} или {eventId}).
type NodeRecord struct {
	// ID — идентификатор записи (его и несёт completion notice).
	ID uuid.UUID `json:"id"`

	// WorkflowID — экземпляр процесса, которому принадлежит узел.
	WorkflowID uuid.UUID `json:"workflowId"`

	// Kind — task / gateway / event.
	Kind NodeKind `json:"kind"`

	// TemplateNodeID — ID элемента в BPMN ("task-3", "gateway-1", ...).
	TemplateNodeID string `json:"templateNodeId"`

	// ResultSequences — рёбра, выбранные шлюзом (только для gateway).
	ResultSequences []string `json:"resultSequences,omitempty"`

	// Status — статус выполнения.
	Status NodeStatus `json:"status"`

	// Outputs — результат выполнения (ответ провайдера и т.п.).
	Outputs map[string]any `json:"outputs,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// MarkCompleted переводит узел в COMPLETED с результатом.
func (n *NodeRecord) MarkCompleted(outputs map[string]any) {
	n.Status = NodeStatusCompleted
	n.Outputs = outputs
}

// MarkFailed переводит узел в FAILED.
func (n *NodeRecord) MarkFailed(err string) {
	n.Status = NodeStatusFailed
	n.Error = err
}

// MarkWaiting переводит узел в ожидание ответа внешнего сервиса.
func (n *NodeRecord) MarkWaiting() {
	n.Status = NodeStatusWaiting
}

// ErrorLogEntry — запись журнала ошибок процесса.
type ErrorLogEntry struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflowId"`
	Error      string    `json:"error"`
	Message    []byte    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
