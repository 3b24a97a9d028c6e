package orchestrator

import (
	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

// Position — положение процесса после обработки уведомления.
type Position string

const (
	AtTask    Position = "task"
	AtGateway Position = "gateway"
	AtEvent   Position = "event"
	Finished  Position = "finished"
	Errored   Position = "errored"
)

// positionOf возвращает положение для вида цели ребра.
func positionOf(kind engine.TargetKind) Position {
	switch kind {
	case engine.TargetTask:
		return AtTask
	case engine.TargetGateway:
		return AtGateway
	case engine.TargetEvent:
		return AtEvent
	case engine.TargetWorkflowEnd:
		return Finished
	default:
		return ""
	}
}

// dispatch — work item, который нужно отправить.
type dispatch struct {
	// Queue — очередь worker'а.
	Queue string

	// Item — сообщение.
	Item domain.WorkItem

	// Edge — ребро, по которому пришли к цели.
	Edge domain.SequenceFlow

	// Target — вид цели (для логов и метрик).
	Target engine.TargetKind

	// Claim — ребро выхода из join. Если задано, исходящая запись
	// пишется условно: переход за join выполняется один раз.
	Claim string
}

// plan — результат разбора рёбер одного уведомления.
type plan struct {
	dispatches []dispatch
	finished   bool
}

// Result — итог обработки уведомления.
type Result struct {
	// WorkflowID и TemplateID известны после шага 1
	// (нужны для журнала ошибок).
	WorkflowID uuid.UUID
	TemplateID uuid.UUID

	// Candidates — рёбра-кандидаты из входящей записи.
	Candidates []domain.SequenceFlow

	// Positions — куда перешёл процесс.
	Positions []Position

	// Dispatched — сколько work items отправлено.
	Dispatched int

	// Duplicate — уведомление пришло после завершения процесса.
	Duplicate bool
}

// Finished сообщает, завершился ли процесс этим уведомлением.
func (r *Result) Finished() bool {
	for _, p := range r.Positions {
		if p == Finished {
			return true
		}
	}
	return false
}
