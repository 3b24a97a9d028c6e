package engine

import (
	"regexp"
	"strings"
)

// TargetKind — семантика targetRef ребра.
type TargetKind int

const (
	// TargetUnknown — висячее ребро, обход ветки прекращается.
	TargetUnknown TargetKind = iota

	// TargetTask — task-<id>: work item в очередь задач.
	TargetTask

	// TargetGateway — gateway-<id>: work item в очередь шлюзов.
	TargetGateway

	// TargetGatewayJoin — gateway-<id>-end: закрывающий узел параллельного шлюза.
	TargetGatewayJoin

	// TargetEvent — event-<id>: work item в очередь событий.
	TargetEvent

	// TargetWorkflowEnd — end*event*: процесс завершён.
	TargetWorkflowEnd
)

// String возвращает имя вида (для логов и метрик).
func (k TargetKind) String() string {
	switch k {
	case TargetTask:
		return "task"
	case TargetGateway:
		return "gateway"
	case TargetGatewayJoin:
		return "gateway_join"
	case TargetEvent:
		return "event"
	case TargetWorkflowEnd:
		return "workflow_end"
	default:
		return "unknown"
	}
}

// Target — классифицированный targetRef.
type Target struct {
	Kind TargetKind
	Ref  string
}

// Соглашение об именах элементов — контракт с BPMN-редактором.
var (
	joinPattern = regexp.MustCompile(`^gateway-.+-end$`)
	endPattern  = regexp.MustCompile(`(?i)^end.?event.+$`)
)

// Classify определяет семантику targetRef.
//
// Порядок проверки важен: gateway-<id>-end проверяется раньше
// gateway-<id>, а конец процесса — раньше task/event.
func Classify(ref string) Target {
	t := Target{Ref: ref}

	switch {
	case joinPattern.MatchString(ref):
		t.Kind = TargetGatewayJoin
	case endPattern.MatchString(ref):
		t.Kind = TargetWorkflowEnd
	case hasIDSuffix(ref, "task-"):
		t.Kind = TargetTask
	case hasIDSuffix(ref, "gateway-"):
		t.Kind = TargetGateway
	case hasIDSuffix(ref, "event-"):
		t.Kind = TargetEvent
	default:
		t.Kind = TargetUnknown
	}

	return t
}

func hasIDSuffix(ref, prefix string) bool {
	return strings.HasPrefix(ref, prefix) && len(ref) > len(prefix)
}
