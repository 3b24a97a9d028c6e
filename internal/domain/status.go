package domain

import "fmt"

// NodeStatus — статус выполнения узла.
//
// Жизненный цикл:
//
//	RUNNING → COMPLETED
//	        ↘ WAITING → COMPLETED (ответ внешнего сервиса)
//	        ↘ FAILED
type NodeStatus string

const (
	NodeStatusRunning   NodeStatus = "RUNNING"
	NodeStatusWaiting   NodeStatus = "WAITING"
	NodeStatusCompleted NodeStatus = "COMPLETED"
	NodeStatusFailed    NodeStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s NodeStatus) IsTerminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusFailed
}

// ExternalState — состояние асинхронного запроса во внешний сервис.
//
// Жизненный цикл (только вперёд):
//
//	Pending → Received → Fulfilled
//	                   ↘ Rejected
type ExternalState string

const (
	ExternalPending   ExternalState = "Pending"
	ExternalReceived  ExternalState = "Received"
	ExternalFulfilled ExternalState = "Fulfilled"
	ExternalRejected  ExternalState = "Rejected"
)

// rank — позиция состояния в списке. Fulfilled и Rejected равноправны.
func (s ExternalState) rank() int {
	switch s {
	case ExternalPending:
		return 0
	case ExternalReceived:
		return 1
	case ExternalFulfilled, ExternalRejected:
		return 2
	default:
		return -1
	}
}

// IsTerminal возвращает true для Fulfilled и Rejected.
func (s ExternalState) IsTerminal() bool {
	return s.rank() == 2
}

// ParseExternalState парсит строку в ExternalState.
func ParseExternalState(s string) (ExternalState, error) {
	st := ExternalState(s)
	if st.rank() < 0 {
		return "", fmt.Errorf("unknown external state %q", s)
	}
	return st, nil
}
