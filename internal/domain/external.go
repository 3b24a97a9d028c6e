package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExternalServiceStatus — статус обращения во внешний сервис,
// которое завершается асинхронно (опрашивается poller'ом).
//
// Создаётся при отправке запроса в состоянии Pending
// и двигается только вперёд по списку состояний.
type ExternalServiceStatus struct {
	ID uuid.UUID `json:"id"`

	// WorkflowID и NodeID — узел, ожидающий ответа.
	WorkflowID uuid.UUID `json:"workflowId"`
	NodeID     uuid.UUID `json:"nodeId"`

	// Service — имя внешнего сервиса из реестра провайдеров.
	Service string `json:"service"`

	// ExternalID — идентификатор запроса во внешней системе.
	ExternalID string `json:"externalId,omitempty"`

	State   ExternalState  `json:"state"`
	Details map[string]any `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExternalServiceStatus создаёт статус в состоянии Pending.
func NewExternalServiceStatus(workflowID, nodeID uuid.UUID, service, externalID string) *ExternalServiceStatus {
	now := time.Now().UTC()
	return &ExternalServiceStatus{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Service:    service,
		ExternalID: externalID,
		State:      ExternalPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Advance переводит статус в новое состояние.
// Переход назад (или из терминального состояния) запрещён.
// Переход в то же состояние — no-op, возвращает false.
func (s *ExternalServiceStatus) Advance(to ExternalState, details map[string]any) (bool, error) {
	if to.rank() < 0 {
		return false, fmt.Errorf("%w: unknown state %q", ErrStatusRegression, to)
	}
	if to == s.State {
		return false, nil
	}
	if s.State.IsTerminal() || to.rank() < s.State.rank() {
		return false, fmt.Errorf("%w: %s → %s", ErrStatusRegression, s.State, to)
	}

	s.State = to
	if details != nil {
		s.Details = details
	}
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}
