package domain

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Direction — направление сообщения в истории процесса.
type Direction string

const (
	// DirectionIn — входящее сообщение (завершение узла).
	DirectionIn Direction = "in"

	// DirectionOut — исходящее сообщение (отправка work item в очередь).
	DirectionOut Direction = "out"
)

// SequenceFlow — ребро BPMN-графа.
type SequenceFlow struct {
	ID        string `json:"id"`
	SourceRef string `json:"sourceRef"`
	TargetRef string `json:"targetRef"`

	// Condition — текст conditionExpression (для шлюзов), может быть пустым.
	Condition string `json:"condition,omitempty"`
}

// IsEmpty возвращает true для синтетического ребра "конец ветки".
func (f SequenceFlow) IsEmpty() bool {
	return f.ID == "" && f.TargetRef == ""
}

// HistoryMessage — запись в истории экземпляра процесса.
type HistoryMessage struct {
	// Direction — in (завершение узла) или out (диспетчеризация).
	Direction Direction `json:"direction"`

	// Payload — исходное сообщение.
	Payload json.RawMessage `json:"payload,omitempty"`

	// MatchedEdges — рёбра, участвовавшие в переходе.
	MatchedEdges []SequenceFlow `json:"matchedEdges"`

	// Timestamp — время записи.
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowInstance — экземпляр выполнения процесса.
//
// История (History) только дополняется: каждая запись добавляется
// атомарной операцией в БД, без перезаписи всего документа.
// Это позволяет параллельным веткам завершаться одновременно
// и не терять записи друг друга.
type WorkflowInstance struct {
	// ID — уникальный идентификатор экземпляра.
	ID uuid.UUID `json:"id"`

	// TemplateID — шаблон, по которому запущен процесс.
	TemplateID uuid.UUID `json:"workflowTemplateId"`

	// UserID — инициатор процесса.
	UserID string `json:"userId,omitempty"`

	// IsFinal — процесс завершён. Устанавливается один раз и не сбрасывается.
	IsFinal bool `json:"isFinal"`

	// HasUnresolvedErrors — при обходе графа были ошибки.
	HasUnresolvedErrors bool `json:"hasUnresolvedErrors"`

	// Payload — данные процесса (доступны в условиях шлюзов).
	Payload map[string]any `json:"payload,omitempty"`

	// History — упорядоченный журнал сообщений.
	History []HistoryMessage `json:"history"`

	// PublishedClaims — переходы, work item которых уже опубликован:
	// рёбра выхода из join и старт процесса. Отметка ставится
	// только после успешной публикации.
	PublishedClaims []string `json:"publishedClaims,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// HasEdge проверяет, встречается ли ребро с данным ID где-либо в истории.
//
// Используется для проверки join параллельного шлюза: join срабатывает,
// только когда все его входящие рёбра уже присутствуют в истории.
// Сложность O(длина истории).
func (w *WorkflowInstance) HasEdge(flowID string) bool {
	for i := range w.History {
		for _, edge := range w.History[i].MatchedEdges {
			if edge.ID == flowID {
				return true
			}
		}
	}
	return false
}

// ClaimPublished сообщает, опубликован ли work item перехода.
func (w *WorkflowInstance) ClaimPublished(flowID string) bool {
	return slices.Contains(w.PublishedClaims, flowID)
}

// NewHistoryMessage создаёт запись истории с текущим временем.
func NewHistoryMessage(dir Direction, payload any, edges []SequenceFlow) (HistoryMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return HistoryMessage{}, err
	}
	if edges == nil {
		edges = []SequenceFlow{}
	}
	return HistoryMessage{
		Direction:    dir,
		Payload:      raw,
		MatchedEdges: edges,
		Timestamp:    time.Now().UTC(),
	}, nil
}
