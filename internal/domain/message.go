package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// WorkItem — оркестрационное сообщение, которое manager отправляет worker'у.
//
// Ровно одно из полей TaskTemplateID / GatewayTemplateID / EventTemplateID заполнено.
type WorkItem struct {
	WorkflowID         uuid.UUID `json:"workflowId"`
	WorkflowTemplateID uuid.UUID `json:"workflowTemplateId"`

	TaskTemplateID    string `json:"taskTemplateId,omitempty"`
	GatewayTemplateID string `json:"gatewayTemplateId,omitempty"`
	EventTemplateID   string `json:"eventTemplateId,omitempty"`

	// GatewayType и Outgoing заполняются только для шлюзов:
	// worker шлюза сам решает, какие из рёбер сработают.
	GatewayType GatewayKind `json:"gatewayType,omitempty"`
	Outgoing    []string    `json:"outgoing,omitempty"`

	UserID string `json:"userId,omitempty"`

	// RetryIterator — номер попытки в лестнице ретраев.
	RetryIterator int `json:"retryIterator,omitempty"`

	// AMQPMessageID — уникальный ID доставки, только для дедупликации.
	AMQPMessageID string `json:"amqpMessageId,omitempty"`

	Debug   bool   `json:"debug,omitempty"`
	DebugID string `json:"debugId,omitempty"`
}

// NodeKind возвращает вид узла, на который указывает work item.
func (w *WorkItem) NodeKind() (NodeKind, string, error) {
	switch {
	case w.TaskTemplateID != "":
		return NodeKindTask, w.TaskTemplateID, nil
	case w.GatewayTemplateID != "":
		return NodeKindGateway, w.GatewayTemplateID, nil
	case w.EventTemplateID != "":
		return NodeKindEvent, w.EventTemplateID, nil
	default:
		return "", "", fmt.Errorf("%w: work item has no template node id", ErrInvalidMessage)
	}
}

// StartRequest — запрос на запуск нового экземпляра процесса.
type StartRequest struct {
	// WorkflowID — ID создаваемого экземпляра. Запуск с тем же ID
	// повторно экземпляр не создаёт. Пустой ID даёт новый экземпляр.
	WorkflowID uuid.UUID `json:"workflowId,omitempty"`

	WorkflowTemplateID uuid.UUID      `json:"workflowTemplateId"`
	UserID             string         `json:"userId,omitempty"`
	Payload            map[string]any `json:"payload,omitempty"`
}

// CompletionNotice — уведомление о завершении узла, которое получает manager.
type CompletionNotice struct {
	TaskID    *uuid.UUID    `json:"taskId,omitempty"`
	GatewayID *uuid.UUID    `json:"gatewayId,omitempty"`
	EventID   *uuid.UUID    `json:"eventId,omitempty"`
	Start     *StartRequest `json:"start,omitempty"`

	UserID        string `json:"userId,omitempty"`
	RetryIterator int    `json:"retryIterator,omitempty"`
	AMQPMessageID string `json:"amqpMessageId,omitempty"`
}

// Node возвращает вид и ID записи узла из уведомления.
func (c *CompletionNotice) Node() (NodeKind, uuid.UUID, error) {
	switch {
	case c.TaskID != nil:
		return NodeKindTask, *c.TaskID, nil
	case c.GatewayID != nil:
		return NodeKindGateway, *c.GatewayID, nil
	case c.EventID != nil:
		return NodeKindEvent, *c.EventID, nil
	default:
		return "", uuid.Nil, fmt.Errorf("%w: no taskId, gatewayId or eventId", ErrInvalidMessage)
	}
}

// NoticeFor создаёт уведомление о завершении для записи узла.
func NoticeFor(node *NodeRecord) CompletionNotice {
	id := node.ID
	var n CompletionNotice
	switch node.Kind {
	case NodeKindTask:
		n.TaskID = &id
	case NodeKindGateway:
		n.GatewayID = &id
	case NodeKindEvent:
		n.EventID = &id
	}
	return n
}

// ParseCompletionNotice разбирает тело сообщения manager-очереди.
func ParseCompletionNotice(body []byte) (*CompletionNotice, error) {
	var n CompletionNotice
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if n.Start != nil {
		if n.Start.WorkflowTemplateID == uuid.Nil {
			return nil, fmt.Errorf("%w: start without workflowTemplateId", ErrInvalidMessage)
		}
		return &n, nil
	}
	if _, _, err := n.Node(); err != nil {
		return nil, err
	}
	return &n, nil
}
