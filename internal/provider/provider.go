package provider

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
)

// Типы провайдеров (providerType в providers.yaml).
const (
	TypeStandard    = "standard"
	TypeStandardRMQ = "standard-rmq"
	TypeTrembita    = "trembita"
	TypeSigner      = "signer"
)

// Request — запрос во внешний сервис.
type Request struct {
	// Service — имя сервиса из providers.yaml.
	Service string

	// WorkflowID и NodeID — узел, от имени которого идёт вызов.
	WorkflowID uuid.UUID
	NodeID     uuid.UUID

	// DocumentID — документ процесса (trembita: <documentId>).
	DocumentID string

	// Body — данные запроса.
	Body map[string]any

	// Signature — подпись (trembita: <fileP7s>).
	Signature []byte

	// Files — документы для подписи (signer).
	Files []uuid.UUID
}

// Response — разобранный ответ внешнего сервиса.
type Response struct {
	// Success — ответ признан успешным.
	Success bool

	// ExternalID — идентификатор запроса во внешней системе
	// (externalIdToSave). Пусто, если сервис его не вернул.
	ExternalID string

	// Data — тело ответа (JSON объект), если разобралось.
	Data map[string]any

	// Raw — сырое тело ответа.
	Raw []byte

	// StatusCode — HTTP код (0 для очереди).
	StatusCode int

	// DocumentID — документ, сохранённый из ответа.
	DocumentID *uuid.UUID
}

// Outputs — результат для NodeRecord.Outputs.
func (r *Response) Outputs() map[string]any {
	out := map[string]any{"success": r.Success}
	if r.ExternalID != "" {
		out["externalId"] = r.ExternalID
	}
	if r.Data != nil {
		out["data"] = r.Data
	} else if len(r.Raw) > 0 {
		out["raw"] = string(r.Raw)
	}
	if r.DocumentID != nil {
		out["documentId"] = r.DocumentID.String()
	}
	return out
}

// Provider — вызов внешнего сервиса.
type Provider interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// StatusChecker — сервис, чьи запросы завершаются асинхронно.
// Используется poller'ом.
type StatusChecker interface {
	CheckStatus(ctx context.Context, status *domain.ExternalServiceStatus) (domain.ExternalState, map[string]any, error)
}

// DocumentStore — сохранение файла из ответа (repo.DocumentRepo).
type DocumentStore interface {
	SaveDocument(ctx context.Context, d *domain.Document) error
}

// FileStore — чтение файла и запись подписи (repo.DocumentRepo).
type FileStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	AttachSignature(ctx context.Context, id uuid.UUID, signature []byte) error
}

// Publisher — публикация запросов standard-rmq (mq.Publisher).
// Ответ сервис отправляет в очередь replyTo.
type Publisher interface {
	PublishRequest(ctx context.Context, queue string, msg any, replyTo, correlationID string) (string, error)
}

// parseObject разбирает тело как JSON объект. Не объект — nil.
func parseObject(body []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return m
}
