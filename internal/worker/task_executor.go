package worker

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
	"github.com/shaiso/Processa/internal/provider"
)

// Атрибуты расширений задачи (processa:service="crm" и т.п.).
const (
	// AttrService — имя сервиса из providers.yaml.
	AttrService = "service"

	// AttrInput — JMESPath над payload процесса: тело запроса.
	// По умолчанию отправляется весь payload.
	AttrInput = "input"

	// AttrOutput — ключ payload, под которым сохраняется результат.
	AttrOutput = "output"

	// AttrDocumentID, AttrFiles, AttrSignature — JMESPath над payload.
	AttrDocumentID = "documentId"
	AttrFiles      = "files"
	AttrSignature  = "signature"
)

// TaskExecutor выполняет задачу через провайдер внешнего сервиса.
//
// Задача без атрибута service (ручная, userTask) завершается сразу.
// Если сервис вернул id асинхронного запроса и умеет отдавать статус,
// задача переходит в ожидание: уведомление в manager отправит poller.
type TaskExecutor struct {
	Providers Providers
}

// Execute вызывает сервис задачи.
func (e *TaskExecutor) Execute(ctx context.Context, job *Job) (*Outcome, error) {
	service := job.Node.Attr(AttrService, "")
	if service == "" {
		return &Outcome{Outputs: map[string]any{}}, nil
	}
	if e.Providers == nil {
		return nil, fmt.Errorf("task %s: %w: %s", job.Node.ID, provider.ErrUnknownService, service)
	}

	// 1. Запрос из payload процесса
	req, err := buildRequest(job, service)
	if err != nil {
		return nil, err
	}

	// 2. Вызов сервиса (повторы по retryDelays внутри провайдера)
	resp, err := e.Providers.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("task %s: service %s: %w", job.Node.ID, service, err)
	}

	// 3. Результат
	outputs := resp.Outputs()
	out := &Outcome{Outputs: outputs}
	if key := job.Node.Attr(AttrOutput, ""); key != "" {
		out.Patch = map[string]any{key: outputs}
	}

	// 4. Асинхронный запрос: ждём статус
	if resp.ExternalID != "" {
		if _, ok := e.Providers.StatusChecker(service); ok {
			out.Wait = newWait(job, service, resp.ExternalID)
		}
	}

	return out, nil
}

// newWait создаёт статус ожидания для узла задачи.
// Poller опрашивает его по externalID, пока сервис не ответит.
func newWait(job *Job, service, externalID string) *domain.ExternalServiceStatus {
	return domain.NewExternalServiceStatus(job.Instance.ID, job.Record.ID, service, externalID)
}

// buildRequest собирает запрос к сервису из атрибутов задачи.
func buildRequest(job *Job, service string) (*provider.Request, error) {
	payload := job.Instance.Payload

	req := &provider.Request{
		Service:    service,
		WorkflowID: job.Instance.ID,
		NodeID:     job.Record.ID,
		Body:       payload,
	}

	if expr := job.Node.Attr(AttrInput, ""); expr != "" {
		v, err := engine.Evaluate(expr, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: task %s input: %v", ErrBadAttribute, job.Node.ID, err)
		}
		body, ok := v.(map[string]any)
		if !ok && v != nil {
			return nil, fmt.Errorf("%w: task %s input must select an object, got %T", ErrBadAttribute, job.Node.ID, v)
		}
		req.Body = body
	}

	var err error
	req.DocumentID, err = engine.EvalString(job.Node.Attr(AttrDocumentID, "documentId"), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s documentId: %v", ErrBadAttribute, job.Node.ID, err)
	}

	files, err := engine.Evaluate(job.Node.Attr(AttrFiles, "files"), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s files: %v", ErrBadAttribute, job.Node.ID, err)
	}
	if req.Files, err = fileIDs(files); err != nil {
		return nil, fmt.Errorf("%w: task %s files: %v", ErrBadAttribute, job.Node.ID, err)
	}

	sig, err := engine.EvalString(job.Node.Attr(AttrSignature, "signature"), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s signature: %v", ErrBadAttribute, job.Node.ID, err)
	}
	if sig != "" {
		if req.Signature, err = base64.StdEncoding.DecodeString(sig); err != nil {
			return nil, fmt.Errorf("%w: task %s signature is not base64", ErrBadAttribute, job.Node.ID)
		}
	}

	return req, nil
}

// fileIDs приводит значение к списку id документов.
func fileIDs(v any) ([]uuid.UUID, error) {
	var raw []any
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []any{t}
	case []any:
		raw = t
	default:
		return nil, fmt.Errorf("expected id or list of ids, got %T", v)
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, item := range raw {
		id, err := uuid.Parse(engine.Stringify(item))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
