package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

// Standard — REST провайдер.
//
// Отправляет Request.Body POST'ом как JSON. Ответ успешен, если в нём есть
// id данных (idExpression, id, data.id или dataId) или success == true.
// Файл из ответа ({"file": {"name", "content", "contentType"}}, content
// в base64) сохраняется как документ процесса.
type Standard struct {
	base
	documents  DocumentStore
	decorators *Decorators
}

// NewStandard создаёт REST провайдер.
func NewStandard(cfg config.ServiceConfig, client *http.Client, documents DocumentStore, decorators *Decorators, logger *slog.Logger) (*Standard, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: service %s: url is required", ErrMisconfigured, cfg.Name)
	}
	if decorators == nil {
		decorators = NewDecorators()
	}
	return &Standard{
		base:       newBase(cfg, client, logger),
		documents:  documents,
		decorators: decorators,
	}, nil
}

// Send выполняет запрос с повторами по retryDelays.
func (p *Standard) Send(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	body, err := json.Marshal(orEmpty(req.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", domain.ErrNetworkRequest, err)
	}

	var resp *Response
	err = withRetry(ctx, p.cfg.RetryDelays, p.logger, func(ctx context.Context) error {
		res, err := p.do(ctx, httpCall{
			URL:         p.cfg.URL,
			Body:        body,
			ContentType: "application/json",
		})
		if err != nil {
			return err
		}

		resp, err = p.interpret(res)
		return err
	})
	observe(TypeStandard, start, err)
	if err != nil {
		return nil, err
	}

	// Файл из ответа
	if err := p.saveFile(ctx, req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// interpret разбирает ответ и решает, успешен ли он.
func (p *Standard) interpret(res *httpResult) (*Response, error) {
	resp := &Response{
		Raw:        res.Body,
		StatusCode: res.StatusCode,
		Data:       parseObject(res.Body),
	}

	id, err := extractID(p.cfg.IDExpression, resp.Data)
	if err != nil {
		return nil, err
	}
	resp.ExternalID = id

	switch {
	case p.cfg.SuccessExpression != "":
		ok, err := engine.EvalBool(p.cfg.SuccessExpression, resp.Data)
		if err != nil {
			return nil, err
		}
		resp.Success = ok
	default:
		resp.Success = id != "" || resp.Data["success"] == true
	}

	if !resp.Success {
		return nil, ErrNoDataID
	}

	if err := p.decorators.Apply(p.cfg.Decorator, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// extractID ищет id данных в ответе.
func extractID(expr string, data map[string]any) (string, error) {
	if data == nil {
		return "", nil
	}
	if expr != "" {
		return engine.EvalString(expr, data)
	}

	if id := engine.Stringify(data["id"]); id != "" {
		return id, nil
	}
	if inner, ok := data["data"].(map[string]any); ok {
		if id := engine.Stringify(inner["id"]); id != "" {
			return id, nil
		}
	}
	return engine.Stringify(data["dataId"]), nil
}

// saveFile сохраняет файл из ответа, если он есть.
func (p *Standard) saveFile(ctx context.Context, req *Request, resp *Response) error {
	file, ok := resp.Data["file"].(map[string]any)
	if !ok || p.documents == nil {
		return nil
	}

	encoded, _ := file["content"].(string)
	content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return fmt.Errorf("%w: file content is not base64: %v", domain.ErrNetworkResponse, err)
	}

	doc := &domain.Document{
		ID:          uuid.New(),
		WorkflowID:  req.WorkflowID,
		Name:        engine.Stringify(file["name"]),
		ContentType: engine.Stringify(file["contentType"]),
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save response file: %w", err)
	}

	// содержимое файла в outputs узла не нужно
	delete(resp.Data, "file")
	resp.DocumentID = &doc.ID

	p.logger.Info("response file saved", "document_id", doc.ID, "name", doc.Name)
	return nil
}

// CheckStatus запрашивает статус асинхронного запроса: GET statusUrl/{externalId}.
//
// Ответ: {"state": "Received" | "Fulfilled" | "Rejected", ...}.
func (p *Standard) CheckStatus(ctx context.Context, s *domain.ExternalServiceStatus) (domain.ExternalState, map[string]any, error) {
	if p.cfg.StatusURL == "" {
		return "", nil, ErrStatusUnsupported
	}

	start := time.Now()
	res, err := p.do(ctx, httpCall{
		Method: http.MethodGet,
		URL:    strings.TrimRight(p.cfg.StatusURL, "/") + "/" + s.ExternalID,
	})
	observe(TypeStandard, start, err)
	if err != nil {
		return "", nil, err
	}

	data := parseObject(res.Body)
	raw := engine.Stringify(data["state"])
	if raw == "" {
		raw = engine.Stringify(data["status"])
	}
	state, err := domain.ParseExternalState(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrNetworkResponse, err)
	}
	return state, data, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
