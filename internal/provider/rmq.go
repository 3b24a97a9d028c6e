package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/mq"
	"github.com/shaiso/Processa/internal/telemetry"
)

// RMQEnvelope — конверт запроса и ответа standard-rmq сервиса.
//
//	{"event": "...", "meta": {"date": "..."}, "payload": {"uuid": "...", "request": {...}}}
//
// Ответ приходит в том же конверте; корреляция по payload.uuid.
type RMQEnvelope struct {
	Event   string     `json:"event"`
	Meta    RMQMeta    `json:"meta"`
	Payload RMQPayload `json:"payload"`
}

// RMQMeta — метаданные конверта.
type RMQMeta struct {
	Date time.Time `json:"date"`

	// ReplyTo — очередь ответов процесса, отправившего запрос.
	// Дублирует свойство reply_to сообщения.
	ReplyTo string `json:"replyTo,omitempty"`
}

// RMQPayload — тело конверта.
type RMQPayload struct {
	UUID     string          `json:"uuid"`
	Request  any             `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// StandardRMQ — провайдер «запрос в очередь, ждём ответ».
//
// Send регистрирует слот в Correlator, публикует конверт в очередь
// запросов с reply_to = очередь ответов этого процесса и блокируется
// до ответа или таймаута. С decoratorUrl
// конверт отправляется POST'ом в HTTP-декоратор, и его ответ
// разбирается так же, как ответ из очереди.
type StandardRMQ struct {
	base
	publisher  Publisher
	correlator *mq.Correlator
	queue      string
	replyQueue string
	decorators *Decorators
}

// NewStandardRMQ создаёт standard-rmq провайдер. defaultQueue — очередь
// запросов, если в определении сервиса её нет; replyQueue — очередь
// ответов этого процесса.
func NewStandardRMQ(cfg config.ServiceConfig, publisher Publisher, correlator *mq.Correlator, defaultQueue, replyQueue string, client *http.Client, decorators *Decorators, logger *slog.Logger) (*StandardRMQ, error) {
	if cfg.Event == "" {
		return nil, fmt.Errorf("%w: service %s: event is required", ErrMisconfigured, cfg.Name)
	}
	if cfg.DecoratorURL == "" && (publisher == nil || correlator == nil || replyQueue == "") {
		return nil, fmt.Errorf("%w: service %s: queue transport is not available", ErrMisconfigured, cfg.Name)
	}

	queue := cfg.Queue
	if queue == "" {
		queue = defaultQueue
	}
	if decorators == nil {
		decorators = NewDecorators()
	}

	return &StandardRMQ{
		base:       newBase(cfg, client, logger),
		publisher:  publisher,
		correlator: correlator,
		queue:      queue,
		replyQueue: replyQueue,
		decorators: decorators,
	}, nil
}

// Send отправляет запрос и ждёт ответ.
func (p *StandardRMQ) Send(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	var resp *Response
	err := withRetry(ctx, p.cfg.RetryDelays, p.logger, func(ctx context.Context) error {
		env := RMQEnvelope{
			Event: p.cfg.Event,
			Meta:  RMQMeta{Date: time.Now().UTC()},
			Payload: RMQPayload{
				UUID:    uuid.NewString(),
				Request: orEmpty(req.Body),
			},
		}

		var raw json.RawMessage
		var err error
		if p.cfg.DecoratorURL != "" {
			raw, err = p.viaDecorator(ctx, env)
		} else {
			raw, err = p.viaQueue(ctx, env)
		}
		if err != nil {
			return err
		}

		resp, err = p.interpret(raw)
		return err
	})
	observe(TypeStandardRMQ, start, err)
	return resp, err
}

// viaQueue публикует конверт и ждёт коррелированный ответ.
func (p *StandardRMQ) viaQueue(ctx context.Context, env RMQEnvelope) (json.RawMessage, error) {
	id := env.Payload.UUID

	// Слот до публикации: быстрый ответ не потеряется
	p.correlator.Register(id)

	env.Meta.ReplyTo = p.replyQueue
	if _, err := p.publisher.PublishRequest(ctx, p.queue, env, p.replyQueue, id); err != nil {
		p.correlator.Cancel(id)
		return nil, fmt.Errorf("%w: publish request: %v", domain.ErrNetworkRequest, err)
	}

	p.logger.Debug("rmq request published",
		"queue", p.queue,
		"uuid", id,
		"event", env.Event,
	)

	return p.correlator.Wait(ctx, id, p.cfg.Timeout)
}

// viaDecorator отправляет конверт в HTTP-декоратор.
func (p *StandardRMQ) viaDecorator(ctx context.Context, env RMQEnvelope) (json.RawMessage, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal envelope: %v", domain.ErrNetworkRequest, err)
	}

	res, err := p.do(ctx, httpCall{
		URL:         p.cfg.DecoratorURL,
		Body:        body,
		ContentType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	// Декоратор отвечает конвертом или сразу телом ответа
	var reply RMQEnvelope
	if err := json.Unmarshal(res.Body, &reply); err == nil && len(reply.Payload.Response) > 0 {
		return reply.Payload.Response, nil
	}
	return res.Body, nil
}

// interpret разбирает тело ответа сервиса.
func (p *StandardRMQ) interpret(raw json.RawMessage) (*Response, error) {
	resp := &Response{Raw: raw, Data: parseObject(raw)}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: response is not a JSON object", domain.ErrNetworkResponse)
	}

	if msg := errorText(resp.Data); msg != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderFault, msg)
	}

	id, err := extractID(p.cfg.IDExpression, resp.Data)
	if err != nil {
		return nil, err
	}
	resp.ExternalID = id
	resp.Success = true

	if err := p.decorators.Apply(p.cfg.Decorator, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// errorText возвращает текст поля error ответа, если оно есть.
func errorText(data map[string]any) string {
	switch e := data["error"].(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
		b, _ := json.Marshal(e)
		return string(b)
	}
	return ""
}

// ResponseHandler — обработчик очереди ответов standard-rmq сервисов:
// доставляет ответ ожидающему Send по payload.uuid, а если его нет,
// по свойству correlation_id сообщения.
//
// Ответы без ожидающего (опоздавшие после таймаута) подтверждаются
// и только логируются.
func ResponseHandler(correlator *mq.Correlator, logger *slog.Logger) mq.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(_ context.Context, d *mq.Delivery) error {
		var env RMQEnvelope
		if err := json.Unmarshal(d.Body, &env); err != nil {
			env = RMQEnvelope{}
		}
		if env.Payload.UUID == "" {
			env.Payload.UUID = d.Raw.CorrelationId
		}
		if env.Payload.UUID == "" {
			logger.Warn("malformed rmq response, dropping",
				"body", telemetry.Redact(d.Body, logBodyLimit),
			)
			return nil
		}

		response := env.Payload.Response
		if len(response) == 0 {
			response = json.RawMessage(d.Body)
		}

		if !correlator.Resolve(env.Payload.UUID, response) {
			logger.Warn("rmq response without pending request",
				"uuid", env.Payload.UUID,
				"event", env.Event,
			)
		}
		return nil
	}
}
