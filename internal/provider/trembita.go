package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

// trembitaEnvelope — SOAP конверт X-Road с телом <BPMN>.
const trembitaEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:xrd="http://x-road.eu/xsd/xroad.xsd" xmlns:id="http://x-road.eu/xsd/identifiers">
  <SOAP-ENV:Header>
    <xrd:client id:objectType="SUBSYSTEM">
      <id:xRoadInstance>{{ xml .Client.Instance }}</id:xRoadInstance>
      <id:memberClass>{{ xml .Client.MemberClass }}</id:memberClass>
      <id:memberCode>{{ xml .Client.MemberCode }}</id:memberCode>
      <id:subsystemCode>{{ xml .Client.SubsystemCode }}</id:subsystemCode>
    </xrd:client>
    <xrd:service id:objectType="SERVICE">
      <id:xRoadInstance>{{ xml .Service.Instance }}</id:xRoadInstance>
      <id:memberClass>{{ xml .Service.MemberClass }}</id:memberClass>
      <id:memberCode>{{ xml .Service.MemberCode }}</id:memberCode>
      <id:subsystemCode>{{ xml .Service.SubsystemCode }}</id:subsystemCode>
      <id:serviceCode>{{ xml .Service.ServiceCode }}</id:serviceCode>
      <id:serviceVersion>{{ xml .Service.ServiceVersion }}</id:serviceVersion>
    </xrd:service>
    <xrd:userId>{{ xml .UserID }}</xrd:userId>
    <xrd:id>{{ .MessageID }}</xrd:id>
    <xrd:protocolVersion>4.0</xrd:protocolVersion>
  </SOAP-ENV:Header>
  <SOAP-ENV:Body>
    <BPMN>
      <workflowId>{{ .WorkflowID }}</workflowId>
      <documentId>{{ xml .DocumentID }}</documentId>
      <data>{{ .Data }}</data>
      <fileP7s>{{ .FileP7s }}</fileP7s>
    </BPMN>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

// trembitaEnvelopeData — подстановки конверта.
type trembitaEnvelopeData struct {
	Client     config.XRoadClient
	Service    config.XRoadService
	UserID     string
	MessageID  string
	WorkflowID string
	DocumentID string
	Data       string // base64 JSON запроса
	FileP7s    string // base64 подписи
}

// Ответ Trembita не всегда корректный XML, поэтому
// разбирается по тексту.
var (
	errorTag = regexp.MustCompile(`(?is)<(?:[\w-]+:)?error(?:\s[^>]*)?/?>(.*?)(?:</(?:[\w-]+:)?error>|$)`)
	dataTag  = regexp.MustCompile(`(?is)<(?:[\w-]+:)?data(?:\s[^>]*)?>(.*?)</(?:[\w-]+:)?data>`)
	idTag    = regexp.MustCompile(`(?is)<(?:[\w-]+:)?id>\s*([^<]*?)\s*</(?:[\w-]+:)?id>`)
	bodyTag  = regexp.MustCompile(`(?i)<(?:[\w-]+:)?body[\s>]`)
)

// TrembitaResult — итог текстовой проверки ответа.
type TrembitaResult struct {
	Success bool

	// ExternalIDToSave — содержимое <id>.
	ExternalIDToSave string

	// Data — содержимое <data>.
	Data string
}

// ClassifyTrembita проверяет ответ по тексту.
//
// Порядок: <error> — неуспех независимо от остального; затем коды
// ошибок сервиса (faults); иначе успех требует <data> или <id>.
// Заголовок SOAP (там есть xrd:id) в проверку не входит.
func ClassifyTrembita(raw string, faults map[string]string) (TrembitaResult, error) {
	body := raw
	if loc := bodyTag.FindStringIndex(raw); loc != nil {
		body = raw[loc[0]:]
	}

	// 1. <error>
	if m := errorTag.FindStringSubmatch(body); m != nil {
		return TrembitaResult{}, fmt.Errorf("%w: trembita error: %s", domain.ErrProviderFault, strings.TrimSpace(m[1]))
	}

	// 2. Коды ошибок сервиса
	codes := make([]string, 0, len(faults))
	for code := range faults {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if code != "" && strings.Contains(body, code) {
			return TrembitaResult{}, fmt.Errorf("%w: trembita fault %s: %s", domain.ErrProviderFault, code, faults[code])
		}
	}

	// 3. <data> или <id>
	var res TrembitaResult
	if m := dataTag.FindStringSubmatch(body); m != nil {
		res.Data = strings.TrimSpace(m[1])
		res.Success = true
	}
	if m := idTag.FindStringSubmatch(body); m != nil {
		res.ExternalIDToSave = m[1]
		res.Success = true
	}
	if !res.Success {
		return res, fmt.Errorf("%w: trembita response has no <data> or <id>", domain.ErrNetworkResponse)
	}
	return res, nil
}

// Trembita — провайдер X-Road (SOAP).
type Trembita struct {
	base
	decorators *Decorators
}

// NewTrembita создаёт провайдер Trembita.
func NewTrembita(cfg config.ServiceConfig, client *http.Client, decorators *Decorators, logger *slog.Logger) (*Trembita, error) {
	if cfg.URL == "" || cfg.Trembita == nil {
		return nil, fmt.Errorf("%w: service %s: url and trembita routing are required", ErrMisconfigured, cfg.Name)
	}
	if decorators == nil {
		decorators = NewDecorators()
	}
	return &Trembita{
		base:       newBase(cfg, client, logger),
		decorators: decorators,
	}, nil
}

// Envelope строит SOAP конверт запроса.
func (p *Trembita) Envelope(req *Request) (string, error) {
	payload, err := json.Marshal(orEmpty(req.Body))
	if err != nil {
		return "", fmt.Errorf("%w: marshal data: %v", domain.ErrNetworkRequest, err)
	}

	tr := p.cfg.Trembita
	data := trembitaEnvelopeData{
		Client:     tr.Client,
		Service:    tr.Service,
		UserID:     tr.UserID,
		MessageID:  uuid.NewString(),
		WorkflowID: req.WorkflowID.String(),
		DocumentID: req.DocumentID,
		Data:       base64.StdEncoding.EncodeToString(payload),
	}
	if len(req.Signature) > 0 {
		data.FileP7s = base64.StdEncoding.EncodeToString(req.Signature)
	}

	return engine.Render(trembitaEnvelope, data)
}

// Send отправляет конверт и проверяет ответ.
func (p *Trembita) Send(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	envelope, err := p.Envelope(req)
	if err != nil {
		return nil, err
	}

	var resp *Response
	err = withRetry(ctx, p.cfg.RetryDelays, p.logger, func(ctx context.Context) error {
		res, err := p.do(ctx, httpCall{
			URL:         p.cfg.URL,
			Body:        []byte(envelope),
			ContentType: "text/xml; charset=utf-8",
			Headers:     map[string]string{"SOAPAction": `""`},
		})
		if err != nil {
			return err
		}

		result, err := ClassifyTrembita(string(res.Body), p.cfg.Trembita.Faults)
		if err != nil {
			return err
		}

		resp = &Response{
			Success:    true,
			ExternalID: result.ExternalIDToSave,
			Raw:        res.Body,
			StatusCode: res.StatusCode,
			Data:       map[string]any{"data": result.Data},
		}
		return p.decorators.Apply(p.cfg.Decorator, resp)
	})
	observe(TypeTrembita, start, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
