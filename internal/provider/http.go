package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/telemetry"
)

const (
	defaultTimeout = 30 * time.Second

	// logBodyLimit — сколько тела запроса/ответа попадает в лог.
	logBodyLimit = 2048
)

// base — общая часть провайдеров: определение сервиса, HTTP клиент, логгер.
type base struct {
	cfg    config.ServiceConfig
	client *http.Client
	logger *slog.Logger
}

func newBase(cfg config.ServiceConfig, client *http.Client, logger *slog.Logger) base {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return base{
		cfg:    cfg,
		client: client,
		logger: logger.With("service", cfg.Name, "provider", cfg.ProviderType),
	}
}

// httpCall — один HTTP запрос.
type httpCall struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string
	Headers     map[string]string
}

// httpResult — ответ HTTP.
type httpResult struct {
	StatusCode int
	Body       []byte
}

// do выполняет запрос с таймаутом сервиса.
//
// Ошибка до получения ответа — ErrNetworkRequest, истёкший таймаут —
// ErrTimeout, код >= 400 — ErrNetworkResponse (тело возвращается).
func (b *base) do(ctx context.Context, call httpCall) (*httpResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	method := call.Method
	if method == "" {
		method = http.MethodPost
	}

	// 1. Запрос
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, call.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrNetworkRequest, err)
	}
	if call.ContentType != "" {
		req.Header.Set("Content-Type", call.ContentType)
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}
	b.authorize(req)

	b.logger.Debug("provider request",
		"method", method,
		"url", call.URL,
		"headers", telemetry.RedactHeaders(req.Header),
		"body", telemetry.Redact(call.Body, logBodyLimit),
	)

	// 2. Отправка
	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s after %s", domain.ErrTimeout, method, call.URL, b.cfg.Timeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkRequest, err)
	}
	defer resp.Body.Close()

	// 3. Ответ
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: reading response", domain.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetworkResponse, err)
	}

	b.logger.Debug("provider response",
		"status", resp.StatusCode,
		"body", telemetry.Redact(respBody, logBodyLimit),
	)

	result := &httpResult{StatusCode: resp.StatusCode, Body: respBody}
	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("%w: HTTP %d: %s", domain.ErrNetworkResponse,
			resp.StatusCode, telemetry.Redact(respBody, 200))
	}
	return result, nil
}

// authorize проставляет заголовок авторизации сервиса.
func (b *base) authorize(req *http.Request) {
	switch b.cfg.Auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+b.cfg.Auth.Token)
	case "basic":
		req.SetBasicAuth(b.cfg.Auth.Username, b.cfg.Auth.Password)
	}
}

// observe пишет метрики вызова.
func observe(providerType string, start time.Time, err error) {
	telemetry.ProviderLatency.WithLabelValues(providerType).Observe(time.Since(start).Seconds())
	telemetry.ProviderCalls.WithLabelValues(providerType, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrProviderFault):
		return "fault"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrNetworkRequest):
		return "request_error"
	default:
		return "response_error"
	}
}
