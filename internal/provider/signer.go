package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

const defaultInterFileDelay = time.Second

// Signer подписывает уже загруженные файлы по одному.
//
// Между файлами выдерживается InterFileDelay (ограничение внешнего
// сервиса подписи). Подпись (p7s) записывается в документ.
//
// Запрос к сервису: {"name", "contentType", "content"(base64)},
// ответ: {"signature"(base64)} или {"fileP7s"(base64)}.
type Signer struct {
	base
	files   FileStore
	limiter *rate.Limiter
}

// NewSigner создаёт провайдер подписи.
func NewSigner(cfg config.ServiceConfig, files FileStore, client *http.Client, logger *slog.Logger) (*Signer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: service %s: url is required", ErrMisconfigured, cfg.Name)
	}
	if files == nil {
		return nil, fmt.Errorf("%w: service %s: file store is required", ErrMisconfigured, cfg.Name)
	}

	delay := defaultInterFileDelay
	if cfg.Signer != nil && cfg.Signer.InterFileDelay > 0 {
		delay = cfg.Signer.InterFileDelay
	}

	return &Signer{
		base:    newBase(cfg, client, logger),
		files:   files,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}, nil
}

// Send подписывает req.Files. Ошибка останавливает пакет:
// уже подписанные файлы остаются подписанными.
func (p *Signer) Send(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	signed := make([]string, 0, len(req.Files))
	var err error
	for _, id := range req.Files {
		// Пауза между файлами
		if err = p.limiter.Wait(ctx); err != nil {
			break
		}
		if err = p.signOne(ctx, id); err != nil {
			err = fmt.Errorf("sign document %s: %w", id, err)
			break
		}
		signed = append(signed, id.String())
	}
	observe(TypeSigner, start, err)
	if err != nil {
		return nil, err
	}

	p.logger.Info("documents signed", "count", len(signed), "workflow_id", req.WorkflowID)
	return &Response{
		Success: true,
		Data:    map[string]any{"signed": signed},
	}, nil
}

// signOne подписывает один документ.
func (p *Signer) signOne(ctx context.Context, id uuid.UUID) error {
	doc, err := p.files.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if len(doc.Content) == 0 {
		return fmt.Errorf("%w: document %s has no content", ErrMisconfigured, id)
	}

	body, err := json.Marshal(map[string]string{
		"name":        doc.Name,
		"contentType": doc.ContentType,
		"content":     base64.StdEncoding.EncodeToString(doc.Content),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal sign request: %v", domain.ErrNetworkRequest, err)
	}

	var signature []byte
	err = withRetry(ctx, p.cfg.RetryDelays, p.logger, func(ctx context.Context) error {
		res, err := p.do(ctx, httpCall{URL: p.cfg.URL, Body: body, ContentType: "application/json"})
		if err != nil {
			return err
		}

		data := parseObject(res.Body)
		encoded := engine.Stringify(data["signature"])
		if encoded == "" {
			encoded = engine.Stringify(data["fileP7s"])
		}
		if encoded == "" {
			return fmt.Errorf("%w: signer response has no signature", domain.ErrNetworkResponse)
		}

		signature, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("%w: signature is not base64: %v", domain.ErrNetworkResponse, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return p.files.AttachSignature(ctx, id, signature)
}
