package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/mq"
)

// Deps — зависимости, из которых собираются провайдеры.
// Нужны не все: например, без Publisher нельзя создать
// standard-rmq сервис с транспортом через очередь.
type Deps struct {
	HTTPClient *http.Client

	// standard-rmq
	Publisher    Publisher
	Correlator   *mq.Correlator
	RequestQueue string
	ReplyQueue   string

	// Документы (standard: файл из ответа; signer: подпись)
	Documents DocumentStore
	Files     FileStore

	Decorators *Decorators
	Logger     *slog.Logger
}

// Registry — провайдеры по имени сервиса.
type Registry struct {
	providers map[string]Provider
	types     map[string]string
}

// NewRegistry создаёт провайдер для каждого сервиса.
func NewRegistry(services []config.ServiceConfig, deps Deps) (*Registry, error) {
	if deps.Decorators == nil {
		deps.Decorators = NewDecorators()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := &Registry{
		providers: make(map[string]Provider, len(services)),
		types:     make(map[string]string, len(services)),
	}
	for _, svc := range services {
		p, err := build(svc, deps)
		if err != nil {
			return nil, err
		}
		r.Register(svc.Name, svc.ProviderType, p)
	}
	return r, nil
}

// build создаёт провайдер по providerType.
func build(svc config.ServiceConfig, deps Deps) (Provider, error) {
	if svc.Decorator != "" && !deps.Decorators.Has(svc.Decorator) {
		return nil, fmt.Errorf("service %s: %w: %s", svc.Name, ErrUnknownDecorator, svc.Decorator)
	}

	switch svc.ProviderType {
	case TypeStandard:
		return NewStandard(svc, deps.HTTPClient, deps.Documents, deps.Decorators, deps.Logger)
	case TypeStandardRMQ:
		return NewStandardRMQ(svc, deps.Publisher, deps.Correlator, deps.RequestQueue, deps.ReplyQueue, deps.HTTPClient, deps.Decorators, deps.Logger)
	case TypeTrembita:
		return NewTrembita(svc, deps.HTTPClient, deps.Decorators, deps.Logger)
	case TypeSigner:
		return NewSigner(svc, deps.Files, deps.HTTPClient, deps.Logger)
	default:
		return nil, fmt.Errorf("service %s: %w: %q", svc.Name, ErrUnknownProviderType, svc.ProviderType)
	}
}

// Register добавляет провайдер (в том числе собственные реализации).
func (r *Registry) Register(service, providerType string, p Provider) {
	r.providers[service] = p
	r.types[service] = providerType
}

// Get возвращает провайдер сервиса.
func (r *Registry) Get(service string) (Provider, error) {
	p, ok := r.providers[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return p, nil
}

// Send отправляет запрос в сервис req.Service.
func (r *Registry) Send(ctx context.Context, req *Request) (*Response, error) {
	p, err := r.Get(req.Service)
	if err != nil {
		return nil, err
	}
	return p.Send(ctx, req)
}

// StatusChecker возвращает проверку статуса, если сервис её поддерживает.
func (r *Registry) StatusChecker(service string) (StatusChecker, bool) {
	p, ok := r.providers[service]
	if !ok {
		return nil, false
	}
	if s, ok := p.(*Standard); ok && s.cfg.StatusURL == "" {
		return nil, false
	}
	sc, ok := p.(StatusChecker)
	return sc, ok
}

// Type возвращает providerType сервиса.
func (r *Registry) Type(service string) string {
	return r.types[service]
}

// Services возвращает имена сервисов по алфавиту.
func (r *Registry) Services() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
