package worker

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
	"github.com/shaiso/Processa/internal/provider"
)

type fakeGraphs map[uuid.UUID]*engine.ProcessGraph

func (g fakeGraphs) FindByID(id uuid.UUID) (*engine.ProcessGraph, bool) {
	graph, ok := g[id]
	return graph, ok
}

type fakeInstances struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*domain.WorkflowInstance
	flagged map[uuid.UUID]bool
}

func newFakeInstances(items ...*domain.WorkflowInstance) *fakeInstances {
	f := &fakeInstances{
		items:   make(map[uuid.UUID]*domain.WorkflowInstance),
		flagged: make(map[uuid.UUID]bool),
	}
	for _, w := range items {
		f.items[w.ID] = w
	}
	return f
}

func (f *fakeInstances) GetByID(_ context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("instance: %w", domain.ErrNodeNotFound)
	}
	cp := *w
	cp.Payload = maps.Clone(w.Payload)
	return &cp, nil
}

func (f *fakeInstances) MergePayload(_ context.Context, id uuid.UUID, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.items[id]
	if w.Payload == nil {
		w.Payload = make(map[string]any)
	}
	maps.Copy(w.Payload, patch)
	return nil
}

func (f *fakeInstances) FlagErrors(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagged[id] = true
	return nil
}

func (f *fakeInstances) payload(id uuid.UUID) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.items[id].Payload)
}

type fakeNodes struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.NodeRecord
}

func newFakeNodes() *fakeNodes {
	return &fakeNodes{items: make(map[uuid.UUID]domain.NodeRecord)}
}

func (f *fakeNodes) Create(_ context.Context, n *domain.NodeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[n.ID] = *n
	return nil
}

func (f *fakeNodes) Update(_ context.Context, n *domain.NodeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[n.ID]; !ok {
		return fmt.Errorf("node: %w", domain.ErrNodeNotFound)
	}
	f.items[n.ID] = *n
	return nil
}

func (f *fakeNodes) all() []domain.NodeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.NodeRecord, 0, len(f.items))
	for _, n := range f.items {
		out = append(out, n)
	}
	return out
}

type fakeStatuses struct {
	mu    sync.Mutex
	items []*domain.ExternalServiceStatus
}

func (f *fakeStatuses) Create(_ context.Context, s *domain.ExternalServiceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, s)
	return nil
}

type fakeErrorLog struct {
	mu      sync.Mutex
	entries []*domain.ErrorLogEntry
}

func (f *fakeErrorLog) Create(_ context.Context, e *domain.ErrorLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeErrorLog) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeChecker struct{}

func (fakeChecker) CheckStatus(context.Context, *domain.ExternalServiceStatus) (domain.ExternalState, map[string]any, error) {
	return domain.ExternalReceived, nil, nil
}

type fakeProviders struct {
	mu        sync.Mutex
	requests  []*provider.Request
	responses map[string]*provider.Response
	errs      map[string]error
	async     map[string]bool
}

func newFakeProviders() *fakeProviders {
	return &fakeProviders{
		responses: make(map[string]*provider.Response),
		errs:      make(map[string]error),
		async:     make(map[string]bool),
	}
}

func (f *fakeProviders) Send(_ context.Context, req *provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Service]; err != nil {
		return nil, err
	}
	if resp, ok := f.responses[req.Service]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %s", provider.ErrUnknownService, req.Service)
}

func (f *fakeProviders) StatusChecker(service string) (provider.StatusChecker, bool) {
	if f.async[service] {
		return fakeChecker{}, true
	}
	return nil, false
}

type published struct {
	Queue string
	Msg   any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, queue string, msg any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, published{Queue: queue, Msg: msg})
	return uuid.NewString(), nil
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}
