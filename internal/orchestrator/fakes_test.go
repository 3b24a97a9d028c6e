package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

type fakeGraphs map[uuid.UUID]*engine.ProcessGraph

func (g fakeGraphs) FindByID(id uuid.UUID) (*engine.ProcessGraph, bool) {
	graph, ok := g[id]
	return graph, ok
}

type fakeInstances struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.WorkflowInstance
}

func newFakeInstances() *fakeInstances {
	return &fakeInstances{items: make(map[uuid.UUID]*domain.WorkflowInstance)}
}

func (f *fakeInstances) Create(_ context.Context, w *domain.WorkflowInstance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *w
	f.items[w.ID] = &cp
	return nil
}

func (f *fakeInstances) GetByID(_ context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("instance: %w", domain.ErrNodeNotFound)
	}
	return snapshot(w), nil
}

func (f *fakeInstances) AppendHistory(_ context.Context, id uuid.UUID, msg domain.HistoryMessage) (*domain.WorkflowInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("instance: %w", domain.ErrNodeNotFound)
	}
	w.History = append(w.History, msg)
	return snapshot(w), nil
}

func (f *fakeInstances) AppendOutboundOnce(_ context.Context, id uuid.UUID, msg domain.HistoryMessage, claim string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.items[id]
	if !ok {
		return false, fmt.Errorf("instance: %w", domain.ErrNodeNotFound)
	}
	for _, h := range w.History {
		if h.Direction != domain.DirectionOut {
			continue
		}
		for _, e := range h.MatchedEdges {
			if e.ID == claim {
				return false, nil
			}
		}
	}
	w.History = append(w.History, msg)
	return true, nil
}

func (f *fakeInstances) MarkClaimPublished(_ context.Context, id uuid.UUID, claim string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.items[id]
	if !ok {
		return domain.ErrNodeNotFound
	}
	if !w.ClaimPublished(claim) {
		w.PublishedClaims = append(w.PublishedClaims, claim)
	}
	return nil
}

func (f *fakeInstances) MarkFinal(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id].IsFinal = true
	return nil
}

func (f *fakeInstances) FlagErrors(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.items[id]
	if !ok {
		return domain.ErrNodeNotFound
	}
	w.HasUnresolvedErrors = true
	return nil
}

func (f *fakeInstances) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *fakeInstances) get(id uuid.UUID) *domain.WorkflowInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return snapshot(f.items[id])
}

func snapshot(w *domain.WorkflowInstance) *domain.WorkflowInstance {
	cp := *w
	cp.History = append([]domain.HistoryMessage(nil), w.History...)
	cp.PublishedClaims = append([]string(nil), w.PublishedClaims...)
	return &cp
}

type fakeNodes struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.NodeRecord
}

func newFakeNodes() *fakeNodes {
	return &fakeNodes{items: make(map[uuid.UUID]*domain.NodeRecord)}
}

func (f *fakeNodes) Create(_ context.Context, n *domain.NodeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *n
	f.items[n.ID] = &cp
	return nil
}

func (f *fakeNodes) GetByID(_ context.Context, id uuid.UUID) (*domain.NodeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("node: %w", domain.ErrNodeNotFound)
	}
	cp := *n
	return &cp, nil
}

type fakeErrorLog struct {
	mu      sync.Mutex
	entries []domain.ErrorLogEntry
}

func (f *fakeErrorLog) Create(_ context.Context, e *domain.ErrorLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeErrorLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeNotifier struct {
	mu          sync.Mutex
	subscribers []string
	sent        []domain.Notification
}

func (f *fakeNotifier) Subscribers(context.Context, uuid.UUID) ([]string, error) {
	return f.subscribers, nil
}

func (f *fakeNotifier) Create(_ context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *n)
	return nil
}

type published struct {
	queue string
	id    string
	item  domain.WorkItem
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, queue string, msg any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	item, ok := msg.(domain.WorkItem)
	if !ok {
		return "", errors.New("unexpected message type")
	}
	id := item.AMQPMessageID
	if id == "" {
		id = uuid.NewString()
	}
	f.msgs = append(f.msgs, published{queue: queue, id: id, item: item})
	return id, nil
}

func (f *fakePublisher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePublisher) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}
