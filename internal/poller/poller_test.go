package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/provider"
	"github.com/shaiso/Processa/internal/repo"
)

// --- fakes ---

type fakeStatuses struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*domain.ExternalServiceStatus
	conflict bool
}

func newFakeStatuses(items ...*domain.ExternalServiceStatus) *fakeStatuses {
	f := &fakeStatuses{items: make(map[uuid.UUID]*domain.ExternalServiceStatus)}
	for _, s := range items {
		f.items[s.ID] = s
	}
	return f
}

func (f *fakeStatuses) ListOpen(_ context.Context, limit int) ([]domain.ExternalServiceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExternalServiceStatus
	for _, s := range f.items {
		if !s.State.IsTerminal() && len(out) < limit {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStatuses) UpdateState(_ context.Context, s *domain.ExternalServiceStatus, from domain.ExternalState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.items[s.ID]
	if f.conflict || cur.State != from {
		return fmt.Errorf("%w: moved", repo.ErrInvalidState)
	}
	cp := *s
	f.items[s.ID] = &cp
	return nil
}

func (f *fakeStatuses) state(id uuid.UUID) domain.ExternalState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].State
}

type scriptedChecker struct {
	state   domain.ExternalState
	details map[string]any
	err     error
}

func (c scriptedChecker) CheckStatus(context.Context, *domain.ExternalServiceStatus) (domain.ExternalState, map[string]any, error) {
	return c.state, c.details, c.err
}

type fakeCheckers map[string]provider.StatusChecker

func (f fakeCheckers) StatusChecker(service string) (provider.StatusChecker, bool) {
	c, ok := f[service]
	return c, ok
}

type fakeNodes struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*domain.NodeRecord
	updateErr error
}

func (f *fakeNodes) GetByID(_ context.Context, id uuid.UUID) (*domain.NodeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNodes) Update(_ context.Context, n *domain.NodeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	cp := *n
	f.items[n.ID] = &cp
	return nil
}

func (f *fakeNodes) get(id uuid.UUID) domain.NodeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []domain.CompletionNotice
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, queue string, msg any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if queue != "manager" {
		return "", errors.New("unexpected queue " + queue)
	}
	if f.err != nil {
		return "", f.err
	}
	notice := msg.(domain.CompletionNotice)
	f.sent = append(f.sent, notice)
	return notice.AMQPMessageID, nil
}

func (f *fakePublisher) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// --- setup ---

type fixture struct {
	poller    *Poller
	statuses  *fakeStatuses
	nodes     *fakeNodes
	publisher *fakePublisher
	status    *domain.ExternalServiceStatus
	node      *domain.NodeRecord
}

func newFixture(t *testing.T, checkers fakeCheckers) *fixture {
	t.Helper()

	node := &domain.NodeRecord{
		ID:             uuid.New(),
		WorkflowID:     uuid.New(),
		Kind:           domain.NodeKindTask,
		TemplateNodeID: "task-3",
		Status:         domain.NodeStatusWaiting,
		Outputs:        map[string]any{"externalId": "ext-1"},
	}
	status := domain.NewExternalServiceStatus(node.WorkflowID, node.ID, "registry", "ext-1")

	f := &fixture{
		statuses:  newFakeStatuses(status),
		nodes:     &fakeNodes{items: map[uuid.UUID]*domain.NodeRecord{node.ID: node}},
		publisher: &fakePublisher{},
		status:    status,
		node:      node,
	}
	f.poller = New(Config{
		Statuses:     f.statuses,
		Checkers:     checkers,
		Nodes:        f.nodes,
		Publisher:    f.publisher,
		ManagerQueue: "manager",
		Interval:     time.Second,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

// --- tests ---

func TestPoll_FulfilledCompletesNode(t *testing.T) {
	f := newFixture(t, fakeCheckers{
		"registry": scriptedChecker{state: domain.ExternalFulfilled, details: map[string]any{"result": "granted"}},
	})

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Advanced: 1, Notified: 1}, stats)

	assert.Equal(t, domain.ExternalFulfilled, f.statuses.state(f.status.ID))

	node := f.nodes.get(f.node.ID)
	assert.Equal(t, domain.NodeStatusCompleted, node.Status)
	assert.Equal(t, "Fulfilled", node.Outputs["externalState"])
	assert.Equal(t, "ext-1", node.Outputs["externalId"])

	require.Equal(t, 1, f.publisher.len())
	require.NotNil(t, f.publisher.sent[0].TaskID)
	assert.Equal(t, f.node.ID, *f.publisher.sent[0].TaskID)

	// Терминальный статус больше не опрашивается
	stats, err = f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Checked)
	assert.Equal(t, 1, f.publisher.len())
}

func TestPoll_RejectedAlsoNotifies(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{state: domain.ExternalRejected}})

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Notified)
	assert.Equal(t, "Rejected", f.nodes.get(f.node.ID).Outputs["externalState"])
}

func TestPoll_ReceivedOnlyAdvances(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{state: domain.ExternalReceived}})

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Advanced: 1}, stats)

	assert.Equal(t, domain.ExternalReceived, f.statuses.state(f.status.ID))
	assert.Equal(t, domain.NodeStatusWaiting, f.nodes.get(f.node.ID).Status)
	assert.Zero(t, f.publisher.len())
}

func TestPoll_SameStateIsNoop(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{state: domain.ExternalPending}})

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1}, stats)
}

func TestPoll_RegressionRefused(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{state: domain.ExternalPending}})
	f.status.State = domain.ExternalReceived

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, domain.ExternalReceived, f.statuses.state(f.status.ID))
}

func TestPoll_ConcurrentTransitionSharesMessageID(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{state: domain.ExternalFulfilled}})
	f.statuses.conflict = true

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1}, stats)

	// Уведомление проигравшего совпадает по id с уведомлением победителя
	require.Equal(t, 1, f.publisher.len())
	won := *f.status
	won.State = domain.ExternalFulfilled
	assert.Equal(t, completionMessageID(&won), f.publisher.sent[0].AMQPMessageID)
}

func TestPoll_CompleteFailureKeepsStatusOpen(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{state: domain.ExternalFulfilled}})
	f.nodes.updateErr = errors.New("db down")

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Failed: 1}, stats)
	assert.Equal(t, domain.ExternalPending, f.statuses.state(f.status.ID))
	assert.Equal(t, domain.NodeStatusWaiting, f.nodes.get(f.node.ID).Status)
	assert.Zero(t, f.publisher.len())

	// Следующий проход завершает узел
	f.nodes.updateErr = nil
	stats, err = f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Advanced: 1, Notified: 1}, stats)
	assert.Equal(t, domain.ExternalFulfilled, f.statuses.state(f.status.ID))
	assert.Equal(t, domain.NodeStatusCompleted, f.nodes.get(f.node.ID).Status)
	assert.Equal(t, 1, f.publisher.len())
}

func TestPoll_PublishFailureRetriesWithSameMessageID(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{state: domain.ExternalRejected}})
	f.publisher.err = errors.New("channel closed")

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, domain.ExternalPending, f.statuses.state(f.status.ID))

	f.publisher.err = nil
	stats, err = f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Notified)
	require.Equal(t, 1, f.publisher.len())
	assert.NotEmpty(t, f.publisher.sent[0].AMQPMessageID)
}

func TestPoll_CheckErrorsAreCounted(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{err: domain.ErrTimeout}})

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, domain.ExternalPending, f.statuses.state(f.status.ID))
}

func TestPoll_ServiceWithoutChecker(t *testing.T) {
	f := newFixture(t, fakeCheckers{})

	stats, err := f.poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
}

func TestPoller_StartPollsPeriodically(t *testing.T) {
	f := newFixture(t, fakeCheckers{"registry": scriptedChecker{state: domain.ExternalFulfilled}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.poller.Start(ctx))
	defer f.poller.Stop()

	assert.Eventually(t, func() bool {
		return f.publisher.len() == 1
	}, 3*time.Second, 50*time.Millisecond)
}
