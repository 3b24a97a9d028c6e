package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
	"github.com/shaiso/Processa/internal/mq"
	"github.com/shaiso/Processa/internal/provider"
)

const workerXML = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"
                  xmlns:processa="http://processa.dev/schema/bpmn" id="defs">
  <bpmn:process id="loan">
    <bpmn:startEvent id="StartEvent_1"/>
    <bpmn:serviceTask id="task-1" processa:service="crm" processa:input="person" processa:output="crm"/>
    <bpmn:userTask id="task-2"/>
    <bpmn:serviceTask id="task-3" processa:service="registry"/>
    <bpmn:serviceTask id="task-4" processa:service="signer" processa:files="attachments"/>

    <bpmn:exclusiveGateway id="gateway-1" default="f-default"/>
    <bpmn:sequenceFlow id="f-adult" sourceRef="gateway-1" targetRef="task-2">
      <bpmn:conditionExpression>person.status == 'adult'</bpmn:conditionExpression>
    </bpmn:sequenceFlow>
    <bpmn:sequenceFlow id="f-vip" sourceRef="gateway-1" targetRef="task-3">
      <bpmn:conditionExpression>${person.vip}</bpmn:conditionExpression>
    </bpmn:sequenceFlow>
    <bpmn:sequenceFlow id="f-default" sourceRef="gateway-1" targetRef="task-1"/>

    <bpmn:inclusiveGateway id="gateway-2"/>
    <bpmn:sequenceFlow id="g2-a" sourceRef="gateway-2" targetRef="task-1">
      <bpmn:conditionExpression>person.status == 'adult'</bpmn:conditionExpression>
    </bpmn:sequenceFlow>
    <bpmn:sequenceFlow id="g2-b" sourceRef="gateway-2" targetRef="task-2">
      <bpmn:conditionExpression>person.vip</bpmn:conditionExpression>
    </bpmn:sequenceFlow>
    <bpmn:sequenceFlow id="g2-c" sourceRef="gateway-2" targetRef="task-3">
      <bpmn:conditionExpression>person.blocked</bpmn:conditionExpression>
    </bpmn:sequenceFlow>

    <bpmn:parallelGateway id="gateway-3"/>
    <bpmn:sequenceFlow id="p-1" sourceRef="gateway-3" targetRef="task-1"/>
    <bpmn:sequenceFlow id="p-2" sourceRef="gateway-3" targetRef="task-2">
      <bpmn:conditionExpression>person.blocked</bpmn:conditionExpression>
    </bpmn:sequenceFlow>

    <bpmn:exclusiveGateway id="gateway-4"/>
    <bpmn:sequenceFlow id="bad" sourceRef="gateway-4" targetRef="task-1">
      <bpmn:conditionExpression>person.[</bpmn:conditionExpression>
    </bpmn:sequenceFlow>

    <bpmn:intermediateCatchEvent id="event-1" processa:delay="20ms"/>
    <bpmn:intermediateCatchEvent id="event-2" processa:delay="forever"/>
    <bpmn:intermediateThrowEvent id="event-3"/>
  </bpmn:process>
</bpmn:definitions>`

var testQueues = config.Queues{
	Manager: "manager",
	Task:    "task",
	Gateway: "gateway",
	Event:   "event",
	Replies: "replies",
}

type harness struct {
	worker    *Worker
	graph     *engine.ProcessGraph
	tpl       uuid.UUID
	inst      *domain.WorkflowInstance
	instances *fakeInstances
	nodes     *fakeNodes
	statuses  *fakeStatuses
	errorLog  *fakeErrorLog
	providers *fakeProviders
	publisher *fakePublisher
}

func newHarness(t *testing.T, role string, payload map[string]any) *harness {
	t.Helper()

	graph, err := engine.ParseBPMN([]byte(workerXML))
	require.NoError(t, err)

	h := &harness{
		graph: graph,
		tpl:   uuid.New(),
		inst: &domain.WorkflowInstance{
			ID:      uuid.New(),
			UserID:  "u-1",
			Payload: payload,
		},
		nodes:     newFakeNodes(),
		statuses:  &fakeStatuses{},
		errorLog:  &fakeErrorLog{},
		providers: newFakeProviders(),
		publisher: &fakePublisher{},
	}
	h.inst.TemplateID = h.tpl
	h.instances = newFakeInstances(h.inst)

	h.worker, err = New(Config{
		Role:      role,
		Graphs:    fakeGraphs{h.tpl: graph},
		Instances: h.instances,
		Nodes:     h.nodes,
		Statuses:  h.statuses,
		ErrorLog:  h.errorLog,
		Providers: h.providers,
		Publisher: h.publisher,
		Queues:    testQueues,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return h
}

func (h *harness) item(mutate func(*domain.WorkItem)) *mq.Delivery {
	item := domain.WorkItem{
		WorkflowID:         h.inst.ID,
		WorkflowTemplateID: h.tpl,
		UserID:             "u-1",
		AMQPMessageID:      uuid.NewString(),
	}
	mutate(&item)
	body, _ := json.Marshal(item)
	return &mq.Delivery{Queue: "task", Body: body, MessageID: item.AMQPMessageID}
}

func (h *harness) onlyRecord(t *testing.T) domain.NodeRecord {
	t.Helper()
	records := h.nodes.all()
	require.Len(t, records, 1)
	return records[0]
}

func adultPayload() map[string]any {
	return map[string]any{
		"person":     map[string]any{"name": "Ivan", "status": "adult", "vip": true},
		"documentId": "doc-7",
	}
}

// --- Task role ---

func TestHandleMessage_TaskCallsService(t *testing.T) {
	h := newHarness(t, config.RoleTask, adultPayload())
	h.providers.responses["crm"] = &provider.Response{
		Success:    true,
		ExternalID: "c-1",
		Data:       map[string]any{"id": "c-1"},
	}

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-1"
	}))
	require.NoError(t, err)

	// Запрос к сервису
	require.Len(t, h.providers.requests, 1)
	req := h.providers.requests[0]
	assert.Equal(t, "crm", req.Service)
	assert.Equal(t, h.inst.ID, req.WorkflowID)
	assert.Equal(t, "doc-7", req.DocumentID)
	assert.Equal(t, map[string]any{"name": "Ivan", "status": "adult", "vip": true}, req.Body)

	// Запись узла
	rec := h.onlyRecord(t)
	assert.Equal(t, domain.NodeStatusCompleted, rec.Status)
	assert.Equal(t, "task-1", rec.TemplateNodeID)
	assert.Equal(t, req.NodeID, rec.ID)
	assert.Equal(t, "c-1", rec.Outputs["externalId"])

	// Результат в payload процесса
	assert.Contains(t, h.instances.payload(h.inst.ID), "crm")

	// Уведомление manager
	msgs := h.publisher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "manager", msgs[0].Queue)
	notice := msgs[0].Msg.(domain.CompletionNotice)
	require.NotNil(t, notice.TaskID)
	assert.Equal(t, rec.ID, *notice.TaskID)
	assert.Equal(t, "u-1", notice.UserID)
}

func TestHandleMessage_UserTaskCompletesImmediately(t *testing.T) {
	h := newHarness(t, config.RoleTask, adultPayload())

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-2"
	}))
	require.NoError(t, err)

	assert.Empty(t, h.providers.requests)
	assert.Equal(t, domain.NodeStatusCompleted, h.onlyRecord(t).Status)
	assert.Len(t, h.publisher.messages(), 1)
}

func TestHandleMessage_AsyncTaskWaits(t *testing.T) {
	h := newHarness(t, config.RoleTask, adultPayload())
	h.providers.responses["registry"] = &provider.Response{Success: true, ExternalID: "ext-9"}
	h.providers.async["registry"] = true

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-3"
	}))
	require.NoError(t, err)

	rec := h.onlyRecord(t)
	assert.Equal(t, domain.NodeStatusWaiting, rec.Status)

	require.Len(t, h.statuses.items, 1)
	st := h.statuses.items[0]
	assert.Equal(t, domain.ExternalPending, st.State)
	assert.Equal(t, "ext-9", st.ExternalID)
	assert.Equal(t, rec.ID, st.NodeID)
	assert.Equal(t, h.inst.ID, st.WorkflowID)

	assert.Empty(t, h.publisher.messages(), "poller notifies manager later")
}

func TestHandleMessage_SignerFiles(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	payload := adultPayload()
	payload["attachments"] = []any{a.String(), b.String()}

	h := newHarness(t, config.RoleTask, payload)
	h.providers.responses["signer"] = &provider.Response{Success: true}

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-4"
	}))
	require.NoError(t, err)

	require.Len(t, h.providers.requests, 1)
	assert.Equal(t, []uuid.UUID{a, b}, h.providers.requests[0].Files)
}

func TestHandleMessage_ProviderFaultIsAcked(t *testing.T) {
	h := newHarness(t, config.RoleTask, adultPayload())
	h.providers.errs["crm"] = errors.Join(domain.ErrProviderFault, errors.New("person is blocked"))

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-1"
	}))
	require.NoError(t, err, "business fault is not retried")

	rec := h.onlyRecord(t)
	assert.Equal(t, domain.NodeStatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "person is blocked")

	assert.Equal(t, 1, h.errorLog.len())
	assert.True(t, h.instances.flagged[h.inst.ID])
	assert.Empty(t, h.publisher.messages())
}

func TestHandleMessage_NetworkErrorIsRetried(t *testing.T) {
	h := newHarness(t, config.RoleTask, adultPayload())
	h.providers.errs["crm"] = domain.ErrNetworkRequest

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-1"
	}))
	assert.ErrorIs(t, err, domain.ErrNetworkRequest)
	assert.Equal(t, 1, h.errorLog.len())
	assert.Empty(t, h.publisher.messages())
}

func TestHandleMessage_PublishFailureIsRetried(t *testing.T) {
	h := newHarness(t, config.RoleTask, adultPayload())
	h.publisher.err = errors.Join(domain.ErrTransport, errors.New("channel closed"))

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-2"
	}))
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestHandleMessage_WrongQueue(t *testing.T) {
	h := newHarness(t, config.RoleGateway, adultPayload())

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-1"
	}))
	require.NoError(t, err)

	assert.Empty(t, h.nodes.all())
	assert.Equal(t, 1, h.errorLog.len())
}

func TestHandleMessage_UnknownNode(t *testing.T) {
	h := newHarness(t, config.RoleTask, adultPayload())

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-404"
	}))
	require.NoError(t, err)

	assert.Empty(t, h.nodes.all())
	assert.Equal(t, 1, h.errorLog.len())
}

func TestHandleMessage_InvalidBody(t *testing.T) {
	h := newHarness(t, config.RoleTask, nil)

	err := h.worker.HandleMessage(context.Background(), &mq.Delivery{Body: []byte(`{"taskTemplateId":`)})
	require.NoError(t, err)
	assert.Zero(t, h.errorLog.len())
}

func TestHandleMessage_FinalWorkflowSkipped(t *testing.T) {
	h := newHarness(t, config.RoleTask, adultPayload())
	h.inst.IsFinal = true

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.TaskTemplateID = "task-1"
	}))
	require.NoError(t, err)

	assert.Empty(t, h.nodes.all())
	assert.Empty(t, h.providers.requests)
	assert.Empty(t, h.publisher.messages())
}

// --- Gateway role ---

func TestHandleMessage_GatewayRecordsSequences(t *testing.T) {
	h := newHarness(t, config.RoleGateway, adultPayload())

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.GatewayTemplateID = "gateway-1"
		w.GatewayType = domain.GatewayExclusive
		w.Outgoing = []string{"f-adult", "f-vip", "f-default"}
	}))
	require.NoError(t, err)

	rec := h.onlyRecord(t)
	assert.Equal(t, domain.NodeKindGateway, rec.Kind)
	assert.Equal(t, []string{"f-adult"}, rec.ResultSequences)

	msgs := h.publisher.messages()
	require.Len(t, msgs, 1)
	notice := msgs[0].Msg.(domain.CompletionNotice)
	require.NotNil(t, notice.GatewayID)
	assert.Equal(t, rec.ID, *notice.GatewayID)
}

func TestGatewayExecutor(t *testing.T) {
	graph, err := engine.ParseBPMN([]byte(workerXML))
	require.NoError(t, err)

	tests := []struct {
		name    string
		gateway string
		person  map[string]any
		want    []string
		wantErr error
	}{
		{
			name:    "exclusive takes first true",
			gateway: "gateway-1",
			person:  map[string]any{"status": "adult", "vip": true},
			want:    []string{"f-adult"},
		},
		{
			name:    "exclusive with wrapped condition",
			gateway: "gateway-1",
			person:  map[string]any{"status": "minor", "vip": true},
			want:    []string{"f-vip"},
		},
		{
			name:    "exclusive falls back to default",
			gateway: "gateway-1",
			person:  map[string]any{"status": "minor"},
			want:    []string{"f-default"},
		},
		{
			name:    "inclusive takes all true",
			gateway: "gateway-2",
			person:  map[string]any{"status": "adult", "vip": true},
			want:    []string{"g2-a", "g2-b"},
		},
		{
			name:    "inclusive without match and default",
			gateway: "gateway-2",
			person:  map[string]any{"status": "minor"},
			wantErr: ErrNoBranch,
		},
		{
			name:    "parallel ignores conditions",
			gateway: "gateway-3",
			person:  map[string]any{},
			want:    []string{"p-1", "p-2"},
		},
		{
			name:    "bad condition",
			gateway: "gateway-4",
			person:  map[string]any{},
			wantErr: ErrBadCondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, ok := graph.Node(tt.gateway)
			require.True(t, ok)

			out, err := (&GatewayExecutor{}).Execute(context.Background(), &Job{
				Item:     &domain.WorkItem{GatewayTemplateID: tt.gateway},
				Instance: &domain.WorkflowInstance{Payload: map[string]any{"person": tt.person}},
				Graph:    graph,
				Node:     node,
				Record:   &domain.NodeRecord{ID: uuid.New()},
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, domain.IsRetriable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.ResultSequences)
		})
	}
}

// --- Event role ---

func TestEventExecutor(t *testing.T) {
	graph, err := engine.ParseBPMN([]byte(workerXML))
	require.NoError(t, err)

	job := func(id string) *Job {
		node, ok := graph.Node(id)
		require.True(t, ok)
		return &Job{Node: node, Graph: graph}
	}

	t.Run("plain event", func(t *testing.T) {
		out, err := (&EventExecutor{}).Execute(context.Background(), job("event-3"))
		require.NoError(t, err)
		assert.Equal(t, "intermediateThrowEvent", out.Outputs["eventType"])
	})

	t.Run("timer delay", func(t *testing.T) {
		start := time.Now()
		out, err := (&EventExecutor{}).Execute(context.Background(), job("event-1"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		assert.Equal(t, "20ms", out.Outputs["delayed"])
	})

	t.Run("bad delay", func(t *testing.T) {
		_, err := (&EventExecutor{}).Execute(context.Background(), job("event-2"))
		assert.ErrorIs(t, err, ErrBadAttribute)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := (&EventExecutor{}).Execute(ctx, job("event-1"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHandleMessage_Event(t *testing.T) {
	h := newHarness(t, config.RoleEvent, nil)

	err := h.worker.HandleMessage(context.Background(), h.item(func(w *domain.WorkItem) {
		w.EventTemplateID = "event-3"
	}))
	require.NoError(t, err)

	msgs := h.publisher.messages()
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].Msg.(domain.CompletionNotice).EventID)
}

// --- Construction ---

func TestNew(t *testing.T) {
	_, err := New(Config{Role: "router", Queues: testQueues})
	assert.ErrorIs(t, err, ErrUnknownRole)

	w, err := New(Config{Role: config.RoleGateway, Queues: testQueues})
	require.NoError(t, err)
	assert.Equal(t, domain.NodeKindGateway, w.Role())

	// без источника доставок consumer не запустить
	assert.Error(t, w.Start(context.Background()))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Get(domain.NodeKind("subprocess"))
	assert.ErrorIs(t, err, ErrNoExecutor)

	e, err := r.Get(domain.NodeKindTask)
	require.NoError(t, err)
	assert.IsType(t, &TaskExecutor{}, e)
}

func TestFileIDs(t *testing.T) {
	id := uuid.New()

	ids, err := fileIDs(id.String())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)

	ids, err = fileIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = fileIDs([]any{"not-a-uuid"})
	assert.Error(t, err)

	_, err = fileIDs(42.0)
	assert.Error(t, err)
}
