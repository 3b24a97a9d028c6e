package schema

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Processa/internal/domain"
)

const validXML = `<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <bpmn:process id="P">
    <bpmn:startEvent id="StartEvent_1"/>
    <bpmn:task id="task-1"/>
    <bpmn:sequenceFlow id="f0" sourceRef="StartEvent_1" targetRef="task-1"/>
  </bpmn:process>
</bpmn:definitions>`

type fakeSource struct {
	mu        sync.Mutex
	templates []domain.WorkflowTemplate
	err       error
	calls     int
}

func (s *fakeSource) ListActive(context.Context) ([]domain.WorkflowTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.templates, s.err
}

func (s *fakeSource) set(templates []domain.WorkflowTemplate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates, s.err = templates, err
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestCache_ReloadExcludesBrokenTemplates(t *testing.T) {
	good := uuid.New()
	broken := uuid.New()
	noProcess := uuid.New()

	src := &fakeSource{templates: []domain.WorkflowTemplate{
		{ID: good, Name: "good", XML: validXML, IsActive: true},
		{ID: broken, Name: "broken", XML: "<bpmn:definitions", IsActive: true},
		{ID: noProcess, Name: "empty", XML: `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL"/>`, IsActive: true},
	}}
	c := New(Config{Source: src})

	stats, err := c.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Loaded)
	assert.Equal(t, 2, stats.Failed)

	g, ok := c.FindByID(good)
	require.True(t, ok)
	assert.Contains(t, g.Tasks, "task-1")

	_, ok = c.FindByID(broken)
	assert.False(t, ok)
	_, ok = c.FindByID(noProcess)
	assert.False(t, ok)
}

func TestCache_ListErrorKeepsPreviousTable(t *testing.T) {
	id := uuid.New()
	src := &fakeSource{templates: []domain.WorkflowTemplate{{ID: id, XML: validXML}}}
	c := New(Config{Source: src})

	_, err := c.Reload(context.Background())
	require.NoError(t, err)

	src.set(nil, errors.New("db down"))
	_, err = c.Reload(context.Background())
	require.Error(t, err)

	_, ok := c.FindByID(id)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ReloadSwapsWholeTable(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	src := &fakeSource{templates: []domain.WorkflowTemplate{{ID: a, XML: validXML}}}
	c := New(Config{Source: src})

	_, err := c.Reload(context.Background())
	require.NoError(t, err)

	// шаблон a деактивирован, добавлен b
	src.set([]domain.WorkflowTemplate{{ID: b, XML: validXML}}, nil)
	_, err = c.Reload(context.Background())
	require.NoError(t, err)

	_, ok := c.FindByID(a)
	assert.False(t, ok)
	_, ok = c.FindByID(b)
	assert.True(t, ok)
}

func TestCache_FindBeforeReload(t *testing.T) {
	c := New(Config{Source: &fakeSource{}})
	_, ok := c.FindByID(uuid.New())
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_StartReloadsPeriodically(t *testing.T) {
	src := &fakeSource{templates: []domain.WorkflowTemplate{{ID: uuid.New(), XML: validXML}}}
	c := New(Config{Source: src})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, time.Second))
	defer c.Stop()

	assert.Equal(t, 1, c.Len())
	require.Eventually(t, func() bool { return src.callCount() >= 2 }, 3*time.Second, 50*time.Millisecond)
}

func TestCache_StartFailsWithoutTemplates(t *testing.T) {
	c := New(Config{Source: &fakeSource{err: errors.New("db down")}})
	assert.Error(t, c.Start(context.Background(), time.Minute))
}

func TestCache_ConcurrentReadsDuringReload(t *testing.T) {
	id := uuid.New()
	src := &fakeSource{templates: []domain.WorkflowTemplate{{ID: id, XML: validXML}}}
	c := New(Config{Source: src})
	_, err := c.Reload(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, ok := c.FindByID(id)
				assert.True(t, ok)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		_, err := c.Reload(context.Background())
		require.NoError(t, err)
	}
	wg.Wait()
}
