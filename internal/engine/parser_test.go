package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bpmnPrefixed = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"
                  xmlns:processa="http://processa.dev/schema/bpmn"
                  id="Definitions_1">
  <bpmn:process id="Process_1" isExecutable="true">
    <bpmn:startEvent id="StartEvent_1">
      <bpmn:outgoing>f0</bpmn:outgoing>
    </bpmn:startEvent>
    <bpmn:userTask id="task-1" name="Fill form" processa:providerType="standard" processa:service="registry"/>
    <bpmn:exclusiveGateway id="gateway-1" default="f3"/>
    <bpmn:serviceTask id="task-2"/>
    <bpmn:endEvent id="endEvent_1"/>
    <bpmn:sequenceFlow id="f0" sourceRef="StartEvent_1" targetRef="task-1"/>
    <bpmn:sequenceFlow id="f1" sourceRef="task-1" targetRef="gateway-1"/>
    <bpmn:sequenceFlow id="f2" sourceRef="gateway-1" targetRef="task-2">
      <bpmn:conditionExpression>payload.approved == ` + "`true`" + `</bpmn:conditionExpression>
    </bpmn:sequenceFlow>
    <bpmn:sequenceFlow id="f3" sourceRef="gateway-1" targetRef="endEvent_1"/>
    <bpmn:sequenceFlow id="f4" sourceRef="task-2" targetRef="endEvent_1"/>
  </bpmn:process>
</bpmn:definitions>`

const bpmn2Prefixed = `<bpmn2:definitions xmlns:bpmn2="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <bpmn2:process id="P">
    <bpmn2:startEvent id="StartEvent_1"/>
    <bpmn2:parallelGateway id="gateway-1"/>
    <bpmn2:task id="task-1"/>
    <bpmn2:task id="task-2"/>
    <bpmn2:parallelGateway id="gateway-1-end"/>
    <bpmn2:endEvent id="endEvent_9"/>
    <bpmn2:sequenceFlow id="s0" sourceRef="StartEvent_1" targetRef="gateway-1"/>
    <bpmn2:sequenceFlow id="a" sourceRef="gateway-1" targetRef="task-1"/>
    <bpmn2:sequenceFlow id="b" sourceRef="gateway-1" targetRef="task-2"/>
    <bpmn2:sequenceFlow id="a2" sourceRef="task-1" targetRef="gateway-1-end"/>
    <bpmn2:sequenceFlow id="b2" sourceRef="task-2" targetRef="gateway-1-end"/>
    <bpmn2:sequenceFlow id="j" sourceRef="gateway-1-end" targetRef="endEvent_9"/>
  </bpmn2:process>
</bpmn2:definitions>`

func TestParseBPMN_BpmnPrefix(t *testing.T) {
	g, err := ParseBPMN([]byte(bpmnPrefixed))
	require.NoError(t, err)

	assert.Equal(t, "Process_1", g.ProcessID)
	assert.Len(t, g.Tasks, 2)
	assert.Len(t, g.ExclusiveGateways, 1)
	assert.Len(t, g.Events, 2)
	assert.Len(t, g.SequenceFlows, 5)
	assert.Equal(t, 5, g.Size())

	task := g.Tasks["task-1"]
	require.NotNil(t, task)
	assert.Equal(t, "userTask", task.Type)
	assert.Equal(t, "standard", task.Attr("providerType", ""))
	assert.Equal(t, "registry", task.Attr("service", ""))
	assert.Equal(t, []string{"f0"}, task.Incoming)
	assert.Equal(t, []string{"f1"}, task.Outgoing)

	gw, kind, ok := g.Gateway("gateway-1")
	require.True(t, ok)
	assert.Equal(t, domain.GatewayExclusive, kind)
	assert.Equal(t, "f3", gw.Default)
	assert.Equal(t, []string{"f2", "f3"}, gw.Outgoing)

	f2, ok := g.Flow("f2")
	require.True(t, ok)
	assert.Equal(t, "payload.approved == `true`", f2.Condition)

	assert.Empty(t, g.Validate())
}

func TestParseBPMN_Bpmn2PrefixParallel(t *testing.T) {
	g, err := ParseBPMN([]byte(bpmn2Prefixed))
	require.NoError(t, err)

	assert.Len(t, g.ParallelGateways, 2)
	join, ok := g.ParallelJoin("gateway-1-end")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a2", "b2"}, join.Incoming)
	assert.Equal(t, []string{"j"}, join.Outgoing)

	out := g.OutgoingFrom("gateway-1")
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)

	starts := g.StartEvents()
	require.Len(t, starts, 1)
	assert.Equal(t, "StartEvent_1", starts[0].ID)
}

func TestParseBPMN_DefaultNamespace(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="P"><task id="task-1"/></process>
</definitions>`

	g, err := ParseBPMN([]byte(xml))
	require.NoError(t, err)
	assert.Contains(t, g.Tasks, "task-1")
}

func TestParseBPMN_Errors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want error
	}{
		{
			name: "malformed",
			xml:  `<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"><bpmn:process`,
			want: ErrMalformedXML,
		},
		{
			name: "no process",
			xml:  `<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"></bpmn:definitions>`,
			want: ErrNoProcess,
		},
		{
			name: "foreign namespace root",
			xml:  `<definitions xmlns="urn:other"><process id="P"/></definitions>`,
			want: ErrMalformedXML,
		},
		{
			name: "duplicate id",
			xml: `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="P"><task id="task-1"/><task id="task-1"/></process></definitions>`,
			want: ErrDuplicateElementID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBPMN([]byte(tt.xml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.ErrorIs(t, err, domain.ErrInvalidSchema)
		})
	}
}

func TestProcessGraph_ValidateDangling(t *testing.T) {
	xml := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="P">
    <startEvent id="StartEvent_1"/>
    <sequenceFlow id="f1" sourceRef="StartEvent_1" targetRef="nowhere"/>
  </process>
</definitions>`

	g, err := ParseBPMN([]byte(xml))
	require.NoError(t, err)

	warnings := g.Validate()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "nowhere")
}
