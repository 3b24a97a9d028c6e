package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalServiceStatus_AdvanceForward(t *testing.T) {
	s := NewExternalServiceStatus(uuid.New(), uuid.New(), "trembita-registry", "ext-1")
	require.Equal(t, ExternalPending, s.State)

	changed, err := s.Advance(ExternalReceived, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Advance(ExternalFulfilled, map[string]any{"id": "42"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "42", s.Details["id"])
}

func TestExternalServiceStatus_NeverRegresses(t *testing.T) {
	s := NewExternalServiceStatus(uuid.New(), uuid.New(), "svc", "")
	_, _ = s.Advance(ExternalReceived, nil)

	_, err := s.Advance(ExternalPending, nil)
	assert.ErrorIs(t, err, ErrStatusRegression)
	assert.Equal(t, ExternalReceived, s.State)

	_, _ = s.Advance(ExternalRejected, nil)
	_, err = s.Advance(ExternalFulfilled, nil)
	assert.ErrorIs(t, err, ErrStatusRegression, "terminal state is final")
}

func TestExternalServiceStatus_SameStateIsNoop(t *testing.T) {
	s := NewExternalServiceStatus(uuid.New(), uuid.New(), "svc", "")
	changed, err := s.Advance(ExternalPending, nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestWorkflowInstance_HasEdge(t *testing.T) {
	inst := &WorkflowInstance{
		History: []HistoryMessage{
			{Direction: DirectionIn, MatchedEdges: []SequenceFlow{{ID: "f1"}}},
			{Direction: DirectionOut, MatchedEdges: []SequenceFlow{{ID: "f2"}, {ID: "f3"}}},
		},
	}

	assert.True(t, inst.HasEdge("f1"))
	assert.True(t, inst.HasEdge("f3"))
	assert.False(t, inst.HasEdge("f4"))
}

func TestParseCompletionNotice(t *testing.T) {
	id := uuid.New()

	n, err := ParseCompletionNotice([]byte(fmt.Sprintf(`{"gatewayId":%q}`, id)))
	require.NoError(t, err)
	kind, got, err := n.Node()
	require.NoError(t, err)
	assert.Equal(t, NodeKindGateway, kind)
	assert.Equal(t, id, got)

	_, err = ParseCompletionNotice([]byte(`{"userId":"u1"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = ParseCompletionNotice([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestIsRetriable(t *testing.T) {
	assert.False(t, IsRetriable(fmt.Errorf("lookup: %w", ErrNodeNotFound)))
	assert.False(t, IsRetriable(ErrInvalidMessage))
	assert.True(t, IsRetriable(fmt.Errorf("append: %w", errors.New("connection reset"))))
	assert.True(t, IsRetriable(ErrTimeout))
	assert.False(t, IsRetriable(nil))
}
