package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Processa/internal/domain"
)

func TestCorrelator_ResolveBeforeWait(t *testing.T) {
	c := NewCorrelator(time.Second)
	c.Register("r-1")

	assert.True(t, c.Resolve("r-1", json.RawMessage(`{"ok":true}`)))

	payload, err := c.Wait(context.Background(), "r-1", 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(payload))
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_ResolveWhileWaiting(t *testing.T) {
	c := NewCorrelator(time.Second)
	c.Register("r-1")

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Resolve("r-1", json.RawMessage(`"done"`))
	}()

	payload, err := c.Wait(context.Background(), "r-1", 0)
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(payload))
}

func TestCorrelator_Timeout(t *testing.T) {
	c := NewCorrelator(time.Second)
	c.Register("r-1")

	_, err := c.Wait(context.Background(), "r-1", 10*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 0, c.Pending())

	// опоздавший ответ отбрасывается
	assert.False(t, c.Resolve("r-1", json.RawMessage(`{}`)))
}

func TestCorrelator_ContextCancel(t *testing.T) {
	c := NewCorrelator(time.Second)
	c.Register("r-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Wait(ctx, "r-1", 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_UnknownID(t *testing.T) {
	c := NewCorrelator(time.Second)

	assert.False(t, c.Resolve("nope", nil))
	_, err := c.Wait(context.Background(), "nope", 0)
	assert.Error(t, err)
}

func TestCorrelator_SecondResolveIgnored(t *testing.T) {
	c := NewCorrelator(time.Second)
	c.Register("r-1")

	assert.True(t, c.Resolve("r-1", json.RawMessage(`1`)))
	assert.False(t, c.Resolve("r-1", json.RawMessage(`2`)))

	payload, err := c.Wait(context.Background(), "r-1", 0)
	require.NoError(t, err)
	assert.Equal(t, `1`, string(payload))
}

func TestCorrelator_Cancel(t *testing.T) {
	c := NewCorrelator(time.Second)
	c.Register("r-1")
	c.Cancel("r-1")

	assert.Equal(t, 0, c.Pending())
	assert.False(t, c.Resolve("r-1", nil))
}
