package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Processa/internal/cache"
)

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
}

func TestConsumer_AckAndDedup(t *testing.T) {
	ctx := context.Background()
	ack := &fakeAck{}
	dedup := cache.NewMemoryDedup(time.Minute)

	var calls int32
	c := NewConsumer(ConsumerConfig{
		Queue: "tasks",
		Dedup: dedup,
		Handler: func(context.Context, *Delivery) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	body := `{"taskTemplateId":"task-1","amqpMessageId":"m-1"}`

	c.HandleDelivery(ctx, delivery(ack, 1, body))
	c.HandleDelivery(ctx, delivery(ack, 2, body))

	// повторная доставка подтверждена без вызова обработчика
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []uint64{1, 2}, ack.acks)
	assert.Empty(t, ack.nacks)

	seen, err := dedup.Seen(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestConsumer_FailureGoesToNextTier(t *testing.T) {
	ctx := context.Background()
	ack := &fakeAck{}
	repub := &fakeRepublisher{}
	dedup := cache.NewMemoryDedup(time.Minute)

	c := NewConsumer(ConsumerConfig{
		Queue:       "tasks",
		Dedup:       dedup,
		Ladder:      NewRetryLadder(),
		Republisher: repub,
		Handler: func(context.Context, *Delivery) error {
			return errors.New("db down")
		},
	})

	c.HandleDelivery(ctx, delivery(ack, 7, `{"amqpMessageId":"m-1","retryIterator":1}`))

	require.Len(t, repub.sent, 1)
	assert.Equal(t, "tasks-errors-1h", repub.sent[0].Queue)
	assert.Equal(t, "m-1", repub.sent[0].Msg.MessageId)

	var v map[string]any
	require.NoError(t, json.Unmarshal(repub.sent[0].Msg.Body, &v))
	assert.Equal(t, float64(2), v["retryIterator"])

	// оригинал подтверждён, id не отмечен как обработанный
	assert.Equal(t, []uint64{7}, ack.acks)
	seen, _ := dedup.Seen(ctx, "m-1")
	assert.False(t, seen)
}

func TestConsumer_LadderExhausted(t *testing.T) {
	ack := &fakeAck{}
	repub := &fakeRepublisher{}
	dead := &fakeDeadLetters{}

	c := NewConsumer(ConsumerConfig{
		Queue:       "manager",
		Ladder:      NewRetryLadder(),
		Republisher: repub,
		DeadLetters: dead,
		Handler: func(context.Context, *Delivery) error {
			return errors.New("still failing")
		},
	})

	c.HandleDelivery(context.Background(), delivery(ack, 3, `{"amqpMessageId":"m-9","retryIterator":5}`))

	assert.Empty(t, repub.sent)
	require.Len(t, dead.records, 1)
	assert.Equal(t, "m-9", dead.records[0].MessageID)
	assert.Equal(t, 5, dead.records[0].RetryIterator)
	assert.Equal(t, "still failing", dead.records[0].Error)
	assert.Equal(t, []uint64{3}, ack.acks)
}

func TestConsumer_RepublishFailureRequeues(t *testing.T) {
	ack := &fakeAck{}

	c := NewConsumer(ConsumerConfig{
		Queue:       "tasks",
		Ladder:      NewRetryLadder(),
		Republisher: &fakeRepublisher{err: errors.New("broker down")},
		Handler: func(context.Context, *Delivery) error {
			return errors.New("fail")
		},
	})

	c.HandleDelivery(context.Background(), delivery(ack, 4, `{"amqpMessageId":"m-1"}`))

	assert.Empty(t, ack.acks)
	assert.Equal(t, []uint64{4}, ack.nacks)
	assert.Equal(t, []bool{true}, ack.requeue)
}

func TestConsumer_NoLadderRequeues(t *testing.T) {
	ack := &fakeAck{}

	c := NewConsumer(ConsumerConfig{
		Queue: "tasks",
		Handler: func(context.Context, *Delivery) error {
			return errors.New("fail")
		},
	})

	c.HandleDelivery(context.Background(), delivery(ack, 1, `{"amqpMessageId":"m-1"}`))

	assert.Equal(t, []uint64{1}, ack.nacks)
	assert.Equal(t, []bool{true}, ack.requeue)
}

func TestConsumer_UnparsableBody(t *testing.T) {
	ack := &fakeAck{}
	dead := &fakeDeadLetters{}

	var called bool
	c := NewConsumer(ConsumerConfig{
		Queue:       "tasks",
		DeadLetters: dead,
		Handler: func(context.Context, *Delivery) error {
			called = true
			return nil
		},
	})

	c.HandleDelivery(context.Background(), delivery(ack, 1, `not json`))

	assert.False(t, called)
	require.Len(t, dead.records, 1)
	assert.Equal(t, "not json", string(dead.records[0].Body))
	assert.Equal(t, []uint64{1}, ack.acks)
}

func TestConsumer_MessageIDFromProperties(t *testing.T) {
	ack := &fakeAck{}

	var got string
	c := NewConsumer(ConsumerConfig{
		Queue: "tasks",
		Handler: func(_ context.Context, d *Delivery) error {
			got = d.MessageID
			return nil
		},
	})

	raw := delivery(ack, 1, `{"x":1}`)
	raw.MessageId = "prop-id"
	c.HandleDelivery(context.Background(), raw)

	assert.Equal(t, "prop-id", got)
}

func TestConsumer_BoundedConcurrency(t *testing.T) {
	const prefetch = 2
	const total = 6

	ack := &fakeAck{}
	source := &fakeSource{
		deliveries: make(chan amqp.Delivery, total),
		reconnect:  make(chan struct{}),
	}

	var inFlight, maxInFlight, done int32
	release := make(chan struct{})

	c := NewConsumer(ConsumerConfig{
		Queue:    "tasks",
		Prefetch: prefetch,
		Source:   source,
		Handler: func(context.Context, *Delivery) error {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&inFlight, -1)
			atomic.AddInt32(&done, 1)
			return nil
		},
	})

	for i := 1; i <= total; i++ {
		source.deliveries <- delivery(ack, uint64(i), `{"amqpMessageId":"m"}`)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	// пока обработчики заблокированы, в работе не больше prefetch
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inFlight) == prefetch }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(prefetch), atomic.LoadInt32(&inFlight))

	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&done) == total }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(prefetch))
	acks, nacks := ack.counts()
	assert.Equal(t, total, acks)
	assert.Zero(t, nacks)
}

func TestConsumer_ResubscribesAfterChannelClose(t *testing.T) {
	ack := &fakeAck{}

	// первый поток закрыт брокером (канал закрыт, соединение живо)
	closed := make(chan amqp.Delivery)
	close(closed)
	live := make(chan amqp.Delivery, 1)
	live <- delivery(ack, 1, `{"amqpMessageId":"after-reopen"}`)
	source := &channelSource{streams: []chan amqp.Delivery{closed, live}}

	var handled int32
	c := NewConsumer(ConsumerConfig{
		Queue:            "tasks",
		Source:           source,
		ResubscribeDelay: 10 * time.Millisecond,
		Handler: func(context.Context, *Delivery) error {
			atomic.AddInt32(&handled, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, 2, source.consumeCalls())
	acks, _ := ack.counts()
	assert.Equal(t, 1, acks)
}

func TestDecode(t *testing.T) {
	d := &Delivery{Queue: "q", Body: []byte(`{"workflowId":"00000000-0000-0000-0000-000000000001"}`)}

	v, err := Decode[map[string]string](d)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", v["workflowId"])

	_, err = Decode[map[string]string](&Delivery{Queue: "q", Body: []byte(`[`)})
	assert.Error(t, err)
}
