package mq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeAck записывает ack/nack доставок.
type fakeAck struct {
	mu      sync.Mutex
	acks    []uint64
	nacks   []uint64
	requeue []bool
}

func (a *fakeAck) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAck) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAck) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks), len(a.nacks)
}

// fakeSender записывает публикации и возвращает заданные ошибки по очереди.
type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	errs  []error
	calls int
}

type sentMessage struct {
	Queue string
	Msg   amqp.Publishing
}

func (s *fakeSender) Send(_ context.Context, queue string, msg amqp.Publishing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, sentMessage{Queue: queue, Msg: msg})
	return nil
}

// fakeRepublisher записывает повторные публикации.
type fakeRepublisher struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (r *fakeRepublisher) PublishRaw(_ context.Context, queue string, body []byte, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{Queue: queue, Msg: amqp.Publishing{Body: body, MessageId: id}})
	return nil
}

// fakeDeadLetters записывает dead letters.
type fakeDeadLetters struct {
	mu      sync.Mutex
	err     error
	records []DeadLetter
}

func (f *fakeDeadLetters) RecordDeadLetter(_ context.Context, dl DeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, dl)
	return nil
}

// fakeSource отдаёт заранее подготовленный канал доставок.
type fakeSource struct {
	deliveries chan amqp.Delivery
	reconnect  chan struct{}
}

func (s *fakeSource) Consume(context.Context, string, int) (<-chan amqp.Delivery, error) {
	return s.deliveries, nil
}

func (s *fakeSource) ReconnectNotify() <-chan struct{} {
	return s.reconnect
}

// channelSource отдаёт по одному потоку доставок на каждый Consume.
type channelSource struct {
	mu      sync.Mutex
	streams []chan amqp.Delivery
	calls   int
}

func (s *channelSource) Consume(context.Context, string, int) (<-chan amqp.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.streams) == 0 {
		return nil, ErrNotConnected
	}
	next := s.streams[0]
	s.streams = s.streams[1:]
	return next, nil
}

func (s *channelSource) ReconnectNotify() <-chan struct{} {
	return make(chan struct{})
}

func (s *channelSource) consumeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeDeclarer записывает объявленные очереди.
type fakeDeclarer struct {
	declared  []QueueDeclaration
	exclusive map[string]bool
}

func (d *fakeDeclarer) QueueDeclare(name string, durable, autoDelete, exclusive, _ bool, args amqp.Table) (amqp.Queue, error) {
	d.declared = append(d.declared, QueueDeclaration{Name: name, Args: args})
	if d.exclusive == nil {
		d.exclusive = make(map[string]bool)
	}
	d.exclusive[name] = exclusive && autoDelete && !durable
	return amqp.Queue{Name: name}, nil
}
