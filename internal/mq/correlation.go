package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shaiso/Processa/internal/domain"
)

// Correlator связывает запрос, отправленный в очередь, с ответом,
// пришедшим из другой очереди, по correlation id.
//
// Запись удаляется тем, что наступит раньше: ответом или таймаутом.
// Ответ без ожидающего (опоздал или чужой) отбрасывается.
type Correlator struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*slot
}

// slot — место для одного ответа.
type slot struct {
	ch       chan json.RawMessage
	resolved bool
}

// NewCorrelator создаёт Correlator с таймаутом по умолчанию.
func NewCorrelator(timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Correlator{
		timeout: timeout,
		pending: make(map[string]*slot),
	}
}

// Register создаёт слот ответа. Вызывается до публикации запроса,
// чтобы быстрый ответ не потерялся.
func (c *Correlator) Register(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[id]; !ok {
		c.pending[id] = &slot{ch: make(chan json.RawMessage, 1)}
	}
}

// Resolve доставляет ответ ожидающему.
// Возвращает false, если слота нет или ответ уже получен.
func (c *Correlator) Resolve(id string, payload json.RawMessage) bool {
	c.mu.Lock()
	s, ok := c.pending[id]
	if !ok || s.resolved {
		c.mu.Unlock()
		return false
	}
	s.resolved = true
	c.mu.Unlock()

	// буфер 1 и флаг resolved: запись ровно одна
	s.ch <- payload
	return true
}

// Wait ждёт ответ на зарегистрированный id и удаляет слот.
// timeout <= 0 — таймаут по умолчанию.
func (c *Correlator) Wait(ctx context.Context, id string, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	s, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("correlation %s is not registered", id)
	}
	defer c.Cancel(id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-s.ch:
		return payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response for %s within %s", domain.ErrTimeout, id, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel удаляет слот без ожидания (запрос не ушёл).
func (c *Correlator) Cancel(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Pending возвращает количество ожидающих слотов.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
