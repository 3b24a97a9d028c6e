package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

// Decorator — именованная обработка ответа сервиса: нормализация
// данных или проверка бизнес-условия (ошибка — ErrProviderFault).
type Decorator func(resp *Response) error

// predicatePrefix — декоратор-предикат на JMESPath: "jmespath:<выражение>".
const predicatePrefix = "jmespath:"

// Decorators — реестр декораторов по имени.
type Decorators struct {
	mu         sync.RWMutex
	decorators map[string]Decorator
}

// NewDecorators создаёт реестр со встроенными декораторами:
// unwrap-data, require-id, require-success.
func NewDecorators() *Decorators {
	d := &Decorators{decorators: make(map[string]Decorator)}
	d.Register("unwrap-data", unwrapData)
	d.Register("require-id", requireID)
	d.Register("require-success", requireSuccess)
	return d
}

// Register добавляет или заменяет декоратор.
func (d *Decorators) Register(name string, fn Decorator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decorators[name] = fn
}

// Apply применяет декоратор к ответу. Пустое имя — ничего не делает.
func (d *Decorators) Apply(name string, resp *Response) error {
	if name == "" {
		return nil
	}

	if expr, ok := strings.CutPrefix(name, predicatePrefix); ok {
		return checkPredicate(expr, resp)
	}

	d.mu.RLock()
	fn, ok := d.decorators[name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDecorator, name)
	}
	return fn(resp)
}

// Has сообщает, известен ли декоратор.
func (d *Decorators) Has(name string) bool {
	if strings.HasPrefix(name, predicatePrefix) {
		_, err := engine.CompileExpr(strings.TrimPrefix(name, predicatePrefix))
		return err == nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.decorators[name]
	return ok
}

// unwrapData поднимает вложенный объект data на верхний уровень.
func unwrapData(resp *Response) error {
	if inner, ok := resp.Data["data"].(map[string]any); ok {
		resp.Data = inner
	}
	return nil
}

func requireID(resp *Response) error {
	if resp.ExternalID == "" {
		return fmt.Errorf("%w: response has no external id", domain.ErrProviderFault)
	}
	return nil
}

func requireSuccess(resp *Response) error {
	if !resp.Success {
		return fmt.Errorf("%w: response is not successful", domain.ErrProviderFault)
	}
	return nil
}

func checkPredicate(expr string, resp *Response) error {
	ok, err := engine.EvalBool(expr, resp.Data)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: predicate %q is false", domain.ErrProviderFault, expr)
	}
	return nil
}
