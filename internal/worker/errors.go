package worker

import (
	"errors"
	"fmt"

	"github.com/shaiso/Processa/internal/domain"
)

// Ошибки воркера.
var (
	// ErrUnknownRole — роль не task / gateway / event.
	ErrUnknownRole = errors.New("unknown worker role")

	// ErrWrongQueue — work item для узла другого вида пришёл не в ту очередь.
	ErrWrongQueue = fmt.Errorf("%w: work item for another role", domain.ErrInvalidMessage)

	// ErrNoExecutor — нет executor'а для вида узла.
	ErrNoExecutor = errors.New("no executor for node kind")

	// ErrNoBranch — шлюз не выбрал ни одного ребра и default не задан.
	ErrNoBranch = fmt.Errorf("%w: gateway selected no outgoing flow", domain.ErrInvalidSchema)

	// ErrBadCondition — conditionExpression не вычисляется.
	ErrBadCondition = fmt.Errorf("%w: bad condition expression", domain.ErrInvalidSchema)

	// ErrBadAttribute — атрибут расширения узла с некорректным значением.
	ErrBadAttribute = fmt.Errorf("%w: bad extension attribute", domain.ErrInvalidSchema)
)
