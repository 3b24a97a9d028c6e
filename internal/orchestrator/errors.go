package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/Processa/internal/domain"
)

// Ошибки оркестратора.
var (
	// ErrTemplateNotLoaded — шаблона нет в Schema Cache (неактивен или не разобрался).
	ErrTemplateNotLoaded = fmt.Errorf("%w: workflow template not loaded", domain.ErrNodeNotFound)

	// ErrNodeNotInGraph — узел записи отсутствует в графе шаблона.
	ErrNodeNotInGraph = fmt.Errorf("%w: node not in process graph", domain.ErrNodeNotFound)

	// ErrNoStartEvent — в процессе нет стартового события.
	ErrNoStartEvent = fmt.Errorf("%w: process has no start event", domain.ErrInvalidSchema)

	// ErrJoinLoop — цепочка join-узлов длиннее допустимой (цикл в схеме).
	ErrJoinLoop = fmt.Errorf("%w: join chain too deep", domain.ErrInvalidSchema)

	// ErrStopped — оркестратор остановлен.
	ErrStopped = errors.New("orchestrator stopped")
)
