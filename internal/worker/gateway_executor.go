package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
)

// GatewayExecutor выбирает исходящие рёбра шлюза.
//
// conditionExpression ребра — JMESPath над payload процесса
// (допускается обёртка ${...}); ребро без условия считается истинным.
//
//   - exclusive: первое истинное ребро в порядке диаграммы, иначе default
//   - inclusive: все истинные рёбра, иначе default
//   - parallel: все рёбра, условия не проверяются
//
// Default-ребро в проверке условий не участвует.
type GatewayExecutor struct{}

// Execute вычисляет resultSequences шлюза.
func (e *GatewayExecutor) Execute(_ context.Context, job *Job) (*Outcome, error) {
	kind := job.Item.GatewayType
	if kind == "" {
		kind = job.Node.GatewayKind
	}

	outgoing := job.Item.Outgoing
	if len(outgoing) == 0 {
		outgoing = job.Node.Outgoing
	}

	var selected []string
	switch kind {
	case domain.GatewayParallel:
		selected = append(selected, outgoing...)

	default:
		for _, id := range outgoing {
			if id == job.Node.Default {
				continue
			}
			flow, ok := job.Graph.Flow(id)
			if !ok {
				continue
			}

			match, err := evalCondition(flow.Condition, job.Instance.Payload)
			if err != nil {
				return nil, fmt.Errorf("gateway %s flow %s: %w", job.Node.ID, id, err)
			}
			if !match {
				continue
			}

			selected = append(selected, id)
			if kind == domain.GatewayExclusive {
				break
			}
		}

		if len(selected) == 0 && job.Node.Default != "" {
			selected = []string{job.Node.Default}
		}
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("gateway %s (%s): %w", job.Node.ID, kind, ErrNoBranch)
	}

	return &Outcome{
		ResultSequences: selected,
		Outputs:         map[string]any{"gatewayType": string(kind), "selected": selected},
	}, nil
}

// evalCondition вычисляет условие ребра.
func evalCondition(cond string, payload map[string]any) (bool, error) {
	cond = strings.TrimSpace(cond)
	if inner, ok := strings.CutPrefix(cond, "${"); ok {
		cond = strings.TrimSpace(strings.TrimSuffix(inner, "}"))
	}
	if cond == "" {
		return true, nil
	}

	ok, err := engine.EvalBool(cond, payload)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadCondition, err)
	}
	return ok, nil
}
