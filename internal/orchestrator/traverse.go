package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Processa/internal/domain"
	"github.com/shaiso/Processa/internal/engine"
	"github.com/shaiso/Processa/internal/telemetry"
)

// maxJoinChain — сколько join-узлов подряд можно пройти за одно ребро.
const maxJoinChain = 16

// ProcessCompletion обрабатывает уведомление о завершении узла.
//
// Result заполняется по мере продвижения: при ошибке в нём остаются
// WorkflowID и TemplateID, если их успели определить.
func (o *Orchestrator) ProcessCompletion(ctx context.Context, notice *domain.CompletionNotice) (*Result, error) {
	result := &Result{}

	// 1. Узел, экземпляр и граф
	kind, nodeID, err := notice.Node()
	if err != nil {
		return result, err
	}

	node, err := o.nodes.GetByID(ctx, nodeID)
	if err != nil {
		return result, fmt.Errorf("get %s %s: %w", kind, nodeID, err)
	}
	result.WorkflowID = node.WorkflowID

	inst, err := o.instances.GetByID(ctx, node.WorkflowID)
	if err != nil {
		return result, fmt.Errorf("get workflow %s: %w", node.WorkflowID, err)
	}
	result.TemplateID = inst.TemplateID

	graph, ok := o.graphs.FindByID(inst.TemplateID)
	if !ok {
		return result, fmt.Errorf("template %s: %w", inst.TemplateID, ErrTemplateNotLoaded)
	}
	if _, ok := graph.Node(node.TemplateNodeID); !ok {
		return result, fmt.Errorf("%s %q: %w", kind, node.TemplateNodeID, ErrNodeNotInGraph)
	}

	logger := telemetry.WithWorkflowID(o.logger, inst.ID.String()).With(
		"node_kind", kind,
		"template_node_id", node.TemplateNodeID,
	)

	// 2. Рёбра-кандидаты
	candidates := candidateEdges(graph, node)
	result.Candidates = candidates

	// 3. Входящая запись истории
	inbound, err := domain.NewHistoryMessage(domain.DirectionIn, notice, candidates)
	if err != nil {
		return result, fmt.Errorf("build inbound message: %w", err)
	}
	inst, err = o.instances.AppendHistory(ctx, inst.ID, inbound)
	if err != nil {
		return result, fmt.Errorf("append inbound: %w", err)
	}

	// 4. Процесс уже завершён: позднее или повторное уведомление
	if inst.IsFinal {
		logger.Info("workflow already finished, skipping dispatch")
		result.Duplicate = true
		return result, nil
	}

	// 5. Классификация рёбер
	p, err := o.resolve(inst, graph, candidates, logger)
	if err != nil {
		return result, err
	}

	if p.finished {
		// Конечное событие подавляет всю диспетчеризацию этого уведомления
		if err := o.instances.MarkFinal(ctx, inst.ID); err != nil {
			return result, fmt.Errorf("mark final: %w", err)
		}
		telemetry.WorkflowsFinished.Inc()
		result.Positions = append(result.Positions, Finished)
		logger.Info("workflow finished")
		return result, nil
	}

	// 6. Исходящие записи, затем публикация
	for i := range p.dispatches {
		d := &p.dispatches[i]

		sent, err := o.send(ctx, inst, d, logger)
		if err != nil {
			return result, err
		}
		if sent {
			result.Dispatched++
			result.Positions = append(result.Positions, positionOf(d.Target))
		}
	}

	logger.Debug("completion processed",
		"candidates", len(candidates),
		"dispatched", result.Dispatched,
	)
	return result, nil
}

// candidateEdges вычисляет рёбра, по которым процесс уходит из узла.
func candidateEdges(graph *engine.ProcessGraph, node *domain.NodeRecord) []domain.SequenceFlow {
	switch node.Kind {
	case domain.NodeKindTask:
		// У задачи одно исходящее ребро
		out := graph.OutgoingFrom(node.TemplateNodeID)
		if len(out) == 0 {
			return []domain.SequenceFlow{}
		}
		return out[:1]

	case domain.NodeKindGateway:
		// Рёбра, выбранные worker'ом шлюза, только из этого шлюза
		result := make([]domain.SequenceFlow, 0, len(node.ResultSequences))
		for _, id := range node.ResultSequences {
			f, ok := graph.Flow(id)
			if !ok || f.SourceRef != node.TemplateNodeID {
				continue
			}
			result = append(result, f)
		}
		return result

	case domain.NodeKindEvent:
		out := graph.OutgoingFrom(node.TemplateNodeID)
		if len(out) == 0 {
			// Конец ветки
			return []domain.SequenceFlow{{}}
		}
		return out[:1]
	}
	return []domain.SequenceFlow{}
}

// resolve классифицирует рёбра и строит план диспетчеризации.
//
// Все рёбра разбираются до отправки: если хоть одно ведёт
// к концу процесса, не отправляется ничего.
func (o *Orchestrator) resolve(inst *domain.WorkflowInstance, graph *engine.ProcessGraph, edges []domain.SequenceFlow, logger *slog.Logger) (*plan, error) {
	p := &plan{}

	for _, edge := range edges {
		if edge.IsEmpty() {
			logger.Debug("end of branch")
			continue
		}

		if err := o.resolveEdge(inst, graph, edge, "", 0, p, logger); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// resolveEdge разбирает одно ребро. claim — ребро выхода из join,
// через который пришли (пусто, если join не было).
func (o *Orchestrator) resolveEdge(
	inst *domain.WorkflowInstance,
	graph *engine.ProcessGraph,
	edge domain.SequenceFlow,
	claim string,
	depth int,
	p *plan,
	logger *slog.Logger,
) error {
	target := engine.Classify(edge.TargetRef)

	switch target.Kind {
	case engine.TargetGatewayJoin:
		if depth >= maxJoinChain {
			return fmt.Errorf("flow %s: %w", edge.ID, ErrJoinLoop)
		}

		join, _, ok := graph.Gateway(target.Ref)
		if !ok {
			logger.Warn("join node not found, branch terminated", "flow_id", edge.ID, "target_ref", target.Ref)
			return nil
		}

		// Join срабатывает, когда все входящие рёбра есть в истории
		for _, in := range join.Incoming {
			if !inst.HasEdge(in) {
				logger.Debug("join not yet satisfied", "join", join.ID, "missing", in)
				return nil
			}
		}

		out := graph.OutgoingFrom(join.ID)
		if len(out) == 0 {
			logger.Warn("join has no outgoing flow", "join", join.ID)
			return nil
		}
		next := out[0]
		if claim == "" {
			claim = next.ID
		}
		return o.resolveEdge(inst, graph, next, claim, depth+1, p, logger)

	case engine.TargetWorkflowEnd:
		p.finished = true
		return nil

	case engine.TargetTask, engine.TargetGateway, engine.TargetEvent:
		d, err := o.buildDispatch(inst, graph, edge, target)
		if err != nil {
			return err
		}
		d.Claim = claim
		p.dispatches = append(p.dispatches, d)
		return nil

	default:
		logger.Warn("dangling flow target, skipping", "flow_id", edge.ID, "target_ref", edge.TargetRef)
		return nil
	}
}

// buildDispatch строит work item для задачи, шлюза или события.
func (o *Orchestrator) buildDispatch(inst *domain.WorkflowInstance, graph *engine.ProcessGraph, edge domain.SequenceFlow, target engine.Target) (dispatch, error) {
	item := domain.WorkItem{
		WorkflowID:         inst.ID,
		WorkflowTemplateID: inst.TemplateID,
		UserID:             inst.UserID,
	}
	if o.debug {
		item.Debug = true
		item.DebugID = inst.ID.String()
	}
	d := dispatch{Edge: edge, Target: target.Kind}

	switch target.Kind {
	case engine.TargetTask:
		item.TaskTemplateID = target.Ref
		d.Queue = o.queues.Task

	case engine.TargetGateway:
		gw, kind, ok := graph.Gateway(target.Ref)
		if !ok {
			return d, fmt.Errorf("gateway %q: %w", target.Ref, ErrNodeNotInGraph)
		}
		item.GatewayTemplateID = target.Ref
		item.GatewayType = kind
		item.Outgoing = outgoingIDs(graph, gw)
		d.Queue = o.queues.Gateway

	case engine.TargetEvent:
		item.EventTemplateID = target.Ref
		d.Queue = o.queues.Event
	}

	d.Item = item
	return d, nil
}

// outgoingIDs возвращает ID всех исходящих рёбер шлюза.
func outgoingIDs(graph *engine.ProcessGraph, gw *engine.Node) []string {
	if len(gw.Outgoing) > 0 {
		return append([]string(nil), gw.Outgoing...)
	}
	flows := graph.OutgoingFrom(gw.ID)
	ids := make([]string, 0, len(flows))
	for _, f := range flows {
		ids = append(ids, f.ID)
	}
	return ids
}

// send пишет исходящую запись и публикует work item.
// Возвращает false, если work item за join уже был опубликован ранее.
func (o *Orchestrator) send(ctx context.Context, inst *domain.WorkflowInstance, d *dispatch, logger *slog.Logger) (bool, error) {
	if d.Claim != "" {
		// Один и тот же id для всех публикаций за этим join:
		// повторную отправку отсекает дедупликация worker'а
		d.Item.AMQPMessageID = joinMessageID(inst.ID, d.Claim)
	}

	outbound, err := domain.NewHistoryMessage(domain.DirectionOut, d.Item, []domain.SequenceFlow{d.Edge})
	if err != nil {
		return false, fmt.Errorf("build outbound message: %w", err)
	}

	// Запись до публикации: после сбоя между ними work item
	// восстанавливается по истории
	if d.Claim != "" {
		claimed, err := o.instances.AppendOutboundOnce(ctx, inst.ID, outbound, d.Claim)
		if err != nil {
			return false, fmt.Errorf("append outbound: %w", err)
		}
		if !claimed {
			return o.resend(ctx, inst.ID, d, logger)
		}
	} else {
		if _, err := o.instances.AppendHistory(ctx, inst.ID, outbound); err != nil {
			return false, fmt.Errorf("append outbound: %w", err)
		}
	}

	if err := o.publish(ctx, d, logger); err != nil {
		return false, err
	}
	if d.Claim != "" {
		if err := o.instances.MarkClaimPublished(ctx, inst.ID, d.Claim); err != nil {
			return false, fmt.Errorf("mark claim published: %w", err)
		}
	}
	return true, nil
}

// resend вызывается, когда переход за join уже записан в историю.
//
// Если публикация после записи не прошла, повторное уведомление
// публикует записанный work item ещё раз с тем же amqpMessageId.
// Если публикация уже была, уведомление считается дубликатом.
func (o *Orchestrator) resend(ctx context.Context, workflowID uuid.UUID, d *dispatch, logger *slog.Logger) (bool, error) {
	inst, err := o.instances.GetByID(ctx, workflowID)
	if err != nil {
		return false, fmt.Errorf("get workflow %s: %w", workflowID, err)
	}
	if inst.ClaimPublished(d.Claim) {
		logger.Info("join already passed, skipping duplicate dispatch", "flow_id", d.Claim)
		return false, nil
	}

	if item, ok := recordedItem(inst, d.Claim); ok {
		d.Item = item
	}
	logger.Warn("join passed but not published, publishing recorded work item", "flow_id", d.Claim)

	if err := o.publish(ctx, d, logger); err != nil {
		return false, err
	}
	if err := o.instances.MarkClaimPublished(ctx, inst.ID, d.Claim); err != nil {
		return false, fmt.Errorf("mark claim published: %w", err)
	}
	return true, nil
}

// recordedItem достаёт work item из исходящей записи с ребром flowID.
func recordedItem(inst *domain.WorkflowInstance, flowID string) (domain.WorkItem, bool) {
	for _, h := range inst.History {
		if h.Direction != domain.DirectionOut {
			continue
		}
		for _, e := range h.MatchedEdges {
			if e.ID != flowID {
				continue
			}
			var item domain.WorkItem
			if err := json.Unmarshal(h.Payload, &item); err != nil {
				return item, false
			}
			return item, true
		}
	}
	return domain.WorkItem{}, false
}

// joinMessageID — amqpMessageId work item'а за join: один на экземпляр и ребро.
func joinMessageID(workflowID uuid.UUID, flowID string) string {
	return uuid.NewSHA1(workflowID, []byte(flowID)).String()
}

func (o *Orchestrator) publish(ctx context.Context, d *dispatch, logger *slog.Logger) error {
	messageID, err := o.publisher.Publish(ctx, d.Queue, d.Item)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", d.Queue, err)
	}

	telemetry.Dispatches.WithLabelValues(d.Target.String()).Inc()
	telemetry.WithMessageID(logger, messageID).Info("work item dispatched",
		"queue", d.Queue,
		"target", d.Target.String(),
		"flow_id", d.Edge.ID,
		"target_ref", d.Edge.TargetRef,
	)
	return nil
}
