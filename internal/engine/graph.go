package engine

import (
	"fmt"
	"slices"

	"github.com/shaiso/Processa/internal/domain"
)

// Node — узел BPMN-графа.
type Node struct {
	// ID — id элемента в BPMN ("task-3", "gateway-1-end", ...).
	ID string

	// Name — подпись элемента на диаграмме.
	Name string

	// Kind — task / gateway / event.
	Kind domain.NodeKind

	// Type — локальное имя BPMN-элемента (userTask, endEvent, ...).
	Type string

	// GatewayKind — вид шлюза (только для Kind == gateway).
	GatewayKind domain.GatewayKind

	// Default — ребро по умолчанию для exclusive/inclusive шлюза.
	Default string

	// Incoming — ID входящих рёбер.
	Incoming []string

	// Outgoing — ID исходящих рёбер.
	Outgoing []string

	// Attributes — атрибуты расширений (providerType, service, ...).
	Attributes map[string]string
}

// Attr возвращает атрибут расширения или значение по умолчанию.
func (n *Node) Attr(key, def string) string {
	if v, ok := n.Attributes[key]; ok && v != "" {
		return v
	}
	return def
}

// ProcessGraph — неизменяемое представление BPMN-процесса.
//
// Строится целиком при перезагрузке Schema Cache и после этого
// не модифицируется, поэтому читается без блокировок.
type ProcessGraph struct {
	// ProcessID — id элемента process.
	ProcessID string

	// Tasks — задачи (task, userTask, serviceTask, ...).
	Tasks map[string]*Node

	// Шлюзы хранятся в отдельных разделах по виду.
	ExclusiveGateways map[string]*Node
	ParallelGateways  map[string]*Node
	InclusiveGateways map[string]*Node

	// Events — события (start, end, intermediate, boundary).
	Events map[string]*Node

	// SequenceFlows — плоский список рёбер в порядке диаграммы.
	SequenceFlows []domain.SequenceFlow

	flowIndex map[string]int
}

func newProcessGraph(processID string) *ProcessGraph {
	return &ProcessGraph{
		ProcessID:         processID,
		Tasks:             make(map[string]*Node),
		ExclusiveGateways: make(map[string]*Node),
		ParallelGateways:  make(map[string]*Node),
		InclusiveGateways: make(map[string]*Node),
		Events:            make(map[string]*Node),
		SequenceFlows:     make([]domain.SequenceFlow, 0),
		flowIndex:         make(map[string]int),
	}
}

// addNode кладёт узел в соответствующий раздел.
func (g *ProcessGraph) addNode(n *Node) {
	switch n.Kind {
	case domain.NodeKindTask:
		g.Tasks[n.ID] = n
	case domain.NodeKindEvent:
		g.Events[n.ID] = n
	case domain.NodeKindGateway:
		g.gatewayBucket(n.GatewayKind)[n.ID] = n
	}
}

// addFlow добавляет ребро.
func (g *ProcessGraph) addFlow(f domain.SequenceFlow) {
	g.flowIndex[f.ID] = len(g.SequenceFlows)
	g.SequenceFlows = append(g.SequenceFlows, f)
}

// linkFlows дополняет Incoming/Outgoing узлов по рёбрам.
// Дубликаты не добавляются.
func (g *ProcessGraph) linkFlows() {
	for _, f := range g.SequenceFlows {
		if src, ok := g.Node(f.SourceRef); ok && !slices.Contains(src.Outgoing, f.ID) {
			src.Outgoing = append(src.Outgoing, f.ID)
		}
		if dst, ok := g.Node(f.TargetRef); ok && !slices.Contains(dst.Incoming, f.ID) {
			dst.Incoming = append(dst.Incoming, f.ID)
		}
	}
}

func (g *ProcessGraph) gatewayBucket(kind domain.GatewayKind) map[string]*Node {
	switch kind {
	case domain.GatewayParallel:
		return g.ParallelGateways
	case domain.GatewayInclusive:
		return g.InclusiveGateways
	default:
		return g.ExclusiveGateways
	}
}

// Node ищет узел по ID во всех разделах.
func (g *ProcessGraph) Node(id string) (*Node, bool) {
	if n, ok := g.Tasks[id]; ok {
		return n, true
	}
	if n, ok := g.Events[id]; ok {
		return n, true
	}
	if n, _, ok := g.Gateway(id); ok {
		return n, true
	}
	return nil, false
}

// Gateway ищет шлюз по ID и возвращает его вид
// (по разделу, в котором он хранится).
func (g *ProcessGraph) Gateway(id string) (*Node, domain.GatewayKind, bool) {
	if n, ok := g.ExclusiveGateways[id]; ok {
		return n, domain.GatewayExclusive, true
	}
	if n, ok := g.ParallelGateways[id]; ok {
		return n, domain.GatewayParallel, true
	}
	if n, ok := g.InclusiveGateways[id]; ok {
		return n, domain.GatewayInclusive, true
	}
	return nil, "", false
}

// ParallelJoin возвращает закрывающий узел параллельного шлюза.
func (g *ProcessGraph) ParallelJoin(id string) (*Node, bool) {
	n, ok := g.ParallelGateways[id]
	return n, ok
}

// Flow возвращает ребро по ID.
func (g *ProcessGraph) Flow(id string) (domain.SequenceFlow, bool) {
	i, ok := g.flowIndex[id]
	if !ok {
		return domain.SequenceFlow{}, false
	}
	return g.SequenceFlows[i], true
}

// OutgoingFrom возвращает рёбра, у которых sourceRef == nodeID,
// в порядке диаграммы.
func (g *ProcessGraph) OutgoingFrom(nodeID string) []domain.SequenceFlow {
	var out []domain.SequenceFlow
	for _, f := range g.SequenceFlows {
		if f.SourceRef == nodeID {
			out = append(out, f)
		}
	}
	return out
}

// StartEvents возвращает стартовые события процесса.
func (g *ProcessGraph) StartEvents() []*Node {
	var out []*Node
	for _, n := range g.Events {
		if n.Type == "startEvent" {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *Node) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Size возвращает количество узлов.
func (g *ProcessGraph) Size() int {
	return len(g.Tasks) + len(g.Events) +
		len(g.ExclusiveGateways) + len(g.ParallelGateways) + len(g.InclusiveGateways)
}

// Validate возвращает предупреждения о висячих рёбрах.
// Висячее ребро не фатально: при обходе оно просто никуда не ведёт.
func (g *ProcessGraph) Validate() []string {
	var warnings []string
	for _, f := range g.SequenceFlows {
		if _, ok := g.Node(f.SourceRef); !ok {
			warnings = append(warnings, fmt.Sprintf("flow %s: unknown sourceRef %q", f.ID, f.SourceRef))
		}
		if _, ok := g.Node(f.TargetRef); !ok {
			warnings = append(warnings, fmt.Sprintf("flow %s: unknown targetRef %q", f.ID, f.TargetRef))
		}
	}
	if len(g.StartEvents()) == 0 {
		warnings = append(warnings, "process has no start event")
	}
	return warnings
}
