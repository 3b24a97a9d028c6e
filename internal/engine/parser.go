package engine

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/shaiso/Processa/internal/domain"
)

// BPMNNamespace — URI модели BPMN 2.0.
//
// Элементы сопоставляются по URI, а не по префиксу: bpmn:, bpmn2:
// и namespace по умолчанию разбираются одинаково.
const BPMNNamespace = "http://www.omg.org/spec/BPMN/20100524/MODEL"

// Соответствие локальных имён элементов разделам графа.
var (
	taskElements = map[string]bool{
		"task":             true,
		"userTask":         true,
		"serviceTask":      true,
		"scriptTask":       true,
		"sendTask":         true,
		"receiveTask":      true,
		"manualTask":       true,
		"businessRuleTask": true,
		"callActivity":     true,
	}

	gatewayElements = map[string]domain.GatewayKind{
		"exclusiveGateway":  domain.GatewayExclusive,
		"eventBasedGateway": domain.GatewayExclusive,
		"complexGateway":    domain.GatewayInclusive,
		"parallelGateway":   domain.GatewayParallel,
		"inclusiveGateway":  domain.GatewayInclusive,
	}

	eventElements = map[string]bool{
		"startEvent":             true,
		"endEvent":               true,
		"intermediateCatchEvent": true,
		"intermediateThrowEvent": true,
		"boundaryEvent":          true,
	}
)

type xmlDefinitions struct {
	XMLName   xml.Name     `xml:"http://www.omg.org/spec/BPMN/20100524/MODEL definitions"`
	Processes []xmlProcess `xml:"http://www.omg.org/spec/BPMN/20100524/MODEL process"`
}

type xmlProcess struct {
	ID       string       `xml:"id,attr"`
	Elements []xmlElement `xml:",any"`
}

type xmlElement struct {
	XMLName   xml.Name
	ID        string     `xml:"id,attr"`
	Name      string     `xml:"name,attr"`
	SourceRef string     `xml:"sourceRef,attr"`
	TargetRef string     `xml:"targetRef,attr"`
	Default   string     `xml:"default,attr"`
	Attrs     []xml.Attr `xml:",any,attr"`

	Incoming  []string `xml:"http://www.omg.org/spec/BPMN/20100524/MODEL incoming"`
	Outgoing  []string `xml:"http://www.omg.org/spec/BPMN/20100524/MODEL outgoing"`
	Condition *struct {
		Body string `xml:",chardata"`
	} `xml:"http://www.omg.org/spec/BPMN/20100524/MODEL conditionExpression"`
}

// ParseBPMN разбирает BPMN XML и строит ProcessGraph.
//
// Берётся первый process из definitions. Неизвестные элементы
// (laneSet, textAnnotation, dataObject, ...) пропускаются.
func ParseBPMN(data []byte) (*ProcessGraph, error) {
	var defs xmlDefinitions

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}

	if len(defs.Processes) == 0 {
		return nil, ErrNoProcess
	}

	return buildGraph(&defs.Processes[0])
}

// buildGraph раскладывает элементы процесса по разделам графа.
func buildGraph(proc *xmlProcess) (*ProcessGraph, error) {
	g := newProcessGraph(proc.ID)
	seen := make(map[string]bool)

	// Первый проход: узлы и рёбра
	for i := range proc.Elements {
		el := &proc.Elements[i]
		if el.XMLName.Space != BPMNNamespace {
			continue
		}
		local := el.XMLName.Local

		isNode := taskElements[local] || eventElements[local]
		_, isGateway := gatewayElements[local]
		if !isNode && !isGateway && local != "sequenceFlow" {
			continue
		}

		if el.ID == "" {
			return nil, &SchemaError{Message: local + " has empty id", Err: ErrEmptyElementID}
		}
		if seen[el.ID] {
			return nil, &SchemaError{ElementID: el.ID, Message: "duplicate id", Err: ErrDuplicateElementID}
		}
		seen[el.ID] = true

		if local == "sequenceFlow" {
			flow := domain.SequenceFlow{
				ID:        el.ID,
				SourceRef: el.SourceRef,
				TargetRef: el.TargetRef,
			}
			if el.Condition != nil {
				flow.Condition = strings.TrimSpace(el.Condition.Body)
			}
			g.addFlow(flow)
			continue
		}

		node := &Node{
			ID:         el.ID,
			Name:       el.Name,
			Type:       local,
			Default:    el.Default,
			Incoming:   trimAll(el.Incoming),
			Outgoing:   trimAll(el.Outgoing),
			Attributes: extensionAttrs(el.Attrs),
		}

		switch {
		case taskElements[local]:
			node.Kind = domain.NodeKindTask
		case eventElements[local]:
			node.Kind = domain.NodeKindEvent
		default:
			node.Kind = domain.NodeKindGateway
			node.GatewayKind = gatewayElements[local]
		}

		g.addNode(node)
	}

	// Второй проход: incoming/outgoing по рёбрам
	// (редакторы не всегда пишут дочерние <incoming>/<outgoing>)
	g.linkFlows()

	return g, nil
}

// extensionAttrs собирает атрибуты расширений (camunda:, processa:, ...)
// по локальному имени.
func extensionAttrs(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	result := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "" || a.Name.Space == "xmlns" {
			continue
		}
		result[a.Name.Local] = a.Value
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
