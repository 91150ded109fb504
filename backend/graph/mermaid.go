package graph

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/spanlens/spanlens/internal/models"
)

// escapeLabel rewrites characters Mermaid cannot digest in node ids. When a
// rewrite happened the original text is kept as the display label.
func escapeLabel(name string) (id string, escaped bool) {
	const toReplace = " {}()"
	if !strings.ContainsAny(name, toReplace) {
		return name, false
	}
	out := []rune(name)
	for i, r := range out {
		if strings.ContainsRune(toReplace, r) {
			out[i] = '_'
		}
	}
	return string(out), true
}

type mermaidLink struct {
	src      string
	target   string
	value    *float64
	value2   *float64
	linkType LinkType
}

// flowchart accumulates nodes and links and renders the diagram text.
type flowchart struct {
	body  []string
	links []mermaidLink
}

func (f *flowchart) addNode(indent int, name string, nodeType NodeType) {
	pad := strings.Repeat("\t", indent)
	id, _ := escapeLabel(name)
	f.body = append(f.body, fmt.Sprintf("%s%s([\"%s\"])", pad, id, name))
	if nodeType == NodeEmphasized {
		f.body = append(f.body, fmt.Sprintf("%sstyle %s fill:#00802b", pad, id))
	}
}

func (f *flowchart) addSubgraph(service *Service, nodes []string, nodeTypes []NodeType) {
	id, escaped := escapeLabel(service.Name)
	if escaped {
		f.body = append(f.body, fmt.Sprintf("\tsubgraph %s [\"%s\"]", id, service.Name))
	} else {
		f.body = append(f.body, "\tsubgraph "+id)
	}
	for i, node := range nodes {
		f.addNode(2, node, nodeTypes[i])
	}
	f.body = append(f.body, "\tend")
	if service.Type == NodeEmphasized {
		f.body = append(f.body, fmt.Sprintf("\tstyle %s fill:#00b33c", id))
	}
}

func (f *flowchart) addLink(link mermaidLink) {
	f.links = append(f.links, link)
}

func (f *flowchart) render() string {
	lines := []string{"graph LR"}
	lines = append(lines, f.body...)

	for _, link := range f.links {
		src, _ := escapeLabel(link.src)
		target, _ := escapeLabel(link.target)
		value := ""
		switch {
		case link.value != nil && link.value2 != nil:
			value = fmt.Sprintf("|%.0f/%.0f|", *link.value, *link.value2)
		case link.value != nil:
			value = fmt.Sprintf("|%.0f|", *link.value)
		}
		arrow := "-->"
		if link.linkType == LinkEmphasized {
			arrow = "==>"
		}
		lines = append(lines, fmt.Sprintf("\t%s %s%s %s", src, arrow, value, target))
	}

	if styled := f.linkStyle(LinkEmphasized, "#3333ff"); styled != "" {
		lines = append(lines, styled)
	}
	if styled := f.linkStyle(LinkReachable, "#99ccff"); styled != "" {
		lines = append(lines, styled)
	}
	return strings.Join(lines, "\n")
}

// linkStyle colours all links of one state with a single directive.
func (f *flowchart) linkStyle(linkType LinkType, color string) string {
	var indices []string
	for i, link := range f.links {
		if link.linkType == linkType {
			indices = append(indices, fmt.Sprintf("%d", i))
		}
	}
	if len(indices) == 0 {
		return ""
	}
	return fmt.Sprintf("linkStyle %s stroke:%s,stroke-width:4px,color:blue;", strings.Join(indices, ","), color)
}

// MermaidDiagram renders the graph. Scope filters services by position; the
// metric selects the scalar shown on edges. In compact mode each service is
// a single node, intra-service edges are suppressed and inter-service edges
// merged per (src, target) pair.
func (g *ServiceOperGraph) MermaidDiagram(scope Scope, compact bool, metric EdgeMetric) string {
	if compact {
		return g.mermaidCompact(scope, metric)
	}
	return g.mermaidFull(scope, metric)
}

func (g *ServiceOperGraph) mermaidFull(scope Scope, metric EdgeMetric) string {
	fc := &flowchart{}
	for _, service := range g.services {
		if !scope.selects(service.Position) {
			continue
		}
		nodes := make([]string, len(service.Operations))
		nodeTypes := make([]NodeType, len(service.Operations))
		for i := range service.Operations {
			nodes[i] = service.operationLabel(i)
			nodeTypes[i] = service.Operations[i].Type
		}
		fc.addSubgraph(service, nodes, nodeTypes)
	}
	for si, service := range g.services {
		if !scope.selects(service.Position) {
			continue
		}
		for oi := range service.Operations {
			oper := &service.Operations[oi]
			for _, call := range oper.Calls {
				target := g.services[call.ToService]
				if !scope.selects(target.Position) {
					continue
				}
				fc.addLink(mermaidLink{
					src:      g.services[si].operationLabel(oi),
					target:   target.operationLabel(call.ToOper),
					value:    metric.value(&call.Stats),
					value2:   metric.value(call.InboundStats),
					linkType: call.LineType,
				})
			}
		}
	}
	return fc.render()
}

type compactValue struct {
	value    *float64
	value2   *float64
	linkType LinkType
}

func addOpt(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	v := *a + *b
	return &v
}

func (g *ServiceOperGraph) mermaidCompact(scope Scope, metric EdgeMetric) string {
	fc := &flowchart{}
	for _, service := range g.services {
		if !scope.selects(service.Position) {
			continue
		}
		fc.addNode(1, service.Name, service.Type)
	}
	for si, service := range g.services {
		if !scope.selects(service.Position) {
			continue
		}
		// merged inter-service edges in deterministic insertion order
		merged := orderedmap.New[string, *compactValue]()
		for oi := range service.Operations {
			oper := &service.Operations[oi]
			// inbound-to-outbound hops inside one service are internal
			if oper.Direction == models.Inbound {
				continue
			}
			for _, call := range oper.Calls {
				target := g.services[call.ToService]
				if call.ToService == si {
					continue
				}
				if target.Operations[call.ToOper].Direction == models.Outbound {
					continue
				}
				if !scope.selects(target.Position) {
					continue
				}
				cv, ok := merged.Get(target.Name)
				if !ok {
					cv = &compactValue{}
					merged.Set(target.Name, cv)
				}
				cv.value = addOpt(cv.value, metric.value(&call.Stats))
				cv.value2 = addOpt(cv.value2, metric.value(call.InboundStats))
				cv.linkType = cv.linkType.Merge(call.LineType)
			}
		}
		for pair := merged.Oldest(); pair != nil; pair = pair.Next() {
			fc.addLink(mermaidLink{
				src:      service.Name,
				target:   pair.Key,
				value:    pair.Value.value,
				value2:   pair.Value.value2,
				linkType: pair.Value.linkType,
			})
		}
	}
	return fc.render()
}
