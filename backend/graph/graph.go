// Package graph builds a Service/Operation topology graph from call-chain
// statistics and renders it as a Mermaid flowchart. Nodes carry a position
// relative to a focus service, edges carry aggregated call statistics and a
// display state.
package graph

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/backend/chain"
	"github.com/spanlens/spanlens/internal/models"
)

// Position locates a service relative to the focus service of a diagram.
type Position int

const (
	PosUnknown Position = iota
	PosInbound
	PosInboundCenter
	PosCenter
	PosOutboundCenter
	PosOutbound
)

// FindPositions derives the positions of both ends of a call relative to
// the focus service. Calls not touching the focus fall back to defaultPos.
func FindPositions(from, to chain.Call, focusService string, defaultPos Position) (Position, Position) {
	switch {
	case from.Service == focusService && to.Service == focusService:
		return PosCenter, PosCenter
	case from.Service == focusService:
		return PosCenter, PosOutboundCenter
	case to.Service == focusService:
		return PosInboundCenter, PosCenter
	default:
		return defaultPos, defaultPos
	}
}

// Merge combines two position observations of the same service. The lattice
// is center > inbound-centered > outbound-centered > inbound/outbound >
// unknown; conflicting inbound/outbound observations keep the first.
func (p Position) Merge(other Position) Position {
	switch {
	case p == PosUnknown:
		return other
	case other == PosUnknown:
		return p
	case p == PosCenter || other == PosCenter:
		return PosCenter
	case p == PosInboundCenter || other == PosInboundCenter:
		return PosInboundCenter
	case p == PosOutboundCenter || other == PosOutboundCenter:
		return PosOutboundCenter
	case p != other:
		log.Debug().Int("pos", int(p)).Int("other", int(other)).Msg("service observed on both sides of the focus")
		return p
	default:
		return p
	}
}

// LinkType is the display state of an edge: default, reachable (part of a
// selected inbound-path computation) or emphasized (explicitly selected).
// Transitions only go up; a rebuild resets the state.
type LinkType int

const (
	LinkDefault LinkType = iota
	LinkReachable
	LinkEmphasized
)

// Merge keeps the higher of two link states.
func (l LinkType) Merge(other LinkType) LinkType {
	if other > l {
		return other
	}
	return l
}

// NodeType marks emphasized services and operations in the rendering.
type NodeType int

const (
	NodeDefault NodeType = iota
	NodeEmphasized
)

// EdgeStats aggregates the statistics attached to an edge over all chains
// traversing it: counts add up, duration metrics average weighted by count.
type EdgeStats struct {
	Count             float64
	AvgDurationMillis WeightedAvg
	P75Millis         WeightedAvg
	P90Millis         WeightedAvg
	P95Millis         WeightedAvg
	P99Millis         WeightedAvg
}

// ChainStats is the per-chain slice of statistics fed into edge aggregation.
type ChainStats struct {
	Count             float64
	AvgDurationMillis *float64
	P75Millis         *float64
	P90Millis         *float64
	P95Millis         *float64
	P99Millis         *float64
}

// WeightedAvg accumulates an average weighted by observation count.
type WeightedAvg struct {
	count float64
	sum   float64
}

// Add folds a value observed count times; nil values contribute nothing.
func (w *WeightedAvg) Add(count float64, value *float64) {
	if value == nil {
		return
	}
	w.count += count
	w.sum += *value * count
}

// Value returns the weighted average, nil when nothing was added.
func (w *WeightedAvg) Value() *float64 {
	if w.count <= 0 {
		return nil
	}
	v := w.sum / w.count
	return &v
}

func (e *EdgeStats) add(data *ChainStats) {
	e.Count += data.Count
	e.AvgDurationMillis.Add(data.Count, data.AvgDurationMillis)
	e.P75Millis.Add(data.Count, data.P75Millis)
	e.P90Millis.Add(data.Count, data.P90Millis)
	e.P95Millis.Add(data.Count, data.P95Millis)
	e.P99Millis.Add(data.Count, data.P99Millis)
}

// CallDescriptor is an edge: an outbound call into (ToService, ToOper),
// indices into the graph. InboundStats holds the subset aggregated for a
// selected inbound call chain.
type CallDescriptor struct {
	ToService    int
	ToOper       int
	Stats        EdgeStats
	InboundStats *EdgeStats
	LineType     LinkType
}

// Operation is one operation of a service with its outbound calls.
type Operation struct {
	Name      string
	Direction models.Direction
	Type      NodeType
	Calls     []CallDescriptor
}

// upsertLink adds data to the edge toward (toService, toOper), creating it
// when absent.
func (o *Operation) upsertLink(toService, toOper int, data *ChainStats) {
	for i := range o.Calls {
		if o.Calls[i].ToService == toService && o.Calls[i].ToOper == toOper {
			o.Calls[i].Stats.add(data)
			return
		}
	}
	cd := CallDescriptor{ToService: toService, ToOper: toOper}
	cd.Stats.add(data)
	o.Calls = append(o.Calls, cd)
}

func (o *Operation) findLink(toService, toOper int) *CallDescriptor {
	for i := range o.Calls {
		if o.Calls[i].ToService == toService && o.Calls[i].ToOper == toOper {
			return &o.Calls[i]
		}
	}
	return nil
}

// Service is a node group: a service with its operations and its position
// relative to the focus.
type Service struct {
	Name       string
	Type       NodeType
	Position   Position
	Operations []Operation
}

func newService(name string, position Position) *Service {
	nodeType := NodeDefault
	if position == PosCenter {
		nodeType = NodeEmphasized
	}
	return &Service{Name: name, Type: nodeType, Position: position}
}

func (s *Service) addOperation(name string, direction models.Direction) int {
	s.Operations = append(s.Operations, Operation{Name: name, Direction: direction})
	return len(s.Operations) - 1
}

func (s *Service) operationLabel(operIdx int) string {
	return s.Name + "/" + s.Operations[operIdx].Name
}

// loc addresses an operation inside the graph.
type loc struct {
	serviceIdx int
	operIdx    int
}

// ServiceOperGraph is the topology: services each containing operations,
// edges stored on the calling operation.
type ServiceOperGraph struct {
	services []*Service
}

// NewServiceOperGraph returns an empty graph.
func NewServiceOperGraph() *ServiceOperGraph {
	return &ServiceOperGraph{}
}

func (g *ServiceOperGraph) serviceIdx(name string) int {
	for i, s := range g.services {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func (g *ServiceOperGraph) findLoc(call chain.Call) (loc, bool) {
	si := g.serviceIdx(call.Service)
	if si < 0 {
		return loc{}, false
	}
	for oi := range g.services[si].Operations {
		if g.services[si].Operations[oi].Name == call.Operation {
			return loc{si, oi}, true
		}
	}
	return loc{}, false
}

// getCreateLoc finds or inserts the service/operation of call, merging the
// position observation into an existing service.
func (g *ServiceOperGraph) getCreateLoc(call chain.Call, position Position) loc {
	if si := g.serviceIdx(call.Service); si >= 0 {
		service := g.services[si]
		service.Position = service.Position.Merge(position)
		if service.Position == PosCenter {
			service.Type = NodeEmphasized
		}
		for oi := range service.Operations {
			if service.Operations[oi].Name == call.Operation {
				return loc{si, oi}
			}
		}
		return loc{si, service.addOperation(call.Operation, call.Direction)}
	}
	service := newService(call.Service, position)
	oi := service.addOperation(call.Operation, call.Direction)
	g.services = append(g.services, service)
	return loc{len(g.services) - 1, oi}
}

// AddConnection upserts the edge from -> to, annotating both ends with their
// position relative to the focus service, and folds data into the edge
// aggregate.
func (g *ServiceOperGraph) AddConnection(from, to chain.Call, data *ChainStats, focusService string, defaultPos Position) {
	fromPos, toPos := FindPositions(from, to, focusService, defaultPos)
	fromLoc := g.getCreateLoc(from, fromPos)
	toLoc := g.getCreateLoc(to, toPos)
	g.services[fromLoc.serviceIdx].Operations[fromLoc.operIdx].upsertLink(toLoc.serviceIdx, toLoc.operIdx, data)
}

// UpdateLineType raises the display state of an existing edge.
func (g *ServiceOperGraph) UpdateLineType(from, to chain.Call, lineType LinkType) {
	fromLoc, okFrom := g.findLoc(from)
	toLoc, okTo := g.findLoc(to)
	if !okFrom || !okTo {
		log.Debug().Str("from", from.ServiceOper()).Str("to", to.ServiceOper()).Msg("edge not found for line-type update")
		return
	}
	cd := g.services[fromLoc.serviceIdx].Operations[fromLoc.operIdx].findLink(toLoc.serviceIdx, toLoc.operIdx)
	if cd == nil {
		log.Debug().Str("from", from.ServiceOper()).Str("to", to.ServiceOper()).Msg("link not found for line-type update")
		return
	}
	cd.LineType = cd.LineType.Merge(lineType)
}

// UpdateInboundStats folds data into the inbound-path-selected aggregate of
// an existing edge and marks it reachable.
func (g *ServiceOperGraph) UpdateInboundStats(from, to chain.Call, data *ChainStats) {
	fromLoc, okFrom := g.findLoc(from)
	toLoc, okTo := g.findLoc(to)
	if !okFrom || !okTo {
		log.Debug().Str("from", from.ServiceOper()).Str("to", to.ServiceOper()).Msg("edge not found for inbound-path update")
		return
	}
	cd := g.services[fromLoc.serviceIdx].Operations[fromLoc.operIdx].findLink(toLoc.serviceIdx, toLoc.operIdx)
	if cd == nil {
		return
	}
	if cd.InboundStats == nil {
		cd.InboundStats = &EdgeStats{}
	}
	cd.InboundStats.add(data)
	cd.LineType = cd.LineType.Merge(LinkReachable)
}

// EmphasizeServiceOper marks the operation of a "service/operation" label as
// emphasized.
func (g *ServiceOperGraph) EmphasizeServiceOper(serviceOper string) {
	svc, oper, found := strings.Cut(serviceOper, "/")
	if !found {
		return
	}
	l, ok := g.findLoc(chain.Call{Service: svc, Operation: oper})
	if !ok {
		log.Debug().Str("service_oper", serviceOper).Msg("service/operation not found for emphasis")
		return
	}
	g.services[l.serviceIdx].Operations[l.operIdx].Type = NodeEmphasized
}

func (g *ServiceOperGraph) String() string {
	var sb strings.Builder
	for _, s := range g.services {
		fmt.Fprintf(&sb, "%s (pos=%d, opers=%d)\n", s.Name, s.Position, len(s.Operations))
	}
	return sb.String()
}
