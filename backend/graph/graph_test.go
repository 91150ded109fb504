package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlens/spanlens/backend/chain"
	"github.com/spanlens/spanlens/internal/models"
)

func call(service, oper string, dir models.Direction) chain.Call {
	return chain.Call{Service: service, Operation: oper, Direction: dir}
}

func TestPositionMerge(t *testing.T) {
	assert.Equal(t, PosCenter, PosInbound.Merge(PosCenter))
	assert.Equal(t, PosCenter, PosCenter.Merge(PosOutbound))
	assert.Equal(t, PosInboundCenter, PosInbound.Merge(PosInboundCenter))
	assert.Equal(t, PosOutboundCenter, PosOutbound.Merge(PosOutboundCenter))
	assert.Equal(t, PosInbound, PosUnknown.Merge(PosInbound))
	assert.Equal(t, PosInbound, PosInbound.Merge(PosUnknown))
	// conflicting sides keep the first observation
	assert.Equal(t, PosInbound, PosInbound.Merge(PosOutbound))
}

func TestFindPositions(t *testing.T) {
	from := call("a", "x", models.Outbound)
	to := call("b", "y", models.Inbound)

	fp, tp := FindPositions(from, to, "a", PosUnknown)
	assert.Equal(t, PosCenter, fp)
	assert.Equal(t, PosOutboundCenter, tp)

	fp, tp = FindPositions(from, to, "b", PosUnknown)
	assert.Equal(t, PosInboundCenter, fp)
	assert.Equal(t, PosCenter, tp)

	fp, tp = FindPositions(from, to, "c", PosInbound)
	assert.Equal(t, PosInbound, fp)
	assert.Equal(t, PosInbound, tp)
}

func TestLinkTypeMergeOnlyUpgrades(t *testing.T) {
	assert.Equal(t, LinkReachable, LinkDefault.Merge(LinkReachable))
	assert.Equal(t, LinkEmphasized, LinkReachable.Merge(LinkEmphasized))
	assert.Equal(t, LinkEmphasized, LinkEmphasized.Merge(LinkDefault))
}

func TestEdgeAggregation(t *testing.T) {
	g := NewServiceOperGraph()
	avg1, avg2 := 10.0, 30.0
	g.AddConnection(call("a", "x", models.Outbound), call("b", "y", models.Inbound),
		&ChainStats{Count: 1, AvgDurationMillis: &avg1}, "a", PosUnknown)
	g.AddConnection(call("a", "x", models.Outbound), call("b", "y", models.Inbound),
		&ChainStats{Count: 3, AvgDurationMillis: &avg2}, "a", PosUnknown)

	require.Len(t, g.services, 2)
	calls := g.services[0].Operations[0].Calls
	require.Len(t, calls, 1)
	assert.InDelta(t, 4.0, calls[0].Stats.Count, 1e-12)
	// weighted average: (10*1 + 30*3) / 4
	avg := calls[0].Stats.AvgDurationMillis.Value()
	require.NotNil(t, avg)
	assert.InDelta(t, 25.0, *avg, 1e-12)
}

func TestEscapeLabel(t *testing.T) {
	id, escaped := escapeLabel("svc/get (v2)")
	assert.True(t, escaped)
	assert.Equal(t, "svc/get__v2_", id)

	id, escaped = escapeLabel("svc/get")
	assert.False(t, escaped)
	assert.Equal(t, "svc/get", id)
}

// scope filter: with scope=inbound only inbound-side services render and the
// edge toward the outbound service is suppressed
func TestScopeFilter(t *testing.T) {
	g := NewServiceOperGraph()
	// Z --> A --> B (focus) --> C --> D
	g.AddConnection(call("Z", "z", models.Inbound), call("A", "in", models.Inbound), &ChainStats{Count: 1}, "B", PosInbound)
	g.AddConnection(call("A", "in", models.Inbound), call("B", "handle", models.Inbound), &ChainStats{Count: 1}, "B", PosInbound)
	g.AddConnection(call("B", "handle", models.Inbound), call("C", "out", models.Outbound), &ChainStats{Count: 1}, "B", PosOutbound)
	g.AddConnection(call("C", "out", models.Outbound), call("D", "query", models.Outbound), &ChainStats{Count: 1}, "B", PosOutbound)

	inbound := g.MermaidDiagram(ScopeInbound, false, EdgeCount)
	assert.Contains(t, inbound, "subgraph Z")
	assert.Contains(t, inbound, "subgraph A")
	assert.Contains(t, inbound, "subgraph B")
	assert.NotContains(t, inbound, "subgraph C")
	assert.NotContains(t, inbound, "subgraph D")
	assert.Contains(t, inbound, "A/in -->|1| B/handle")
	// the edge into the hidden outbound side is suppressed
	assert.NotContains(t, inbound, "C/out")

	outbound := g.MermaidDiagram(ScopeOutbound, false, EdgeCount)
	assert.NotContains(t, outbound, "subgraph Z")
	assert.NotContains(t, outbound, "subgraph A")
	assert.Contains(t, outbound, "subgraph C")
	assert.Contains(t, outbound, "subgraph D")

	centered := g.MermaidDiagram(ScopeCentered, false, EdgeCount)
	assert.NotContains(t, centered, "subgraph Z")
	assert.NotContains(t, centered, "subgraph D")
	assert.Contains(t, centered, "subgraph A")
	assert.Contains(t, centered, "subgraph B")
	assert.Contains(t, centered, "subgraph C")

	full := g.MermaidDiagram(ScopeFull, false, EdgeCount)
	for _, svc := range []string{"Z", "A", "B", "C", "D"} {
		assert.Contains(t, full, "subgraph "+svc)
	}
}

func TestMermaidEmphasizedLink(t *testing.T) {
	g := NewServiceOperGraph()
	g.AddConnection(call("A", "in", models.Inbound), call("B", "handle", models.Inbound), &ChainStats{Count: 2}, "B", PosInbound)
	g.UpdateLineType(call("A", "in", models.Inbound), call("B", "handle", models.Inbound), LinkEmphasized)

	diagram := g.MermaidDiagram(ScopeFull, false, EdgeCount)
	assert.Contains(t, diagram, "A/in ==>|2| B/handle")
	assert.Contains(t, diagram, "linkStyle 0 stroke:#3333ff")
}

func TestCompactModeMergesEdges(t *testing.T) {
	g := NewServiceOperGraph()
	// two different outbound operations of A call into B
	g.AddConnection(call("A", "get", models.Outbound), call("B", "h1", models.Inbound), &ChainStats{Count: 2}, "A", PosUnknown)
	g.AddConnection(call("A", "post", models.Outbound), call("B", "h2", models.Inbound), &ChainStats{Count: 3}, "A", PosUnknown)

	diagram := g.MermaidDiagram(ScopeFull, true, EdgeCount)
	assert.Contains(t, diagram, "A -->|5| B")
	// only one inter-service link line
	assert.Equal(t, 1, strings.Count(diagram, "-->"))
}

func TestBuildGraphFromPaths(t *testing.T) {
	mk := func(isLeaf bool, count float64, steps ...chain.Call) ChainData {
		key := chain.Key{CallChain: steps, IsLeaf: isLeaf}
		return ChainData{
			FullKey: key.String(),
			Key:     key,
			Rooted:  true,
			IsLeaf:  isLeaf,
			Stats:   ChainStats{Count: count},
		}
	}
	gwRoute := call("gw", "route", models.Inbound)
	svcHandle := call("svc", "handle", models.Inbound)
	dbQuery := call("db", "query", models.Outbound)

	paths := TracePaths{
		"svc/handle": {mk(false, 5, gwRoute, svcHandle)},
		"db/query":   {mk(true, 5, gwRoute, svcHandle, dbQuery)},
	}

	diagram, err := paths.Diagram("svc/handle", "", EdgeCount, ScopeFull, false)
	require.NoError(t, err)
	assert.Contains(t, diagram, "gw/route -->|5| svc/handle")
	assert.Contains(t, diagram, "svc/handle -->|5| db/query")
	// the focus operation is emphasized
	assert.Contains(t, diagram, "style svc/handle fill:#00802b")
}

func TestDiagramEmphasizesSelectedChain(t *testing.T) {
	gwRoute := call("gw", "route", models.Inbound)
	svcHandle := call("svc", "handle", models.Inbound)
	dbQuery := call("db", "query", models.Outbound)

	selected := chain.Key{CallChain: chain.CallChain{gwRoute, svcHandle}}
	full := chain.Key{CallChain: chain.CallChain{gwRoute, svcHandle, dbQuery}, IsLeaf: true}

	paths := TracePaths{
		"svc/handle": {{FullKey: selected.String(), Key: selected, Rooted: true, Stats: ChainStats{Count: 5}}},
		"db/query":   {{FullKey: full.String(), Key: full, Rooted: true, IsLeaf: true, Stats: ChainStats{Count: 5}}},
	}

	diagram, err := paths.Diagram("svc/handle", selected.String(), EdgeCount, ScopeFull, false)
	require.NoError(t, err)
	// the selected hop is emphasized, the extension is reachable
	assert.Contains(t, diagram, "gw/route ==>")
	assert.Contains(t, diagram, "stroke:#3333ff")
	assert.Contains(t, diagram, "stroke:#99ccff")
	// the reachable edge shows aggregate and inbound-path values
	assert.Contains(t, diagram, "svc/handle -->|5/5| db/query")
}
