package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/backend/chain"
)

// ChainData is one call chain with the statistics used to annotate diagram
// edges.
type ChainData struct {
	FullKey string
	Key     chain.Key
	Rooted  bool
	IsLeaf  bool
	Stats   ChainStats
}

// TracePaths holds the call-chain data grouped by terminating
// service/operation, the common shape of both the single-run and the
// stitched statistics.
type TracePaths map[string][]ChainData

type prefixEntry struct {
	calls chain.CallChain
	count float64
}

// BuildGraph constructs the topology graph around a focus service/operation.
// The statistics contain one chain entry per depth, so the terminal pair of
// every matching chain covers each hop exactly once; edge statistics are
// aggregated from those terminal pairs. Inbound skeleton edges missed by the
// focus filter are supplemented from the counted prefixes with empty stats.
func (tp TracePaths) BuildGraph(serviceOper string) *ServiceOperGraph {
	focusService, _, _ := strings.Cut(serviceOper, "/")
	sog := NewServiceOperGraph()
	prefixes := orderedmap.New[string, *prefixEntry]()

	for _, chains := range tp {
		for i := range chains {
			cd := &chains[i]
			if !strings.Contains(cd.FullKey, serviceOper) {
				continue
			}
			cc := cd.Key.CallChain
			if len(cc) < 2 {
				log.Debug().Str("key", cd.FullKey).Msg("skipping single-step call chain (no link)")
				continue
			}
			focusIdx := focusIndex(cc, serviceOper)

			defaultPos := PosOutbound
			if focusIdx >= 0 && len(cc)-1 <= focusIdx {
				defaultPos = PosInbound
			}
			from, to := cc[len(cc)-2], cc[len(cc)-1]
			sog.AddConnection(from, to, &cd.Stats, focusService, defaultPos)

			if focusIdx >= 0 {
				prefix := cc[:focusIdx+1]
				key := prefixKey(prefix)
				entry, ok := prefixes.Get(key)
				if !ok {
					entry = &prefixEntry{calls: prefix}
					prefixes.Set(key, entry)
				}
				entry.count += cd.Stats.Count
			}
		}
	}

	// make sure the inbound skeleton toward the focus is connected
	empty := &ChainStats{}
	for pair := prefixes.Oldest(); pair != nil; pair = pair.Next() {
		calls := pair.Value.calls
		for i := 0; i+1 < len(calls); i++ {
			sog.AddConnection(calls[i], calls[i+1], empty, focusService, PosInbound)
		}
	}

	return sog
}

func focusIndex(cc chain.CallChain, serviceOper string) int {
	for i, call := range cc {
		if call.ServiceOper() == serviceOper {
			return i
		}
	}
	return -1
}

func prefixKey(calls chain.CallChain) string {
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.ServiceOper()
	}
	return strings.Join(parts, " | ")
}

// Diagram builds the graph for the focus service/operation, optionally
// emphasizes a selected call chain (and marks the chains extending it as
// reachable, aggregating their inbound-path statistics), and renders the
// Mermaid flowchart.
func (tp TracePaths) Diagram(serviceOper, callChainKey string, metric EdgeMetric, scope Scope, compact bool) (string, error) {
	sog := tp.BuildGraph(serviceOper)

	if callChainKey != "" {
		selected, err := chain.ParseKey(callChainKey)
		if err != nil {
			return "", fmt.Errorf("invalid call-chain key: %w", err)
		}
		tp.markInboundPaths(sog, selected.CallChain)
		for i := 0; i+1 < len(selected.CallChain); i++ {
			sog.UpdateLineType(selected.CallChain[i], selected.CallChain[i+1], LinkEmphasized)
		}
	}
	sog.EmphasizeServiceOper(serviceOper)

	return sog.MermaidDiagram(scope, compact, metric), nil
}

// markInboundPaths marks the terminal edge of every chain extending the
// selected chain as reachable and folds its statistics into the edge's
// inbound-path aggregate.
func (tp TracePaths) markInboundPaths(sog *ServiceOperGraph, selected chain.CallChain) {
	for _, chains := range tp {
		for i := range chains {
			cd := &chains[i]
			cc := cd.Key.CallChain
			if len(cc) <= len(selected) || !isCallPrefix(selected, cc) {
				continue
			}
			sog.UpdateInboundStats(cc[len(cc)-2], cc[len(cc)-1], &cd.Stats)
		}
	}
}

func isCallPrefix(prefix, cc chain.CallChain) bool {
	if len(prefix) > len(cc) {
		return false
	}
	for i, call := range prefix {
		if !call.Equal(cc[i]) {
			return false
		}
	}
	return true
}

// WriteDiagram writes a diagram to folder, deriving the file name from the
// focus key with path separators replaced.
func WriteDiagram(folder, serviceOper, diagram string) (string, error) {
	clean := strings.NewReplacer("/", "_", "\\", "_").Replace(serviceOper)
	path := filepath.Join(folder, clean+".mermaid")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(diagram), 0o644)
}
