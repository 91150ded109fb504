package viewer

import (
	"sort"
	"strings"

	"github.com/spanlens/spanlens/backend/graph"
	"github.com/spanlens/spanlens/backend/stats"
	"github.com/spanlens/spanlens/backend/stitch"
)

// TraceDataSet is the viewer over a single analysis run. It has no time
// axis, so chart and selection queries are unavailable.
type TraceDataSet struct {
	data *stats.StatsRec
}

// NewTraceDataSet wraps a stats record.
func NewTraceDataSet(sr *stats.StatsRec) *TraceDataSet {
	return &TraceDataSet{data: sr}
}

// IsTimeSeries reports false: a single run has no time axis.
func (t *TraceDataSet) IsTimeSeries() bool { return false }

// ProcessList ranks the service/operations on the metric's single-run value.
func (t *TraceDataSet) ProcessList(metric stitch.Metric) []ProcessListItem {
	hasMetric := metric != stitch.MetricNone
	var list []ProcessListItem
	for svc, stat := range t.data.Stats {
		for oper, val := range stat.Operation {
			rank := defaultRank
			if hasMetric {
				if v := stitch.ProcOperMetricValue(metric, val, t.data.NumFiles, t.data.NumTraces()); v != nil {
					rank = *v
				}
			}
			key := svc + "/" + oper
			list = append(list, ProcessListItem{
				Key:      key,
				Display:  key,
				Rank:     rank,
				AvgCount: int64(val.Count),
			})
		}
	}
	return rankAndRenumber(list, hasMetric)
}

// chainRows flattens the call-chain entries grouped by terminating
// service/operation.
func (t *TraceDataSet) chainRows() map[string][]*stats.CChainEntry {
	rows := make(map[string][]*stats.CChainEntry)
	for _, stat := range t.data.Stats {
		for _, entry := range stat.CallChain {
			leaf := entry.Key.Leaf()
			rows[leaf] = append(rows[leaf], entry)
		}
	}
	for _, entries := range rows {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Key.String() < entries[j].Key.String()
		})
	}
	return rows
}

func chainType(rooted, isLeaf bool) string {
	switch {
	case rooted && isLeaf:
		return "end2end"
	case rooted:
		return "partial"
	case isLeaf:
		return "unrooted-leaf"
	default:
		return "floating"
	}
}

// CallChainList lists the chains around the focus. Inbound scope lists the
// chains terminating there; end2end lists complete chains running through
// it; all drops the leaf restriction.
func (t *TraceDataSet) CallChainList(serviceOper string, metric stitch.Metric, scope TraceScope, inboundIdx *int) []ProcessListItem {
	hasMetric := metric != stitch.MetricNone
	rows := t.chainRows()
	var list []ProcessListItem

	rankOf := func(entry *stats.CChainEntry) float64 {
		if !hasMetric {
			return defaultRank
		}
		if v := stitch.CallChainMetricValue(metric, entry.Value, t.data.NumFiles, t.data.NumTraces()); v != nil {
			return *v
		}
		return defaultRank
	}

	if scope == ScopeInbound {
		for _, entry := range rows[serviceOper] {
			list = append(list, ProcessListItem{
				Key:       entry.Key.String(),
				Display:   entry.Key.InboundKey(),
				Rank:      rankOf(entry),
				AvgCount:  int64(entry.Value.Count),
				ChainType: chainType(entry.Value.Rooted, entry.Key.IsLeaf),
			})
		}
		return rankAndRenumber(list, hasMetric)
	}

	allChains := scope == ScopeAll
	for leaf, entries := range rows {
		if leaf == serviceOper {
			continue // already reported as inbound chains
		}
		for _, entry := range entries {
			if !allChains && !entry.Key.IsLeaf {
				continue
			}
			keyStr := entry.Key.String()
			if !strings.Contains(keyStr, serviceOper) {
				continue
			}
			list = append(list, ProcessListItem{
				Key:       keyStr,
				Display:   entry.Key.InboundKey(),
				Rank:      rankOf(entry),
				AvgCount:  int64(entry.Value.Count),
				ChainType: chainType(entry.Value.Rooted, entry.Key.IsLeaf),
			})
		}
	}
	_ = inboundIdx // inbound-prefix disambiguation needs a time series dataset
	return rankAndRenumber(list, hasMetric)
}

// ServiceOperChartData returns nil: no time axis.
func (t *TraceDataSet) ServiceOperChartData(string, stitch.Metric) *ChartData { return nil }

// CallChainChartData returns nil: no time axis.
func (t *TraceDataSet) CallChainChartData(string, stitch.Metric) *ChartData { return nil }

// FileStats is unavailable on a single run.
func (t *TraceDataSet) FileStats() (*Table, error) { return nil, ErrNotTimeSeries }

// Selection is unavailable on a single run.
func (t *TraceDataSet) Selection() ([]SelectLabel, error) { return nil, ErrNotTimeSeries }

// SetSelection is unavailable on a single run.
func (t *TraceDataSet) SetSelection([]bool) error { return ErrNotTimeSeries }

// MermaidDiagram renders the topology around the focus from the single-run
// chain statistics.
func (t *TraceDataSet) MermaidDiagram(serviceOper, callChainKey string, edge graph.EdgeMetric, scope graph.Scope, compact bool) (string, error) {
	paths := make(graph.TracePaths)
	for leaf, entries := range t.chainRows() {
		chains := make([]graph.ChainData, 0, len(entries))
		for _, entry := range entries {
			chains = append(chains, graph.ChainData{
				FullKey: entry.Key.String(),
				Key:     entry.Key,
				Rooted:  entry.Value.Rooted,
				IsLeaf:  entry.Key.IsLeaf,
				Stats: graph.ChainStats{
					Count:             float64(entry.Value.Count),
					AvgDurationMillis: f64ptr(entry.Value.AvgMillis()),
					P75Millis:         entry.Value.PercentileMillis(0.75),
					P90Millis:         entry.Value.PercentileMillis(0.90),
					P95Millis:         entry.Value.PercentileMillis(0.95),
					P99Millis:         entry.Value.PercentileMillis(0.99),
				},
			})
		}
		paths[leaf] = chains
	}
	return paths.Diagram(serviceOper, callChainKey, edge, scope, compact)
}

func f64ptr(v float64) *float64 { return &v }
