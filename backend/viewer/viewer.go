// Package viewer is a uniform query façade over either a single analysis
// run (a stats record) or a stitched time series, consumed by the CLI tools
// and the dashboard.
package viewer

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spanlens/spanlens/backend/graph"
	"github.com/spanlens/spanlens/backend/stats"
	"github.com/spanlens/spanlens/backend/stitch"
)

// TraceScope selects which call chains a chain listing covers.
type TraceScope string

const (
	// ScopeInbound lists the chains terminating in the focus.
	ScopeInbound TraceScope = "inbound"
	// ScopeEnd2end lists the complete chains running through the focus.
	ScopeEnd2end TraceScope = "end2end"
	// ScopeAll lists every chain running through the focus.
	ScopeAll TraceScope = "all"
)

// ParseTraceScope resolves a case-insensitive scope name.
func ParseTraceScope(s string) (TraceScope, error) {
	switch strings.ToLower(s) {
	case "inbound":
		return ScopeInbound, nil
	case "end2end":
		return ScopeEnd2end, nil
	case "all":
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("invalid trace scope %q: expected inbound, end2end or all", s)
	}
}

// ProcessListItem is one ranked row of a process or call-chain listing.
type ProcessListItem struct {
	Idx int `json:"idx"`
	// Key is the full key of the row (service/operation or chain key).
	Key string `json:"key"`
	// Display is a compact label; for chains it is not guaranteed unique.
	Display    string  `json:"display"`
	Rank       float64 `json:"rank"`
	AvgCount   int64   `json:"avgCount"`
	ChainType  string  `json:"chainType"`
	InboundIdx int     `json:"inboundIdx"`
}

// ChartLine is one labelled series of a chart.
type ChartLine struct {
	Label string     `json:"label"`
	Data  []*float64 `json:"data"`
}

// ChartData parameterises a time-series chart.
type ChartData struct {
	Title       string      `json:"title"`
	Process     string      `json:"process"`
	Metric      string      `json:"metric"`
	Description [][2]string `json:"description"`
	Labels      []string    `json:"labels"`
	Lines       []ChartLine `json:"lines"`
}

// Table is a column-labelled set of rows.
type Table struct {
	ColumnLabels []string    `json:"columnLabels"`
	Data         []ChartLine `json:"data"`
}

// SelectLabel is one selectable snapshot column.
type SelectLabel struct {
	Idx      int    `json:"idx"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// ErrNotTimeSeries is returned by time-series-only queries on a single-run
// dataset.
var ErrNotTimeSeries = errors.New("operation only exists for time-series data")

// SelectionLengthError reports a selection vector that does not match the
// number of snapshots.
type SelectionLengthError struct {
	Got  int
	Want int
}

func (e *SelectionLengthError) Error() string {
	return fmt.Sprintf("selection contains %d elements while the dataset has %d columns", e.Got, e.Want)
}

// LoadError reports that a file parsed neither as trace stats nor as a
// stitched dataset.
type LoadError struct {
	File        string
	TraceErr    error
	StitchedErr error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed loading %s: not trace stats (%v) and not stitched (%v)", e.File, e.TraceErr, e.StitchedErr)
}

// Viewer is the query surface shared by single-run and stitched datasets.
type Viewer interface {
	// IsTimeSeries reports whether time-series charts are available.
	IsTimeSeries() bool

	// ProcessList returns the ranked service/operation rows.
	ProcessList(metric stitch.Metric) []ProcessListItem

	// CallChainList returns the ranked chains around a focus
	// service/operation. On a stitched dataset a non-nil inboundIdx
	// restricts end-to-end listings to chains sharing that inbound prefix;
	// the single-run dataset ignores it.
	CallChainList(serviceOper string, metric stitch.Metric, scope TraceScope, inboundIdx *int) []ProcessListItem

	// ServiceOperChartData returns chart data for a service/operation, nil
	// outside time series.
	ServiceOperChartData(key string, metric stitch.Metric) *ChartData

	// CallChainChartData returns chart data for a full chain key, nil
	// outside time series.
	CallChainChartData(key string, metric stitch.Metric) *ChartData

	// MermaidDiagram renders the topology around a focus, optionally
	// emphasizing one call chain.
	MermaidDiagram(serviceOper, callChainKey string, edge graph.EdgeMetric, scope graph.Scope, compact bool) (string, error)

	// FileStats tabulates the basic per-snapshot statistics.
	FileStats() (*Table, error)

	// Selection returns the snapshot selection state.
	Selection() ([]SelectLabel, error)

	// SetSelection derives a view restricted to the selected snapshots. An
	// all-true vector restores the original.
	SetSelection(selected []bool) error
}

// Load opens a file as either a single-run or a stitched dataset. The two
// formats share no magic marker, so both parsers are tried; a parse that
// yields no content counts as a failure.
func Load(fileName string) (Viewer, error) {
	if _, err := os.Stat(fileName); err != nil {
		return nil, fmt.Errorf("file %q is not readable: %w", fileName, err)
	}

	sr, traceErr := stats.ReadFile(fileName)
	if traceErr == nil && len(sr.Stats) > 0 {
		return NewTraceDataSet(sr), nil
	}
	if traceErr == nil {
		traceErr = errors.New("parsed, but contains no per-service statistics")
	}

	st, stitchedErr := stitch.ReadFile(fileName)
	if stitchedErr == nil && (len(st.ServiceOperation) > 0 || len(st.Sources) > 0) {
		return NewStitchedDataSet(st), nil
	}
	if stitchedErr == nil {
		stitchedErr = errors.New("parsed, but contains no stitched rows")
	}

	return nil, &LoadError{File: fileName, TraceErr: traceErr, StitchedErr: stitchedErr}
}

const defaultRank = -1.0 // growth not defined

// rankAndRenumber orders a listing: by rank when a metric drives it, else
// lexicographic by key.
func rankAndRenumber(list []ProcessListItem, hasMetric bool) []ProcessListItem {
	if hasMetric {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Rank > list[j].Rank })
	} else {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Key < list[j].Key })
		for i := range list {
			list[i].Rank = float64(len(list) - i)
		}
	}
	for i := range list {
		list[i].Idx = i + 1
	}
	return list
}
