package viewer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/spanlens/spanlens/backend/chain"
	"github.com/spanlens/spanlens/backend/graph"
	"github.com/spanlens/spanlens/backend/stitch"
	"github.com/spanlens/spanlens/internal/floatfmt"
)

// StitchedDataSet is the viewer over a stitched time series. Selection
// derives a restricted view; the original stays in memory so an all-true
// selection restores it.
type StitchedDataSet struct {
	current  *stitch.Stitched
	original *stitch.Stitched
	labels   []SelectLabel
	pars     stitch.AnomalyParameters
}

// NewStitchedDataSet wraps a stitched dataset with a full selection.
func NewStitchedDataSet(s *stitch.Stitched) *StitchedDataSet {
	ds := &StitchedDataSet{
		current:  s,
		original: s,
		pars:     stitch.DefaultAnomalyParameters,
	}
	for i, label := range sourceLabels(s) {
		ds.labels = append(ds.labels, SelectLabel{Idx: i, Label: label, Selected: true})
	}
	return ds
}

var dateRe = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`)

var monthNames = [...]string{"Jan", "Febr", "March", "April", "May", "June", "July", "Aug", "Sept", "Oct", "Nov", "Dec"}

// sourceLabels derives chart labels from the source descriptions: a
// yyyymmdd substring becomes "Sept-8", anything else the column number.
func sourceLabels(s *stitch.Stitched) []string {
	var labels []string
	idx := 0
	for _, src := range s.Sources {
		if src.Column == nil {
			continue
		}
		idx++
		if m := dateRe.FindStringSubmatch(src.Description); m != nil {
			month := 0
			fmt.Sscanf(m[2], "%d", &month)
			day := strings.TrimPrefix(m[3], "0")
			if month >= 1 && month <= 12 {
				labels = append(labels, monthNames[month-1]+"-"+day)
				continue
			}
		}
		labels = append(labels, fmt.Sprintf("%d", idx))
	}
	return labels
}

func (s *StitchedDataSet) selectedLabels() []string {
	var out []string
	for _, l := range s.labels {
		if l.Selected {
			out = append(out, l.Label)
		}
	}
	return out
}

// IsTimeSeries reports true.
func (s *StitchedDataSet) IsTimeSeries() bool { return true }

func setRank(set stitch.StitchedSet, metric stitch.Metric) float64 {
	line := set.MetricLine(metric)
	if line == nil {
		return defaultRank
	}
	if growth := line.PeriodicGrowth(); growth != nil {
		return *growth
	}
	return defaultRank
}

func setAvgCount(set stitch.StitchedSet) int64 {
	line := set.MetricLine(stitch.MetricCount)
	if line == nil || line.DataAvg == nil {
		return 0
	}
	return int64(math.Round(*line.DataAvg))
}

// ProcessList ranks the service/operations on the periodic growth of the
// metric.
func (s *StitchedDataSet) ProcessList(metric stitch.Metric) []ProcessListItem {
	hasMetric := metric != stitch.MetricNone
	list := make([]ProcessListItem, 0, len(s.current.ServiceOperation))
	for _, entry := range s.current.ServiceOperation {
		rank := defaultRank
		if hasMetric {
			rank = setRank(entry.Set, metric)
		}
		list = append(list, ProcessListItem{
			Key:      entry.Key,
			Display:  entry.Key,
			Rank:     rank,
			AvgCount: setAvgCount(entry.Set),
		})
	}
	return rankAndRenumber(list, hasMetric)
}

// CallChainList ranks the chains around a focus on the periodic growth of
// the metric. For end-to-end listings a non-nil inboundIdx keeps only the
// chains assigned that inbound-prefix index.
func (s *StitchedDataSet) CallChainList(serviceOper string, metric stitch.Metric, scope TraceScope, inboundIdx *int) []ProcessListItem {
	hasMetric := metric != stitch.MetricNone
	var list []ProcessListItem

	if scope == ScopeInbound {
		for _, entry := range s.current.CallChain {
			if entry.Key != serviceOper {
				continue
			}
			for i := range entry.Chains {
				ccd := &entry.Chains[i]
				rank := defaultRank
				if hasMetric {
					rank = setRank(ccd.Data, metric)
				}
				list = append(list, ProcessListItem{
					Key:       ccd.FullKey,
					Display:   ccd.InboundKey,
					Rank:      rank,
					AvgCount:  setAvgCount(ccd.Data),
					ChainType: ccd.ChainType(),
				})
			}
		}
		return rankAndRenumber(list, hasMetric)
	}

	allChains := scope == ScopeAll
	prefixIdx := stitch.NewInboundPrefixIdx(s.current, serviceOper)
	for _, entry := range s.current.CallChain {
		if entry.Key == serviceOper {
			continue // already reported as inbound chains
		}
		for i := range entry.Chains {
			ccd := &entry.Chains[i]
			if !allChains && !ccd.IsLeaf {
				continue
			}
			if !strings.Contains(ccd.FullKey, serviceOper) {
				continue
			}
			idx := prefixIdx.Idx(ccd.FullKey)
			if inboundIdx != nil && idx != *inboundIdx {
				continue
			}
			rank := defaultRank
			if hasMetric {
				rank = setRank(ccd.Data, metric)
			}
			list = append(list, ProcessListItem{
				Key:        ccd.FullKey,
				Display:    ccd.InboundKey,
				Rank:       rank,
				AvgCount:   setAvgCount(ccd.Data),
				ChainType:  ccd.ChainType(),
				InboundIdx: idx,
			})
		}
	}
	return rankAndRenumber(list, hasMetric)
}

// chartData renders one stitched line as chart parameters: the observed
// series plus the fitted trend of the best fit.
func (s *StitchedDataSet) chartData(title, process string, set stitch.StitchedSet, metric stitch.Metric) *ChartData {
	line := set.MetricLine(metric)
	if line == nil {
		return nil
	}

	out := &ChartData{
		Title:   title,
		Process: process,
		Metric:  string(metric),
		Labels:  s.selectedLabels(),
		Lines:   []ChartLine{{Label: "Observed", Data: line.Data}},
	}

	if lr := line.LinReg; lr != nil {
		fit := make([]*float64, len(line.Data))
		for i := range line.Data {
			v := lr.YIntercept + float64(i+1)*lr.Slope
			fit[i] = &v
		}
		out.Lines = append(out.Lines, ChartLine{Label: "Linear fit", Data: fit})
		out.Description = append(out.Description,
			[2]string{"slope", floatfmt.Format(lr.Slope)},
			[2]string{"R_squared", floatfmt.Format(lr.RSquared)})
	}
	if er := line.ExpReg; er != nil && line.BestFit == stitch.FitExponential {
		fit := make([]*float64, len(line.Data))
		for i := range line.Data {
			v := er.Predict(float64(i))
			fit[i] = &v
		}
		out.Lines = append(out.Lines, ChartLine{Label: "Exponential fit", Data: fit})
		out.Description = append(out.Description,
			[2]string{"avg_growth_per_period", floatfmt.Format(er.AvgGrowthPerPeriod)})
	}
	out.Description = append(out.Description, [2]string{"best_fit", string(line.BestFit)})
	return out
}

// ServiceOperChartData returns the chart of one service/operation metric.
func (s *StitchedDataSet) ServiceOperChartData(key string, metric stitch.Metric) *ChartData {
	set := s.current.ServiceOperSet(key)
	if set == nil {
		return nil
	}
	return s.chartData(key, key, set, metric)
}

// CallChainChartData returns the chart of one call-chain metric.
func (s *StitchedDataSet) CallChainChartData(key string, metric stitch.Metric) *ChartData {
	ccd := s.current.FindCallChain(key)
	if ccd == nil {
		return nil
	}
	return s.chartData(ccd.InboundKey, ccd.FullKey, ccd.Data, metric)
}

// FileStats tabulates the basic statistics of the original file list.
func (s *StitchedDataSet) FileStats() (*Table, error) {
	table := &Table{ColumnLabels: sourceLabels(s.original)}
	for i := range s.original.Basic {
		line := &s.original.Basic[i]
		table.Data = append(table.Data, ChartLine{Label: string(line.Metric), Data: line.Data})
	}
	return table, nil
}

// Selection returns the snapshot selection state.
func (s *StitchedDataSet) Selection() ([]SelectLabel, error) {
	return s.labels, nil
}

// SetSelection derives a view restricted to the selected snapshots. An
// all-true vector restores the original; a wrong-length vector is an error.
func (s *StitchedDataSet) SetSelection(selected []bool) error {
	if len(selected) != len(s.labels) {
		return &SelectionLengthError{Got: len(selected), Want: len(s.labels)}
	}
	allTrue := true
	for _, sel := range selected {
		if !sel {
			allTrue = false
			break
		}
	}
	if allTrue {
		s.current = s.original
	} else {
		s.current = s.original.Selection(selected, &s.pars)
	}
	for i, sel := range selected {
		s.labels[i].Selected = sel
	}
	return nil
}

// MermaidDiagram renders the topology around the focus from the stitched
// chain statistics (averages over the selected snapshots).
func (s *StitchedDataSet) MermaidDiagram(serviceOper, callChainKey string, edge graph.EdgeMetric, scope graph.Scope, compact bool) (string, error) {
	paths := make(graph.TracePaths)
	for _, entry := range s.current.CallChain {
		chains := make([]graph.ChainData, 0, len(entry.Chains))
		for i := range entry.Chains {
			ccd := &entry.Chains[i]
			key, err := chain.ParseKey(ccd.FullKey)
			if err != nil {
				return "", err
			}
			count := 0.0
			if line := ccd.Data.MetricLine(stitch.MetricCount); line != nil && line.DataAvg != nil {
				count = *line.DataAvg
			}
			chains = append(chains, graph.ChainData{
				FullKey: ccd.FullKey,
				Key:     key,
				Rooted:  ccd.Rooted,
				IsLeaf:  ccd.IsLeaf,
				Stats: graph.ChainStats{
					Count:             count,
					AvgDurationMillis: lineAvg(ccd.Data, stitch.MetricAvgDurationMillis),
					P75Millis:         lineAvg(ccd.Data, stitch.MetricP75Millis),
					P90Millis:         lineAvg(ccd.Data, stitch.MetricP90Millis),
					P95Millis:         lineAvg(ccd.Data, stitch.MetricP95Millis),
					P99Millis:         lineAvg(ccd.Data, stitch.MetricP99Millis),
				},
			})
		}
		paths[entry.Key] = chains
	}
	return paths.Diagram(serviceOper, callChainKey, edge, scope, compact)
}

func lineAvg(set stitch.StitchedSet, metric stitch.Metric) *float64 {
	if line := set.MetricLine(metric); line != nil {
		return line.DataAvg
	}
	return nil
}
