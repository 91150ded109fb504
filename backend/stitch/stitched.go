package stitch

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/backend/stats"
	"github.com/spanlens/spanlens/internal/counted"
)

// AnomalyParameters bound the anomaly detector.
type AnomalyParameters struct {
	ScaledSlopeBound   float64 `json:"scaled_slope_bound"`
	ShortTermWindow    int     `json:"short_term_window"`
	ScaledSTSlopeBound float64 `json:"scaled_st_slope_bound"`
	L1DeviationBound   float64 `json:"l1_deviation_bound"`
}

// DefaultAnomalyParameters are used when no configuration overrides them.
var DefaultAnomalyParameters = AnomalyParameters{
	ScaledSlopeBound:   0.05,
	ShortTermWindow:    5,
	ScaledSTSlopeBound: 0.05,
	L1DeviationBound:   2.0,
}

// Parameters configure a stitch run.
type Parameters struct {
	// DropCount removes services whose total inbound+unknown call count over
	// all snapshots does not exceed it.
	DropCount int
	Anomaly   AnomalyParameters
}

// ServiceOperEntry is the stitched row set of one service/operation.
type ServiceOperEntry struct {
	Key string      `json:"key" msgpack:"key"`
	Set StitchedSet `json:"set" msgpack:"set"`
}

// CallChainData is the stitched row set of one call chain.
type CallChainData struct {
	// FullKey is the canonical textual chain key.
	FullKey string `json:"full_key" msgpack:"full_key"`
	// InboundKey is the compressed inbound-only prefix key.
	InboundKey string `json:"inbound_process_key" msgpack:"inbound_process_key"`
	// Rooted marks chains tracing back to the root of their trace.
	Rooted bool `json:"rooted" msgpack:"rooted"`
	// IsLeaf marks chains that terminate at a leaf span.
	IsLeaf bool        `json:"is_leaf" msgpack:"is_leaf"`
	Data   StitchedSet `json:"data" msgpack:"data"`
}

// ChainType classifies a chain by its rooted/leaf flags.
func (c *CallChainData) ChainType() string {
	switch {
	case c.Rooted && c.IsLeaf:
		return "end2end"
	case c.Rooted:
		return "partial"
	case c.IsLeaf:
		return "unrooted-leaf"
	default:
		return "floating"
	}
}

// CallChainEntry groups the chains terminating in one service/operation.
type CallChainEntry struct {
	Key    string          `json:"key" msgpack:"key"`
	Chains []CallChainData `json:"chains" msgpack:"chains"`
}

// Stitched is the longitudinal transpose of N StatsRec snapshots: aligned
// per-metric time series with trend regressions. Snapshot order follows the
// stitch list; within every line, index i refers to snapshot i.
type Stitched struct {
	Version stats.Version `json:"version" msgpack:"version"`
	// Sources lists the input files, one entry per snapshot plus comments.
	Sources []Source    `json:"sources" msgpack:"sources"`
	Basic   StitchedSet `json:"basic" msgpack:"basic"`
	// ServiceOperation holds one stitched set per service/operation.
	ServiceOperation []ServiceOperEntry `json:"service_operation" msgpack:"service_operation"`
	// CallChain holds, per service/operation, the chains ending there.
	CallChain []CallChainEntry `json:"call_chain" msgpack:"call_chain"`
}

type basicItem struct {
	metric  Metric
	extract func(*stats.StatsRec) *float64
}

func f64(v float64) *float64 { return &v }

var basicReportItems = []basicItem{
	{MetricNumFiles, func(sr *stats.StatsRec) *float64 { return f64(float64(sr.NumFiles)) }},
	{MetricNumTraces, func(sr *stats.StatsRec) *float64 { return f64(float64(sr.NumTraces())) }},
	{MetricNumEndpoints, func(sr *stats.StatsRec) *float64 { return f64(float64(sr.NumEndpoints)) }},
	{MetricNumIncompleteTraces, func(sr *stats.StatsRec) *float64 { return f64(float64(sr.NumIncompleteTraces)) }},
	{MetricNumCallChains, func(sr *stats.StatsRec) *float64 { return f64(float64(sr.NumCallChains)) }},
	{MetricInitNumUnrootedCC, func(sr *stats.StatsRec) *float64 { return f64(float64(sr.InitNumUnrootedCC)) }},
	{MetricNumFixes, func(sr *stats.StatsRec) *float64 { return f64(float64(sr.NumFixes)) }},
	{MetricNumUnrootedCCAfterFixes, func(sr *stats.StatsRec) *float64 { return f64(float64(sr.NumUnrootedCCAfterFixes)) }},
	{MetricRate, func(sr *stats.StatsRec) *float64 { return traceRate(sr) }},
	{MetricMinDurationMillis, func(sr *stats.StatsRec) *float64 { return f64(durations(sr).MinMillis()) }},
	{MetricMedianDurationMillis, func(sr *stats.StatsRec) *float64 { return durations(sr).MedianMillis() }},
	{MetricAvgDurationMillis, func(sr *stats.StatsRec) *float64 { return f64(durations(sr).AvgMillis()) }},
	{MetricMaxDurationMillis, func(sr *stats.StatsRec) *float64 { return f64(durations(sr).MaxMillis()) }},
}

type poItem struct {
	metric  Metric
	extract func(v *stats.ProcOperStatsValue, numFiles, numTraces int) *float64
}

var procOperReportItems = []poItem{
	{MetricCount, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return f64(float64(v.Count)) }},
	{MetricOccurrencePercentage, func(v *stats.ProcOperStatsValue, _, numTraces int) *float64 {
		if numTraces == 0 {
			return nil
		}
		return f64(float64(v.Count) / float64(numTraces))
	}},
	{MetricRate, func(v *stats.ProcOperStatsValue, numFiles, _ int) *float64 { return v.AvgRate(numFiles) }},
	{MetricMinDurationMillis, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return f64(v.MinMillis()) }},
	{MetricMedianDurationMillis, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return v.MedianMillis() }},
	{MetricAvgDurationMillis, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return f64(v.AvgMillis()) }},
	{MetricMaxDurationMillis, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return f64(v.MaxMillis()) }},
	{MetricP75Millis, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return v.PercentileMillis(0.75) }},
	{MetricP90Millis, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return v.PercentileMillis(0.90) }},
	{MetricP95Millis, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return v.PercentileMillis(0.95) }},
	{MetricP99Millis, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return v.PercentileMillis(0.99) }},
	{MetricFracNotHTTPOK, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return f64(v.FracNotHTTPOK()) }},
	{MetricFracErrorLogs, func(v *stats.ProcOperStatsValue, _, _ int) *float64 { return f64(v.FracErrorLogs()) }},
}

type ccItem struct {
	metric  Metric
	extract func(v *stats.CChainStatsValue, numFiles, numTraces int) *float64
}

var callChainReportItems = []ccItem{
	{MetricCount, func(v *stats.CChainStatsValue, _, _ int) *float64 { return f64(float64(v.Count)) }},
	{MetricOccurrencePercentage, func(v *stats.CChainStatsValue, _, numTraces int) *float64 {
		if numTraces == 0 {
			return nil
		}
		return f64(float64(v.Count) / float64(numTraces))
	}},
	{MetricRate, func(v *stats.CChainStatsValue, numFiles, _ int) *float64 { return v.AvgRate(numFiles) }},
	{MetricMinDurationMillis, func(v *stats.CChainStatsValue, _, _ int) *float64 { return f64(v.MinMillis()) }},
	{MetricMedianDurationMillis, func(v *stats.CChainStatsValue, _, _ int) *float64 { return v.MedianMillis() }},
	{MetricAvgDurationMillis, func(v *stats.CChainStatsValue, _, _ int) *float64 { return f64(v.AvgMillis()) }},
	{MetricMaxDurationMillis, func(v *stats.CChainStatsValue, _, _ int) *float64 { return f64(v.MaxMillis()) }},
	{MetricP75Millis, func(v *stats.CChainStatsValue, _, _ int) *float64 { return v.PercentileMillis(0.75) }},
	{MetricP90Millis, func(v *stats.CChainStatsValue, _, _ int) *float64 { return v.PercentileMillis(0.90) }},
	{MetricP95Millis, func(v *stats.CChainStatsValue, _, _ int) *float64 { return v.PercentileMillis(0.95) }},
	{MetricP99Millis, func(v *stats.CChainStatsValue, _, _ int) *float64 { return v.PercentileMillis(0.99) }},
	{MetricFracNotHTTPOK, func(v *stats.CChainStatsValue, _, _ int) *float64 { return f64(v.FracNotHTTPOK()) }},
	{MetricFracErrorLogs, func(v *stats.CChainStatsValue, _, _ int) *float64 { return f64(v.FracErrorLogs()) }},
}

func durations(sr *stats.StatsRec) timeStatsOf {
	return timeStatsOf(sr.DurationMicros)
}

// Build merges the snapshots of a stitch list into an aligned Stitched
// dataset with regressions.
func Build(sl *StitchList, pars *Parameters) (*Stitched, error) {
	data, err := sl.ReadData()
	if err != nil {
		return nil, err
	}

	numDropped := dropLowVolume(data, pars.DropCount)
	if numDropped > 0 {
		log.Info().Int("drop_count", pars.DropCount).Int("dropped", numDropped).
			Msg("dropped low-volume services over all snapshots")
	}

	anomaly := &pars.Anomaly

	basic := make(StitchedSet, 0, len(basicReportItems))
	for _, item := range basicReportItems {
		values := make([]*float64, len(data))
		for i, sr := range data {
			if sr != nil && sr.NumTraces() > 0 {
				values[i] = item.extract(sr)
			}
		}
		basic = append(basic, NewStitchedLine(item.metric, values, anomaly))
	}

	serviceOperation := buildServiceOperation(data, anomaly)
	callChain := buildCallChain(data, anomaly)

	return &Stitched{
		Version:          stats.CurrentVersion,
		Sources:          sl.Sources,
		Basic:            basic,
		ServiceOperation: serviceOperation,
		CallChain:        callChain,
	}, nil
}

func buildServiceOperation(data []*stats.StatsRec, anomaly *AnomalyParameters) []ServiceOperEntry {
	type poKey struct{ service, operation string }
	keySet := make(map[poKey]bool)
	for _, sr := range data {
		if sr == nil {
			continue
		}
		for svc, stat := range sr.Stats {
			for oper := range stat.Operation {
				keySet[poKey{svc, oper}] = true
			}
		}
	}
	keys := make([]poKey, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].service != keys[j].service {
			return keys[i].service < keys[j].service
		}
		return keys[i].operation < keys[j].operation
	})

	out := make([]ServiceOperEntry, 0, len(keys))
	for _, key := range keys {
		set := make(StitchedSet, 0, len(procOperReportItems))
		for _, item := range procOperReportItems {
			values := make([]*float64, len(data))
			for i, sr := range data {
				if sr == nil {
					continue
				}
				stat, ok := sr.Stats[key.service]
				if !ok {
					continue
				}
				val, ok := stat.Operation[key.operation]
				if !ok {
					continue
				}
				values[i] = item.extract(val, sr.NumFiles, sr.NumTraces())
			}
			set = append(set, NewStitchedLine(item.metric, values, anomaly))
		}
		out = append(out, ServiceOperEntry{Key: key.service + "/" + key.operation, Set: set})
	}
	return out
}

func buildCallChain(data []*stats.StatsRec, anomaly *AnomalyParameters) []CallChainEntry {
	type ccInfo struct {
		leafService string
		leaf        string
		inboundKey  string
		isLeaf      bool
		rooted      bool
	}
	infos := make(map[string]*ccInfo)
	for _, sr := range data {
		if sr == nil {
			continue
		}
		for _, stat := range sr.Stats {
			for keyStr, entry := range stat.CallChain {
				info, ok := infos[keyStr]
				if !ok {
					info = &ccInfo{
						leafService: entry.Key.LeafService(),
						leaf:        entry.Key.Leaf(),
						inboundKey:  entry.Key.InboundKey(),
						isLeaf:      entry.Key.IsLeaf,
					}
					infos[keyStr] = info
				}
				if entry.Value.Rooted {
					info.rooted = true
				}
			}
		}
	}

	keys := make([]string, 0, len(infos))
	for k := range infos {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// group by the terminating service/operation, preserving key order
	var out []CallChainEntry
	byLeaf := make(map[string]int)
	for _, keyStr := range keys {
		info := infos[keyStr]

		set := make(StitchedSet, 0, len(callChainReportItems))
		for _, item := range callChainReportItems {
			values := make([]*float64, len(data))
			for i, sr := range data {
				if sr == nil {
					continue
				}
				stat, ok := sr.Stats[info.leafService]
				if !ok {
					continue
				}
				entry, ok := stat.CallChain[keyStr]
				if !ok {
					continue
				}
				values[i] = item.extract(entry.Value, sr.NumFiles, sr.NumTraces())
			}
			set = append(set, NewStitchedLine(item.metric, values, anomaly))
		}

		ccd := CallChainData{
			FullKey:    keyStr,
			InboundKey: info.inboundKey,
			Rooted:     info.rooted,
			IsLeaf:     info.isLeaf,
			Data:       set,
		}
		if idx, ok := byLeaf[info.leaf]; ok {
			out[idx].Chains = append(out[idx].Chains, ccd)
		} else {
			byLeaf[info.leaf] = len(out)
			out = append(out, CallChainEntry{Key: info.leaf, Chains: []CallChainData{ccd}})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// dropLowVolume removes services whose summed received+unknown call count
// over all snapshots does not exceed dropCount. Unknown calls are included
// since they may be inbound calls of corrupted pairs.
func dropLowVolume(data []*stats.StatsRec, dropCount int) int {
	if dropCount <= 0 {
		return 0
	}
	procCount := counted.New[string]()
	for _, sr := range data {
		if sr == nil {
			continue
		}
		for svc, stat := range sr.Stats {
			procCount.AddCount(svc, stat.NumReceivedCalls+stat.NumUnknownCalls)
		}
	}
	numDropped := 0
	for _, sr := range data {
		if sr == nil {
			continue
		}
		for svc := range sr.Stats {
			if procCount.Count(svc) <= dropCount {
				delete(sr.Stats, svc)
				numDropped++
			}
		}
	}
	return numDropped
}

// ServiceOperSet returns the stitched set of a service/operation key.
func (s *Stitched) ServiceOperSet(key string) StitchedSet {
	for i := range s.ServiceOperation {
		if s.ServiceOperation[i].Key == key {
			return s.ServiceOperation[i].Set
		}
	}
	return nil
}

// FindCallChain returns the chain data of a full canonical key.
func (s *Stitched) FindCallChain(fullKey string) *CallChainData {
	for i := range s.CallChain {
		for j := range s.CallChain[i].Chains {
			if s.CallChain[i].Chains[j].FullKey == fullKey {
				return &s.CallChain[i].Chains[j]
			}
		}
	}
	return nil
}

// NumSnapshots returns the number of data columns.
func (s *Stitched) NumSnapshots() int {
	n := 0
	for _, src := range s.Sources {
		if src.Column != nil {
			n++
		}
	}
	return n
}

// Selection derives a new Stitched restricted to the selected snapshot
// columns. The basic set is not carried over; it always refers to the
// original file list.
func (s *Stitched) Selection(selected []bool, pars *AnomalyParameters) *Stitched {
	var sources []Source
	idx := 0
	for _, src := range s.Sources {
		if src.Column == nil {
			continue
		}
		if idx < len(selected) && selected[idx] {
			sources = append(sources, src)
		}
		idx++
	}

	var serviceOperation []ServiceOperEntry
	for _, entry := range s.ServiceOperation {
		if set := entry.Set.Selection(selected, pars); set != nil {
			serviceOperation = append(serviceOperation, ServiceOperEntry{Key: entry.Key, Set: set})
		}
	}

	var callChain []CallChainEntry
	for _, entry := range s.CallChain {
		var chains []CallChainData
		for _, ccd := range entry.Chains {
			if set := ccd.Data.Selection(selected, pars); set != nil {
				chains = append(chains, CallChainData{
					FullKey:    ccd.FullKey,
					InboundKey: ccd.InboundKey,
					Rooted:     ccd.Rooted,
					IsLeaf:     ccd.IsLeaf,
					Data:       set,
				})
			}
		}
		if len(chains) > 0 {
			callChain = append(callChain, CallChainEntry{Key: entry.Key, Chains: chains})
		}
	}

	return &Stitched{
		Version:          s.Version,
		Sources:          sources,
		ServiceOperation: serviceOperation,
		CallChain:        callChain,
	}
}
