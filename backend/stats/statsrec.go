// Package stats folds reconstructed traces into per-run statistics records:
// per service, per (service, operation) and per call chain.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/spanlens/spanlens/backend/chain"
	"github.com/spanlens/spanlens/backend/reconstruct"
	"github.com/spanlens/spanlens/internal/models"
)

// Version tags serialised statistics records; legacy files are up-converted
// on load.
type Version struct {
	Major uint16 `json:"major" msgpack:"major"`
	Minor uint16 `json:"minor" msgpack:"minor"`
}

// CurrentVersion is written by this revision of the serialisation schema.
var CurrentVersion = Version{Major: 0, Minor: 3}

// LegacyVersion is assumed for files without a version field.
var LegacyVersion = Version{Major: 0, Minor: 2}

// OperationStats holds everything recorded for one service: call-direction
// counters, the per-operation map and the per-call-chain map.
type OperationStats struct {
	// Operation maps operation name to its aggregate.
	Operation map[string]*ProcOperStatsValue
	// NumTraces counts distinct traces that touch this service.
	NumTraces int
	// NumReceivedCalls counts inbound spans of this service.
	NumReceivedCalls int
	// NumOutboundCalls counts outbound spans of this service.
	NumOutboundCalls int
	// NumUnknownCalls covers spans without a kind, typically one half of a
	// corrupted call pair.
	NumUnknownCalls int
	// CallChain maps the canonical chain key to its entry.
	CallChain map[string]*CChainEntry
}

// NewOperationStats returns an empty per-service record.
func NewOperationStats() *OperationStats {
	return &OperationStats{
		Operation: make(map[string]*ProcOperStatsValue),
		CallChain: make(map[string]*CChainEntry),
	}
}

// StatsRec is the aggregate of a single analysis run.
type StatsRec struct {
	Version   Version
	TraceIDs  []string
	RootCalls []string
	NumSpans  []int
	// NumFiles corrects the rate estimate for gaps between input files.
	NumFiles            int
	StartTimes          []time.Time
	EndTimes            []time.Time
	DurationMicros      []int64
	TimeToRespondMicros []int64
	CachingServices     []string
	// Stats maps service name to its record.
	Stats map[string]*OperationStats

	NumEndpoints            int
	NumIncompleteTraces     int
	NumCallChains           int
	InitNumUnrootedCC       int
	NumUnrootedCCAfterFixes int
	NumFixes                int
}

// NewStatsRec returns an empty record for the given caching services.
func NewStatsRec(cachingServices []string, numFiles int) *StatsRec {
	return &StatsRec{
		Version:         CurrentVersion,
		NumFiles:        numFiles,
		CachingServices: append([]string(nil), cachingServices...),
		Stats:           make(map[string]*OperationStats),
	}
}

// NumTraces returns the number of traces folded into this record.
func (sr *StatsRec) NumTraces() int {
	return len(sr.TraceIDs)
}

// ExtendStatistics folds one trace into the record. With rootedOnly set,
// spans that do not trace back to the root are skipped. Each trace counts at
// most once per service and per (service, operation), regardless of how
// often it hits them.
func (sr *StatsRec) ExtendStatistics(trace *models.Trace, rootedOnly bool) {
	sr.TraceIDs = append(sr.TraceIDs, trace.TraceID)
	sr.RootCalls = append(sr.RootCalls, trace.RootCall)
	sr.NumSpans = append(sr.NumSpans, len(trace.Spans))
	sr.StartTimes = append(sr.StartTimes, trace.StartTime)
	sr.EndTimes = append(sr.EndTimes, trace.EndTime)
	sr.DurationMicros = append(sr.DurationMicros, trace.DurationMicros)
	sr.TimeToRespondMicros = append(sr.TimeToRespondMicros, trace.TimeToRespondMicros)
	if !trace.Complete() {
		sr.NumIncompleteTraces++
	}

	spans := trace.Spans
	procUsed := make(map[string]bool)
	procOperUsed := make(map[[2]string]bool)

	for idx := range spans {
		span := &spans[idx]
		if rootedOnly && !span.Rooted {
			continue
		}
		proc := span.ProcessName()
		procUsed[proc] = true
		procOperUsed[[2]string{proc, span.OperationName}] = true

		stat, ok := sr.Stats[proc]
		if !ok {
			stat = NewOperationStats()
			sr.Stats[proc] = stat
		}
		sr.updateSpan(stat, idx, spans)
	}

	for proc := range procUsed {
		if stat, ok := sr.Stats[proc]; ok {
			stat.NumTraces++
		}
	}
	for po := range procOperUsed {
		if stat, ok := sr.Stats[po[0]]; ok {
			if oper, ok := stat.Operation[po[1]]; ok {
				oper.NumTraces++
			}
		}
	}
}

func (sr *StatsRec) updateSpan(stat *OperationStats, idx int, spans []models.Span) {
	span := &spans[idx]
	switch span.Kind {
	case models.Inbound:
		stat.NumReceivedCalls++
	case models.Outbound:
		stat.NumOutboundCalls++
	default:
		stat.NumUnknownCalls++
	}

	durationMicros := span.DurationMicros
	startMicros := span.StartTime.UnixMicro()
	httpNotOK, errorLogs := spanErrorInfo(span)

	oper, ok := stat.Operation[span.OperationName]
	if !ok {
		oper = newProcOperStatsValue()
		stat.Operation[span.OperationName] = oper
	}
	oper.update(durationMicros, startMicros, httpNotOK, errorLogs)

	cc := callChainOf(spans, idx)
	ccHTTPNotOK, ccErrorLogs := chainErrorInfo(spans, idx)
	key := chain.Key{
		CallChain:      cc,
		CachingService: chain.CachingServiceLabel(sr.CachingServices, cc),
		IsLeaf:         span.IsLeaf,
	}
	keyStr := key.String()
	entry, ok := stat.CallChain[keyStr]
	if !ok {
		entry = &CChainEntry{
			Key:   key,
			Value: newCChainStatsValue(len(cc), duplicateServices(cc), span.Rooted),
		}
		stat.CallChain[keyStr] = entry
	}
	entry.Value.update(durationMicros, startMicros, ccHTTPNotOK, ccErrorLogs)
}

// callChainOf maps the parent chain of the span at idx to calls from the
// root toward the span.
func callChainOf(spans []models.Span, idx int) chain.CallChain {
	indices := reconstruct.ParentChain(spans, idx)
	cc := make(chain.CallChain, len(indices))
	for i, spanIdx := range indices {
		s := &spans[spanIdx]
		cc[i] = chain.Call{
			Service:   s.ProcessName(),
			Operation: s.OperationName,
			Direction: s.Kind,
		}
	}
	return cc
}

// spanErrorInfo returns the non-200 status codes and ERROR log messages of a
// single span.
func spanErrorInfo(span *models.Span) ([]int, []string) {
	var codes []int
	if code, notOK := span.HTTPNotOK(); notOK {
		codes = append(codes, code)
	}
	return codes, span.ErrorLogs()
}

// chainErrorInfo collects the error information over the full parent chain
// of the span at idx.
func chainErrorInfo(spans []models.Span, idx int) ([]int, []string) {
	var codes []int
	var logs []string
	for _, spanIdx := range reconstruct.ParentChain(spans, idx) {
		c, l := spanErrorInfo(&spans[spanIdx])
		codes = append(codes, c...)
		logs = append(logs, l...)
	}
	return codes, logs
}

// duplicateServices returns services that appear more than once
// non-adjacently on the chain. The scan starts two steps ahead so a service
// calling itself (or repeated transport hops) does not register as a loop.
func duplicateServices(cc chain.CallChain) []string {
	var duplicates []string
outer:
	for idx := range cc {
		svc := cc[idx].Service
		for _, d := range duplicates {
			if d == svc {
				continue outer
			}
		}
		for j := idx + 2; j < len(cc); j++ {
			if cc[j].Service == svc {
				duplicates = append(duplicates, svc)
				break
			}
		}
	}
	return duplicates
}

// CallChainKeys returns the canonical key of every chain in the record.
func (sr *StatsRec) CallChainKeys() []chain.Key {
	var keys []chain.Key
	for _, stat := range sr.Stats {
		for _, entry := range stat.CallChain {
			keys = append(keys, entry.Key)
		}
	}
	return keys
}

// CallChainSorted returns the sorted canonical keys of all chains.
func (sr *StatsRec) CallChainSorted() []string {
	var keys []string
	for _, stat := range sr.Stats {
		for keyStr := range stat.CallChain {
			keys = append(keys, keyStr)
		}
	}
	sort.Strings(keys)
	return keys
}

// ServiceOperList returns the sorted "service/operation" labels present in
// the record.
func (sr *StatsRec) ServiceOperList() []string {
	var out []string
	for proc, stat := range sr.Stats {
		for oper := range stat.Operation {
			out = append(out, proc+"/"+oper)
		}
	}
	sort.Strings(out)
	return out
}

// CountCallChains returns the total number of chain keys and how many of
// them are unrooted.
func (sr *StatsRec) CountCallChains() (total, unrooted int) {
	for _, stat := range sr.Stats {
		for _, entry := range stat.CallChain {
			total++
			if !entry.Value.Rooted {
				unrooted++
			}
		}
	}
	return total, unrooted
}

// sortedServices returns the service keys in lexical order.
func (sr *StatsRec) sortedServices() []string {
	keys := make([]string, 0, len(sr.Stats))
	for k := range sr.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// rootCallStats summarises how often each root call occurs.
func rootCallStats(rootCalls []string) string {
	counts := make(map[string]int)
	for _, rc := range rootCalls {
		counts[rc]++
	}
	type kv struct {
		call  string
		count int
	}
	data := make([]kv, 0, len(counts))
	for call, count := range counts {
		data = append(data, kv{call, count})
	}
	sort.Slice(data, func(i, j int) bool {
		if data[i].count != data[j].count {
			return data[i].count > data[j].count
		}
		return data[i].call < data[j].call
	})
	parts := make([]string, len(data))
	for i, d := range data {
		parts[i] = fmt.Sprintf("%s: %d", d.call, d.count)
	}
	return fmt.Sprintf("%v", parts)
}
