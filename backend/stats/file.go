package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// The in-memory record holds maps with compound keys; the file form flattens
// the call-chain map to a sequence of entries so any serialiser that
// restricts map keys to strings can handle it.

type operationStatsFile struct {
	Method           map[string]*ProcOperStatsValue `json:"method" msgpack:"method"`
	NumTraces        int                            `json:"num_traces" msgpack:"num_traces"`
	NumReceivedCalls int                            `json:"num_received_calls" msgpack:"num_received_calls"`
	NumOutboundCalls int                            `json:"num_outbound_calls" msgpack:"num_outbound_calls"`
	NumUnknownCalls  int                            `json:"num_unknown_calls" msgpack:"num_unknown_calls"`
	CallChain        []CChainEntry                  `json:"call_chain" msgpack:"call_chain"`
}

type statsRecFile struct {
	Version             *Version                      `json:"version,omitempty" msgpack:"version,omitempty"`
	TraceID             []string                      `json:"trace_id" msgpack:"trace_id"`
	RootCall            []string                      `json:"root_call" msgpack:"root_call"`
	NumSpans            []int                         `json:"num_spans" msgpack:"num_spans"`
	NumFiles            int                           `json:"num_files" msgpack:"num_files"`
	StartDT             []int64                       `json:"start_dt" msgpack:"start_dt"`
	EndDT               []int64                       `json:"end_dt" msgpack:"end_dt"`
	DurationMicros      []int64                       `json:"duration_micros" msgpack:"duration_micros"`
	TimeToRespondMicros []int64                       `json:"time_to_respond_micros" msgpack:"time_to_respond_micros"`
	CachingProcess      []string                      `json:"caching_process" msgpack:"caching_process"`
	Stats               map[string]operationStatsFile `json:"stats" msgpack:"stats"`

	NumEndpoints            int `json:"num_endpoints,omitempty" msgpack:"num_endpoints,omitempty"`
	NumIncompleteTraces     int `json:"num_incomplete_traces,omitempty" msgpack:"num_incomplete_traces,omitempty"`
	NumCallChains           int `json:"num_call_chains,omitempty" msgpack:"num_call_chains,omitempty"`
	InitNumUnrootedCC       int `json:"init_num_unrooted_cc,omitempty" msgpack:"init_num_unrooted_cc,omitempty"`
	NumUnrootedCCAfterFixes int `json:"num_unrooted_cc_after_fixes,omitempty" msgpack:"num_unrooted_cc_after_fixes,omitempty"`
	NumFixes                int `json:"num_fixes,omitempty" msgpack:"num_fixes,omitempty"`
}

func (sr *StatsRec) toFile() *statsRecFile {
	version := sr.Version
	out := &statsRecFile{
		Version:             &version,
		TraceID:             sr.TraceIDs,
		RootCall:            sr.RootCalls,
		NumSpans:            sr.NumSpans,
		NumFiles:            sr.NumFiles,
		StartDT:             timesToMicros(sr.StartTimes),
		EndDT:               timesToMicros(sr.EndTimes),
		DurationMicros:      sr.DurationMicros,
		TimeToRespondMicros: sr.TimeToRespondMicros,
		CachingProcess:      sr.CachingServices,
		Stats:               make(map[string]operationStatsFile, len(sr.Stats)),

		NumEndpoints:            sr.NumEndpoints,
		NumIncompleteTraces:     sr.NumIncompleteTraces,
		NumCallChains:           sr.NumCallChains,
		InitNumUnrootedCC:       sr.InitNumUnrootedCC,
		NumUnrootedCCAfterFixes: sr.NumUnrootedCCAfterFixes,
		NumFixes:                sr.NumFixes,
	}
	for svc, stat := range sr.Stats {
		entries := make([]CChainEntry, 0, len(stat.CallChain))
		for _, entry := range stat.CallChain {
			entries = append(entries, *entry)
		}
		out.Stats[svc] = operationStatsFile{
			Method:           stat.Operation,
			NumTraces:        stat.NumTraces,
			NumReceivedCalls: stat.NumReceivedCalls,
			NumOutboundCalls: stat.NumOutboundCalls,
			NumUnknownCalls:  stat.NumUnknownCalls,
			CallChain:        entries,
		}
	}
	return out
}

func (f *statsRecFile) toStatsRec() *StatsRec {
	version := LegacyVersion
	if f.Version != nil {
		version = *f.Version
	}
	sr := &StatsRec{
		Version:             version,
		TraceIDs:            f.TraceID,
		RootCalls:           f.RootCall,
		NumSpans:            f.NumSpans,
		NumFiles:            f.NumFiles,
		StartTimes:          microsToTimes(f.StartDT),
		EndTimes:            microsToTimes(f.EndDT),
		DurationMicros:      f.DurationMicros,
		TimeToRespondMicros: f.TimeToRespondMicros,
		CachingServices:     f.CachingProcess,
		Stats:               make(map[string]*OperationStats, len(f.Stats)),

		NumEndpoints:            f.NumEndpoints,
		NumIncompleteTraces:     f.NumIncompleteTraces,
		NumCallChains:           f.NumCallChains,
		InitNumUnrootedCC:       f.InitNumUnrootedCC,
		NumUnrootedCCAfterFixes: f.NumUnrootedCCAfterFixes,
		NumFixes:                f.NumFixes,
	}
	for svc, statFile := range f.Stats {
		stat := NewOperationStats()
		stat.Operation = statFile.Method
		if stat.Operation == nil {
			stat.Operation = make(map[string]*ProcOperStatsValue)
		}
		stat.NumTraces = statFile.NumTraces
		stat.NumReceivedCalls = statFile.NumReceivedCalls
		stat.NumOutboundCalls = statFile.NumOutboundCalls
		stat.NumUnknownCalls = statFile.NumUnknownCalls
		for i := range statFile.CallChain {
			entry := statFile.CallChain[i]
			stat.CallChain[entry.Key.String()] = &entry
		}
		sr.Stats[svc] = stat
	}
	return sr
}

func timesToMicros(ts []time.Time) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.UnixMicro()
	}
	return out
}

func microsToTimes(micros []int64) []time.Time {
	out := make([]time.Time, len(micros))
	for i, m := range micros {
		out[i] = time.UnixMicro(m).UTC()
	}
	return out
}

// WriteFile persists the record. The extension selects the format:
// human-readable .json or compact binary .bincode.
func (sr *StatsRec) WriteFile(path string) error {
	var data []byte
	var err error
	switch ext := filepath.Ext(path); ext {
	case ".json":
		data, err = json.MarshalIndent(sr.toFile(), "", "  ")
	case ".bincode":
		data, err = msgpack.Marshal(sr.toFile())
	default:
		return fmt.Errorf("unknown stats-file extension %q on %s", ext, path)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile loads a record, accepting the legacy schema and filling defaults.
func ReadFile(path string) (*StatsRec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f statsRecFile
	switch ext := filepath.Ext(path); ext {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".bincode":
		err = msgpack.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("unknown stats-file extension %q on %s", ext, path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.toStatsRec(), nil
}

// StatsPathFor swaps the extension of a CSV path for the stats-file format.
func StatsPathFor(csvPath, ext string) string {
	return strings.TrimSuffix(csvPath, ".csv") + "." + ext
}
