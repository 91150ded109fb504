package models

import (
	"time"
)

// Trace is a single reconstructed trace: an ordered span list forming a
// forest via parent indices. A non-empty MissingSpanIDs marks the trace as
// incomplete: some span referenced a parent that is not part of the bundle.
type Trace struct {
	TraceID string `json:"trace_id"`
	// RootCall labels the external entry point as "service/operation" of the
	// parent-less span.
	RootCall string    `json:"root_call"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// DurationMicros covers the full envelope from earliest start to latest end.
	DurationMicros int64 `json:"duration_micros"`
	// TimeToRespondMicros is the duration of the root span; work may continue
	// after the response is returned.
	TimeToRespondMicros int64    `json:"time_to_respond_micros"`
	MissingSpanIDs      []string `json:"missing_span_ids,omitempty"`
	Spans               []Span   `json:"spans"`
	// SourceFileIdx identifies the input file this trace was read from.
	SourceFileIdx int `json:"source_file_idx"`
}

// Complete reports whether all parent references were resolved.
func (t *Trace) Complete() bool {
	return len(t.MissingSpanIDs) == 0
}

// EndpointKey derives the catalogue / file key for this trace's entry point
// by replacing characters that do not survive in file names.
func (t *Trace) EndpointKey() string {
	return EndpointKey(t.RootCall)
}

// EndpointKey translates a root-call label into a file-safe endpoint key.
func EndpointKey(rootCall string) string {
	out := []rune(rootCall)
	for i, r := range out {
		switch r {
		case '/', '\\', ';', ':':
			out[i] = '_'
		}
	}
	return string(out)
}
