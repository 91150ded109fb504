// Package reconstruct turns raw trace bundles into reconstructed traces:
// spans with resolved parent indices, derived leaf/rooted flags and unified
// operation names.
package reconstruct

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/backend/ingest"
	"github.com/spanlens/spanlens/internal/models"
	"github.com/spanlens/spanlens/internal/report"
)

// Builder converts raw items to traces using the run configuration.
type Builder struct {
	// TZOffset is added to epoch-microsecond timestamps before conversion;
	// the dumps carry no timezone information.
	TZOffset time.Duration
	// MaxLogMsgLength caps span log messages, with a truncation suffix.
	MaxLogMsgLength int
}

const truncationSuffix = "...TRUNCATED"

// BuildTrace reconstructs a single trace from a raw item.
func (b *Builder) BuildTrace(item *ingest.Item) (*models.Trace, error) {
	raw := &item.Raw
	if len(raw.Spans) == 0 {
		return nil, fmt.Errorf("trace %s contains no spans", raw.TraceID)
	}

	spans, missing, err := b.buildSpans(raw)
	if err != nil {
		return nil, err
	}

	rootCall, responseMicros := rootInfo(spans)
	startMicros, endMicros := duration(raw)

	return &models.Trace{
		TraceID:             raw.TraceID,
		RootCall:            rootCall,
		StartTime:           b.toTime(startMicros),
		EndTime:             b.toTime(endMicros),
		DurationMicros:      endMicros - startMicros,
		TimeToRespondMicros: responseMicros,
		MissingSpanIDs:      missing,
		Spans:               spans,
		SourceFileIdx:       item.SourceFileIdx,
	}, nil
}

// BuildTraces reconstructs all items, skipping and recording the malformed
// ones, and removes duplicate trace ids across input files.
func (b *Builder) BuildTraces(items []ingest.Item) []*models.Trace {
	traces := make([]*models.Trace, 0, len(items))
	for i := range items {
		trace, err := b.BuildTrace(&items[i])
		if err != nil {
			report.Addf(report.Issues, "Skipped trace %s: %v", items[i].Raw.TraceID, err)
			log.Warn().Err(err).Str("trace_id", items[i].Raw.TraceID).Msg("skipping malformed trace")
			continue
		}
		traces = append(traces, trace)
	}
	return Deduplicate(traces)
}

func (b *Builder) toTime(epochMicros int64) time.Time {
	return time.UnixMicro(epochMicros + b.TZOffset.Microseconds()).UTC()
}

func (b *Builder) buildSpans(raw *ingest.RawItem) ([]models.Span, []string, error) {
	procMap, err := BuildProcessMap(raw)
	if err != nil {
		return nil, nil, err
	}

	spans := make([]models.Span, len(raw.Spans))
	for i := range raw.Spans {
		spans[i] = b.buildSpan(&raw.Spans[i], procMap)
	}

	missing, err := addParents(spans, raw.Spans)
	if err != nil {
		return nil, nil, err
	}
	markLeafs(spans)
	markRooted(spans)
	return spans, missing, nil
}

func (b *Builder) buildSpan(js *ingest.RawSpan, procMap map[string]*models.Service) models.Span {
	unified, original := UnifyOperationName(js.OperationName)
	span := models.Span{
		SpanID:            js.SpanID,
		Parent:            models.NoParent,
		OperationName:     unified,
		FullOperationName: original,
		Process:           procMap[js.ProcessID],
		StartTime:         b.toTime(js.StartTime),
		DurationMicros:    js.Duration,
		Kind:              models.Unknown,
		Attributes:        make(map[string]string),
	}

	for _, tag := range js.Tags {
		switch tag.Key {
		case "http.status_code":
			if code, err := tag.GetInt(); err == nil {
				span.HTTPStatusCode = &code
			} else {
				report.Addf(report.Ingest, "Span %s: %v", js.SpanID, err)
			}
		case "span.kind":
			kind, err := tag.GetString()
			if err != nil {
				report.Addf(report.Ingest, "Span %s: %v", js.SpanID, err)
				continue
			}
			span.Kind = models.DirectionFromKind(kind)
			if span.Kind == models.Unknown {
				report.Addf(report.Details, "Invalid value for span.kind observed: %q", kind)
			}
		default:
			span.Attributes[tag.Key] = tag.AsString()
		}
	}

	span.Logs = b.buildLogs(js.Logs)
	return span
}

func (b *Builder) buildLogs(logs []ingest.RawLog) []models.SpanLog {
	if len(logs) == 0 {
		return nil
	}
	out := make([]models.SpanLog, 0, len(logs))
	for _, l := range logs {
		entry := models.SpanLog{TimestampMicros: l.Timestamp}
		for _, field := range l.Fields {
			switch field.Key {
			case "level":
				entry.Level = field.AsString()
			case "message":
				msg := field.AsString()
				if b.MaxLogMsgLength > 0 && len([]rune(msg)) > b.MaxLogMsgLength {
					msg = string([]rune(msg)[:b.MaxLogMsgLength]) + truncationSuffix
				}
				entry.Message = msg
			}
		}
		out = append(out, entry)
	}
	return out
}

// addParents resolves the single parent reference of each span to an index
// in the span list. Unresolvable references are collected; more than one
// reference marks the trace as bad.
func addParents(spans []models.Span, raw []ingest.RawSpan) ([]string, error) {
	var missing []string
	for i := range spans {
		refs := raw[i].References
		switch len(refs) {
		case 0:
			// potential root
		case 1:
			parentID := refs[0].SpanID
			found := false
			for j := range raw {
				if raw[j].SpanID == parentID {
					spans[i].Parent = j
					found = true
					break
				}
			}
			if !found {
				missing = append(missing, parentID)
			}
		default:
			return nil, fmt.Errorf("span %q has %d parent references", raw[i].SpanID, len(refs))
		}
	}
	return missing, nil
}

// markLeafs sets IsLeaf on every span in a single linear pass: a span is a
// leaf iff no other span names it as parent.
func markLeafs(spans []models.Span) {
	isLeaf := make([]bool, len(spans))
	for i := range isLeaf {
		isLeaf[i] = true
	}
	for i := range spans {
		if p := spans[i].Parent; p != models.NoParent {
			isLeaf[p] = false
		}
	}
	for i := range spans {
		spans[i].IsLeaf = isLeaf[i]
	}
}

// markRooted flags every span whose parent chain reaches the span at index
// 0, provided that span has no parent itself. The walk is iterative with
// memoization of spans already known to be rooted.
func markRooted(spans []models.Span) {
	if spans[0].Parent != models.NoParent {
		log.Warn().Int("parent", spans[0].Parent).Msg("could not find root at index 0")
		return
	}
	spans[0].Rooted = true

	path := make([]int, 0, 16)
	for idx := range spans {
		path = path[:0]
		cur := idx
		for !spans[cur].Rooted && spans[cur].Parent != models.NoParent {
			path = append(path, cur)
			cur = spans[cur].Parent
		}
		if spans[cur].Rooted {
			for _, i := range path {
				spans[i].Rooted = true
			}
		}
	}
}

// rootInfo returns the root-call label and the duration of the parent-less
// span.
func rootInfo(spans []models.Span) (string, int64) {
	for i := range spans {
		if spans[i].Parent == models.NoParent {
			return spans[i].ProcessName() + "/" + spans[i].OperationName, spans[i].DurationMicros
		}
	}
	return "", 0
}

// duration computes the envelope over all spans: earliest start and latest
// start+duration.
func duration(raw *ingest.RawItem) (startMicros, endMicros int64) {
	startMicros = raw.Spans[0].StartTime
	endMicros = raw.Spans[0].StartTime + raw.Spans[0].Duration
	for _, s := range raw.Spans[1:] {
		if s.StartTime < startMicros {
			startMicros = s.StartTime
		}
		if end := s.StartTime + s.Duration; end > endMicros {
			endMicros = end
		}
	}
	return startMicros, endMicros
}

// Deduplicate removes traces whose trace id was seen before. Bundles from
// overlapping query windows contain the same trace more than once, which
// would inflate the statistics.
func Deduplicate(traces []*models.Trace) []*models.Trace {
	seen := make(map[string]bool, len(traces))
	var duplicates []string
	out := traces[:0]
	for _, tr := range traces {
		if seen[tr.TraceID] {
			duplicates = append(duplicates, tr.TraceID)
			continue
		}
		seen[tr.TraceID] = true
		out = append(out, tr)
	}
	if len(duplicates) > 0 {
		report.Addf(report.Summary, "Removed %d duplicates: list of %d traces reduced to %d", len(duplicates), len(traces), len(out))
		report.Addf(report.Details, "Removed duplicate trace-ids: %v", duplicates)
	}
	return out
}

// ParentChain walks the parent links of the span at idx and returns the
// span indices ordered from the root toward the span.
func ParentChain(spans []models.Span, idx int) []int {
	var rev []int
	for cur := idx; cur != models.NoParent; cur = spans[cur].Parent {
		rev = append(rev, cur)
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}
