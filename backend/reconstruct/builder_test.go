package reconstruct

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlens/spanlens/backend/ingest"
	"github.com/spanlens/spanlens/internal/models"
)

func processJSON(t *testing.T, serviceName string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"serviceName": serviceName,
		"tags": []map[string]any{
			{"key": "hostname", "type": "string", "value": "host-1"},
			{"key": "ip", "type": "string", "value": "10.0.0.1"},
			{"key": "jaeger.version", "type": "string", "value": "Go-2.30.0"},
		},
	})
	require.NoError(t, err)
	return raw
}

func rawSpan(id string, refs []string, process string, start, duration int64) ingest.RawSpan {
	references := make([]ingest.RawReference, len(refs))
	for i, ref := range refs {
		references[i] = ingest.RawReference{RefType: "CHILD_OF", TraceID: "t1", SpanID: ref}
	}
	return ingest.RawSpan{
		TraceID:       "t1",
		SpanID:        id,
		OperationName: "op-" + id,
		References:    references,
		StartTime:     start,
		Duration:      duration,
		ProcessID:     process,
	}
}

func buildItem(t *testing.T, spans ...ingest.RawSpan) *ingest.Item {
	t.Helper()
	return &ingest.Item{
		Raw: ingest.RawItem{
			TraceID: "t1",
			Spans:   spans,
			Processes: map[string]json.RawMessage{
				"p1": processJSON(t, "svc-a"),
			},
		},
	}
}

func TestParentResolution(t *testing.T) {
	b := &Builder{}
	trace, err := b.BuildTrace(buildItem(t,
		rawSpan("A", nil, "p1", 1000, 500),
		rawSpan("B", []string{"A"}, "p1", 1100, 300),
		rawSpan("C", []string{"B"}, "p1", 1200, 100),
	))
	require.NoError(t, err)
	require.Len(t, trace.Spans, 3)

	assert.Equal(t, models.NoParent, trace.Spans[0].Parent)
	assert.Equal(t, 0, trace.Spans[1].Parent)
	assert.Equal(t, 1, trace.Spans[2].Parent)

	assert.False(t, trace.Spans[0].IsLeaf)
	assert.False(t, trace.Spans[1].IsLeaf)
	assert.True(t, trace.Spans[2].IsLeaf)

	for _, span := range trace.Spans {
		assert.True(t, span.Rooted)
	}
	assert.True(t, trace.Complete())
	assert.Equal(t, "svc-a/op-A", trace.RootCall)
}

func TestMissingParent(t *testing.T) {
	b := &Builder{}
	trace, err := b.BuildTrace(buildItem(t,
		rawSpan("A", nil, "p1", 1000, 500),
		rawSpan("B", []string{"X"}, "p1", 1100, 300),
	))
	require.NoError(t, err)

	assert.Equal(t, models.NoParent, trace.Spans[0].Parent)
	assert.Equal(t, models.NoParent, trace.Spans[1].Parent)
	assert.Equal(t, []string{"X"}, trace.MissingSpanIDs)
	assert.False(t, trace.Complete())

	assert.True(t, trace.Spans[0].Rooted)
	assert.False(t, trace.Spans[1].Rooted)
}

func TestMultipleReferencesIsFatal(t *testing.T) {
	b := &Builder{}
	_, err := b.BuildTrace(buildItem(t,
		rawSpan("A", nil, "p1", 1000, 500),
		rawSpan("B", []string{"A", "A"}, "p1", 1100, 300),
	))
	assert.Error(t, err)
}

func TestDurationEnvelope(t *testing.T) {
	b := &Builder{}
	trace, err := b.BuildTrace(buildItem(t,
		rawSpan("A", nil, "p1", 1000, 500),
		rawSpan("B", []string{"A"}, "p1", 900, 800),
	))
	require.NoError(t, err)

	// envelope: min(start) = 900, max(start+duration) = 1700
	assert.Equal(t, int64(800), trace.DurationMicros)
	assert.Equal(t, int64(500), trace.TimeToRespondMicros)
	assert.Equal(t, time.UnixMicro(900).UTC(), trace.StartTime)
	assert.Equal(t, time.UnixMicro(1700).UTC(), trace.EndTime)
}

func TestTimezoneOffsetApplied(t *testing.T) {
	b := &Builder{TZOffset: 2 * time.Hour}
	trace, err := b.BuildTrace(buildItem(t, rawSpan("A", nil, "p1", 0, 100)))
	require.NoError(t, err)
	assert.Equal(t, time.UnixMicro(0).Add(2*time.Hour).UTC(), trace.Spans[0].StartTime)
}

func TestTagPromotion(t *testing.T) {
	span := rawSpan("A", nil, "p1", 1000, 500)
	span.Tags = []ingest.RawTag{
		{Key: "span.kind", Type: "string", Value: "server"},
		{Key: "http.status_code", Type: "int64", Value: float64(503)},
		{Key: "http.method", Type: "string", Value: "GET"},
	}
	b := &Builder{}
	trace, err := b.BuildTrace(buildItem(t, span))
	require.NoError(t, err)

	got := trace.Spans[0]
	assert.Equal(t, models.Inbound, got.Kind)
	require.NotNil(t, got.HTTPStatusCode)
	assert.Equal(t, 503, *got.HTTPStatusCode)
	assert.Equal(t, "GET", got.Attributes["http.method"])
}

func TestLogTruncation(t *testing.T) {
	span := rawSpan("A", nil, "p1", 1000, 500)
	span.Logs = []ingest.RawLog{{
		Timestamp: 1234,
		Fields: []ingest.RawTag{
			{Key: "level", Type: "string", Value: "ERROR"},
			{Key: "message", Type: "string", Value: "0123456789abcdef"},
		},
	}}
	b := &Builder{MaxLogMsgLength: 10}
	trace, err := b.BuildTrace(buildItem(t, span))
	require.NoError(t, err)

	require.Len(t, trace.Spans[0].Logs, 1)
	assert.Equal(t, "ERROR", trace.Spans[0].Logs[0].Level)
	assert.Equal(t, "0123456789...TRUNCATED", trace.Spans[0].Logs[0].Message)
}

func TestBuildProcessMapMalformed(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"serviceName": 42, "tags": []any{}})
	require.NoError(t, err)
	item := &ingest.RawItem{Processes: map[string]json.RawMessage{"p1": raw}}
	_, err = BuildProcessMap(item)
	assert.Error(t, err)
}

func TestDeduplicate(t *testing.T) {
	traces := []*models.Trace{
		{TraceID: "a"},
		{TraceID: "b"},
		{TraceID: "a"},
	}
	out := Deduplicate(traces)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].TraceID)
	assert.Equal(t, "b", out[1].TraceID)
}

func TestUnifyOperationName(t *testing.T) {
	tests := []struct {
		in       string
		expect   string
		replaced bool
	}{
		{"/api/accounts/12345678/balance", "/api/accounts/{ACCOUNT}/balance", true},
		{"/api/T2023-07-18_12345", "/api/{TIME}", true},
		{"/docs/2023-07-18_12345", "/docs/{TIME2}", true},
		{"/item/0f8fad5b-d9cb-469f-a165-70867728950e", "/item/{SAVINGS}", true},
		{"/plain/path", "/plain/path", false},
	}
	for _, tc := range tests {
		unified, original := UnifyOperationName(tc.in)
		assert.Equal(t, tc.expect, unified, tc.in)
		if tc.replaced {
			assert.Equal(t, tc.in, original)
		} else {
			assert.Empty(t, original)
		}
	}
}
