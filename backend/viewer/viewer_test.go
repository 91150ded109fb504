package viewer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlens/spanlens/backend/chain"
	"github.com/spanlens/spanlens/backend/graph"
	"github.com/spanlens/spanlens/backend/stats"
	"github.com/spanlens/spanlens/backend/stitch"
	"github.com/spanlens/spanlens/internal/models"
)

func snapshot(t *testing.T, durMicros int64) *stats.StatsRec {
	t.Helper()
	sr := stats.NewStatsRec(nil, 1)
	sr.TraceIDs = []string{"t1", "t2"}
	sr.RootCalls = []string{"gw/route", "gw/route"}
	sr.NumSpans = []int{2, 2}
	sr.StartTimes = []time.Time{time.UnixMicro(0), time.UnixMicro(1_000_000)}
	sr.EndTimes = []time.Time{time.UnixMicro(durMicros), time.UnixMicro(1_000_000 + durMicros)}
	sr.DurationMicros = []int64{durMicros, durMicros}
	sr.TimeToRespondMicros = []int64{durMicros, durMicros}

	gw := stats.NewOperationStats()
	gw.NumTraces = 2
	gw.NumReceivedCalls = 2
	gw.Operation["route"] = &stats.ProcOperStatsValue{
		Count:          2,
		NumTraces:      2,
		DurationMicros: []int64{durMicros, durMicros},
		StartMicros:    []int64{0, 1_000_000},
	}
	rootKey := chain.Key{
		CallChain: chain.CallChain{{Service: "gw", Operation: "route", Direction: models.Inbound}},
	}
	gw.CallChain[rootKey.String()] = &stats.CChainEntry{
		Key: rootKey,
		Value: &stats.CChainStatsValue{
			Count:          2,
			Depth:          1,
			DurationMicros: []int64{durMicros, durMicros},
			StartMicros:    []int64{0, 1_000_000},
			Rooted:         true,
		},
	}
	sr.Stats["gw"] = gw

	svc := stats.NewOperationStats()
	svc.NumTraces = 2
	svc.NumReceivedCalls = 2
	svc.Operation["handle"] = &stats.ProcOperStatsValue{
		Count:          2,
		NumTraces:      2,
		DurationMicros: []int64{durMicros, durMicros},
		StartMicros:    []int64{0, 1_000_000},
	}
	leafKey := chain.Key{
		CallChain: chain.CallChain{
			{Service: "gw", Operation: "route", Direction: models.Inbound},
			{Service: "svc", Operation: "handle", Direction: models.Inbound},
		},
		IsLeaf: true,
	}
	svc.CallChain[leafKey.String()] = &stats.CChainEntry{
		Key: leafKey,
		Value: &stats.CChainStatsValue{
			Count:          2,
			Depth:          2,
			DurationMicros: []int64{durMicros, durMicros},
			StartMicros:    []int64{0, 1_000_000},
			Rooted:         true,
		},
	}
	sr.Stats["svc"] = svc
	return sr
}

func stitchedSet(t *testing.T, durs ...int64) *stitch.Stitched {
	t.Helper()
	dir := t.TempDir()
	list := ""
	for i, dur := range durs {
		name := filepath.Join(dir, "run"+string(rune('a'+i))+".json")
		require.NoError(t, snapshot(t, dur).WriteFile(name))
		list += filepath.Base(name) + "\n"
	}
	listPath := filepath.Join(dir, "input.stitch")
	require.NoError(t, os.WriteFile(listPath, []byte(list), 0o644))
	sl, err := stitch.ReadStitchList(listPath)
	require.NoError(t, err)
	stitched, err := stitch.Build(sl, &stitch.Parameters{Anomaly: stitch.DefaultAnomalyParameters})
	require.NoError(t, err)
	return stitched
}

func TestLoadDiscriminatesFormats(t *testing.T) {
	dir := t.TempDir()

	statsPath := filepath.Join(dir, "stats.json")
	require.NoError(t, snapshot(t, 10_000).WriteFile(statsPath))
	view, err := Load(statsPath)
	require.NoError(t, err)
	assert.False(t, view.IsTimeSeries())

	stitchedPath := filepath.Join(dir, "stitched.json")
	require.NoError(t, stitchedSet(t, 10_000, 20_000).WriteFile(stitchedPath))
	view, err = Load(stitchedPath)
	require.NoError(t, err)
	assert.True(t, view.IsTimeSeries())

	garbagePath := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbagePath, []byte("{oops"), 0o644))
	_, err = Load(garbagePath)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)

	_, err = Load(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)
}

func TestTraceDataSetProcessList(t *testing.T) {
	ds := NewTraceDataSet(snapshot(t, 10_000))
	list := ds.ProcessList(stitch.MetricNone)
	require.Len(t, list, 2)
	// lexicographic without a metric
	assert.Equal(t, "gw/route", list[0].Key)
	assert.Equal(t, 1, list[0].Idx)
	assert.Equal(t, "svc/handle", list[1].Key)

	ranked := ds.ProcessList(stitch.MetricCount)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(2), ranked[0].AvgCount)
}

func TestTraceDataSetCallChainList(t *testing.T) {
	ds := NewTraceDataSet(snapshot(t, 10_000))

	inbound := ds.CallChainList("svc/handle", stitch.MetricNone, ScopeInbound, nil)
	require.Len(t, inbound, 1)
	assert.Equal(t, "end2end", inbound[0].ChainType)

	end2end := ds.CallChainList("gw/route", stitch.MetricNone, ScopeEnd2end, nil)
	require.Len(t, end2end, 1)
	assert.Contains(t, end2end[0].Key, "svc/handle")

	all := ds.CallChainList("gw/route", stitch.MetricNone, ScopeAll, nil)
	assert.Len(t, all, 1)
}

func TestTraceDataSetTimeSeriesQueriesFail(t *testing.T) {
	ds := NewTraceDataSet(snapshot(t, 10_000))
	assert.Nil(t, ds.ServiceOperChartData("gw/route", stitch.MetricCount))
	_, err := ds.FileStats()
	assert.ErrorIs(t, err, ErrNotTimeSeries)
	assert.ErrorIs(t, ds.SetSelection([]bool{true}), ErrNotTimeSeries)
}

func TestStitchedSelectionIdentity(t *testing.T) {
	ds := NewStitchedDataSet(stitchedSet(t, 10_000, 20_000, 30_000))

	before := ds.ProcessList(stitch.MetricCount)

	// restrict, then restore with an all-true selection
	require.NoError(t, ds.SetSelection([]bool{true, false, true}))
	restricted := ds.ServiceOperChartData("gw/route", stitch.MetricAvgDurationMillis)
	require.NotNil(t, restricted)
	assert.Len(t, restricted.Lines[0].Data, 2)

	require.NoError(t, ds.SetSelection([]bool{true, true, true}))
	after := ds.ProcessList(stitch.MetricCount)
	assert.Equal(t, before, after)

	chart := ds.ServiceOperChartData("gw/route", stitch.MetricAvgDurationMillis)
	require.NotNil(t, chart)
	assert.Len(t, chart.Lines[0].Data, 3)
}

func TestStitchedSelectionLengthMismatch(t *testing.T) {
	ds := NewStitchedDataSet(stitchedSet(t, 10_000, 20_000))
	err := ds.SetSelection([]bool{true})
	var lenErr *SelectionLengthError
	require.ErrorAs(t, err, &lenErr)
	assert.Equal(t, 1, lenErr.Got)
	assert.Equal(t, 2, lenErr.Want)
}

func TestStitchedFileStats(t *testing.T) {
	ds := NewStitchedDataSet(stitchedSet(t, 10_000, 20_000))
	table, err := ds.FileStats()
	require.NoError(t, err)
	assert.Len(t, table.ColumnLabels, 2)
	assert.NotEmpty(t, table.Data)
}

func TestStitchedCallChainListWithInboundIdx(t *testing.T) {
	ds := NewStitchedDataSet(stitchedSet(t, 10_000, 20_000))

	end2end := ds.CallChainList("gw/route", stitch.MetricNone, ScopeEnd2end, nil)
	require.Len(t, end2end, 1)

	// an index that matches nothing filters everything out
	none := 99
	assert.Empty(t, ds.CallChainList("gw/route", stitch.MetricNone, ScopeEnd2end, &none))
}

func TestMermaidDiagramFromBothDatasets(t *testing.T) {
	trace := NewTraceDataSet(snapshot(t, 10_000))
	diagram, err := trace.MermaidDiagram("svc/handle", "", graph.EdgeCount, graph.ScopeFull, false)
	require.NoError(t, err)
	assert.Contains(t, diagram, "graph LR")
	assert.Contains(t, diagram, "gw/route -->|2| svc/handle")

	stitchedDS := NewStitchedDataSet(stitchedSet(t, 10_000, 20_000))
	diagram, err = stitchedDS.MermaidDiagram("svc/handle", "", graph.EdgeCount, graph.ScopeFull, false)
	require.NoError(t, err)
	assert.Contains(t, diagram, "gw/route -->|2| svc/handle")
}
