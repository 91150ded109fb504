package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlens/spanlens/backend/graph"
	"github.com/spanlens/spanlens/backend/stitch"
	"github.com/spanlens/spanlens/backend/viewer"
)

// fakeViewer covers the routes without loading files.
type fakeViewer struct {
	selection []viewer.SelectLabel
}

func (f *fakeViewer) IsTimeSeries() bool { return true }

func (f *fakeViewer) ProcessList(stitch.Metric) []viewer.ProcessListItem {
	return []viewer.ProcessListItem{{Idx: 1, Key: "gw/route", Display: "gw/route", AvgCount: 2}}
}

func (f *fakeViewer) CallChainList(string, stitch.Metric, viewer.TraceScope, *int) []viewer.ProcessListItem {
	return nil
}

func (f *fakeViewer) ServiceOperChartData(key string, _ stitch.Metric) *viewer.ChartData {
	if key != "gw/route" {
		return nil
	}
	return &viewer.ChartData{Title: key}
}

func (f *fakeViewer) CallChainChartData(string, stitch.Metric) *viewer.ChartData { return nil }

func (f *fakeViewer) MermaidDiagram(string, string, graph.EdgeMetric, graph.Scope, bool) (string, error) {
	return "graph LR", nil
}

func (f *fakeViewer) FileStats() (*viewer.Table, error) { return &viewer.Table{}, nil }

func (f *fakeViewer) Selection() ([]viewer.SelectLabel, error) { return f.selection, nil }

func (f *fakeViewer) SetSelection(selected []bool) error {
	if len(selected) != len(f.selection) {
		return &viewer.SelectionLengthError{Got: len(selected), Want: len(f.selection)}
	}
	for i, sel := range selected {
		f.selection[i].Selected = sel
	}
	return nil
}

func newTestServer() (*Server, *fakeViewer) {
	fake := &fakeViewer{selection: []viewer.SelectLabel{
		{Idx: 0, Label: "a", Selected: true},
		{Idx: 1, Label: "b", Selected: true},
	}}
	return NewServer(fake), fake
}

func TestProcessesRoute(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/processes?metric=count", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var list []viewer.ProcessListItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "gw/route", list[0].Key)
}

func TestProcessesRejectsUnknownMetric(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/processes?metric=bogus", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallChainsRequiresFocus(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/callchains", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectionRoundTrip(t *testing.T) {
	srv, fake := newTestServer()

	body := strings.NewReader("[true,false]")
	req := httptest.NewRequest(http.MethodPost, "/api/selection", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, fake.selection[1].Selected)
}

func TestSelectionLengthMismatchIsBadRequest(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/selection", strings.NewReader("[true]"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiagramRoute(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/diagram?service=gw/route&scope=inbound&edge=count", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graph LR")
}
