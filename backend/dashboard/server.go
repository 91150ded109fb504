// Package dashboard serves a read-only HTTP JSON API over a loaded viewer,
// so a UI front-end can browse process lists, call chains, charts and
// topology diagrams.
package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/backend/graph"
	"github.com/spanlens/spanlens/backend/stitch"
	"github.com/spanlens/spanlens/backend/viewer"
)

// Server serves the viewer API
type Server struct {
	view viewer.Viewer

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewServer creates a new dashboard server over a loaded viewer. Metrics
// live in a per-server registry so multiple servers can coexist.
func NewServer(view viewer.Viewer) *Server {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Server{
		view:     view,
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spanlens_dashboard_requests_total",
			Help: "Number of dashboard API requests by route and status.",
		}, []string{"route", "status"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "spanlens_dashboard_request_seconds",
			Help:    "Dashboard API request latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/processes", s.instrument("processes", s.handleProcesses)).Methods(http.MethodGet)
	r.HandleFunc("/api/callchains", s.instrument("callchains", s.handleCallChains)).Methods(http.MethodGet)
	r.HandleFunc("/api/chart/serviceoper", s.instrument("chart_serviceoper", s.handleServiceOperChart)).Methods(http.MethodGet)
	r.HandleFunc("/api/chart/callchain", s.instrument("chart_callchain", s.handleCallChainChart)).Methods(http.MethodGet)
	r.HandleFunc("/api/filestats", s.instrument("filestats", s.handleFileStats)).Methods(http.MethodGet)
	r.HandleFunc("/api/selection", s.instrument("selection_get", s.handleGetSelection)).Methods(http.MethodGet)
	r.HandleFunc("/api/selection", s.instrument("selection_set", s.handleSetSelection)).Methods(http.MethodPost)
	r.HandleFunc("/api/diagram", s.instrument("diagram", s.handleDiagram)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// ListenAndServe runs the server until it fails.
func (s *Server) ListenAndServe(addr string) error {
	log.Info().Str("addr", addr).Msg("dashboard listening")
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.latency.Observe(time.Since(start).Seconds())
		s.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed encoding response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var lenErr *viewer.SelectionLengthError
	switch {
	case errors.Is(err, viewer.ErrNotTimeSeries):
		status = http.StatusBadRequest
	case errors.As(err, &lenErr):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func metricParam(r *http.Request) (stitch.Metric, error) {
	label := r.URL.Query().Get("metric")
	if label == "" {
		return stitch.MetricNone, nil
	}
	return stitch.ParseMetric(label)
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	metric, err := metricParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.view.ProcessList(metric))
}

func (s *Server) handleCallChains(w http.ResponseWriter, r *http.Request) {
	metric, err := metricParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	scope := viewer.ScopeInbound
	if sc := r.URL.Query().Get("scope"); sc != "" {
		if scope, err = viewer.ParseTraceScope(sc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	var inboundIdx *int
	if raw := r.URL.Query().Get("inbound_idx"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "inbound_idx must be an integer", http.StatusBadRequest)
			return
		}
		inboundIdx = &idx
	}
	focus := r.URL.Query().Get("focus")
	if focus == "" {
		http.Error(w, "missing focus parameter", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.view.CallChainList(focus, metric, scope, inboundIdx))
}

func (s *Server) handleServiceOperChart(w http.ResponseWriter, r *http.Request) {
	metric, err := metricParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	chart := s.view.ServiceOperChartData(r.URL.Query().Get("key"), metric)
	if chart == nil {
		http.Error(w, "no chart data", http.StatusNotFound)
		return
	}
	writeJSON(w, chart)
}

func (s *Server) handleCallChainChart(w http.ResponseWriter, r *http.Request) {
	metric, err := metricParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	chart := s.view.CallChainChartData(r.URL.Query().Get("key"), metric)
	if chart == nil {
		http.Error(w, "no chart data", http.StatusNotFound)
		return
	}
	writeJSON(w, chart)
}

func (s *Server) handleFileStats(w http.ResponseWriter, r *http.Request) {
	table, err := s.view.FileStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, table)
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	selection, err := s.view.Selection()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, selection)
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var selected []bool
	if err := json.NewDecoder(r.Body).Decode(&selected); err != nil {
		http.Error(w, "expected a JSON array of booleans", http.StatusBadRequest)
		return
	}
	if err := s.view.SetSelection(selected); err != nil {
		writeError(w, err)
		return
	}
	selection, err := s.view.Selection()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, selection)
}

func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	focus := q.Get("service")
	if focus == "" {
		http.Error(w, "missing service parameter", http.StatusBadRequest)
		return
	}

	edge := graph.EdgeCount
	var err error
	if raw := q.Get("edge"); raw != "" {
		if edge, err = graph.ParseEdgeMetric(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	scope := graph.ScopeFull
	if raw := q.Get("scope"); raw != "" {
		if scope, err = graph.ParseScope(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	compact := strings.EqualFold(q.Get("compact"), "true")

	diagram, err := s.view.MermaidDiagram(focus, q.Get("callchain"), edge, scope, compact)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(diagram)); err != nil {
		log.Warn().Err(err).Msg("failed writing diagram")
	}
}
