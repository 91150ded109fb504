// Package stitch merges the statistics of many analysis runs into aligned
// time series per service/operation and per call chain, fits trend
// regressions and flags anomalies.
package stitch

import (
	"fmt"
	"regexp"
	"strings"
)

// Metric names one column family of the report schedule. The string value is
// the label used in CSV output and serialised files.
type Metric string

const (
	MetricNone                    Metric = "NONE"
	MetricNumFiles                Metric = "num_files"
	MetricNumTraces               Metric = "num_traces"
	MetricNumEndpoints            Metric = "num_endpoints"
	MetricNumIncompleteTraces     Metric = "num_incomplete_traces"
	MetricNumCallChains           Metric = "num_call_chains"
	MetricInitNumUnrootedCC       Metric = "init_num_unrooted_cc"
	MetricNumFixes                Metric = "num_fixes"
	MetricNumUnrootedCCAfterFixes Metric = "num_unrooted_cc_after_fixes"
	MetricCount                   Metric = "count"
	MetricOccurrencePercentage    Metric = "occurrence percentage"
	MetricRate                    Metric = "rate (req/sec)"
	MetricMinDurationMillis       Metric = "minimal duration millis"
	MetricMedianDurationMillis    Metric = "median duration millis"
	MetricAvgDurationMillis       Metric = "average duration millis"
	MetricMaxDurationMillis       Metric = "maximal duration millis"
	MetricP75Millis               Metric = "p75 millis"
	MetricP90Millis               Metric = "p90 millis"
	MetricP95Millis               Metric = "p95 millis"
	MetricP99Millis               Metric = "p99 millis"
	MetricFracNotHTTPOK           Metric = "frac_not_http_ok"
	MetricFracErrorLogs           Metric = "frac_error_logs"
)

var allMetrics = []Metric{
	MetricNumFiles, MetricNumTraces, MetricNumEndpoints, MetricNumIncompleteTraces,
	MetricNumCallChains, MetricInitNumUnrootedCC, MetricNumFixes, MetricNumUnrootedCCAfterFixes,
	MetricCount, MetricOccurrencePercentage, MetricRate,
	MetricMinDurationMillis, MetricMedianDurationMillis, MetricAvgDurationMillis, MetricMaxDurationMillis,
	MetricP75Millis, MetricP90Millis, MetricP95Millis, MetricP99Millis,
	MetricFracNotHTTPOK, MetricFracErrorLogs,
}

// legacyMetricLabels maps labels of earlier file revisions to the current
// metrics, applied when loading serialised state.
var legacyMetricLabels = map[string]Metric{
	"rate (avg)":             MetricRate,
	"min_millis":             MetricMinDurationMillis,
	"min_duration_millis":    MetricMinDurationMillis,
	"max_millis":             MetricMaxDurationMillis,
	"max_duration_millis":    MetricMaxDurationMillis,
	"avg_millis":             MetricAvgDurationMillis,
	"avg_duration_millis":    MetricAvgDurationMillis,
	"median_millis":          MetricMedianDurationMillis,
	"median_duration_millis": MetricMedianDurationMillis,
	"occurance percentage":   MetricOccurrencePercentage,
	"avg_duration_micros":    MetricAvgDurationMillis,
}

var legacyPercentileRe = regexp.MustCompile(`^p(\d{2})_millis$`)

// NormalizeMetric maps a metric label, current or legacy, to the current
// Metric. Unknown labels pass through unchanged so unrecognised data is
// preserved rather than dropped.
func NormalizeMetric(label string) Metric {
	if m, ok := legacyMetricLabels[strings.ToLower(label)]; ok {
		return m
	}
	if sub := legacyPercentileRe.FindStringSubmatch(strings.ToLower(label)); sub != nil {
		return Metric("p" + sub[1] + " millis")
	}
	return Metric(label)
}

// ParseMetric resolves a label (case-insensitive, legacy aliases accepted)
// to a known metric.
func ParseMetric(label string) (Metric, error) {
	norm := NormalizeMetric(label)
	for _, m := range allMetrics {
		if strings.EqualFold(string(m), string(norm)) {
			return m, nil
		}
	}
	return MetricNone, fmt.Errorf("unknown metric %q", label)
}
