package stitch

import (
	"github.com/spanlens/spanlens/backend/stats"
)

// ProcOperMetricValue evaluates one metric of the report schedule against a
// single-run service/operation aggregate. Used by the single-run viewer,
// which ranks rows on the same metrics the stitcher reports on.
func ProcOperMetricValue(metric Metric, v *stats.ProcOperStatsValue, numFiles, numTraces int) *float64 {
	for _, item := range procOperReportItems {
		if item.metric == metric {
			return item.extract(v, numFiles, numTraces)
		}
	}
	return nil
}

// CallChainMetricValue evaluates one metric of the report schedule against a
// single-run call-chain aggregate.
func CallChainMetricValue(metric Metric, v *stats.CChainStatsValue, numFiles, numTraces int) *float64 {
	for _, item := range callChainReportItems {
		if item.metric == metric {
			return item.extract(v, numFiles, numTraces)
		}
	}
	return nil
}
