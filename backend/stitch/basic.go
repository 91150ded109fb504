package stitch

import (
	"github.com/spanlens/spanlens/backend/stats"
	"github.com/spanlens/spanlens/internal/timestats"
)

type timeStatsOf = timestats.TimeStats

// traceRate estimates the request rate of a run from the trace start
// timestamps, discarding one outlier gap per input file.
func traceRate(sr *stats.StatsRec) *float64 {
	micros := make([]int64, len(sr.StartTimes))
	for i, t := range sr.StartTimes {
		micros[i] = t.UnixMicro()
	}
	return timestats.TimeStats(micros).AvgRate(sr.NumFiles)
}
