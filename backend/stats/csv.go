package stats

import (
	"fmt"
	"sort"

	"github.com/spanlens/spanlens/internal/csvbuf"
	"github.com/spanlens/spanlens/internal/floatfmt"
)

// ToCSV renders the record as a multi-section ';'-separated CSV.
func (sr *StatsRec) ToCSV() string {
	csv := csvbuf.New()
	csv.AddEmptyLines(2)
	csv.AddTOC(6)

	numTraces := sr.NumTraces()

	csv.AddSection("Run summary")
	switch numTraces {
	case 0:
		csv.AddLine("num_traces:; 0")
	case 1:
		csv.AddLine("trace_id:; " + sr.TraceIDs[0])
		csv.AddLine("root_call:; " + sr.RootCalls[0])
		csv.AddLine(fmt.Sprintf("num_spans:; %d", sr.NumSpans[0]))
		csv.AddLine(fmt.Sprintf("start_dt:; %s", sr.StartTimes[0].Format("2006-01-02 15:04:05.000000")))
		csv.AddLine(fmt.Sprintf("end_dt:; %s", sr.EndTimes[0].Format("2006-01-02 15:04:05.000000")))
		csv.AddLine(fmt.Sprintf("duration_micros:; %d", sr.DurationMicros[0]))
		csv.AddLine(fmt.Sprintf("time_to_respond_micros:; %d", sr.TimeToRespondMicros[0]))
	default:
		csv.AddLine(fmt.Sprintf("num_traces:; %d", numTraces))
		csv.AddLine(fmt.Sprintf("num_files:; %d", sr.NumFiles))
		csv.AddLine(fmt.Sprintf("num_endpoints:; %d", sr.NumEndpoints))
		csv.AddLine(fmt.Sprintf("num_incomplete_traces:; %d", sr.NumIncompleteTraces))
		csv.AddLine(fmt.Sprintf("num_call_chains:; %d", sr.NumCallChains))
		csv.AddLine(fmt.Sprintf("init_num_unrooted_cc:; %d", sr.InitNumUnrootedCC))
		csv.AddLine(fmt.Sprintf("num_fixes:; %d", sr.NumFixes))
		csv.AddLine(fmt.Sprintf("num_unrooted_cc_after_fixes:; %d", sr.NumUnrootedCCAfterFixes))
		csv.AddLine(fmt.Sprintf("MIN(num_spans):; %d", minInt(sr.NumSpans)))
		csv.AddLine(fmt.Sprintf("AVG(num_spans):; %s", floatfmt.Format(avgInt(sr.NumSpans))))
		csv.AddLine(fmt.Sprintf("MAX(num_spans):; %d", maxInt(sr.NumSpans)))
		csv.AddLine("root_call_stats:; " + rootCallStats(sr.RootCalls))
		csv.AddLine(fmt.Sprintf("MIN(duration_micros):; %d", minInt64(sr.DurationMicros)))
		csv.AddLine(fmt.Sprintf("AVG(duration_micros):; %s", floatfmt.Format(avgInt64(sr.DurationMicros))))
		csv.AddLine(fmt.Sprintf("MAX(duration_micros):; %d", maxInt64(sr.DurationMicros)))
		csv.AddLine(fmt.Sprintf("MIN(time_to_respond_micros):; %d", minInt64(sr.TimeToRespondMicros)))
		csv.AddLine(fmt.Sprintf("AVG(time_to_respond_micros):; %s", floatfmt.Format(avgInt64(sr.TimeToRespondMicros))))
		csv.AddLine(fmt.Sprintf("MAX(time_to_respond_micros):; %d", maxInt64(sr.TimeToRespondMicros)))
	}

	services := sr.sortedServices()

	csv.AddSection("Services")
	csv.AddLine("Service; Num_received_calls; Num_outbound_calls; Num_unknown_calls; Perc_received_calls; Perc_outbound_calls; Perc_unknown_calls")
	n := float64(numTraces)
	for _, svc := range services {
		stat := sr.Stats[svc]
		csv.AddLine(fmt.Sprintf("%s; %d; %d; %d; %s; %s; %s",
			svc,
			stat.NumReceivedCalls,
			stat.NumOutboundCalls,
			stat.NumUnknownCalls,
			floatfmt.Format(float64(stat.NumReceivedCalls)/n),
			floatfmt.Format(float64(stat.NumOutboundCalls)/n),
			floatfmt.Format(float64(stat.NumUnknownCalls)/n)))
	}

	csv.AddSection("Service/Operation statistics")
	csv.AddLine("Service/Operation; Count; Num_traces; Min_millis; Median_millis; Avg_millis; Max_millis; Percentage; Rate; Expect_duration; Frac_not_http_ok; Frac_error_logs")
	for _, svc := range services {
		stat := sr.Stats[svc]
		opers := make([]string, 0, len(stat.Operation))
		for oper := range stat.Operation {
			opers = append(opers, oper)
		}
		sort.Strings(opers)
		for _, oper := range opers {
			val := stat.Operation[oper]
			percentage := float64(val.Count) / n
			csv.AddLine(fmt.Sprintf("%s/%s; %d; %d; %s; %s; %s; %s; %s; %s; %s; %s; %s",
				svc, oper,
				val.Count,
				val.NumTraces,
				floatfmt.Format(val.MinMillis()),
				floatfmt.FormatOpt(val.MedianMillis()),
				floatfmt.Format(val.AvgMillis()),
				floatfmt.Format(val.MaxMillis()),
				floatfmt.Format(percentage),
				floatfmt.FormatOpt(val.AvgRate(sr.NumFiles)),
				floatfmt.Format(percentage*val.AvgMillis()),
				floatfmt.Format(val.FracNotHTTPOK()),
				floatfmt.Format(val.FracErrorLogs())))
		}
	}

	csv.AddSection("Call-chain statistics")
	csv.AddLine("#The unique key of the next table is Call_chain (full path plus leaf-marker), so the Service column contains duplicates")
	csv.AddLine("Call_chain; End_point; Service/Operation; Is_leaf; Rooted; Depth; Count; Looped; Revisit; Caching_service; Min_millis; Median_millis; Avg_millis; Max_millis; Percentage; Rate; Expect_duration; Expect_contribution; Frac_not_http_ok; Frac_error_logs")
	type row struct {
		keyStr string
		entry  *CChainEntry
	}
	var rows []row
	for _, svc := range services {
		for keyStr, entry := range sr.Stats[svc].CallChain {
			rows = append(rows, row{keyStr, entry})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].keyStr < rows[j].keyStr })
	for _, r := range rows {
		key, val := r.entry.Key, r.entry.Value
		percentage := float64(val.Count) / n
		expectDuration := percentage * val.AvgMillis()
		expectContribution := 0.0
		if key.IsLeaf {
			expectContribution = expectDuration
		}
		csv.AddLine(fmt.Sprintf("%s; %s; %s; %t; %t; %d; %d; %t; %v; %s; %s; %s; %s; %s; %s; %s; %s; %s; %s; %s",
			r.keyStr,
			key.Endpoint(),
			key.Leaf(),
			key.IsLeaf,
			val.Rooted,
			val.Depth,
			val.Count,
			len(val.Looped) > 0,
			val.Looped,
			key.CachingService,
			floatfmt.Format(val.MinMillis()),
			floatfmt.FormatOpt(val.MedianMillis()),
			floatfmt.Format(val.AvgMillis()),
			floatfmt.Format(val.MaxMillis()),
			floatfmt.Format(percentage),
			floatfmt.FormatOpt(val.AvgRate(sr.NumFiles)),
			floatfmt.Format(expectDuration),
			floatfmt.Format(expectContribution),
			floatfmt.Format(val.FracNotHTTPOK()),
			floatfmt.Format(val.FracErrorLogs())))
	}

	return csv.String()
}

func minInt(v []int) int {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxInt(v []int) int {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func avgInt(v []int) float64 {
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}

func minInt64(v []int64) int64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxInt64(v []int64) int64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func avgInt64(v []int64) float64 {
	var sum int64
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}
