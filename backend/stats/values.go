package stats

import (
	"github.com/spanlens/spanlens/backend/chain"
	"github.com/spanlens/spanlens/internal/counted"
	"github.com/spanlens/spanlens/internal/timestats"
)

// ProcOperStatsValue aggregates all observations of one (service, operation)
// pair within a run.
type ProcOperStatsValue struct {
	Count int `json:"count" msgpack:"count"`
	// NumTraces counts distinct traces touching this operation; Count can be
	// inflated when a trace calls the operation many times.
	NumTraces      int     `json:"num_traces" msgpack:"num_traces"`
	DurationMicros []int64 `json:"duration_micros" msgpack:"duration_micros"`
	StartMicros    []int64 `json:"start_dt_micros" msgpack:"start_dt_micros"`
	// NumNotHTTPOK counts observations carrying at least one non-200 status.
	NumNotHTTPOK int `json:"num_not_http_ok" msgpack:"num_not_http_ok"`
	// NumWithErrorLogs counts observations carrying at least one ERROR log.
	NumWithErrorLogs int                     `json:"num_with_error_logs" msgpack:"num_with_error_logs"`
	HTTPNotOKCodes   counted.Counted[int]    `json:"http_not_ok_codes" msgpack:"http_not_ok_codes"`
	ErrorLogs        counted.Counted[string] `json:"error_logs" msgpack:"error_logs"`
}

func newProcOperStatsValue() *ProcOperStatsValue {
	return &ProcOperStatsValue{
		HTTPNotOKCodes: counted.New[int](),
		ErrorLogs:      counted.New[string](),
	}
}

func (v *ProcOperStatsValue) update(durationMicros, startMicros int64, httpNotOK []int, errorLogs []string) {
	v.Count++
	v.DurationMicros = append(v.DurationMicros, durationMicros)
	v.StartMicros = append(v.StartMicros, startMicros)
	if len(httpNotOK) > 0 {
		v.NumNotHTTPOK++
	}
	if len(errorLogs) > 0 {
		v.NumWithErrorLogs++
	}
	v.HTTPNotOKCodes.AddItems(httpNotOK)
	v.ErrorLogs.AddItems(errorLogs)
}

// MinMillis returns the minimal observed duration in milliseconds.
func (v *ProcOperStatsValue) MinMillis() float64 { return timestats.TimeStats(v.DurationMicros).MinMillis() }

// AvgMillis returns the mean observed duration in milliseconds.
func (v *ProcOperStatsValue) AvgMillis() float64 { return timestats.TimeStats(v.DurationMicros).AvgMillis() }

// MaxMillis returns the maximal observed duration in milliseconds.
func (v *ProcOperStatsValue) MaxMillis() float64 { return timestats.TimeStats(v.DurationMicros).MaxMillis() }

// MedianMillis returns the median duration, nil for fewer than 3 values.
func (v *ProcOperStatsValue) MedianMillis() *float64 {
	return timestats.TimeStats(v.DurationMicros).MedianMillis()
}

// PercentileMillis returns the p-percentile duration.
func (v *ProcOperStatsValue) PercentileMillis(p float64) *float64 {
	return timestats.TimeStats(v.DurationMicros).PercentileMillis(p)
}

// AvgRate estimates requests/second from the start timestamps; one outlier
// gap per input file is discarded.
func (v *ProcOperStatsValue) AvgRate(numFiles int) *float64 {
	return timestats.TimeStats(v.StartMicros).AvgRate(numFiles)
}

// FracNotHTTPOK is the fraction of observations with a non-200 status.
func (v *ProcOperStatsValue) FracNotHTTPOK() float64 {
	if v.Count == 0 {
		return 0
	}
	return float64(v.NumNotHTTPOK) / float64(v.Count)
}

// FracErrorLogs is the fraction of observations with ERROR log lines.
func (v *ProcOperStatsValue) FracErrorLogs() float64 {
	if v.Count == 0 {
		return 0
	}
	return float64(v.NumWithErrorLogs) / float64(v.Count)
}

// CChainStatsValue aggregates all observations of one call chain.
type CChainStatsValue struct {
	Count int `json:"count" msgpack:"count"`
	Depth int `json:"depth" msgpack:"depth"`
	DurationMicros []int64 `json:"duration_micros" msgpack:"duration_micros"`
	StartMicros    []int64 `json:"start_dt_micros" msgpack:"start_dt_micros"`
	// Looped lists services that appear more than once non-adjacently on the
	// chain (an approximation of loop detection).
	Looped []string `json:"looped" msgpack:"looped"`
	// Rooted marks chains that trace back to the real root of their trace.
	Rooted bool `json:"rooted" msgpack:"rooted"`
	// CCNotHTTPOK counts chains with one or more HTTP errors along the path.
	CCNotHTTPOK int `json:"cc_not_http_ok" msgpack:"cc_not_http_ok"`
	// CCWithErrorLogs counts chains with one or more ERROR logs along the path.
	CCWithErrorLogs int                     `json:"cc_with_error_logs" msgpack:"cc_with_error_logs"`
	HTTPNotOKCodes  counted.Counted[int]    `json:"http_not_ok" msgpack:"http_not_ok"`
	ErrorLogs       counted.Counted[string] `json:"error_logs" msgpack:"error_logs"`
}

func newCChainStatsValue(depth int, looped []string, rooted bool) *CChainStatsValue {
	return &CChainStatsValue{
		Depth:          depth,
		Looped:         looped,
		Rooted:         rooted,
		HTTPNotOKCodes: counted.New[int](),
		ErrorLogs:      counted.New[string](),
	}
}

func (v *CChainStatsValue) update(durationMicros, startMicros int64, httpNotOK []int, errorLogs []string) {
	v.Count++
	v.DurationMicros = append(v.DurationMicros, durationMicros)
	v.StartMicros = append(v.StartMicros, startMicros)
	if len(httpNotOK) > 0 {
		v.CCNotHTTPOK++
	}
	if len(errorLogs) > 0 {
		v.CCWithErrorLogs++
	}
	v.HTTPNotOKCodes.AddItems(httpNotOK)
	v.ErrorLogs.AddItems(errorLogs)
}

// Merge folds other into v: counts are summed and observation vectors
// concatenated. Used when repaired chains collapse onto an existing key.
func (v *CChainStatsValue) Merge(other *CChainStatsValue) {
	v.Count += other.Count
	v.DurationMicros = append(v.DurationMicros, other.DurationMicros...)
	v.StartMicros = append(v.StartMicros, other.StartMicros...)
	v.CCNotHTTPOK += other.CCNotHTTPOK
	v.CCWithErrorLogs += other.CCWithErrorLogs
	v.HTTPNotOKCodes.Merge(other.HTTPNotOKCodes)
	v.ErrorLogs.Merge(other.ErrorLogs)
	for _, svc := range other.Looped {
		found := false
		for _, have := range v.Looped {
			if have == svc {
				found = true
				break
			}
		}
		if !found {
			v.Looped = append(v.Looped, svc)
		}
	}
}

// MinMillis returns the minimal observed duration in milliseconds.
func (v *CChainStatsValue) MinMillis() float64 { return timestats.TimeStats(v.DurationMicros).MinMillis() }

// AvgMillis returns the mean observed duration in milliseconds.
func (v *CChainStatsValue) AvgMillis() float64 { return timestats.TimeStats(v.DurationMicros).AvgMillis() }

// MaxMillis returns the maximal observed duration in milliseconds.
func (v *CChainStatsValue) MaxMillis() float64 { return timestats.TimeStats(v.DurationMicros).MaxMillis() }

// MedianMillis returns the median duration, nil for fewer than 3 values.
func (v *CChainStatsValue) MedianMillis() *float64 {
	return timestats.TimeStats(v.DurationMicros).MedianMillis()
}

// PercentileMillis returns the p-percentile duration.
func (v *CChainStatsValue) PercentileMillis(p float64) *float64 {
	return timestats.TimeStats(v.DurationMicros).PercentileMillis(p)
}

// AvgRate estimates requests/second from the start timestamps.
func (v *CChainStatsValue) AvgRate(numFiles int) *float64 {
	return timestats.TimeStats(v.StartMicros).AvgRate(numFiles)
}

// FracNotHTTPOK is the fraction of chains with a non-200 status on the path.
func (v *CChainStatsValue) FracNotHTTPOK() float64 {
	if v.Count == 0 {
		return 0
	}
	return float64(v.CCNotHTTPOK) / float64(v.Count)
}

// FracErrorLogs is the fraction of chains with ERROR log lines on the path.
func (v *CChainStatsValue) FracErrorLogs() float64 {
	if v.Count == 0 {
		return 0
	}
	return float64(v.CCWithErrorLogs) / float64(v.Count)
}

// CChainEntry pairs a call-chain key with its aggregate. Entries live in a
// map keyed by the canonical textual key; the typed key is kept alongside so
// repair and graph building do not re-parse it.
type CChainEntry struct {
	Key   chain.Key         `json:"key" msgpack:"key"`
	Value *CChainStatsValue `json:"value" msgpack:"value"`
}
