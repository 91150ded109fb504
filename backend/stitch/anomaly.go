package stitch

import (
	"math"

	"github.com/spanlens/spanlens/internal/csvbuf"
	"github.com/spanlens/spanlens/internal/floatfmt"
)

// Anomalies carries the triggered criteria of one line; a nil field means
// that criterion did not fire.
type Anomalies struct {
	ScaledSlope         *float64
	STScaledSlope       *float64
	L1DeviationScaled   *float64
}

// DetectAnomalies evaluates the three criteria of a line against the
// bounds: long-term scaled slope, short-term scaled slope and the scaled
// deviation of the last point. Returns nil when none triggers or the line
// has no regression.
func DetectAnomalies(line *StitchedLine, pars *AnomalyParameters) *Anomalies {
	if line.LinReg == nil {
		return nil
	}
	out := &Anomalies{}
	if v := line.ScaledSlope(); v != nil && math.Abs(*v) > pars.ScaledSlopeBound {
		out.ScaledSlope = v
	}
	if v := line.ScaledSTSlope(); v != nil && math.Abs(*v) > pars.ScaledSTSlopeBound {
		out.STScaledSlope = v
	}
	if v := line.LastDeviationScaled(); v != nil && math.Abs(*v) > pars.L1DeviationBound {
		out.L1DeviationScaled = v
	}
	if out.ScaledSlope == nil && out.STScaledSlope == nil && out.L1DeviationScaled == nil {
		return nil
	}
	return out
}

const anomalyHeader = "Key; Inbound_chain; Scaled_slope; Short-term_scaled_slope; L1_deviation_scaled"

func (a *Anomalies) csvLine(key, inboundKey string) string {
	return key + ";" + inboundKey + "; " +
		floatfmt.FormatOpt(a.ScaledSlope) + "; " +
		floatfmt.FormatOpt(a.STScaledSlope) + "; " +
		floatfmt.FormatOpt(a.L1DeviationScaled)
}

// WriteAnomaliesCSV filters the anomalies out of the stitched data and
// writes them to a CSV with a section per metric, a table per
// service/operation and per call chain. Returns the number of anomalies;
// when zero, no file is written.
func (s *Stitched) WriteAnomaliesCSV(path string, pars *AnomalyParameters) (int, error) {
	csv := csvbuf.New()
	csv.AddEmptyLines(2)
	csv.AddTOC(len(procOperReportItems) + len(callChainReportItems) + 2)

	numAnomalies := 0

	for _, item := range procOperReportItems {
		csv.AddSection(string(item.metric) + " (Service/Operation-level)")
		csv.AddLine(anomalyHeader)
		for _, entry := range s.ServiceOperation {
			line := entry.Set.MetricLine(item.metric)
			if line == nil {
				continue
			}
			if anomalies := DetectAnomalies(line, pars); anomalies != nil {
				numAnomalies++
				csv.AddLine(anomalies.csvLine(entry.Key, ""))
			}
		}
	}

	for _, item := range callChainReportItems {
		csv.AddSection(string(item.metric) + " (Call-chain-level)")
		for _, entry := range s.CallChain {
			csv.AddLine("SERVICE_OPER: " + entry.Key)
			csv.AddLine(anomalyHeader)
			for i := range entry.Chains {
				ccd := &entry.Chains[i]
				line := ccd.Data.MetricLine(item.metric)
				if line == nil {
					continue
				}
				if anomalies := DetectAnomalies(line, pars); anomalies != nil {
					numAnomalies++
					csv.AddLine(anomalies.csvLine(ccd.FullKey, ccd.InboundKey))
				}
			}
			csv.AddEmptyLines(1)
		}
	}

	if numAnomalies == 0 {
		return 0, nil
	}
	return numAnomalies, csv.WriteFile(path)
}
