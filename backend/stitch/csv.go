package stitch

import (
	"fmt"
	"strings"

	"github.com/spanlens/spanlens/internal/csvbuf"
	"github.com/spanlens/spanlens/internal/floatfmt"
)

// summaryHeader lists the metric labels of a row set. With extraCount, a
// leading count column pair is added: summaries over statistics other than
// the average need it to show how much data backs each row.
func (s *Stitched) summaryHeader(tableType []string, extraCount bool) string {
	var cols []string
	if len(s.ServiceOperation) == 0 {
		cols = []string{"NO DATA"}
	} else {
		set := s.ServiceOperation[0].Set
		if extraCount {
			cols = append(cols, strings.ToUpper(string(MetricCount)), "NUM_FILLED")
		}
		for _, line := range set {
			cols = append(cols, string(line.Metric))
		}
	}
	return strings.Join(tableType, "; ") + "; " + strings.Join(cols, "; ")
}

// fullDataHeader labels a time-series row followed by its regression
// parameters.
func (s *Stitched) fullDataHeader(tableType []string, numColumns int) string {
	cols := make([]string, 0, numColumns+8)
	cols = append(cols, "metric", "num_filled")
	for i := 0; i < numColumns; i++ {
		cols = append(cols, fmt.Sprintf("%d", i+1))
	}
	cols = append(cols, "", "slope", "y_intercept", "R_squared", "L1_deviation", "scaled_slope", "last_deviation_scaled", "best_fit")
	return strings.Join(tableType, "; ") + "; " + strings.Join(cols, "; ")
}

func lineCSV(prefixes []string, line *StitchedLine) string {
	parts := append([]string{}, prefixes...)
	parts = append(parts, string(line.Metric), fmt.Sprintf("%d", line.NumFilled))
	parts = append(parts, floatfmt.Join(line.Data, "; "))
	if lr := line.LinReg; lr != nil {
		parts = append(parts, "",
			floatfmt.Format(lr.Slope),
			floatfmt.Format(lr.YIntercept),
			floatfmt.Format(lr.RSquared),
			floatfmt.Format(lr.L1Deviation),
			floatfmt.FormatOpt(line.ScaledSlope()),
			floatfmt.FormatOpt(line.LastDeviationScaled()),
			string(line.BestFit))
	} else {
		parts = append(parts, "", "", "", "", "", "", "", string(line.BestFit))
	}
	return strings.Join(parts, "; ")
}

func setCSV(prefixes []string, set StitchedSet) []string {
	out := make([]string, 0, len(set))
	for i := range set {
		out = append(out, lineCSV(prefixes, &set[i]))
	}
	return out
}

// WriteCSV renders the stitched dataset to a multi-section CSV file.
func (s *Stitched) WriteCSV(path string) error {
	csv := csvbuf.New()
	csv.AddEmptyLines(2)
	csv.AddTOC(10)
	numColumns := s.NumSnapshots()

	csv.AddSection("List of stitched data-files (numbered) and comments (unnumbered):")
	for _, src := range s.Sources {
		if src.Column != nil {
			csv.AddLine(fmt.Sprintf("%d; %s", *src.Column, src.Description))
		} else {
			csv.AddLine(";" + src.Description)
		}
	}

	csv.AddSection("Summary statistics per Service/Operation")
	csv.AddLine(s.summaryHeader([]string{"Service/Operation"}, false))
	for _, entry := range s.ServiceOperation {
		csv.AddLine(entry.Key + "; " + floatfmt.Join(entry.Set.SummaryAvg(), " ;"))
	}

	csv.AddSection("Slope summary per Service/Operation")
	csv.AddLine(s.summaryHeader([]string{"Service/Operation"}, true))
	for _, entry := range s.ServiceOperation {
		csv.AddLine(entry.Key + "; " + floatfmt.Join(entry.Set.SummarySlopes(), " ;"))
	}

	csv.AddSection("Scaled-slope summary per Service/Operation")
	csv.AddLine(s.summaryHeader([]string{"Service/Operation"}, true))
	for _, entry := range s.ServiceOperation {
		csv.AddLine(entry.Key + "; " + floatfmt.Join(entry.Set.SummaryScaledSlopes(), " ;"))
	}

	csv.AddSection("Last-deviation-scaled summary per Service/Operation")
	csv.AddLine(s.summaryHeader([]string{"Service/Operation"}, true))
	for _, entry := range s.ServiceOperation {
		csv.AddLine(entry.Key + "; " + floatfmt.Join(entry.Set.SummaryLastDeviationScaled(), " ;"))
	}

	csv.AddSection("Basic statistics per input file")
	csv.AddLine(s.fullDataHeader([]string{"Input-files"}, numColumns))
	csv.AddLines(setCSV([]string{""}, s.Basic))

	csv.AddSection("Statistics per Service/Operation combination:")
	csv.AddLine(s.fullDataHeader([]string{"Service/Operation"}, numColumns))
	for _, entry := range s.ServiceOperation {
		csv.AddLines(setCSV([]string{entry.Key}, entry.Set))
	}

	csv.AddSection("Summary statistics per call-chain grouped by Service/Operation")
	csv.AddLine(s.summaryHeader([]string{"Full call-chain (path)", "rooted", "is_leaf", "Service/Operation", "Inbound_chain"}, false))
	for _, entry := range s.CallChain {
		for i := range entry.Chains {
			ccd := &entry.Chains[i]
			csv.AddLine(strings.Join([]string{
				ccd.FullKey,
				rootedLabel(ccd.Rooted),
				leafLabel(ccd.IsLeaf),
				entry.Key,
				ccd.InboundKey,
				floatfmt.Join(ccd.Data.SummaryAvg(), " ;"),
			}, "; "))
		}
	}

	csv.AddSection("Statistics per call-chain (path from the external end-point to the actual Service/Operation):")
	csv.AddLine(s.fullDataHeader([]string{"Full call-chain (path)", "rooted", "is_leaf", "Final Service/Oper", "Inbound_chain"}, numColumns))
	for _, entry := range s.CallChain {
		for i := range entry.Chains {
			ccd := &entry.Chains[i]
			csv.AddLines(setCSV([]string{
				ccd.FullKey,
				rootedLabel(ccd.Rooted),
				leafLabel(ccd.IsLeaf),
				entry.Key,
				ccd.InboundKey,
			}, ccd.Data))
		}
	}

	return csv.WriteFile(path)
}

func rootedLabel(rooted bool) string {
	if rooted {
		return "rooted"
	}
	return ""
}

func leafLabel(isLeaf bool) string {
	if isLeaf {
		return "leaf"
	}
	return ""
}
