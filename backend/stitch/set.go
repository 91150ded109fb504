package stitch

// StitchedSet bundles the StitchedLines of one row: one line per metric of
// the report schedule.
type StitchedSet []StitchedLine

// MetricLine returns the line of the given metric, or nil.
func (s StitchedSet) MetricLine(metric Metric) *StitchedLine {
	for i := range s {
		if s[i].Metric == metric {
			return &s[i]
		}
	}
	return nil
}

// SummaryAvg lists the data average of every line.
func (s StitchedSet) SummaryAvg() []*float64 {
	out := make([]*float64, len(s))
	for i := range s {
		out[i] = s[i].DataAvg
	}
	return out
}

// prefixWithCounts prepends the average count and its fill-count to a
// summary row, so summaries over other statistics still show how much data
// backs them. The first line of a set is always the count metric.
func (s StitchedSet) prefixWithCounts(data []*float64) []*float64 {
	var count, filled *float64
	if len(s) > 0 {
		count = s[0].DataAvg
		f := float64(s[0].NumFilled)
		filled = &f
	}
	return append([]*float64{count, filled}, data...)
}

// SummarySlopes lists the linear slope of every line, prefixed with counts.
func (s StitchedSet) SummarySlopes() []*float64 {
	data := make([]*float64, len(s))
	for i := range s {
		if s[i].LinReg != nil {
			v := s[i].LinReg.Slope
			data[i] = &v
		}
	}
	return s.prefixWithCounts(data)
}

// SummaryScaledSlopes lists the scaled slope of every line, prefixed with
// counts.
func (s StitchedSet) SummaryScaledSlopes() []*float64 {
	data := make([]*float64, len(s))
	for i := range s {
		data[i] = s[i].ScaledSlope()
	}
	return s.prefixWithCounts(data)
}

// SummaryLastDeviationScaled lists the scaled last deviation of every line,
// prefixed with counts.
func (s StitchedSet) SummaryLastDeviationScaled() []*float64 {
	data := make([]*float64, len(s))
	for i := range s {
		data[i] = s[i].LastDeviationScaled()
	}
	return s.prefixWithCounts(data)
}

// Selection rebuilds the set over the selected snapshot columns, or returns
// nil when no value survives the selection. The caller has validated the
// selection length.
func (s StitchedSet) Selection(selected []bool, pars *AnomalyParameters) StitchedSet {
	hasValue := false
	out := make(StitchedSet, 0, len(s))
	for _, line := range s {
		var data []*float64
		for i, sel := range selected {
			if sel && i < len(line.Data) {
				data = append(data, line.Data[i])
			}
		}
		for _, v := range data {
			if v != nil {
				hasValue = true
				break
			}
		}
		out = append(out, NewStitchedLine(line.Metric, data, pars))
	}
	if !hasValue {
		return nil
	}
	return out
}
