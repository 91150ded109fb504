package stitch

import (
	"math"

	"github.com/spanlens/spanlens/internal/regression"
)

// BestFit tags which regression describes a line best.
type BestFit string

const (
	FitNone        BestFit = "none"
	FitLinear      BestFit = "linear"
	FitExponential BestFit = "exponential"
)

// Exponential wins only when it clearly beats linear in explained variance.
const bestFitMargin = 0.05

const minPointsForShortTermMultiplier = 2

// ShortTermLine is the regression over the trailing window of a line, used
// to detect a trend that is ramping up faster than the long-term fit.
type ShortTermLine struct {
	Data   []*float64        `json:"data" msgpack:"data"`
	LinReg regression.Linear `json:"lin_reg" msgpack:"lin_reg"`
}

// StitchedLine is the time series of one metric for one row: one optional
// value per snapshot, plus the fitted trends.
type StitchedLine struct {
	Metric    Metric     `json:"metric" msgpack:"metric"`
	Data      []*float64 `json:"data" msgpack:"data"`
	NumFilled int        `json:"num_filled_columns" msgpack:"num_filled_columns"`
	DataAvg   *float64   `json:"data_avg" msgpack:"data_avg"`

	LinReg    *regression.Linear      `json:"lin_reg,omitempty" msgpack:"lin_reg,omitempty"`
	ExpReg    *regression.Exponential `json:"exp_reg,omitempty" msgpack:"exp_reg,omitempty"`
	BestFit   BestFit                 `json:"best_fit" msgpack:"best_fit"`
	ShortTerm *ShortTermLine          `json:"st_line,omitempty" msgpack:"st_line,omitempty"`
}

// NewStitchedLine fits the regressions over data and, when the series is at
// least twice the short-term window, the trailing short-term line.
func NewStitchedLine(metric Metric, data []*float64, pars *AnomalyParameters) StitchedLine {
	line := StitchedLine{
		Metric: metric,
		Data:   data,
		LinReg: regression.NewLinear(data),
		ExpReg: regression.NewExponential(data),
	}
	for _, v := range data {
		if v != nil {
			line.NumFilled++
		}
	}
	line.DataAvg = average(data)
	line.BestFit = selectBestFit(line.LinReg, line.ExpReg, data)

	if stLen := pars.ShortTermWindow; stLen > 0 && len(data) >= minPointsForShortTermMultiplier*stLen {
		stData := append([]*float64(nil), data[len(data)-stLen:]...)
		if lr := regression.NewLinear(stData); lr != nil {
			line.ShortTerm = &ShortTermLine{Data: stData, LinReg: *lr}
		}
	}
	return line
}

func average(data []*float64) *float64 {
	sum, n := 0.0, 0
	for _, v := range data {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// selectBestFit picks exponential only when the series is positive
// everywhere and the log-space fit materially beats the linear one.
func selectBestFit(lin *regression.Linear, exp *regression.Exponential, data []*float64) BestFit {
	if lin == nil {
		return FitNone
	}
	if exp != nil && allPositive(data) && exp.RSquared > lin.RSquared+bestFitMargin {
		return FitExponential
	}
	return FitLinear
}

func allPositive(data []*float64) bool {
	for _, v := range data {
		if v != nil && *v <= 0 {
			return false
		}
	}
	return true
}

// ScaledSlope scales the slope as if the data lived on [0,1] by moving the
// average to 0.5: slope / (2 * mean). Nil when the mean is (near) zero or no
// fit exists.
func (l *StitchedLine) ScaledSlope() *float64 {
	if l.LinReg == nil || l.DataAvg == nil || math.Abs(*l.DataAvg) <= 1e-100 {
		return nil
	}
	v := l.LinReg.Slope / (2.0 * *l.DataAvg)
	return &v
}

// ScaledSTSlope is the short-term variant of ScaledSlope. The full-series
// average is used for scaling, not the short-term average.
func (l *StitchedLine) ScaledSTSlope() *float64 {
	if l.ShortTerm == nil || l.DataAvg == nil || math.Abs(*l.DataAvg) <= 1e-100 {
		return nil
	}
	v := l.ShortTerm.LinReg.Slope / (2.0 * *l.DataAvg)
	return &v
}

// LastDeviationScaled is the residual of the last point expressed in units
// of the mean absolute residual.
func (l *StitchedLine) LastDeviationScaled() *float64 {
	if l.LinReg == nil || len(l.Data) == 0 {
		return nil
	}
	dev := l.LinReg.Deviation(l.Data, len(l.Data)-1)
	if dev == nil || math.Abs(l.LinReg.L1Deviation) <= 1e-100 {
		return nil
	}
	v := *dev / l.LinReg.L1Deviation
	return &v
}

// PeriodicGrowth is the growth-per-period of the best fit: the linear slope
// normalised by the mean, or the exponential b - 1. Used to rank rows.
func (l *StitchedLine) PeriodicGrowth() *float64 {
	switch l.BestFit {
	case FitExponential:
		v := l.ExpReg.AvgGrowthPerPeriod
		return &v
	case FitLinear:
		if l.DataAvg == nil || math.Abs(*l.DataAvg) <= 1e-100 {
			return nil
		}
		v := l.LinReg.Slope / *l.DataAvg
		return &v
	default:
		return nil
	}
}
