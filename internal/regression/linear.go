// Package regression fits linear and exponential trends to sparse time
// series. Series are slices of optional values; nil entries are skipped and
// the x coordinate counts the slot position, so gaps do not shift the fit.
package regression

import "math"

type dataPoint struct {
	x, y float64
}

// Linear is an ordinary least-squares fit over the non-nil values of a
// series, with x running from 1 to len(series).
type Linear struct {
	Slope       float64 `json:"slope" msgpack:"slope"`
	YIntercept  float64 `json:"y_intercept" msgpack:"y_intercept"`
	RSquared    float64 `json:"R_squared" msgpack:"R_squared"`
	L1Deviation float64 `json:"L1_deviation" msgpack:"L1_deviation"`
}

// NewLinear fits a line to the series, or returns nil when fewer than two
// values are present.
func NewLinear(series []*float64) *Linear {
	return linearFromDataset(dataset(series, 1, identity))
}

func linearFromDataset(data []dataPoint) *Linear {
	if len(data) < 2 {
		return nil
	}
	var sumX, sumY float64
	for _, dp := range data {
		sumX += dp.x
		sumY += dp.y
	}
	avgX := sumX / float64(len(data))
	avgY := sumY / float64(len(data))

	var num, denom float64
	for _, dp := range data {
		num += (dp.x - avgX) * (dp.y - avgY)
		denom += (dp.x - avgX) * (dp.x - avgX)
	}
	slope := num / denom
	intercept := avgY - avgX*slope

	var sumResSq, sumAvgSq, sumL1 float64
	for _, dp := range data {
		expect := intercept + dp.x*slope
		sumResSq += (dp.y - expect) * (dp.y - expect)
		sumAvgSq += (dp.y - avgY) * (dp.y - avgY)
		sumL1 += math.Abs(dp.y - expect)
	}
	rSquared := 1.0
	if math.Abs(sumResSq) >= 1e-100 {
		rSquared = 1.0 - sumResSq/sumAvgSq
	}

	return &Linear{
		Slope:       slope,
		YIntercept:  intercept,
		RSquared:    rSquared,
		L1Deviation: sumL1 / float64(len(data)),
	}
}

// Deviation returns the residual of the series value at idx against the
// fitted line, or nil when that slot is empty.
func (l *Linear) Deviation(series []*float64, idx int) *float64 {
	if idx < 0 || idx >= len(series) || series[idx] == nil {
		return nil
	}
	expect := l.YIntercept + float64(idx+1)*l.Slope
	dev := *series[idx] - expect
	return &dev
}

func identity(y float64) (float64, bool) { return y, true }

// dataset collects the filled slots, mapping values through f and assigning
// x = idx + xBase.
func dataset(series []*float64, xBase float64, f func(float64) (float64, bool)) []dataPoint {
	data := make([]dataPoint, 0, len(series))
	for idx, val := range series {
		if val == nil {
			continue
		}
		y, ok := f(*val)
		if !ok {
			return nil
		}
		data = append(data, dataPoint{x: float64(idx) + xBase, y: y})
	}
	return data
}
