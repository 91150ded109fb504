package regression

import "math"

// Exponential fits the curve y = a * b^x by linear regression in log-space,
// with x running from 0 to len(series)-1. The fit is undefined for series
// containing non-positive values.
type Exponential struct {
	A float64 `json:"a" msgpack:"a"`
	B float64 `json:"b" msgpack:"b"`
	// AvgGrowthPerPeriod is b - 1.
	AvgGrowthPerPeriod float64 `json:"avg_growth_per_period" msgpack:"avg_growth_per_period"`
	// RSquared is computed in log-space.
	RSquared float64 `json:"R_squared" msgpack:"R_squared"`
}

// NewExponential fits the series, or returns nil when fewer than two values
// are present or any value is not strictly positive.
func NewExponential(series []*float64) *Exponential {
	data := dataset(series, 0, func(y float64) (float64, bool) {
		if y <= 0 {
			return 0, false
		}
		return math.Log(y), true
	})
	lr := linearFromDataset(data)
	if lr == nil {
		return nil
	}
	b := math.Exp(lr.Slope)
	return &Exponential{
		A:                  math.Exp(lr.YIntercept),
		B:                  b,
		AvgGrowthPerPeriod: b - 1.0,
		RSquared:           lr.RSquared,
	}
}

// Predict returns the fitted value at x.
func (e *Exponential) Predict(x float64) float64 {
	return e.A * math.Pow(e.B, x)
}
