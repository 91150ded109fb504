package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(vals ...float64) []*float64 {
	out := make([]*float64, len(vals))
	for i := range vals {
		v := vals[i]
		out[i] = &v
	}
	return out
}

func TestLinearPerfectLine(t *testing.T) {
	lr := NewLinear(series(1, 2, 3, 4))
	require.NotNil(t, lr)
	assert.InDelta(t, 1.0, lr.Slope, 1e-10)
	assert.InDelta(t, 0.0, lr.YIntercept, 1e-10)
	assert.InDelta(t, 1.0, lr.RSquared, 1e-10)
	assert.InDelta(t, 0.0, lr.L1Deviation, 1e-10)
}

func TestLinearConstantSeries(t *testing.T) {
	lr := NewLinear(series(1, 1))
	require.NotNil(t, lr)
	assert.InDelta(t, 0.0, lr.Slope, 1e-10)
	assert.InDelta(t, 1.0, lr.YIntercept, 1e-10)
	assert.InDelta(t, 1.0, lr.RSquared, 1e-10)
}

func TestLinearTooFewPoints(t *testing.T) {
	assert.Nil(t, NewLinear(series(1)))
	assert.Nil(t, NewLinear([]*float64{nil, nil}))
	one := 1.0
	assert.Nil(t, NewLinear([]*float64{&one, nil}))
}

func TestLinearWithGaps(t *testing.T) {
	// gaps keep their x slot: x = 2, 3, 4, 6
	data := []*float64{nil, f(2), f(4), f(6), nil, f(7)}
	lr := NewLinear(data)
	require.NotNil(t, lr)
	assert.InDelta(t, 1.2285714285714286, lr.Slope, 1e-10)
	assert.InDelta(t, 0.14285714285714235, lr.YIntercept, 1e-9)
	assert.InDelta(t, 0.8953995157384989, lr.RSquared, 1e-10)
}

func TestLinearDeviation(t *testing.T) {
	data := series(1, 2, 3, 8)
	lr := NewLinear(data)
	require.NotNil(t, lr)
	dev := lr.Deviation(data, 3)
	require.NotNil(t, dev)
	expect := 8.0 - (lr.YIntercept + 4.0*lr.Slope)
	assert.InDelta(t, expect, *dev, 1e-10)

	assert.Nil(t, lr.Deviation([]*float64{nil, nil, nil, nil}, 3))
}

func TestExponentialKnownCurve(t *testing.T) {
	er := NewExponential(series(3, 7, 10, 24, 50, 95))
	require.NotNil(t, er)
	assert.InDelta(t, 3.046450344890837, er.A, 1e-9)
	assert.InDelta(t, 1.9880347353739443, er.B, 1e-9)
	assert.InDelta(t, er.B-1.0, er.AvgGrowthPerPeriod, 1e-12)
	assert.InDelta(t, 0.9930119179097666, er.RSquared, 1e-9)
}

func TestExponentialUndefinedOnNonPositiveValues(t *testing.T) {
	assert.Nil(t, NewExponential(series(1, 0, 4)))
	assert.Nil(t, NewExponential(series(1, -2, 4)))
}

func TestExponentialPredict(t *testing.T) {
	er := NewExponential(series(2, 4, 8, 16))
	require.NotNil(t, er)
	assert.InDelta(t, 2.0, er.Predict(0), 1e-9)
	assert.InDelta(t, 16.0, er.Predict(3), 1e-9)
}

func f(v float64) *float64 { return &v }
