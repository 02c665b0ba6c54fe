package calc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrowth_Empty(t *testing.T) {
	r := Growth(nil, GrowthSimple)
	assert.Zero(t, r.AverageRate)
	assert.Empty(t, r.Rates)

	r = Growth([]float64{100}, GrowthSimple)
	assert.Zero(t, r.AverageRate)
}

func TestGrowth_Simple(t *testing.T) {
	r := Growth([]float64{100, 110, 121}, GrowthSimple)
	assert.Len(t, r.Rates, 2)
	assert.InDelta(t, 0.1, r.AverageRate, 1e-9)
	assert.InDelta(t, math.Pow(1.1, 12)-1, r.AnnualizedRate, 1e-9)
}

func TestGrowth_ZeroBase(t *testing.T) {
	r := Growth([]float64{0, 50, 100}, GrowthSimple)
	assert.Equal(t, 0.0, r.Rates[0], "zero base yields zero rate, not infinity")
	assert.InDelta(t, 1.0, r.Rates[1], 1e-9)
}

func TestPredictLinear_PerfectFit(t *testing.T) {
	p := PredictLinear([]float64{10, 20, 30, 40})
	assert.InDelta(t, 10.0, p.Slope, 1e-9)
	assert.InDelta(t, 10.0, p.Intercept, 1e-9)
	assert.InDelta(t, 50.0, p.NextValue, 1e-9)
	assert.InDelta(t, 100.0, p.Confidence, 1e-9)
}

func TestPredictLinear_Noisy(t *testing.T) {
	p := PredictLinear([]float64{10, 40, 15, 45, 20})
	assert.GreaterOrEqual(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 100.0)
}

func TestPredictLinear_Short(t *testing.T) {
	p := PredictLinear([]float64{42})
	assert.Equal(t, 42.0, p.NextValue)
	assert.Zero(t, p.Confidence)
}
