package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelta_Basic(t *testing.T) {
	d := Delta(150, 100)
	assert.Equal(t, 50.0, d.Absolute)
	assert.Equal(t, 50.0, d.Percentage)
	assert.Equal(t, DirectionPositive, d.Direction)
	assert.Equal(t, MagnitudeMajor, d.Magnitude)
}

func TestDelta_ZeroPrevious(t *testing.T) {
	d := Delta(40, 0)
	assert.Equal(t, 100.0, d.Percentage, "previous=0 with non-zero current reports 100%%")
	assert.Equal(t, DirectionPositive, d.Direction)

	d = Delta(0, 0)
	assert.Equal(t, 0.0, d.Percentage)
	assert.Equal(t, DirectionStable, d.Direction)
}

func TestDelta_Negative(t *testing.T) {
	d := Delta(80, 100)
	assert.Equal(t, -20.0, d.Absolute)
	assert.Equal(t, -20.0, d.Percentage)
	assert.Equal(t, DirectionNegative, d.Direction)
	assert.Equal(t, MagnitudeSignificant, d.Magnitude)
}

func TestVolatility_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, Volatility(nil))
	assert.Equal(t, 0.0, Volatility([]float64{5}))
	assert.Equal(t, 0.0, Volatility([]float64{0, 0, 0}))
}

func TestVolatility_Spread(t *testing.T) {
	v := Volatility([]float64{100, 100, 100, 100})
	assert.Equal(t, 0.0, v)

	v = Volatility([]float64{50, 150})
	assert.InDelta(t, 0.5, v, 1e-9)
}
