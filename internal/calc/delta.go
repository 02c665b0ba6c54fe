package calc

import "math"

// Direction labels the sign of a delta.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionStable   Direction = "stable"
)

// Magnitude buckets how large a percentage change is.
type Magnitude string

const (
	MagnitudeMinor       Magnitude = "minor"
	MagnitudeModerate    Magnitude = "moderate"
	MagnitudeSignificant Magnitude = "significant"
	MagnitudeMajor       Magnitude = "major"
)

// DeltaResult describes the change between two values.
type DeltaResult struct {
	Absolute   float64   `json:"absolute"`
	Percentage float64   `json:"percentage"`
	Direction  Direction `json:"direction"`
	Magnitude  Magnitude `json:"magnitude"`
}

// Delta compares current against previous. When previous is zero the
// percentage is 100 if current is non-zero and 0 otherwise; direction
// follows the sign of the absolute change.
func Delta(current, previous float64) DeltaResult {
	abs := current - previous

	var pct float64
	if previous == 0 {
		if current != 0 {
			pct = 100
		}
	} else {
		pct = abs / math.Abs(previous) * 100
	}

	dir := DirectionStable
	if abs > 0 {
		dir = DirectionPositive
	} else if abs < 0 {
		dir = DirectionNegative
	}

	return DeltaResult{
		Absolute:   abs,
		Percentage: pct,
		Direction:  dir,
		Magnitude:  magnitudeOf(math.Abs(pct)),
	}
}

func magnitudeOf(absPct float64) Magnitude {
	switch {
	case absPct >= 50:
		return MagnitudeMajor
	case absPct >= 20:
		return MagnitudeSignificant
	case absPct >= 5:
		return MagnitudeModerate
	default:
		return MagnitudeMinor
	}
}
