package calc

import "math"

// GrowthMode selects between simple and compound period-over-period rates.
type GrowthMode string

const (
	GrowthSimple   GrowthMode = "simple"
	GrowthCompound GrowthMode = "compound"
)

// GrowthResult summarizes growth over a monthly value series.
type GrowthResult struct {
	Rates          []float64 `json:"rates"`
	AverageRate    float64   `json:"average_rate"`
	AnnualizedRate float64   `json:"annualized_rate"`
	Volatility     float64   `json:"volatility"`
}

// Growth computes period-over-period rates over a monthly series.
// Zero-valued result for fewer than two points.
func Growth(series []float64, mode GrowthMode) GrowthResult {
	if len(series) < 2 {
		return GrowthResult{}
	}

	rates := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		if prev == 0 {
			rates = append(rates, 0)
			continue
		}
		rates = append(rates, (series[i]-prev)/math.Abs(prev))
	}

	var avg float64
	switch mode {
	case GrowthCompound:
		// Geometric mean of (1+r), undefined for factors <= 0.
		prod := 1.0
		ok := true
		for _, r := range rates {
			if 1+r <= 0 {
				ok = false
				break
			}
			prod *= 1 + r
		}
		if ok {
			avg = math.Pow(prod, 1/float64(len(rates))) - 1
		} else {
			avg = Mean(rates)
		}
	default:
		avg = Mean(rates)
	}

	return GrowthResult{
		Rates:          rates,
		AverageRate:    avg,
		AnnualizedRate: math.Pow(1+avg, 12) - 1,
		Volatility:     StdDev(rates),
	}
}

// Prediction is a least-squares linear projection over a series.
type Prediction struct {
	Slope      float64 `json:"slope"`
	Intercept  float64 `json:"intercept"`
	NextValue  float64 `json:"next_value"`
	Confidence float64 `json:"confidence"` // R² scaled to 0..100
}

// PredictLinear fits y = slope*x + intercept by least squares over integer
// x and projects the next point. Confidence is R² clipped to [0, 100].
func PredictLinear(series []float64) Prediction {
	n := len(series)
	if n < 2 {
		var next float64
		if n == 1 {
			next = series[0]
		}
		return Prediction{NextValue: next}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return Prediction{NextValue: Mean(series)}
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	// R² against the mean model.
	meanY := sumY / fn
	var ssRes, ssTot float64
	for i, y := range series {
		fit := slope*float64(i) + intercept
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - meanY) * (y - meanY)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	conf := r2 * 100
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}

	return Prediction{
		Slope:      slope,
		Intercept:  intercept,
		NextValue:  slope*fn + intercept,
		Confidence: conf,
	}
}
