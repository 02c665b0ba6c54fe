package calc

import (
	"math"
	"time"

	"github.com/finpulse/finpulse/internal/domain"
)

// ClusterPattern labels the shape of amounts within a cluster.
type ClusterPattern string

const (
	PatternSingle     ClusterPattern = "single"
	PatternFixed      ClusterPattern = "fixed_amount"
	PatternIncreasing ClusterPattern = "increasing_trend"
	PatternDecreasing ClusterPattern = "decreasing_trend"
	PatternPeriodic   ClusterPattern = "periodic"
	PatternVariable   ClusterPattern = "variable"
)

// Cluster is a greedy time-window grouping of transactions.
type Cluster struct {
	Transactions []domain.Transaction `json:"-"`
	Start        time.Time            `json:"start"`
	End          time.Time            `json:"end"`
	Size         int                  `json:"size"`
	Total        float64              `json:"total"`
	Mean         float64              `json:"mean"`
	StdDev       float64              `json:"std_dev"`
	CoeffVar     float64              `json:"coeff_var"`
	Pattern      ClusterPattern       `json:"pattern"`
	IsOutlier    bool                 `json:"is_outlier"`
}

// ClusterOptions tunes the greedy grouping.
type ClusterOptions struct {
	Window  time.Duration // max gap between consecutive members
	MinSize int           // minimum cluster size to keep
}

// DefaultClusterOptions groups within 7 days with a minimum of 3 members.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{Window: 7 * 24 * time.Hour, MinSize: 3}
}

// periodicCVThreshold: inter-arrival CV below this counts as periodic.
const periodicCVThreshold = 0.2

// ClusterTransactions forms clusters by greedy time-window grouping over
// transactions sorted by date, then grades each cluster's amount pattern.
// Outlier clusters are those whose total is more than 2σ from the mean of
// all cluster totals.
func ClusterTransactions(txs []domain.Transaction, opts ClusterOptions) []Cluster {
	if len(txs) == 0 {
		return nil
	}
	if opts.Window <= 0 {
		opts = DefaultClusterOptions()
	}

	var groups [][]domain.Transaction
	current := []domain.Transaction{txs[0]}
	for _, tx := range txs[1:] {
		last := current[len(current)-1]
		if tx.Date.Sub(last.Date) <= opts.Window {
			current = append(current, tx)
		} else {
			groups = append(groups, current)
			current = []domain.Transaction{tx}
		}
	}
	groups = append(groups, current)

	var clusters []Cluster
	for _, g := range groups {
		if len(g) < opts.MinSize {
			continue
		}
		clusters = append(clusters, buildCluster(g))
	}

	markOutliers(clusters)
	return clusters
}

func buildCluster(txs []domain.Transaction) Cluster {
	amounts := make([]float64, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Amount
	}
	mean := Mean(amounts)
	sd := StdDev(amounts)
	cv := 0.0
	if mean != 0 {
		cv = sd / math.Abs(mean)
	}

	return Cluster{
		Transactions: txs,
		Start:        txs[0].Date,
		End:          txs[len(txs)-1].Date,
		Size:         len(txs),
		Total:        Sum(amounts),
		Mean:         mean,
		StdDev:       sd,
		CoeffVar:     cv,
		Pattern:      classifyPattern(txs, amounts, cv),
	}
}

func classifyPattern(txs []domain.Transaction, amounts []float64, cv float64) ClusterPattern {
	if len(amounts) == 1 {
		return PatternSingle
	}
	if cv < 0.05 {
		return PatternFixed
	}

	// Periodic: inter-arrival CV below threshold.
	if len(txs) >= 3 {
		intervals := make([]float64, 0, len(txs)-1)
		for i := 1; i < len(txs); i++ {
			intervals = append(intervals, txs[i].Date.Sub(txs[i-1].Date).Hours())
		}
		im := Mean(intervals)
		if im > 0 && StdDev(intervals)/im < periodicCVThreshold {
			return PatternPeriodic
		}
	}

	increasing, decreasing := true, true
	for i := 1; i < len(amounts); i++ {
		if amounts[i] <= amounts[i-1] {
			increasing = false
		}
		if amounts[i] >= amounts[i-1] {
			decreasing = false
		}
	}
	if increasing {
		return PatternIncreasing
	}
	if decreasing {
		return PatternDecreasing
	}
	return PatternVariable
}

func markOutliers(clusters []Cluster) {
	if len(clusters) < 2 {
		return
	}
	totals := make([]float64, len(clusters))
	for i, c := range clusters {
		totals[i] = c.Total
	}
	mean := Mean(totals)
	sd := StdDev(totals)
	if sd == 0 {
		return
	}
	for i := range clusters {
		if math.Abs(clusters[i].Total-mean) > 2*sd {
			clusters[i].IsOutlier = true
		}
	}
}
