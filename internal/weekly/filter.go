package weekly

import (
	"math"
	"sort"

	"github.com/finpulse/finpulse/internal/domain"
)

const (
	minInsightConfidence = 70.0
	minImpactAmount      = 10.0
	minImpactPercent     = 5.0

	maxInsightsPerType = 2
	maxInsightsTotal   = 5

	shiftAlignmentBoost = 15.0
	actionItemBoost     = 10.0
)

// InsightFilter ranks model insights and keeps the few worth showing.
type InsightFilter struct{}

func NewInsightFilter() *InsightFilter { return &InsightFilter{} }

// FilterInsights drops low-confidence and negligible-impact insights,
// scores the rest, caps each type at two and returns at most five,
// best first. Insights aligned with a significant shift or carrying
// concrete action items rank higher.
func (f *InsightFilter) FilterInsights(insights []domain.Insight, shifts []domain.MetricShift) []domain.Insight {
	shiftedCategories := map[string]bool{}
	for _, s := range shifts {
		if s.CategoryID != "" {
			shiftedCategories[s.CategoryID] = true
		}
	}

	type scored struct {
		insight domain.Insight
		score   float64
	}
	var kept []scored
	for _, ins := range insights {
		if ins.Confidence < minInsightConfidence {
			continue
		}
		if negligible(ins.Impact) {
			continue
		}
		score := ins.Confidence
		if ins.CategoryID != "" && shiftedCategories[ins.CategoryID] {
			score += shiftAlignmentBoost
		}
		if len(ins.ActionItems) > 0 {
			score += actionItemBoost
		}
		kept = append(kept, scored{insight: ins, score: score})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	perType := map[string]int{}
	var out []domain.Insight
	for _, s := range kept {
		if perType[s.insight.Type] >= maxInsightsPerType {
			continue
		}
		perType[s.insight.Type]++
		out = append(out, s.insight)
		if len(out) == maxInsightsTotal {
			break
		}
	}
	return out
}

// negligible reports whether an impact is too small to act on: neither
// the dollar amount nor the percentage clears its floor.
func negligible(imp domain.InsightImpact) bool {
	return math.Abs(imp.Amount) < minImpactAmount && math.Abs(imp.Percentage) < minImpactPercent
}
