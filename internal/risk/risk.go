// Package risk converts per-record fraud verdicts into per-user risk
// scores and levels.
package risk

import (
	"github.com/openathletics/stridewatch/internal/domain"
	"github.com/openathletics/stridewatch/internal/features"
)

// categoryWeights amplify a user's score according to the severity of their
// dominant fraud category.
var categoryWeights = map[string]float64{
	domain.FraudVehicleUse:        1.0,
	domain.FraudRouteShortcut:     0.8,
	domain.FraudStepMisreporting:  0.6,
	domain.FraudAbnormalHeartRate: 0.7,
	domain.FraudAbnormalCorr:      0.5,
	domain.FraudAnomalousPattern:  0.4,
}

const defaultWeight = 0.5

// Risk level thresholds.
const (
	highThreshold   = 70.0
	mediumThreshold = 40.0
)

// Weight returns the severity weight for a fraud category.
func Weight(category string) float64 {
	if w, ok := categoryWeights[category]; ok {
		return w
	}
	return defaultWeight
}

// Level maps a 0-100 score to a risk level.
func Level(score float64) string {
	switch {
	case score >= highThreshold:
		return domain.RiskLevelHigh
	case score >= mediumThreshold:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// Score computes a single user's risk score from their fraud ratio and
// dominant fraud category. The result is clamped to [0, 100].
func Score(fraudRatio float64, dominantCategory string) float64 {
	score := fraudRatio * 100 * (1 + Weight(dominantCategory))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ScoreUsers aggregates per-record verdicts into per-user risk scores.
// categories holds the fraud category per row, empty for unflagged rows.
// Every user in the batch gets an entry; clean users score 0 with level
// Low.
func ScoreUsers(rows []*features.Row, categories []string) map[string]*domain.UserRiskScore {
	type userAgg struct {
		total    int
		fraud    int
		byType   map[string]int
		ordered  []string // category first-seen order, for stable ties
	}

	users := make(map[string]*userAgg)
	for i, r := range rows {
		uid := r.Activity.UserID
		agg, ok := users[uid]
		if !ok {
			agg = &userAgg{byType: make(map[string]int)}
			users[uid] = agg
		}
		agg.total++
		if categories[i] != "" {
			agg.fraud++
			if _, seen := agg.byType[categories[i]]; !seen {
				agg.ordered = append(agg.ordered, categories[i])
			}
			agg.byType[categories[i]]++
		}
	}

	scores := make(map[string]*domain.UserRiskScore, len(users))
	for uid, agg := range users {
		dominant := ""
		best := 0
		for _, cat := range agg.ordered {
			if agg.byType[cat] > best {
				dominant = cat
				best = agg.byType[cat]
			}
		}
		ratio := float64(agg.fraud) / float64(agg.total)
		score := Score(ratio, dominant)
		scores[uid] = &domain.UserRiskScore{
			RiskScore:       score,
			RiskLevel:       Level(score),
			FraudCount:      agg.fraud,
			TotalActivities: agg.total,
			FraudRatio:      ratio,
		}
	}
	return scores
}
