// Package correlation groups suspicious classifications into scored,
// threshold-gated correlated events.
package correlation

import (
	"sort"
	"time"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// CandidateGroup is one (attack type, source) bucket inside the window
type CandidateGroup struct {
	AttackType      models.AttackType `json:"attack_type"`
	Source          string            `json:"source"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	TotalAlerts     int               `json:"total_alerts"`
	RiskScore       float64           `json:"risk_score"`
	HighestSeverity models.Severity   `json:"highest_severity"`
	Members         []int64           `json:"classification_ids"`
}

// MeetsThreshold reports whether the group's volume reaches the threshold
// configured for its own highest severity
func (g CandidateGroup) MeetsThreshold(cfg models.DetectionConfig) bool {
	return g.TotalAlerts >= cfg.Threshold(g.HighestSeverity)
}

// Event converts the group into a correlated event ready for storage
func (g CandidateGroup) Event() *models.CorrelatedEvent {
	return &models.CorrelatedEvent{
		AttackType:        g.AttackType,
		Source:            g.Source,
		StartTime:         g.StartTime,
		EndTime:           g.EndTime,
		TotalAlerts:       g.TotalAlerts,
		RiskScore:         g.RiskScore,
		ClassificationIDs: g.Members,
	}
}

// RiskScore weights the highest severity by volume: each alert beyond the
// first adds half the base weight
func RiskScore(highest models.Severity, total int) float64 {
	if total < 1 {
		return 0
	}
	return float64(highest.Weight()) * (1 + float64(total-1)*0.5)
}

type groupKey struct {
	attack models.AttackType
	source string
}

// Correlate keeps classifications detected at or after now minus the window,
// groups them by attack type and source, and scores each group. Groups are
// returned ordered by attack type then source.
func Correlate(cls []models.Classification, windowMinutes int, now time.Time) []CandidateGroup {
	cutoff := now.Add(-time.Duration(windowMinutes) * time.Minute)

	buckets := make(map[groupKey][]models.Classification)
	for _, c := range cls {
		if c.DetectedAt.Before(cutoff) {
			continue
		}
		k := groupKey{attack: c.AttackType, source: c.Source}
		buckets[k] = append(buckets[k], c)
	}

	groups := make([]CandidateGroup, 0, len(buckets))
	for k, members := range buckets {
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].DetectedAt.Equal(members[j].DetectedAt) {
				return members[i].ID < members[j].ID
			}
			return members[i].DetectedAt.Before(members[j].DetectedAt)
		})

		g := CandidateGroup{
			AttackType:      k.attack,
			Source:          k.source,
			StartTime:       members[0].DetectedAt,
			EndTime:         members[len(members)-1].DetectedAt,
			TotalAlerts:     len(members),
			HighestSeverity: members[0].Severity,
		}
		for _, m := range members {
			if m.Severity.Weight() > g.HighestSeverity.Weight() {
				g.HighestSeverity = m.Severity
			}
			g.Members = append(g.Members, m.ID)
		}
		g.RiskScore = RiskScore(g.HighestSeverity, g.TotalAlerts)
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].AttackType != groups[j].AttackType {
			return groups[i].AttackType < groups[j].AttackType
		}
		return groups[i].Source < groups[j].Source
	})
	return groups
}
