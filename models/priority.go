package models

import (
	"math"
	"time"
)

const maxAgeBonusDays = 14

var categoryWeights = map[IssueCategory]float64{
	Electricity: 10,
	Water:       9,
	Road:        8,
	Sanitation:  7,
	Streetlight: 6,
	Waste:       5,
	Parks:       3,
	Other:       2,
}

// PriorityScore ranks issues for triage. Spam, duplicates and resolved
// issues never compete for attention.
func PriorityScore(issue Issue, now time.Time) float64 {
	if issue.IsSpam || issue.DuplicateOf != nil || issue.Status == StatusResolved {
		return 0
	}

	ageDays := now.Sub(issue.CreatedAt).Hours() / 24
	ageDays = math.Max(0, math.Min(ageDays, maxAgeBonusDays))

	score := categoryWeights[issue.Category] + 2*float64(issue.Upvotes) + ageDays
	return math.Round(score*100) / 100
}
