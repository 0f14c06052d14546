// Package scoring turns a validated grading result into the totals, the
// percentage, and the letter grade shown to the user. The locally recomputed
// sum is authoritative; the total reported by the external grader is
// advisory only.
package scoring

import (
	"math"

	"github.com/gradescan/gradescan-api/internal/verdict"
)

// DefaultPassThreshold is the pass/fail percentage used when the user has
// not configured one.
const DefaultPassThreshold = 70.0

// reconcileEpsilon bounds the tolerated difference between the model's
// reported total and the recomputed sum before a mismatch is flagged.
const reconcileEpsilon = 0.01

// Summary is the aggregate view of one grading result.
type Summary struct {
	Total      float64 `json:"total"`
	Worth      float64 `json:"worth"`
	Percentage float64 `json:"percentage"`

	// ReportedMismatch flags a reported total that disagrees with the
	// recomputed sum. Diagnostics only; it never changes the totals.
	ReportedMismatch bool `json:"-"`
}

// Aggregate computes the summary for a grading result. It is safe on nil or
// malformed input, returning a zero summary.
func Aggregate(result *verdict.GradingResult) Summary {
	if result == nil || result.Malformed() {
		return Summary{}
	}

	var summary Summary
	for _, question := range result.Questions {
		summary.Total += question.Score
		summary.Worth += question.MaxScore
	}

	if result.DeclaredWorth != nil && *result.DeclaredWorth != 0 {
		summary.Worth = *result.DeclaredWorth
	}

	if summary.Worth > 0 {
		summary.Percentage = summary.Total / summary.Worth * 100
	}

	if result.ReportedTotal != nil && math.Abs(*result.ReportedTotal-summary.Total) > reconcileEpsilon {
		summary.ReportedMismatch = true
	}

	return summary
}

// Letter buckets a percentage into the displayed letter grade.
func Letter(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	default:
		return "F"
	}
}

// Passed reports whether a percentage clears the configured pass threshold.
func Passed(percentage, threshold float64) bool {
	return percentage >= threshold
}
