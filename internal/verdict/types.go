// Package verdict validates the untrusted grading payload returned by the
// language model at the boundary, producing a fully typed result for the rest
// of the application to consume.
package verdict

import "strings"

// Verdict is the categorical correctness label for one question.
type Verdict string

const (
	// VerdictCorrect marks a fully correct answer.
	VerdictCorrect Verdict = "Correct"
	// VerdictPartial marks a partially correct answer.
	VerdictPartial Verdict = "Partial"
	// VerdictIncorrect marks an incorrect answer.
	VerdictIncorrect Verdict = "Incorrect"
)

// QuestionResult is the graded outcome of a single question.
type QuestionResult struct {
	ID            string  `json:"id"`
	QuestionText  string  `json:"question"`
	StudentAnswer string  `json:"studentAnswer"`
	CorrectAnswer string  `json:"correctAnswer"`
	Closeness     float64 `json:"closeness"`
	Verdict       Verdict `json:"verdict"`
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"maxScore"`
}

// ParseError captures a model response that could not be interpreted as
// JSON. The raw text is preserved for diagnostics so nothing is dropped.
type ParseError struct {
	Raw string `json:"raw"`
}

// GradingResult is the validated grading payload. ParseError is mutually
// exclusive with the remaining fields: when set, the payload was malformed
// and every other field is zero.
type GradingResult struct {
	StudentName   string           `json:"studentName,omitempty"`
	ReportedTotal *float64         `json:"total,omitempty"`
	DeclaredWorth *float64         `json:"worth,omitempty"`
	Questions     []QuestionResult `json:"questions,omitempty"`
	Feedback      string           `json:"feedback,omitempty"`
	ParseError    *ParseError      `json:"parseError,omitempty"`
}

// Malformed reports whether the payload failed structural parsing.
func (r *GradingResult) Malformed() bool {
	return r != nil && r.ParseError != nil
}

// NormalizeVerdict folds an arbitrary label from the model onto the three
// supported verdicts. Unknown labels are treated as incorrect.
func NormalizeVerdict(label string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(label))
	switch {
	case normalized == "correct":
		return VerdictCorrect
	case strings.Contains(normalized, "part"):
		return VerdictPartial
	default:
		return VerdictIncorrect
	}
}
