package ai

import "context"

// Grader submits a grading prompt to a hosted model and returns the raw
// completion text. Transport and HTTP failures surface as errors; whether
// the returned text is usable JSON is the caller's concern.
type Grader interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
