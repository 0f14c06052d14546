package dto

// GradeOutcome summarises one record's pass through a grade-all run.
type GradeOutcome struct {
	RecordID   string `json:"record_id"`
	Identifier string `json:"identifier"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// GradeBatchResponse summarises a sequential grade-all run over a batch.
type GradeBatchResponse struct {
	BatchID  string         `json:"batch_id"`
	Graded   int            `json:"graded"`
	Failed   int            `json:"failed"`
	Skipped  int            `json:"skipped"`
	Outcomes []GradeOutcome `json:"outcomes"`
}
