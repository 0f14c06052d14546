package dto

// RecordSummary is the per-record line of a batch summary.
type RecordSummary struct {
	RecordID   string  `json:"record_id"`
	Identifier string  `json:"identifier"`
	Status     string  `json:"status"`
	Total      float64 `json:"total"`
	Worth      float64 `json:"worth"`
	Percentage float64 `json:"percentage"`
	Letter     string  `json:"letter,omitempty"`
	Passed     bool    `json:"passed"`
}

// BatchSummaryResponse aggregates grading outcomes across a batch.
type BatchSummaryResponse struct {
	BatchID           string          `json:"batch_id"`
	TotalCount        int             `json:"total_count"`
	GradedCount       int             `json:"graded_count"`
	PassCount         int             `json:"pass_count"`
	AveragePercentage float64         `json:"average_percentage"`
	Records           []RecordSummary `json:"records"`
}
