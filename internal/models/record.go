package models

import (
	"time"

	"gorm.io/datatypes"
)

// Record is one candidate submission: extracted text awaiting grading, plus
// the grading outcome once a call has completed. Re-editing the content
// clears any prior result and returns the record to idle.
type Record struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	BatchID    string `gorm:"size:36;index;not null" json:"batch_id"`
	Identifier string `gorm:"size:255;not null" json:"identifier"`
	SourceKind string `gorm:"size:32" json:"source_kind"`
	RawContent string `gorm:"type:text" json:"raw_content"`
	Status     string `gorm:"size:16;not null" json:"status"`
	LastError  string `gorm:"type:text" json:"last_error"`

	SentAt   *time.Time `json:"sent_at"`
	GradedAt *time.Time `json:"graded_at"`

	// ResultJSON holds the validated GradingResult verbatim, including the
	// parse-error variant, so the raw model response is never lost.
	ResultJSON datatypes.JSON `json:"result_json"`

	Total      float64 `json:"total"`
	Worth      float64 `json:"worth"`
	Percentage float64 `json:"percentage"`
	Letter     string  `gorm:"size:2" json:"letter"`
	Passed     bool    `json:"passed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	// RecordStatusIdle marks a record not graded since its last content edit.
	RecordStatusIdle = "idle"
	// RecordStatusSent marks a grading request dispatched to the model.
	RecordStatusSent = "sent"
	// RecordStatusProcessing marks a request awaiting the model's response.
	RecordStatusProcessing = "processing"
	// RecordStatusReceived marks response bytes obtained, parsing pending.
	RecordStatusReceived = "received"
	// RecordStatusDisplayed marks a result ready for rendering. Reached on
	// parse failure too, with the parse-error payload stored.
	RecordStatusDisplayed = "displayed"
	// RecordStatusError marks a transport or HTTP failure; no result stored.
	RecordStatusError = "error"
)

// HasResult reports whether a grading result (including the parse-error
// variant) is stored for the record.
func (r Record) HasResult() bool {
	return len(r.ResultJSON) > 0
}

// InFlight reports whether a grading call is currently underway.
func (r Record) InFlight() bool {
	return r.Status == RecordStatusSent || r.Status == RecordStatusProcessing || r.Status == RecordStatusReceived
}
