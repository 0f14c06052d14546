package dto

import (
	"encoding/json"
	"time"

	"github.com/gradescan/gradescan-api/internal/models"
)

// RecordResponse is the API view of one grading record.
type RecordResponse struct {
	ID         string `json:"id"`
	BatchID    string `json:"batch_id"`
	Identifier string `json:"identifier"`
	SourceKind string `json:"source_kind,omitempty"`
	RawContent string `json:"raw_content"`
	Status     string `json:"status"`
	LastError  string `json:"last_error,omitempty"`

	// ElapsedSeconds reports how long the in-flight grading call has been
	// running. Present only while a call is underway.
	ElapsedSeconds *int64 `json:"elapsed_seconds,omitempty"`

	Result     json.RawMessage `json:"result,omitempty"`
	Total      float64         `json:"total"`
	Worth      float64         `json:"worth"`
	Percentage float64         `json:"percentage"`
	Letter     string          `json:"letter,omitempty"`
	Passed     bool            `json:"passed"`
	GradedAt   *time.Time      `json:"graded_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewRecordResponse maps a record model to its API representation, deriving
// the elapsed-seconds display field from the dispatch timestamp.
func NewRecordResponse(record models.Record, now time.Time) RecordResponse {
	response := RecordResponse{
		ID:         record.ID,
		BatchID:    record.BatchID,
		Identifier: record.Identifier,
		SourceKind: record.SourceKind,
		RawContent: record.RawContent,
		Status:     record.Status,
		LastError:  record.LastError,
		Total:      record.Total,
		Worth:      record.Worth,
		Percentage: record.Percentage,
		Letter:     record.Letter,
		Passed:     record.Passed,
		GradedAt:   record.GradedAt,
		CreatedAt:  record.CreatedAt,
	}

	if record.HasResult() {
		response.Result = json.RawMessage(record.ResultJSON)
	}

	if record.InFlight() && record.SentAt != nil {
		elapsed := int64(now.Sub(*record.SentAt).Seconds())
		if elapsed < 0 {
			elapsed = 0
		}
		response.ElapsedSeconds = &elapsed
	}

	return response
}

// RecordUpdateRequest re-edits a record's extracted text. Any stored grading
// result is invalidated by the edit.
type RecordUpdateRequest struct {
	RawContent string `json:"raw_content" validate:"required"`
}
