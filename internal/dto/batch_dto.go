package dto

import (
	"time"

	"github.com/gradescan/gradescan-api/internal/models"
)

// BatchResponse is the API view of an upload batch.
type BatchResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	KeyText     string    `json:"key_text,omitempty"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewBatchResponse maps a batch model to its API representation.
func NewBatchResponse(batch models.Batch) BatchResponse {
	return BatchResponse{
		ID:          batch.ID,
		Name:        batch.Name,
		KeyText:     batch.KeyText,
		RecordCount: len(batch.Records),
		CreatedAt:   batch.CreatedAt,
	}
}
