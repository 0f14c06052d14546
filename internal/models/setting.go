package models

import "time"

// Setting is one persisted configuration entry. The store holds the API
// credential, the grading prompt, and the pass threshold across sessions.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
