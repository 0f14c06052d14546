package models

import "time"

// Batch is one upload set: an answer key plus the student submissions that
// will be graded against it. Uploading a new batch never mutates an old one.
type Batch struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	KeyText   string    `gorm:"type:text" json:"key_text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Records   []Record  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"records,omitempty"`
}
