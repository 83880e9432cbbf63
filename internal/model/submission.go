package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionAction enum constants
const (
	SubmissionActionCreate = "CREATE"
	SubmissionActionUpdate = "UPDATE"
)

// SubmissionStatus enum constants
const (
	SubmissionSucceeded = "SUCCEEDED"
	SubmissionFailed    = "FAILED"
)

// SubmissionLog records every create/update request sent to the API from an editing session.
type SubmissionLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID      string    `gorm:"type:varchar(36);not null;index" json:"session_id"`
	UserID         string    `gorm:"type:varchar(64);index" json:"user_id"`
	DocumentKind   string    `gorm:"type:varchar(30);not null;index" json:"document_kind"` // purchase_invoice, inbound_delivery
	DocumentID     *int64    `gorm:"index" json:"document_id"`                             // nil for a failed create
	Action         string    `gorm:"type:varchar(10);not null" json:"action"`
	Status         string    `gorm:"type:varchar(10);not null;index" json:"status"`
	ActiveLines    int       `gorm:"not null;default:0" json:"active_lines"`
	DestroyedLines int       `gorm:"not null;default:0" json:"destroyed_lines"`
	Payload        string    `gorm:"type:text" json:"payload"` // JSON request body
	Error          string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (s *SubmissionLog) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
