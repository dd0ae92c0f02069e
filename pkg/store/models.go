package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type AuditRunModel struct {
	ID           string `gorm:"primaryKey"`
	SessionID    string `gorm:"not null;index"`
	UserResponse string `gorm:"type:text;not null"`
	Options      datatypes.JSON
	SelectedID   string
	Status       string    `gorm:"not null"`
	CrisisFlag   bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type ConsentEventModel struct {
	ID                 string    `gorm:"primaryKey"`
	RunID              string    `gorm:"not null;index"`
	EssentialAccepted  bool      `gorm:"not null"`
	AnalyticsOptIn     bool      `gorm:"not null"`
	CrisisAcknowledged bool      `gorm:"not null"`
	SessionBound       bool      `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null;index"`
}
