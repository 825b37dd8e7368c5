package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry is one journaled PortfolioAnchored event.
type Entry struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	User          string    `gorm:"column:user_address;size:42;index:idx_entries_user_time,priority:1"`
	ActionType    uint8     `gorm:"not null"`
	Action        string    `gorm:"size:32;not null"`
	DataHash      string    `gorm:"size:66;index"`
	AnchoredAt    uint64    `gorm:"index:idx_entries_user_time,priority:2"`
	SchemaVersion uint8     `gorm:"not null"`
	RecordedAt    time.Time `gorm:"index"`
}

func (Entry) TableName() string { return "anchor_events" }

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}
