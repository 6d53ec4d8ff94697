package models

import "time"

// Notification types.
const (
	NotificationTaskAutoSubmitted = "task_auto_submitted"
	NotificationTaskSweepSummary  = "task_auto_submit_summary"
)

// Notification represents a push notification targeted to a specific user.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Type      string    `gorm:"size:64" json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
