package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audited staff actions.
const (
	ActivityProblemCreated     = "problem.created"
	ActivityTestCasesAdded     = "problem.test_cases_added"
	ActivitySweepTriggered     = "autosubmit.sweep_triggered"
	ActivityTaskSweepTriggered = "autosubmit.task_sweep_triggered"
)

// ActivityLog is the audit trail of actions teachers and administrators take
// against problems and the auto-submit scheduler.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   *uint             `json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
}
