package models

import "time"

// Task submission statuses. Submitted is terminal.
const (
	TaskSubmissionDraft     = "draft"
	TaskSubmissionSubmitted = "submitted"
)

// Task is a deadline-bound assignment handed out by a teacher.
type Task struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Title       string           `gorm:"size:255;not null" json:"title"`
	Description string           `gorm:"type:text" json:"description"`
	TeacherID   uint             `gorm:"index;not null" json:"teacher_id"`
	Deadline    time.Time        `gorm:"index;not null" json:"deadline"`
	IsActive    bool             `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Submissions []TaskSubmission `json:"submissions,omitempty"`
}

// Overdue reports whether the deadline has passed at the given instant.
func (t Task) Overdue(now time.Time) bool {
	return t.Deadline.Before(now)
}

// TaskSubmission is the single row a student owns for a task.
type TaskSubmission struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TaskID          uint       `gorm:"not null;uniqueIndex:idx_task_student" json:"task_id"`
	StudentID       uint       `gorm:"not null;uniqueIndex:idx_task_student" json:"student_id"`
	Content         string     `gorm:"type:text" json:"content"`
	Status          string     `gorm:"size:16;not null;default:draft;index" json:"status"`
	IsAutoSubmitted bool       `gorm:"not null;default:false" json:"is_auto_submitted"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	AutoSubmittedAt *time.Time `json:"auto_submitted_at,omitempty"`
	Version         int        `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
