package dto

import (
	"time"

	"github.com/noah-isme/gema-judge/internal/models"
)

// TaskDraftRequest saves a draft. Version is the one last read by the
// client; it is ignored on the first save.
type TaskDraftRequest struct {
	Content string `json:"content" validate:"max=100000"`
	Version int    `json:"version" validate:"min=0"`
}

// TaskSubmissionResponse is a student's submission row.
type TaskSubmissionResponse struct {
	ID              uint       `json:"id"`
	TaskID          uint       `json:"task_id"`
	StudentID       uint       `json:"student_id"`
	Content         string     `json:"content"`
	Status          string     `json:"status"`
	IsAutoSubmitted bool       `json:"is_auto_submitted"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	AutoSubmittedAt *time.Time `json:"auto_submitted_at,omitempty"`
	Version         int        `json:"version"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewTaskSubmissionResponse converts a model.
func NewTaskSubmissionResponse(model models.TaskSubmission) TaskSubmissionResponse {
	return TaskSubmissionResponse{
		ID:              model.ID,
		TaskID:          model.TaskID,
		StudentID:       model.StudentID,
		Content:         model.Content,
		Status:          model.Status,
		IsAutoSubmitted: model.IsAutoSubmitted,
		SubmittedAt:     model.SubmittedAt,
		AutoSubmittedAt: model.AutoSubmittedAt,
		Version:         model.Version,
		UpdatedAt:       model.UpdatedAt,
	}
}

// SweepReport summarises one auto-submission sweep.
type SweepReport struct {
	Skipped        bool          `json:"skipped"`
	TasksProcessed int           `json:"tasks_processed"`
	TasksFailed    int           `json:"tasks_failed"`
	Submitted      int           `json:"submitted"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
	Tasks          []TaskSweep   `json:"tasks"`
}

// TaskSweep is the outcome for a single task within a sweep.
type TaskSweep struct {
	TaskID     uint   `json:"task_id"`
	Title      string `json:"title"`
	StudentIDs []uint `json:"student_ids"`
	Error      string `json:"error,omitempty"`
}

// PendingTask is an overdue task that still holds drafts.
type PendingTask struct {
	TaskID     uint      `json:"task_id"`
	Title      string    `json:"title"`
	TeacherID  uint      `json:"teacher_id"`
	Deadline   time.Time `json:"deadline"`
	DraftCount int       `json:"draft_count"`
}

// TaskSubmissionHistory splits a task's submissions by how they were submitted.
type TaskSubmissionHistory struct {
	TaskID          uint                     `json:"task_id"`
	Title           string                   `json:"title"`
	Deadline        time.Time                `json:"deadline"`
	AutoSubmitted   []TaskSubmissionResponse `json:"auto_submitted"`
	ManualSubmitted []TaskSubmissionResponse `json:"manual_submitted"`
	Drafts          []TaskSubmissionResponse `json:"drafts"`
}
