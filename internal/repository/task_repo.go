package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// TaskRepository manages tasks and the per-student submission rows attached to them.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uint) (models.Task, error)
	ListOverdueWithDrafts(ctx context.Context, now time.Time) ([]models.Task, error)
	AutoSubmitDrafts(ctx context.Context, taskID uint, now time.Time) ([]models.TaskSubmission, error)
	FindSubmission(ctx context.Context, taskID, studentID uint) (models.TaskSubmission, error)
	CreateSubmission(ctx context.Context, submission *models.TaskSubmission) error
	UpdateDraft(ctx context.Context, id uint, expectedVersion int, content string) (bool, error)
	SubmitDraft(ctx context.Context, id uint, expectedVersion int, now time.Time) (bool, error)
	ListSubmissions(ctx context.Context, taskID uint) ([]models.TaskSubmission, error)
}

// NewTaskRepository constructs a task repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

type taskRepository struct {
	db *gorm.DB
}

func draftsOnly(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", models.TaskSubmissionDraft).Order("id ASC")
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) GetByID(ctx context.Context, id uint) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Preload("Submissions", draftsOnly).First(&task, id).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// ListOverdueWithDrafts returns active tasks past their deadline that still
// hold at least one draft, with those drafts preloaded.
func (r *taskRepository) ListOverdueWithDrafts(ctx context.Context, now time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Preload("Submissions", draftsOnly).
		Where("is_active = ? AND deadline < ?", true, now).
		Where("EXISTS (SELECT 1 FROM task_submissions ts WHERE ts.task_id = tasks.id AND ts.status = ?)", models.TaskSubmissionDraft).
		Order("deadline ASC").
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// AutoSubmitDrafts promotes every draft of the task in a single transaction.
// Each row is updated only if its version and status are unchanged, so rows
// touched concurrently are skipped. The promoted rows are returned.
func (r *taskRepository) AutoSubmitDrafts(ctx context.Context, taskID uint, now time.Time) ([]models.TaskSubmission, error) {
	var promoted []models.TaskSubmission

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var drafts []models.TaskSubmission
		if err := tx.Where("task_id = ? AND status = ?", taskID, models.TaskSubmissionDraft).
			Order("id ASC").
			Find(&drafts).Error; err != nil {
			return err
		}

		for _, draft := range drafts {
			result := tx.Model(&models.TaskSubmission{}).
				Where("id = ? AND version = ? AND status = ?", draft.ID, draft.Version, models.TaskSubmissionDraft).
				Updates(map[string]interface{}{
					"status":            models.TaskSubmissionSubmitted,
					"is_auto_submitted": true,
					"submitted_at":      now,
					"auto_submitted_at": now,
					"version":           gorm.Expr("version + 1"),
					"updated_at":        now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}

			at := now
			draft.Status = models.TaskSubmissionSubmitted
			draft.IsAutoSubmitted = true
			draft.SubmittedAt = &at
			draft.AutoSubmittedAt = &at
			draft.Version++
			draft.UpdatedAt = now
			promoted = append(promoted, draft)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return promoted, nil
}

func (r *taskRepository) FindSubmission(ctx context.Context, taskID, studentID uint) (models.TaskSubmission, error) {
	var submission models.TaskSubmission
	if err := r.db.WithContext(ctx).
		Where("task_id = ? AND student_id = ?", taskID, studentID).
		First(&submission).Error; err != nil {
		return models.TaskSubmission{}, err
	}
	return submission, nil
}

func (r *taskRepository) CreateSubmission(ctx context.Context, submission *models.TaskSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

// UpdateDraft rewrites draft content when the caller holds the current version.
func (r *taskRepository) UpdateDraft(ctx context.Context, id uint, expectedVersion int, content string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TaskSubmission{}).
		Where("id = ? AND version = ? AND status = ?", id, expectedVersion, models.TaskSubmissionDraft).
		Updates(map[string]interface{}{
			"content": content,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SubmitDraft promotes one draft on behalf of the student.
func (r *taskRepository) SubmitDraft(ctx context.Context, id uint, expectedVersion int, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TaskSubmission{}).
		Where("id = ? AND version = ? AND status = ?", id, expectedVersion, models.TaskSubmissionDraft).
		Updates(map[string]interface{}{
			"status":            models.TaskSubmissionSubmitted,
			"is_auto_submitted": false,
			"submitted_at":      now,
			"version":           gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *taskRepository) ListSubmissions(ctx context.Context, taskID uint) ([]models.TaskSubmission, error) {
	var submissions []models.TaskSubmission
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("student_id ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
