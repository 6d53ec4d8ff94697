package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
)

var (
	// ErrTaskNotFound indicates the task does not exist or is no longer active.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDeadlinePassed indicates the task no longer accepts student changes.
	ErrDeadlinePassed = errors.New("task deadline has passed")
	// ErrAlreadySubmitted indicates the submission is final.
	ErrAlreadySubmitted = errors.New("task already submitted")
	// ErrVersionConflict indicates the row changed since the caller read it.
	ErrVersionConflict = errors.New("submission was modified concurrently")
	// ErrNoDraft indicates there is nothing to submit.
	ErrNoDraft = errors.New("no draft to submit")
)

// TaskSubmissionService manages the draft/submitted lifecycle of a student's task work.
type TaskSubmissionService interface {
	Get(ctx context.Context, taskID, studentID uint) (dto.TaskSubmissionResponse, error)
	SaveDraft(ctx context.Context, taskID, studentID uint, payload dto.TaskDraftRequest) (dto.TaskSubmissionResponse, error)
	Submit(ctx context.Context, taskID, studentID uint) (dto.TaskSubmissionResponse, error)
}

type taskSubmissionService struct {
	tasks     repository.TaskRepository
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTaskSubmissionService constructs the service.
func NewTaskSubmissionService(tasks repository.TaskRepository, validate *validator.Validate, logger zerolog.Logger) TaskSubmissionService {
	return &taskSubmissionService{
		tasks:     tasks,
		validator: validate,
		logger:    logger.With().Str("component", "task_submission_service").Logger(),
		now:       time.Now,
	}
}

func (s *taskSubmissionService) Get(ctx context.Context, taskID, studentID uint) (dto.TaskSubmissionResponse, error) {
	if _, err := s.activeTask(ctx, taskID); err != nil {
		return dto.TaskSubmissionResponse{}, err
	}

	submission, err := s.tasks.FindSubmission(ctx, taskID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskSubmissionResponse{}, ErrNoDraft
		}
		return dto.TaskSubmissionResponse{}, err
	}
	return dto.NewTaskSubmissionResponse(submission), nil
}

// SaveDraft inserts the student's row on first save and otherwise performs a
// version-checked update.
func (s *taskSubmissionService) SaveDraft(ctx context.Context, taskID, studentID uint, payload dto.TaskDraftRequest) (dto.TaskSubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TaskSubmissionResponse{}, err
	}

	task, err := s.activeTask(ctx, taskID)
	if err != nil {
		return dto.TaskSubmissionResponse{}, err
	}
	if task.Overdue(s.now()) {
		return dto.TaskSubmissionResponse{}, ErrDeadlinePassed
	}

	existing, err := s.tasks.FindSubmission(ctx, taskID, studentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskSubmissionResponse{}, err
		}

		created := models.TaskSubmission{
			TaskID:    taskID,
			StudentID: studentID,
			Content:   payload.Content,
			Status:    models.TaskSubmissionDraft,
			Version:   1,
		}
		if err := s.tasks.CreateSubmission(ctx, &created); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return dto.TaskSubmissionResponse{}, ErrVersionConflict
			}
			if _, findErr := s.tasks.FindSubmission(ctx, taskID, studentID); findErr == nil {
				return dto.TaskSubmissionResponse{}, ErrVersionConflict
			}
			return dto.TaskSubmissionResponse{}, err
		}
		return dto.NewTaskSubmissionResponse(created), nil
	}

	if existing.Status == models.TaskSubmissionSubmitted {
		return dto.TaskSubmissionResponse{}, ErrAlreadySubmitted
	}

	ok, err := s.tasks.UpdateDraft(ctx, existing.ID, payload.Version, payload.Content)
	if err != nil {
		return dto.TaskSubmissionResponse{}, err
	}
	if !ok {
		return dto.TaskSubmissionResponse{}, s.conflictReason(ctx, taskID, studentID)
	}

	updated, err := s.tasks.FindSubmission(ctx, taskID, studentID)
	if err != nil {
		return dto.TaskSubmissionResponse{}, err
	}
	return dto.NewTaskSubmissionResponse(updated), nil
}

// Submit promotes the student's draft. After the deadline the scheduler owns
// the promotion.
func (s *taskSubmissionService) Submit(ctx context.Context, taskID, studentID uint) (dto.TaskSubmissionResponse, error) {
	task, err := s.activeTask(ctx, taskID)
	if err != nil {
		return dto.TaskSubmissionResponse{}, err
	}

	existing, err := s.tasks.FindSubmission(ctx, taskID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskSubmissionResponse{}, ErrNoDraft
		}
		return dto.TaskSubmissionResponse{}, err
	}
	if existing.Status == models.TaskSubmissionSubmitted {
		return dto.TaskSubmissionResponse{}, ErrAlreadySubmitted
	}

	now := s.now()
	if task.Overdue(now) {
		return dto.TaskSubmissionResponse{}, ErrDeadlinePassed
	}

	ok, err := s.tasks.SubmitDraft(ctx, existing.ID, existing.Version, now)
	if err != nil {
		return dto.TaskSubmissionResponse{}, err
	}
	if !ok {
		return dto.TaskSubmissionResponse{}, s.conflictReason(ctx, taskID, studentID)
	}

	submitted, err := s.tasks.FindSubmission(ctx, taskID, studentID)
	if err != nil {
		return dto.TaskSubmissionResponse{}, err
	}

	s.logger.Info().Uint("task_id", taskID).Uint("student_id", studentID).Msg("task submitted")
	return dto.NewTaskSubmissionResponse(submitted), nil
}

func (s *taskSubmissionService) activeTask(ctx context.Context, taskID uint) (models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, err
	}
	if !task.IsActive {
		return models.Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (s *taskSubmissionService) conflictReason(ctx context.Context, taskID, studentID uint) error {
	current, err := s.tasks.FindSubmission(ctx, taskID, studentID)
	if err != nil {
		return err
	}
	if current.Status == models.TaskSubmissionSubmitted {
		return ErrAlreadySubmitted
	}
	return ErrVersionConflict
}
