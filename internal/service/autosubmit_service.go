package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/repository"
)

var (
	// ErrTaskNotOverdue indicates the task deadline has not passed yet.
	ErrTaskNotOverdue = errors.New("task deadline has not passed")
	// ErrSweepInProgress indicates another sweep holds the guard.
	ErrSweepInProgress = errors.New("auto-submit sweep already in progress")
)

const defaultLeaseKey = "gema:autosubmit:lease"

var releaseLeaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// AutoSubmitService promotes drafts of overdue tasks to final submissions.
type AutoSubmitService interface {
	Sweep(ctx context.Context) (dto.SweepReport, error)
	RunForTask(ctx context.Context, taskID uint) (dto.TaskSweep, error)
	Pending(ctx context.Context) ([]dto.PendingTask, error)
	History(ctx context.Context, taskID uint) (dto.TaskSubmissionHistory, error)
}

// AutoSubmitConfig tunes the cross-replica lease.
type AutoSubmitConfig struct {
	LeaseKey string
	LeaseTTL time.Duration
}

type autoSubmitService struct {
	tasks    repository.TaskRepository
	notifier NotificationPublisher
	redis    *redis.Client
	config   AutoSubmitConfig
	logger   zerolog.Logger
	tracer   trace.Tracer
	nodeID   string
	now      func() time.Time
	running  atomic.Bool
}

// NewAutoSubmitService constructs the scheduler service. The notifier and
// Redis client are optional.
func NewAutoSubmitService(tasks repository.TaskRepository, notifier NotificationPublisher, redisClient *redis.Client, cfg AutoSubmitConfig, logger zerolog.Logger) AutoSubmitService {
	if cfg.LeaseKey == "" {
		cfg.LeaseKey = defaultLeaseKey
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}

	return &autoSubmitService{
		tasks:    tasks,
		notifier: notifier,
		redis:    redisClient,
		config:   cfg,
		logger:   logger.With().Str("component", "autosubmit_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/gema-judge/internal/service/autosubmit"),
		nodeID:   uuid.NewString(),
		now:      time.Now,
	}
}

// Sweep processes every overdue task holding drafts. Concurrent calls are
// skipped, not queued.
func (s *autoSubmitService) Sweep(ctx context.Context) (dto.SweepReport, error) {
	report := dto.SweepReport{StartedAt: s.now(), Tasks: make([]dto.TaskSweep, 0)}

	release, ok := s.acquire(ctx)
	if !ok {
		s.logger.Info().Msg("auto-submit sweep already running, skipping trigger")
		observability.SweepRuns().WithLabelValues("skipped").Inc()
		report.Skipped = true
		return report, nil
	}
	defer release()

	ctx, span := s.tracer.Start(ctx, "autosubmit.sweep")
	defer span.End()

	now := s.now()
	tasks, err := s.tasks.ListOverdueWithDrafts(ctx, now)
	if err != nil {
		span.RecordError(err)
		observability.SweepRuns().WithLabelValues("failed").Inc()
		return report, fmt.Errorf("list overdue tasks: %w", err)
	}

	for _, task := range tasks {
		result := s.sweepTask(ctx, task, now)
		if result.Error != "" {
			report.TasksFailed++
		} else {
			report.TasksProcessed++
		}
		report.Submitted += len(result.StudentIDs)
		report.Tasks = append(report.Tasks, result)
	}

	report.Duration = time.Since(report.StartedAt)
	span.SetAttributes(
		attribute.Int("autosubmit.tasks", len(tasks)),
		attribute.Int("autosubmit.submitted", report.Submitted),
	)
	observability.SweepRuns().WithLabelValues("completed").Inc()
	observability.SweepDuration().Observe(report.Duration.Seconds())

	s.logger.Info().
		Int("tasks_processed", report.TasksProcessed).
		Int("tasks_failed", report.TasksFailed).
		Int("submitted", report.Submitted).
		Dur("duration", report.Duration).
		Msg("auto-submit sweep completed")

	return report, nil
}

// RunForTask sweeps a single task. It shares the guard with Sweep.
func (s *autoSubmitService) RunForTask(ctx context.Context, taskID uint) (dto.TaskSweep, error) {
	release, ok := s.acquire(ctx)
	if !ok {
		return dto.TaskSweep{}, ErrSweepInProgress
	}
	defer release()

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskSweep{}, ErrTaskNotFound
		}
		return dto.TaskSweep{}, err
	}
	if !task.IsActive {
		return dto.TaskSweep{}, ErrTaskNotFound
	}

	now := s.now()
	if !task.Overdue(now) {
		return dto.TaskSweep{}, ErrTaskNotOverdue
	}

	result := s.sweepTask(ctx, task, now)
	if result.Error != "" {
		return result, fmt.Errorf("auto-submit task %d: %s", taskID, result.Error)
	}
	return result, nil
}

func (s *autoSubmitService) Pending(ctx context.Context) ([]dto.PendingTask, error) {
	tasks, err := s.tasks.ListOverdueWithDrafts(ctx, s.now())
	if err != nil {
		return nil, err
	}

	out := make([]dto.PendingTask, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, dto.PendingTask{
			TaskID:     task.ID,
			Title:      task.Title,
			TeacherID:  task.TeacherID,
			Deadline:   task.Deadline,
			DraftCount: len(task.Submissions),
		})
	}
	return out, nil
}

func (s *autoSubmitService) History(ctx context.Context, taskID uint) (dto.TaskSubmissionHistory, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskSubmissionHistory{}, ErrTaskNotFound
		}
		return dto.TaskSubmissionHistory{}, err
	}

	submissions, err := s.tasks.ListSubmissions(ctx, taskID)
	if err != nil {
		return dto.TaskSubmissionHistory{}, err
	}

	history := dto.TaskSubmissionHistory{
		TaskID:          task.ID,
		Title:           task.Title,
		Deadline:        task.Deadline,
		AutoSubmitted:   make([]dto.TaskSubmissionResponse, 0),
		ManualSubmitted: make([]dto.TaskSubmissionResponse, 0),
		Drafts:          make([]dto.TaskSubmissionResponse, 0),
	}
	for _, submission := range submissions {
		item := dto.NewTaskSubmissionResponse(submission)
		switch {
		case submission.Status == models.TaskSubmissionDraft:
			history.Drafts = append(history.Drafts, item)
		case submission.IsAutoSubmitted:
			history.AutoSubmitted = append(history.AutoSubmitted, item)
		default:
			history.ManualSubmitted = append(history.ManualSubmitted, item)
		}
	}
	return history, nil
}

func (s *autoSubmitService) sweepTask(ctx context.Context, task models.Task, now time.Time) dto.TaskSweep {
	result := dto.TaskSweep{TaskID: task.ID, Title: task.Title, StudentIDs: make([]uint, 0)}
	logger := s.logger.With().Uint("task_id", task.ID).Logger()

	promoted, err := s.tasks.AutoSubmitDrafts(ctx, task.ID, now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to auto-submit task drafts")
		result.Error = err.Error()
		return result
	}

	for _, submission := range promoted {
		result.StudentIDs = append(result.StudentIDs, submission.StudentID)
	}
	if len(promoted) == 0 {
		return result
	}

	observability.AutoSubmitted().Add(float64(len(promoted)))
	logger.Info().Int("submitted", len(promoted)).Msg("task drafts auto-submitted")

	s.notify(ctx, logger, task, result.StudentIDs)
	return result
}

// notify is best effort; failures are logged per recipient.
func (s *autoSubmitService) notify(ctx context.Context, logger zerolog.Logger, task models.Task, studentIDs []uint) {
	if s.notifier == nil {
		return
	}

	teacherMessage := fmt.Sprintf("%d draft submission(s) for task %q were submitted automatically at the deadline.", len(studentIDs), task.Title)
	if _, err := s.notifier.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  task.TeacherID,
		Type:    models.NotificationTaskSweepSummary,
		Message: teacherMessage,
	}); err != nil {
		logger.Warn().Err(err).Uint("user_id", task.TeacherID).Msg("failed to notify teacher")
	}

	studentMessage := fmt.Sprintf("Your draft for task %q was submitted automatically because the deadline passed.", task.Title)
	for _, studentID := range studentIDs {
		if _, err := s.notifier.Publish(ctx, dto.NotificationCreateRequest{
			UserID:  studentID,
			Type:    models.NotificationTaskAutoSubmitted,
			Message: studentMessage,
		}); err != nil {
			logger.Warn().Err(err).Uint("user_id", studentID).Msg("failed to notify student")
		}
	}
}

// acquire takes the local guard and, when Redis is configured, the shared
// lease. The returned func releases both.
func (s *autoSubmitService) acquire(ctx context.Context) (func(), bool) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, false
	}

	if s.redis == nil {
		return func() { s.running.Store(false) }, true
	}

	acquired, err := s.redis.SetNX(ctx, s.config.LeaseKey, s.nodeID, s.config.LeaseTTL).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("auto-submit lease unavailable, continuing with local guard only")
		return func() { s.running.Store(false) }, true
	}
	if !acquired {
		s.running.Store(false)
		return nil, false
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseLeaseScript.Run(releaseCtx, s.redis, []string{s.config.LeaseKey}, s.nodeID).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release auto-submit lease")
		}
		s.running.Store(false)
	}, true
}
