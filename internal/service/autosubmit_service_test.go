package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
)

type failingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *failingNotifier) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return dto.NotificationResponse{}, errors.New("smtp relay down")
}

// blockingTaskRepo parks the sweep inside its overdue query until released.
type blockingTaskRepo struct {
	repository.TaskRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingTaskRepo) ListOverdueWithDrafts(ctx context.Context, now time.Time) ([]models.Task, error) {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	return r.TaskRepository.ListOverdueWithDrafts(ctx, now)
}

func seedOverdueTask(t *testing.T, db *gorm.DB, title string, deadline time.Time, drafts []uint, submitted []uint) models.Task {
	t.Helper()
	task := models.Task{Title: title, TeacherID: 500, Deadline: deadline, IsActive: true}
	require.NoError(t, db.Create(&task).Error)
	for _, studentID := range drafts {
		require.NoError(t, db.Create(&models.TaskSubmission{TaskID: task.ID, StudentID: studentID, Content: "wip", Status: models.TaskSubmissionDraft, Version: 1}).Error)
	}
	for _, studentID := range submitted {
		at := deadline.Add(-time.Hour)
		require.NoError(t, db.Create(&models.TaskSubmission{TaskID: task.ID, StudentID: studentID, Content: "done", Status: models.TaskSubmissionSubmitted, SubmittedAt: &at, Version: 2}).Error)
	}
	return task
}

func newNotifier(db *gorm.DB) NotificationService {
	return NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validator.New(), zerolog.Nop())
}

func TestAutoSubmitSweepScenario(t *testing.T) {
	db := setupServiceDB(t)
	task := seedOverdueTask(t, db, "Essay", time.Now().Add(-time.Minute), []uint{1, 2}, []uint{3})
	seedOverdueTask(t, db, "Future", time.Now().Add(time.Hour), []uint{4}, nil)

	svc := NewAutoSubmitService(repository.NewTaskRepository(db), newNotifier(db), nil, AutoSubmitConfig{}, zerolog.Nop())

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.False(t, report.Skipped)
	require.Equal(t, 1, report.TasksProcessed)
	require.Equal(t, 2, report.Submitted)
	require.Equal(t, task.ID, report.Tasks[0].TaskID)
	require.ElementsMatch(t, []uint{1, 2}, report.Tasks[0].StudentIDs)

	var rows []models.TaskSubmission
	require.NoError(t, db.Where("task_id = ?", task.ID).Order("student_id").Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows[:2] {
		require.Equal(t, models.TaskSubmissionSubmitted, row.Status)
		require.True(t, row.IsAutoSubmitted)
		require.NotNil(t, row.AutoSubmittedAt)
		require.NotNil(t, row.SubmittedAt)
	}
	require.False(t, rows[2].IsAutoSubmitted)

	var teacherNotes, studentNotes int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", 500).Count(&teacherNotes).Error)
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id IN ?", []uint{1, 2}).Count(&studentNotes).Error)
	require.Equal(t, int64(1), teacherNotes)
	require.Equal(t, int64(2), studentNotes)

	var untouched models.TaskSubmission
	require.NoError(t, db.Where("student_id = ?", 4).First(&untouched).Error)
	require.Equal(t, models.TaskSubmissionDraft, untouched.Status)
}

func TestAutoSubmitSweepIsIdempotent(t *testing.T) {
	db := setupServiceDB(t)
	seedOverdueTask(t, db, "Essay", time.Now().Add(-time.Minute), []uint{1}, nil)
	svc := NewAutoSubmitService(repository.NewTaskRepository(db), newNotifier(db), nil, AutoSubmitConfig{}, zerolog.Nop())

	first, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Submitted)

	second, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Submitted)
	require.Empty(t, second.Tasks)

	var notes int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notes).Error)
	require.Equal(t, int64(2), notes)
}

func TestAutoSubmitConcurrentTriggerIsSkipped(t *testing.T) {
	db := setupServiceDB(t)
	task := seedOverdueTask(t, db, "Essay", time.Now().Add(-time.Minute), []uint{1}, nil)

	repo := &blockingTaskRepo{
		TaskRepository: repository.NewTaskRepository(db),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	svc := NewAutoSubmitService(repo, nil, nil, AutoSubmitConfig{}, zerolog.Nop())

	done := make(chan dto.SweepReport, 1)
	go func() {
		report, err := svc.Sweep(context.Background())
		if err == nil {
			done <- report
		}
		close(done)
	}()

	<-repo.entered

	skipped, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.True(t, skipped.Skipped)

	_, err = svc.RunForTask(context.Background(), task.ID)
	require.ErrorIs(t, err, ErrSweepInProgress)

	close(repo.release)
	report := <-done
	require.Equal(t, 1, report.Submitted)

	// the guard is released once the first sweep returns
	again, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.False(t, again.Skipped)
}

func TestAutoSubmitNotificationFailureDoesNotRollBack(t *testing.T) {
	db := setupServiceDB(t)
	task := seedOverdueTask(t, db, "Essay", time.Now().Add(-time.Minute), []uint{1, 2}, nil)
	notifier := &failingNotifier{}
	svc := NewAutoSubmitService(repository.NewTaskRepository(db), notifier, nil, AutoSubmitConfig{}, zerolog.Nop())

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Submitted)
	require.Equal(t, 3, notifier.calls)

	var drafts int64
	require.NoError(t, db.Model(&models.TaskSubmission{}).Where("task_id = ? AND status = ?", task.ID, models.TaskSubmissionDraft).Count(&drafts).Error)
	require.Zero(t, drafts)
}

func TestAutoSubmitRedisLeaseHeldElsewhereSkips(t *testing.T) {
	db := setupServiceDB(t)
	seedOverdueTask(t, db, "Essay", time.Now().Add(-time.Minute), []uint{1}, nil)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewAutoSubmitService(repository.NewTaskRepository(db), nil, client, AutoSubmitConfig{LeaseKey: "test:lease", LeaseTTL: time.Minute}, zerolog.Nop())

	require.NoError(t, mr.Set("test:lease", "other-replica"))
	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.True(t, report.Skipped)

	mr.Del("test:lease")
	report, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	require.False(t, report.Skipped)
	require.Equal(t, 1, report.Submitted)
	require.False(t, mr.Exists("test:lease"))
}

func TestAutoSubmitRunForTask(t *testing.T) {
	db := setupServiceDB(t)
	overdue := seedOverdueTask(t, db, "Essay", time.Now().Add(-time.Minute), []uint{1}, nil)
	future := seedOverdueTask(t, db, "Later", time.Now().Add(time.Hour), []uint{2}, nil)
	svc := NewAutoSubmitService(repository.NewTaskRepository(db), nil, nil, AutoSubmitConfig{}, zerolog.Nop())

	_, err := svc.RunForTask(context.Background(), 999)
	require.ErrorIs(t, err, ErrTaskNotFound)

	_, err = svc.RunForTask(context.Background(), future.ID)
	require.ErrorIs(t, err, ErrTaskNotOverdue)

	result, err := svc.RunForTask(context.Background(), overdue.ID)
	require.NoError(t, err)
	require.Equal(t, []uint{1}, result.StudentIDs)
}

func TestAutoSubmitPendingAndHistory(t *testing.T) {
	db := setupServiceDB(t)
	task := seedOverdueTask(t, db, "Essay", time.Now().Add(-time.Minute), []uint{1, 2}, []uint{3})
	svc := NewAutoSubmitService(repository.NewTaskRepository(db), nil, nil, AutoSubmitConfig{}, zerolog.Nop())

	pending, err := svc.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].DraftCount)

	_, err = svc.Sweep(context.Background())
	require.NoError(t, err)

	pending, err = svc.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)

	history, err := svc.History(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, history.AutoSubmitted, 2)
	require.Len(t, history.ManualSubmitted, 1)
	require.Empty(t, history.Drafts)

	_, err = svc.History(context.Background(), 999)
	require.ErrorIs(t, err, ErrTaskNotFound)
}
