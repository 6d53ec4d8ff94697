package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// JudgeSubmissionQuery filters a student's submission history.
type JudgeSubmissionQuery struct {
	StudentID uint
	ProblemID uint
	Offset    int
	Limit     int
}

// JudgeSubmissionRepository persists graded submissions together with their per-case results.
type JudgeSubmissionRepository interface {
	Create(ctx context.Context, submission *models.JudgeSubmission) error
	GetByID(ctx context.Context, id uint) (models.JudgeSubmission, error)
	List(ctx context.Context, query JudgeSubmissionQuery) ([]models.JudgeSubmission, int64, error)
}

// NewJudgeSubmissionRepository constructs a judge submission repository.
func NewJudgeSubmissionRepository(db *gorm.DB) JudgeSubmissionRepository {
	return &judgeSubmissionRepository{db: db}
}

type judgeSubmissionRepository struct {
	db *gorm.DB
}

// Create inserts the submission and its results atomically.
func (r *judgeSubmissionRepository) Create(ctx context.Context, submission *models.JudgeSubmission) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		results := submission.TestResults
		submission.TestResults = nil

		if err := tx.Omit("Problem").Create(submission).Error; err != nil {
			return err
		}

		for i := range results {
			results[i].SubmissionID = submission.ID
		}
		if len(results) > 0 {
			if err := tx.Create(&results).Error; err != nil {
				return err
			}
		}

		submission.TestResults = results
		return nil
	})
}

func (r *judgeSubmissionRepository) GetByID(ctx context.Context, id uint) (models.JudgeSubmission, error) {
	var submission models.JudgeSubmission
	err := r.db.WithContext(ctx).
		Preload("TestResults", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&submission, id).Error
	if err != nil {
		return models.JudgeSubmission{}, err
	}
	return submission, nil
}

func (r *judgeSubmissionRepository) List(ctx context.Context, query JudgeSubmissionQuery) ([]models.JudgeSubmission, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.JudgeSubmission{})

	if query.StudentID != 0 {
		db = db.Where("student_id = ?", query.StudentID)
	}
	if query.ProblemID != 0 {
		db = db.Where("problem_id = ?", query.ProblemID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}

	var submissions []models.JudgeSubmission
	if err := db.Order("created_at DESC").Order("id DESC").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}
