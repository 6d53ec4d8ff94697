package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// ProblemQuery defines filters and pagination for problems.
type ProblemQuery struct {
	Search string
	Offset int
	Limit  int
}

// ProblemRepository exposes persistence operations for judged problems and their test cases.
type ProblemRepository interface {
	Create(ctx context.Context, problem *models.Problem) error
	GetByID(ctx context.Context, id uint) (models.Problem, error)
	GetBySlug(ctx context.Context, slug string) (models.Problem, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, query ProblemQuery) ([]models.Problem, int64, error)
	AddTestCases(ctx context.Context, problemID uint, cases []models.TestCase) ([]models.TestCase, error)
}

// NewProblemRepository constructs a problem repository.
func NewProblemRepository(db *gorm.DB) ProblemRepository {
	return &problemRepository{db: db}
}

type problemRepository struct {
	db *gorm.DB
}

func orderedTestCases(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("id ASC")
}

func (r *problemRepository) Create(ctx context.Context, problem *models.Problem) error {
	return r.db.WithContext(ctx).Create(problem).Error
}

func (r *problemRepository) GetByID(ctx context.Context, id uint) (models.Problem, error) {
	var problem models.Problem
	if err := r.db.WithContext(ctx).Preload("TestCases", orderedTestCases).First(&problem, id).Error; err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) GetBySlug(ctx context.Context, slug string) (models.Problem, error) {
	var problem models.Problem
	if err := r.db.WithContext(ctx).
		Preload("TestCases", orderedTestCases).
		Where("slug = ?", slug).
		First(&problem).Error; err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Problem{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *problemRepository) List(ctx context.Context, query ProblemQuery) ([]models.Problem, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Problem{})

	if query.Search != "" {
		pattern := fmt.Sprintf("%%%s%%", strings.ToLower(query.Search))
		db = db.Where("LOWER(title) LIKE ? OR LOWER(slug) LIKE ?", pattern, pattern)
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

	var problems []models.Problem
	if err := db.Preload("TestCases", orderedTestCases).Order("created_at DESC").Order("id DESC").Find(&problems).Error; err != nil {
		return nil, 0, err
	}

	return problems, total, nil
}

// AddTestCases appends cases after the current last position in one transaction.
func (r *problemRepository) AddTestCases(ctx context.Context, problemID uint, cases []models.TestCase) ([]models.TestCase, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var problem models.Problem
		if err := tx.Select("id").First(&problem, problemID).Error; err != nil {
			return err
		}

		var maxPosition *int
		if err := tx.Model(&models.TestCase{}).
			Where("problem_id = ?", problemID).
			Select("MAX(position)").
			Scan(&maxPosition).Error; err != nil {
			return err
		}

		next := 0
		if maxPosition != nil {
			next = *maxPosition + 1
		}

		for i := range cases {
			cases[i].ProblemID = problemID
			cases[i].Position = next + i
		}

		return tx.Create(&cases).Error
	})
	if err != nil {
		return nil, err
	}
	return cases, nil
}
