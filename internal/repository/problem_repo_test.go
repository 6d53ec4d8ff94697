package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-judge/internal/models"
)

func TestProblemRepositoryAddTestCasesAppendsPositions(t *testing.T) {
	db := setupTestDB(t, &models.Problem{}, &models.TestCase{})
	repo := NewProblemRepository(db)
	ctx := context.Background()

	problem := models.Problem{
		Title:            "Sum",
		Slug:             "sum",
		AllowedLanguages: datatypes.JSONSlice[string]{"python"},
		TestCases: []models.TestCase{
			{Position: 0, Input: "1 2", ExpectedOutput: "3", PointWeight: 1},
		},
	}
	require.NoError(t, repo.Create(ctx, &problem))

	added, err := repo.AddTestCases(ctx, problem.ID, []models.TestCase{
		{Input: "2 2", ExpectedOutput: "4", IsHidden: true, PointWeight: 2},
		{Input: "5 5", ExpectedOutput: "10", IsHidden: true, PointWeight: 1},
	})
	require.NoError(t, err)
	require.Len(t, added, 2)
	require.Equal(t, 1, added[0].Position)
	require.Equal(t, 2, added[1].Position)

	stored, err := repo.GetBySlug(ctx, "sum")
	require.NoError(t, err)
	require.Len(t, stored.TestCases, 3)
	require.False(t, stored.TestCases[0].IsHidden)
	require.True(t, stored.TestCases[2].IsHidden)
	require.Equal(t, []string{"python"}, []string(stored.AllowedLanguages))

	exists, err := repo.SlugExists(ctx, "sum")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestProblemRepositoryAddTestCasesUnknownProblem(t *testing.T) {
	db := setupTestDB(t, &models.Problem{}, &models.TestCase{})
	repo := NewProblemRepository(db)

	_, err := repo.AddTestCases(context.Background(), 42, []models.TestCase{{Input: "1", ExpectedOutput: "1"}})
	require.Error(t, err)
}

func TestProblemRepositoryListSearches(t *testing.T) {
	db := setupTestDB(t, &models.Problem{}, &models.TestCase{})
	repo := NewProblemRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Problem{Title: "Sum of Two", Slug: "sum-of-two"}))
	require.NoError(t, repo.Create(ctx, &models.Problem{Title: "Fibonacci", Slug: "fibonacci"}))

	items, total, err := repo.List(ctx, ProblemQuery{Search: "fib"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "fibonacci", items[0].Slug)
}

func TestJudgeSubmissionRepositoryCreatesWithResults(t *testing.T) {
	db := setupTestDB(t, &models.Problem{}, &models.TestCase{}, &models.JudgeSubmission{}, &models.JudgeTestResult{})
	repo := NewJudgeSubmissionRepository(db)
	ctx := context.Background()

	submission := models.JudgeSubmission{
		ProblemID:   1,
		StudentID:   7,
		Language:    "python",
		Code:        "print(1)",
		Status:      models.JudgeStatusFailed,
		Score:       1,
		TotalPoints: 2,
		TestResults: []models.JudgeTestResult{
			{TestCaseID: 1, Position: 0, Passed: true, PointWeight: 1},
			{TestCaseID: 2, Position: 1, IsHidden: true, Passed: false, PointWeight: 1, Error: "wrong answer"},
		},
	}
	require.NoError(t, repo.Create(ctx, &submission))
	require.NotZero(t, submission.ID)

	stored, err := repo.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, stored.TestResults, 2)
	require.True(t, stored.TestResults[0].Passed)

	items, total, err := repo.List(ctx, JudgeSubmissionQuery{StudentID: 7})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, items, 1)

	_, total, err = repo.List(ctx, JudgeSubmissionQuery{StudentID: 8})
	require.NoError(t, err)
	require.Zero(t, total)
}
