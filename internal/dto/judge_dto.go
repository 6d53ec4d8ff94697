package dto

import (
	"time"

	"github.com/noah-isme/gema-judge/internal/models"
)

// ExecuteRequest is the raw execution payload.
type ExecuteRequest struct {
	Language string `json:"language" validate:"required,max=32"`
	Code     string `json:"code" validate:"required"`
	Input    string `json:"input"`
	Filename string `json:"filename" validate:"omitempty,max=128"`
}

// ExecuteResponse reports what the program printed.
type ExecuteResponse struct {
	Output     string `json:"output"`
	Error      string `json:"error"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"duration_ms"`
}

// LanguageResponse describes one language profile and whether it runs here.
type LanguageResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Extension   string `json:"extension"`
	Compiled    bool   `json:"compiled"`
	Available   bool   `json:"available"`
	InstallHint string `json:"install_hint,omitempty"`
	TimeoutMs   int64  `json:"timeout_ms"`
}

// TestCaseInput describes one test case supplied by a teacher.
type TestCaseInput struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsHidden       *bool  `json:"is_hidden"`
	PointWeight    int    `json:"point_weight" validate:"omitempty,min=1,max=1000"`
	TimeoutMs      int    `json:"timeout_ms" validate:"omitempty,min=0,max=60000"`
}

// ProblemCreateRequest is the payload to create a problem.
type ProblemCreateRequest struct {
	Title            string          `json:"title" validate:"required,min=3,max=255"`
	Slug             string          `json:"slug" validate:"omitempty,max=255"`
	Statement        string          `json:"statement" validate:"required"`
	AllowedLanguages []string        `json:"allowed_languages" validate:"omitempty,dive,required,max=32"`
	Samples          []TestCaseInput `json:"samples" validate:"omitempty,dive"`
}

// TestCaseCreateRequest adds test cases to an existing problem.
type TestCaseCreateRequest struct {
	TestCases []TestCaseInput `json:"test_cases" validate:"required,min=1,dive"`
}

// ProblemQuery captures list filters.
type ProblemQuery struct {
	Search   string
	Page     int
	PageSize int
}

// SampleResponse is a visible test case.
type SampleResponse struct {
	ID             uint   `json:"id"`
	Position       int    `json:"position"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	PointWeight    int    `json:"point_weight"`
}

// ProblemResponse exposes the visible fields of a problem.
type ProblemResponse struct {
	ID               uint             `json:"id"`
	Title            string           `json:"title"`
	Slug             string           `json:"slug"`
	Statement        string           `json:"statement"`
	AllowedLanguages []string         `json:"allowed_languages"`
	Samples          []SampleResponse `json:"samples"`
	HiddenTestCount  int              `json:"hidden_test_count"`
	TotalPoints      int              `json:"total_points"`
	CreatedBy        uint             `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ProblemListResponse wraps a page of problems.
type ProblemListResponse struct {
	Items      []ProblemResponse `json:"items"`
	Pagination PaginationMeta    `json:"pagination"`
}

// PaginationMeta describes the page returned.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
}

// NewProblemResponse builds the student-facing view. Hidden cases only
// contribute to the counters.
func NewProblemResponse(problem models.Problem) ProblemResponse {
	response := ProblemResponse{
		ID:               problem.ID,
		Title:            problem.Title,
		Slug:             problem.Slug,
		Statement:        problem.Statement,
		AllowedLanguages: append([]string{}, problem.AllowedLanguages...),
		Samples:          make([]SampleResponse, 0),
		CreatedBy:        problem.CreatedBy,
		CreatedAt:        problem.CreatedAt,
	}

	for _, tc := range problem.TestCases {
		response.TotalPoints += tc.Weight()
		if tc.IsHidden {
			response.HiddenTestCount++
			continue
		}
		response.Samples = append(response.Samples, SampleResponse{
			ID:             tc.ID,
			Position:       tc.Position,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			PointWeight:    tc.Weight(),
		})
	}

	return response
}

// TestCaseResponse is returned to teachers after adding cases.
type TestCaseResponse struct {
	ID          uint `json:"id"`
	Position    int  `json:"position"`
	IsHidden    bool `json:"is_hidden"`
	PointWeight int  `json:"point_weight"`
	TimeoutMs   int  `json:"timeout_ms"`
}

// NewTestCaseResponses converts stored cases.
func NewTestCaseResponses(cases []models.TestCase) []TestCaseResponse {
	out := make([]TestCaseResponse, 0, len(cases))
	for _, tc := range cases {
		out = append(out, TestCaseResponse{
			ID:          tc.ID,
			Position:    tc.Position,
			IsHidden:    tc.IsHidden,
			PointWeight: tc.Weight(),
			TimeoutMs:   tc.TimeoutMs,
		})
	}
	return out
}

// JudgeCodeRequest is the body of run and submit.
type JudgeCodeRequest struct {
	Language string `json:"language" validate:"required,max=32"`
	Code     string `json:"code" validate:"required"`
}

// TestResultResponse is the verdict for one case.
type TestResultResponse struct {
	TestCaseID     uint   `json:"test_case_id"`
	Position       int    `json:"position"`
	IsHidden       bool   `json:"is_hidden"`
	Passed         bool   `json:"passed"`
	Output         string `json:"output,omitempty"`
	ExpectedOutput string `json:"expected_output,omitempty"`
	RuntimeMs      int64  `json:"runtime_ms"`
	Error          string `json:"error,omitempty"`
}

// SampleRunResponse is the outcome of a sample run.
type SampleRunResponse struct {
	PassedAll    bool                 `json:"passed_all"`
	CompileError string               `json:"compile_error,omitempty"`
	Results      []TestResultResponse `json:"results"`
}

// JudgeSubmissionResponse is a persisted graded submission.
type JudgeSubmissionResponse struct {
	ID           uint                 `json:"id"`
	ProblemID    uint                 `json:"problem_id"`
	StudentID    uint                 `json:"student_id"`
	Language     string               `json:"language"`
	Code         string               `json:"code,omitempty"`
	Status       string               `json:"status"`
	Score        int                  `json:"score"`
	TotalPoints  int                  `json:"total_points"`
	CompileError string               `json:"compile_error,omitempty"`
	TestResults  []TestResultResponse `json:"test_results"`
	CreatedAt    time.Time            `json:"created_at"`
}

// JudgeSubmissionListResponse wraps a page of submissions.
type JudgeSubmissionListResponse struct {
	Items      []JudgeSubmissionResponse `json:"items"`
	Pagination PaginationMeta            `json:"pagination"`
}

// NewTestResultResponse converts a stored result.
func NewTestResultResponse(result models.JudgeTestResult) TestResultResponse {
	return TestResultResponse{
		TestCaseID:     result.TestCaseID,
		Position:       result.Position,
		IsHidden:       result.IsHidden,
		Passed:         result.Passed,
		Output:         result.Output,
		ExpectedOutput: result.ExpectedOutput,
		RuntimeMs:      result.RuntimeMs,
		Error:          result.Error,
	}
}

// NewJudgeSubmissionResponse converts a submission model.
func NewJudgeSubmissionResponse(submission models.JudgeSubmission, includeCode bool) JudgeSubmissionResponse {
	response := JudgeSubmissionResponse{
		ID:           submission.ID,
		ProblemID:    submission.ProblemID,
		StudentID:    submission.StudentID,
		Language:     submission.Language,
		Status:       submission.Status,
		Score:        submission.Score,
		TotalPoints:  submission.TotalPoints,
		CompileError: submission.CompileError,
		TestResults:  make([]TestResultResponse, 0, len(submission.TestResults)),
		CreatedAt:    submission.CreatedAt,
	}
	if includeCode {
		response.Code = submission.Code
	}
	for _, result := range submission.TestResults {
		response.TestResults = append(response.TestResults, NewTestResultResponse(result))
	}
	return response
}
