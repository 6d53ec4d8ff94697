package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/execution"
	"github.com/noah-isme/gema-judge/internal/language"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/repository"
)

var (
	// ErrProblemNotFound indicates the problem does not exist.
	ErrProblemNotFound = errors.New("problem not found")
	// ErrLanguageNotAllowed indicates the problem does not accept the language.
	ErrLanguageNotAllowed = errors.New("language not allowed for this problem")
	// ErrNoTestCases indicates there is nothing to judge against.
	ErrNoTestCases = errors.New("problem has no test cases")
	// ErrJudgeSubmissionNotFound indicates the submission does not exist.
	ErrJudgeSubmissionNotFound = errors.New("judge submission not found")
	// ErrJudgeSubmissionForbidden indicates the caller may not view the submission.
	ErrJudgeSubmissionForbidden = errors.New("forbidden")
	// ErrSlugTaken indicates another problem already uses the slug.
	ErrSlugTaken = errors.New("problem slug already taken")
)

// Verdict strings recorded on failed cases. Hidden cases only ever carry one
// of these.
const (
	verdictWrongAnswer  = "wrong answer"
	verdictRuntimeError = "runtime error"
	verdictTimeLimit    = "time limit exceeded"
	verdictCompileError = "compilation failed"
	verdictSystemError  = "judge could not run this test case"
)

const maxSlugAttempts = 20

// JudgeService grades code against a problem's test cases.
type JudgeService interface {
	Languages(ctx context.Context) []dto.LanguageResponse
	Execute(ctx context.Context, payload dto.ExecuteRequest) (dto.ExecuteResponse, error)
	CreateProblem(ctx context.Context, creatorID uint, payload dto.ProblemCreateRequest) (dto.ProblemResponse, error)
	AddTestCases(ctx context.Context, ref string, payload dto.TestCaseCreateRequest) ([]dto.TestCaseResponse, error)
	GetProblem(ctx context.Context, ref string) (dto.ProblemResponse, error)
	ListProblems(ctx context.Context, query dto.ProblemQuery) (dto.ProblemListResponse, error)
	RunSamples(ctx context.Context, ref string, payload dto.JudgeCodeRequest) (dto.SampleRunResponse, error)
	Submit(ctx context.Context, ref string, studentID uint, payload dto.JudgeCodeRequest) (dto.JudgeSubmissionResponse, error)
	ListSubmissions(ctx context.Context, studentID, problemID uint, page, pageSize int) (dto.JudgeSubmissionListResponse, error)
	GetSubmission(ctx context.Context, id, viewerID uint, role string) (dto.JudgeSubmissionResponse, error)
}

type judgeService struct {
	problems    repository.ProblemRepository
	submissions repository.JudgeSubmissionRepository
	engine      *execution.Engine
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewJudgeService constructs the judge.
func NewJudgeService(problems repository.ProblemRepository, submissions repository.JudgeSubmissionRepository, engine *execution.Engine, validate *validator.Validate, logger zerolog.Logger) JudgeService {
	return &judgeService{
		problems:    problems,
		submissions: submissions,
		engine:      engine,
		validator:   validate,
		logger:      logger.With().Str("component", "judge_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-judge/internal/service/judge"),
		now:         time.Now,
	}
}

func (s *judgeService) Languages(ctx context.Context) []dto.LanguageResponse {
	statuses := s.engine.Languages(ctx)
	out := make([]dto.LanguageResponse, 0, len(statuses))
	for _, status := range statuses {
		item := dto.LanguageResponse{
			Name:        status.Profile.Name,
			DisplayName: status.Profile.DisplayName,
			Extension:   status.Profile.Extension,
			Compiled:    status.Profile.RequiresCompilation(),
			Available:   status.Available,
			TimeoutMs:   status.Profile.Timeout.Milliseconds(),
		}
		if !status.Available {
			item.InstallHint = status.Profile.InstallHint
		}
		out = append(out, item)
	}
	return out
}

func (s *judgeService) Execute(ctx context.Context, payload dto.ExecuteRequest) (dto.ExecuteResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ExecuteResponse{}, err
	}

	result, err := s.engine.Execute(ctx, execution.Request{
		Language: payload.Language,
		Code:     payload.Code,
		Stdin:    payload.Input,
		BaseName: payload.Filename,
	})
	if err != nil {
		return dto.ExecuteResponse{}, err
	}

	return dto.ExecuteResponse{
		Output:     result.Stdout,
		Error:      result.Stderr,
		ExitCode:   result.ExitCode,
		DurationMs: result.Duration.Milliseconds(),
	}, nil
}

func (s *judgeService) CreateProblem(ctx context.Context, creatorID uint, payload dto.ProblemCreateRequest) (dto.ProblemResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProblemResponse{}, err
	}

	allowed, err := s.normalizeLanguages(payload.AllowedLanguages)
	if err != nil {
		return dto.ProblemResponse{}, err
	}

	problemSlug, err := s.resolveSlug(ctx, payload.Title, payload.Slug)
	if err != nil {
		return dto.ProblemResponse{}, err
	}

	problem := models.Problem{
		Title:            strings.TrimSpace(payload.Title),
		Slug:             problemSlug,
		Statement:        payload.Statement,
		AllowedLanguages: datatypes.JSONSlice[string](allowed),
		CreatedBy:        creatorID,
	}
	for i, sample := range payload.Samples {
		tc := newTestCase(sample, false)
		tc.IsHidden = false
		tc.Position = i
		problem.TestCases = append(problem.TestCases, tc)
	}

	if err := s.problems.Create(ctx, &problem); err != nil {
		return dto.ProblemResponse{}, err
	}

	s.logger.Info().Uint("problem_id", problem.ID).Str("slug", problem.Slug).Uint("created_by", creatorID).Msg("problem created")
	return dto.NewProblemResponse(problem), nil
}

func (s *judgeService) AddTestCases(ctx context.Context, ref string, payload dto.TestCaseCreateRequest) ([]dto.TestCaseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	problem, err := s.loadProblem(ctx, ref)
	if err != nil {
		return nil, err
	}

	cases := make([]models.TestCase, 0, len(payload.TestCases))
	for _, input := range payload.TestCases {
		cases = append(cases, newTestCase(input, true))
	}

	stored, err := s.problems.AddTestCases(ctx, problem.ID, cases)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}

	return dto.NewTestCaseResponses(stored), nil
}

func (s *judgeService) GetProblem(ctx context.Context, ref string) (dto.ProblemResponse, error) {
	problem, err := s.loadProblem(ctx, ref)
	if err != nil {
		return dto.ProblemResponse{}, err
	}
	return dto.NewProblemResponse(problem), nil
}

func (s *judgeService) ListProblems(ctx context.Context, query dto.ProblemQuery) (dto.ProblemListResponse, error) {
	page, pageSize := normalizePage(query.Page, query.PageSize)

	items, total, err := s.problems.List(ctx, repository.ProblemQuery{
		Search: strings.TrimSpace(query.Search),
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return dto.ProblemListResponse{}, err
	}

	out := make([]dto.ProblemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.NewProblemResponse(item))
	}

	return dto.ProblemListResponse{
		Items:      out,
		Pagination: dto.PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total},
	}, nil
}

// RunSamples runs only the visible cases and persists nothing.
func (s *judgeService) RunSamples(ctx context.Context, ref string, payload dto.JudgeCodeRequest) (dto.SampleRunResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SampleRunResponse{}, err
	}

	problem, err := s.loadProblem(ctx, ref)
	if err != nil {
		return dto.SampleRunResponse{}, err
	}

	if err := checkLanguage(problem, payload.Language); err != nil {
		return dto.SampleRunResponse{}, err
	}

	samples := make([]models.TestCase, 0, len(problem.TestCases))
	for _, tc := range problem.TestCases {
		if !tc.IsHidden {
			samples = append(samples, tc)
		}
	}
	if len(samples) == 0 {
		return dto.SampleRunResponse{}, ErrNoTestCases
	}

	ctx, span := s.tracer.Start(ctx, "judge.run_samples", trace.WithAttributes(
		attribute.Int64("judge.problem_id", int64(problem.ID)),
		attribute.String("judge.language", payload.Language),
	))
	defer span.End()

	outcome, err := s.grade(ctx, payload.Language, payload.Code, samples)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.SampleRunResponse{}, err
	}

	response := dto.SampleRunResponse{
		PassedAll:    outcome.score == outcome.total,
		CompileError: outcome.compileError,
		Results:      make([]dto.TestResultResponse, 0, len(outcome.results)),
	}
	for _, result := range outcome.results {
		response.Results = append(response.Results, dto.NewTestResultResponse(result))
	}
	return response, nil
}

// Submit grades against every case and records the outcome exactly once.
func (s *judgeService) Submit(ctx context.Context, ref string, studentID uint, payload dto.JudgeCodeRequest) (dto.JudgeSubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.JudgeSubmissionResponse{}, err
	}

	problem, err := s.loadProblem(ctx, ref)
	if err != nil {
		return dto.JudgeSubmissionResponse{}, err
	}

	if err := checkLanguage(problem, payload.Language); err != nil {
		return dto.JudgeSubmissionResponse{}, err
	}

	if len(problem.TestCases) == 0 {
		return dto.JudgeSubmissionResponse{}, ErrNoTestCases
	}

	ctx, span := s.tracer.Start(ctx, "judge.submit", trace.WithAttributes(
		attribute.Int64("judge.problem_id", int64(problem.ID)),
		attribute.Int64("judge.student_id", int64(studentID)),
		attribute.String("judge.language", payload.Language),
	))
	defer span.End()

	outcome, err := s.grade(ctx, payload.Language, payload.Code, problem.TestCases)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.JudgeSubmissionResponse{}, err
	}

	status := models.JudgeStatusFailed
	if outcome.score == outcome.total {
		status = models.JudgeStatusSuccess
	}

	submission := models.JudgeSubmission{
		ProblemID:    problem.ID,
		StudentID:    studentID,
		Language:     language.Normalize(payload.Language),
		Code:         payload.Code,
		Status:       status,
		Score:        outcome.score,
		TotalPoints:  outcome.total,
		CompileError: outcome.compileError,
		TestResults:  outcome.results,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		span.RecordError(err)
		return dto.JudgeSubmissionResponse{}, fmt.Errorf("record submission: %w", err)
	}

	observability.JudgeVerdicts().WithLabelValues(submission.Language, status).Inc()
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("problem_id", problem.ID).
		Uint("student_id", studentID).
		Str("status", status).
		Int("score", outcome.score).
		Int("total_points", outcome.total).
		Msg("submission graded")

	return dto.NewJudgeSubmissionResponse(submission, true), nil
}

func (s *judgeService) ListSubmissions(ctx context.Context, studentID, problemID uint, page, pageSize int) (dto.JudgeSubmissionListResponse, error) {
	page, pageSize = normalizePage(page, pageSize)

	items, total, err := s.submissions.List(ctx, repository.JudgeSubmissionQuery{
		StudentID: studentID,
		ProblemID: problemID,
		Offset:    (page - 1) * pageSize,
		Limit:     pageSize,
	})
	if err != nil {
		return dto.JudgeSubmissionListResponse{}, err
	}

	out := make([]dto.JudgeSubmissionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.NewJudgeSubmissionResponse(item, false))
	}

	return dto.JudgeSubmissionListResponse{
		Items:      out,
		Pagination: dto.PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total},
	}, nil
}

func (s *judgeService) GetSubmission(ctx context.Context, id, viewerID uint, role string) (dto.JudgeSubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.JudgeSubmissionResponse{}, ErrJudgeSubmissionNotFound
		}
		return dto.JudgeSubmissionResponse{}, err
	}

	if submission.StudentID != viewerID && !isStaff(role) {
		return dto.JudgeSubmissionResponse{}, ErrJudgeSubmissionForbidden
	}

	return dto.NewJudgeSubmissionResponse(submission, true), nil
}

type gradeOutcome struct {
	score        int
	total        int
	compileError string
	results      []models.JudgeTestResult
}

// grade compiles once and runs the cases sequentially in stored order.
// Request-level failures (invalid input, unavailable language, full queue
// while compiling) are returned as errors; everything else becomes a verdict.
func (s *judgeService) grade(ctx context.Context, lang, code string, cases []models.TestCase) (gradeOutcome, error) {
	outcome := gradeOutcome{results: make([]models.JudgeTestResult, 0, len(cases))}
	for _, tc := range cases {
		outcome.total += tc.Weight()
	}

	program, err := s.engine.Prepare(ctx, execution.Request{Language: lang, Code: code})
	if err != nil {
		var compileErr *execution.CompileError
		var timeoutErr *execution.TimeoutError
		switch {
		case errors.As(err, &compileErr):
			outcome.compileError = compileErr.Stderr
		case errors.As(err, &timeoutErr):
			outcome.compileError = timeoutErr.Error()
		default:
			return gradeOutcome{}, err
		}

		for _, tc := range cases {
			outcome.results = append(outcome.results, baseResult(tc, verdictCompileError))
		}
		return outcome, nil
	}
	defer program.Close()

	for _, tc := range cases {
		result := s.runCase(ctx, program, tc)
		if result.Passed {
			outcome.score += tc.Weight()
		}
		outcome.results = append(outcome.results, result)
	}

	return outcome, nil
}

func (s *judgeService) runCase(ctx context.Context, program *execution.Program, tc models.TestCase) models.JudgeTestResult {
	start := s.now()
	run, err := program.Run(ctx, tc.Input, tc.Timeout())
	elapsed := s.now().Sub(start)

	if err != nil {
		verdict := verdictSystemError
		if errors.Is(err, execution.ErrTimeout) {
			verdict = verdictTimeLimit
		} else {
			s.logger.Warn().Err(err).Uint("test_case_id", tc.ID).Msg("test case execution failed")
		}
		result := baseResult(tc, verdict)
		result.RuntimeMs = elapsed.Milliseconds()
		return result
	}

	passed := run.ExitCode == 0 && outputsMatch(run.Stdout, tc.ExpectedOutput)
	result := models.JudgeTestResult{
		TestCaseID:  tc.ID,
		Position:    tc.Position,
		IsHidden:    tc.IsHidden,
		Passed:      passed,
		PointWeight: tc.Weight(),
		RuntimeMs:   run.Duration.Milliseconds(),
	}

	verdict := ""
	switch {
	case passed:
	case run.ExitCode != 0:
		verdict = verdictRuntimeError
	default:
		verdict = verdictWrongAnswer
	}

	if tc.IsHidden {
		result.Error = verdict
		return result
	}

	result.Output = run.Stdout
	result.ExpectedOutput = tc.ExpectedOutput
	if run.ExitCode != 0 {
		result.Error = fmt.Sprintf("%s (exit code %d)", verdict, run.ExitCode)
		if stderr := strings.TrimSpace(run.Stderr); stderr != "" {
			result.Error += ": " + stderr
		}
	} else {
		result.Error = verdict
	}
	return result
}

func baseResult(tc models.TestCase, verdict string) models.JudgeTestResult {
	result := models.JudgeTestResult{
		TestCaseID:  tc.ID,
		Position:    tc.Position,
		IsHidden:    tc.IsHidden,
		PointWeight: tc.Weight(),
		Error:       verdict,
	}
	if !tc.IsHidden {
		result.ExpectedOutput = tc.ExpectedOutput
	}
	return result
}

// outputsMatch compares after normalising line endings and trimming
// surrounding whitespace.
func outputsMatch(actual, expected string) bool {
	return normalizeOutput(actual) == normalizeOutput(expected)
}

func normalizeOutput(value string) string {
	return strings.TrimSpace(strings.ReplaceAll(value, "\r\n", "\n"))
}

func checkLanguage(problem models.Problem, lang string) error {
	if len(problem.AllowedLanguages) == 0 {
		return nil
	}
	allowed := mapset.NewSet[string](problem.AllowedLanguages...)
	if !allowed.Contains(language.Normalize(lang)) {
		return ErrLanguageNotAllowed
	}
	return nil
}

func (s *judgeService) normalizeLanguages(names []string) ([]string, error) {
	set := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(names))
	for _, name := range names {
		profile, ok := s.engine.Resolve(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", execution.ErrUnsupportedLanguage, name)
		}
		if set.Add(profile.Name) {
			out = append(out, profile.Name)
		}
	}
	return out, nil
}

func (s *judgeService) resolveSlug(ctx context.Context, title, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		candidate := slug.Make(requested)
		exists, err := s.problems.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if exists {
			return "", ErrSlugTaken
		}
		return candidate, nil
	}

	base := slug.Make(title)
	if base == "" {
		base = "problem"
	}

	candidate := base
	for attempt := 2; attempt <= maxSlugAttempts+1; attempt++ {
		exists, err := s.problems.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
	return "", ErrSlugTaken
}

func (s *judgeService) loadProblem(ctx context.Context, ref string) (models.Problem, error) {
	ref = strings.TrimSpace(ref)
	var (
		problem models.Problem
		err     error
	)
	if id, parseErr := strconv.ParseUint(ref, 10, 64); parseErr == nil {
		problem, err = s.problems.GetByID(ctx, uint(id))
	} else {
		problem, err = s.problems.GetBySlug(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Problem{}, ErrProblemNotFound
		}
		return models.Problem{}, err
	}
	return problem, nil
}

func newTestCase(input dto.TestCaseInput, hiddenByDefault bool) models.TestCase {
	hidden := hiddenByDefault
	if input.IsHidden != nil {
		hidden = *input.IsHidden
	}
	weight := input.PointWeight
	if weight < 1 {
		weight = 1
	}
	return models.TestCase{
		Input:          input.Input,
		ExpectedOutput: input.ExpectedOutput,
		IsHidden:       hidden,
		PointWeight:    weight,
		TimeoutMs:      input.TimeoutMs,
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func isStaff(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "teacher", "admin":
		return true
	default:
		return false
	}
}
