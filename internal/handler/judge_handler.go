package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/execution"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
)

// JudgeHandler exposes code execution, problems, and graded submissions.
type JudgeHandler struct {
	service   service.JudgeService
	activity  service.ActivityRecorder
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewJudgeHandler constructs the handler. activity may be nil.
func NewJudgeHandler(service service.JudgeService, activity service.ActivityRecorder, validator *validator.Validate, logger zerolog.Logger) *JudgeHandler {
	return &JudgeHandler{
		service:   service,
		activity:  activity,
		validator: validator,
		logger:    logger.With().Str("component", "judge_handler").Logger(),
	}
}

// Register wires the judge endpoints. runLimiter guards the sample-run and
// raw execute endpoints and may be nil.
func (h *JudgeHandler) Register(router fiber.Router, runLimiter fiber.Handler) {
	if runLimiter == nil {
		runLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	staff := middleware.RequireStaff()
	student := middleware.RequireRole(middleware.RoleStudent)

	router.Get("/languages", h.languages)
	router.Post("/execute", runLimiter, h.execute)

	router.Get("/problems", h.listProblems)
	router.Post("/problems", staff, h.createProblem)
	router.Get("/problems/:id", h.getProblem)
	router.Post("/problems/:id/test-cases", staff, h.addTestCases)
	router.Post("/problems/:id/run", student, runLimiter, h.runSamples)
	router.Post("/problems/:id/submit", student, h.submit)

	router.Get("/submissions", student, h.listSubmissions)
	router.Get("/submissions/:id", h.getSubmission)
}

func (h *JudgeHandler) languages(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "languages retrieved", h.service.Languages(requestContext(c)))
}

func (h *JudgeHandler) execute(c *fiber.Ctx) error {
	var payload dto.ExecuteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Execute(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "code executed", result)
}

func (h *JudgeHandler) createProblem(c *fiber.Ctx) error {
	var payload dto.ProblemCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	problem, err := h.service.CreateProblem(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	recordActivity(c, h.activity, h.logger, service.ActivityEntry{
		Action:     models.ActivityProblemCreated,
		EntityType: "problem",
		EntityID:   &problem.ID,
		Metadata:   map[string]interface{}{"slug": problem.Slug, "samples": len(problem.Samples)},
	})

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "problem created", problem)
}

func (h *JudgeHandler) listProblems(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	list, err := h.service.ListProblems(requestContext(c), dto.ProblemQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, list.Items, "problems retrieved", list.Pagination)
}

func (h *JudgeHandler) getProblem(c *fiber.Ctx) error {
	problem, err := h.service.GetProblem(requestContext(c), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "problem retrieved", problem)
}

func (h *JudgeHandler) addTestCases(c *fiber.Ctx) error {
	var payload dto.TestCaseCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	cases, err := h.service.AddTestCases(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	recordActivity(c, h.activity, h.logger, service.ActivityEntry{
		Action:     models.ActivityTestCasesAdded,
		EntityType: "problem",
		Metadata:   map[string]interface{}{"problem": c.Params("id"), "added": len(cases)},
	})

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test cases added", cases)
}

func (h *JudgeHandler) runSamples(c *fiber.Ctx) error {
	var payload dto.JudgeCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.RunSamples(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "samples evaluated", result)
}

func (h *JudgeHandler) submit(c *fiber.Ctx) error {
	var payload dto.JudgeCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	submission, err := h.service.Submit(requestContext(c), c.Params("id"), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("submission_id", submission.ID).
		Str("status", submission.Status).
		Int("score", submission.Score).
		Msg("submission graded")

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", submission)
}

func (h *JudgeHandler) listSubmissions(c *fiber.Ctx) error {
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}
	problemID, err := parseQueryInt(c, "problem_id")
	if err != nil || problemID < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid problem_id")
	}

	list, err := h.service.ListSubmissions(requestContext(c), studentID, uint(problemID), page, pageSize)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, list.Items, "submissions retrieved", list.Pagination)
}

func (h *JudgeHandler) getSubmission(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.GetSubmission(requestContext(c), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *JudgeHandler) handleError(c *fiber.Ctx, err error) error {
	var (
		validationErrors validator.ValidationErrors
		invalidInput     *execution.InvalidInputError
		compileErr       *execution.CompileError
		unavailable      *execution.UnavailableError
	)
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.As(err, &invalidInput):
		return utils.Fail(c, fiber.StatusBadRequest, "code rejected", fiber.Map{"reason": invalidInput.Reason})
	case errors.Is(err, execution.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, "language not supported")
	case errors.Is(err, service.ErrLanguageNotAllowed), errors.Is(err, service.ErrNoTestCases):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrProblemNotFound), errors.Is(err, service.ErrJudgeSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrJudgeSubmissionForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrSlugTaken):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &compileErr):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "compilation failed", fiber.Map{
			"stderr":    compileErr.Stderr,
			"exit_code": compileErr.ExitCode,
		})
	case errors.As(err, &unavailable):
		return utils.Fail(c, fiber.StatusServiceUnavailable, "language runtime unavailable", fiber.Map{
			"language":     unavailable.Language,
			"install_hint": unavailable.InstallHint,
		})
	case errors.Is(err, execution.ErrQueueFull):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "judge is busy, try again shortly")
	case errors.Is(err, execution.ErrTimeout):
		return utils.SendError(c, fiber.StatusGatewayTimeout, "execution timed out")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("judge operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
