package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
)

// TaskSubmissionHandler lets students save drafts and submit task work.
type TaskSubmissionHandler struct {
	service   service.TaskSubmissionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTaskSubmissionHandler constructs the handler.
func NewTaskSubmissionHandler(service service.TaskSubmissionService, validator *validator.Validate, logger zerolog.Logger) *TaskSubmissionHandler {
	return &TaskSubmissionHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "task_submission_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *TaskSubmissionHandler) Register(router fiber.Router) {
	router.Get("/:id/submission", h.get)
	router.Put("/:id/submission", h.saveDraft)
	router.Post("/:id/submission/submit", h.submit)
}

func (h *TaskSubmissionHandler) get(c *fiber.Ctx) error {
	taskID, studentID, ok, err := h.identify(c)
	if !ok {
		return err
	}

	submission, err := h.service.Get(requestContext(c), taskID, studentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *TaskSubmissionHandler) saveDraft(c *fiber.Ctx) error {
	taskID, studentID, ok, err := h.identify(c)
	if !ok {
		return err
	}

	var payload dto.TaskDraftRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.SaveDraft(requestContext(c), taskID, studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "draft saved", submission)
}

func (h *TaskSubmissionHandler) submit(c *fiber.Ctx) error {
	taskID, studentID, ok, err := h.identify(c)
	if !ok {
		return err
	}

	submission, err := h.service.Submit(requestContext(c), taskID, studentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "task submitted", submission)
}

// identify resolves the task and caller. When ok is false the error response
// has already been written and callers must return err as is.
func (h *TaskSubmissionHandler) identify(c *fiber.Ctx) (taskID, studentID uint, ok bool, err error) {
	taskID, parseErr := parseUintParam(c, "id")
	if parseErr != nil {
		return 0, 0, false, utils.SendError(c, fiber.StatusBadRequest, parseErr.Error())
	}

	studentID = userIDFromContext(c)
	if studentID == 0 {
		return 0, 0, false, utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	return taskID, studentID, true, nil
}

func (h *TaskSubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.Is(err, service.ErrTaskNotFound), errors.Is(err, service.ErrNoDraft):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrVersionConflict),
		errors.Is(err, service.ErrAlreadySubmitted),
		errors.Is(err, service.ErrDeadlinePassed):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("task submission operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
