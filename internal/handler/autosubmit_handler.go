package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
)

// AutoSubmitHandler exposes admin controls for the deadline sweep.
type AutoSubmitHandler struct {
	service  service.AutoSubmitService
	activity service.ActivityRecorder
	logger   zerolog.Logger
}

// NewAutoSubmitHandler constructs the handler. activity may be nil.
func NewAutoSubmitHandler(service service.AutoSubmitService, activity service.ActivityRecorder, logger zerolog.Logger) *AutoSubmitHandler {
	return &AutoSubmitHandler{
		service:  service,
		activity: activity,
		logger:   logger.With().Str("component", "autosubmit_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *AutoSubmitHandler) Register(router fiber.Router) {
	router.Post("/run", h.run)
	router.Get("/pending", h.pending)
	router.Post("/tasks/:id/run", h.runForTask)
	router.Get("/tasks/:id/history", h.history)
}

func (h *AutoSubmitHandler) run(c *fiber.Ctx) error {
	report, err := h.service.Sweep(requestContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	message := "auto-submit sweep completed"
	if report.Skipped {
		message = "auto-submit sweep already in progress"
	}

	recordActivity(c, h.activity, h.logger, service.ActivityEntry{
		Action:     models.ActivitySweepTriggered,
		EntityType: "sweep",
		Metadata: map[string]interface{}{
			"skipped":   report.Skipped,
			"tasks":     report.TasksProcessed,
			"failed":    report.TasksFailed,
			"submitted": report.Submitted,
		},
	})

	return utils.SendSuccess(c, message, report)
}

func (h *AutoSubmitHandler) runForTask(c *fiber.Ctx) error {
	taskID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.RunForTask(requestContext(c), taskID)
	if err != nil {
		return h.handleError(c, err)
	}

	recordActivity(c, h.activity, h.logger, service.ActivityEntry{
		Action:     models.ActivityTaskSweepTriggered,
		EntityType: "task",
		EntityID:   &taskID,
		Metadata:   map[string]interface{}{"student_ids": result.StudentIDs},
	})

	return utils.SendSuccess(c, "task drafts submitted", result)
}

func (h *AutoSubmitHandler) pending(c *fiber.Ctx) error {
	pending, err := h.service.Pending(requestContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "pending tasks", pending)
}

func (h *AutoSubmitHandler) history(c *fiber.Ctx) error {
	taskID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	history, err := h.service.History(requestContext(c), taskID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission history", history)
}

func (h *AutoSubmitHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTaskNotOverdue), errors.Is(err, service.ErrSweepInProgress):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("auto-submit operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
