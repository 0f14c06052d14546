package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradescan/gradescan-api/internal/dto"
	"github.com/gradescan/gradescan-api/internal/service"
	"github.com/gradescan/gradescan-api/internal/utils"
)

// RecordHandler manages individual grading records.
type RecordHandler struct {
	batches   service.BatchService
	grading   service.GradingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRecordHandler builds a record handler instance.
func NewRecordHandler(batches service.BatchService, grading service.GradingService, validator *validator.Validate, logger zerolog.Logger) *RecordHandler {
	return &RecordHandler{
		batches:   batches,
		grading:   grading,
		validator: validator,
		logger:    logger.With().Str("component", "record_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *RecordHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Post("/:id/grade", h.grade)
}

func (h *RecordHandler) get(c *fiber.Ctx) error {
	record, err := h.batches.GetRecord(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "record retrieved", record)
}

func (h *RecordHandler) update(c *fiber.Ctx) error {
	var payload dto.RecordUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	record, err := h.batches.UpdateRecordContent(c.Context(), c.Params("id"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "record updated", record)
}

func (h *RecordHandler) grade(c *fiber.Ctx) error {
	record, err := h.grading.GradeRecord(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading finished", record)
}

func (h *RecordHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "record not found")
	case errors.Is(err, service.ErrBatchNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "batch not found")
	case errors.Is(err, service.ErrGradingInFlight):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
