package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradescan/gradescan-api/internal/service"
	"github.com/gradescan/gradescan-api/internal/utils"
)

// BatchHandler manages batch endpoints: upload, listing, grading runs,
// summaries, and CSV export.
type BatchHandler struct {
	batches   service.BatchService
	grading   service.GradingService
	summaries service.SummaryService
	exports   service.ExportService
	maxUpload int64
	logger    zerolog.Logger
}

// NewBatchHandler builds a batch handler instance.
func NewBatchHandler(batches service.BatchService, grading service.GradingService, summaries service.SummaryService, exports service.ExportService, maxUploadMB int, logger zerolog.Logger) *BatchHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &BatchHandler{
		batches:   batches,
		grading:   grading,
		summaries: summaries,
		exports:   exports,
		maxUpload: int64(maxUploadMB) * 1024 * 1024,
		logger:    logger.With().Str("component", "batch_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *BatchHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/:id/records", h.listRecords)
	router.Post("/:id/grade", h.gradeAll)
	router.Get("/:id/summary", h.summary)
	router.Get("/:id/export.csv", h.exportCSV)
}

func (h *BatchHandler) create(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form is required")
	}

	input := service.BatchCreateInput{
		Name:    firstValue(form.Value["name"]),
		KeyText: firstValue(form.Value["key_text"]),
	}

	if headers := form.File["key"]; len(headers) > 0 {
		keyFile, err := h.readFile(headers[0])
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		input.KeyFile = &keyFile
	}

	for _, header := range form.File["files"] {
		file, err := h.readFile(header)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		input.Files = append(input.Files, file)
	}

	batch, err := h.batches.Create(c.Context(), input)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "batch created", batch)
}

func (h *BatchHandler) list(c *fiber.Ctx) error {
	batches, err := h.batches.List(c.Context())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "batches retrieved", batches)
}

func (h *BatchHandler) get(c *fiber.Ctx) error {
	batch, err := h.batches.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "batch retrieved", batch)
}

func (h *BatchHandler) listRecords(c *fiber.Ctx) error {
	records, err := h.batches.ListRecords(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "records retrieved", records)
}

func (h *BatchHandler) gradeAll(c *fiber.Ctx) error {
	result, err := h.grading.GradeBatch(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "batch grading finished", result)
}

func (h *BatchHandler) summary(c *fiber.Ctx) error {
	summary, err := h.summaries.GetSummary(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "summary retrieved", summary)
}

func (h *BatchHandler) exportCSV(c *fiber.Ctx) error {
	buf := &bytes.Buffer{}
	if err := h.exports.WriteCSV(c.Context(), c.Params("id"), buf); err != nil {
		return h.handleError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", c.Params("id")+".csv"))
	return c.Send(buf.Bytes())
}

func (h *BatchHandler) readFile(header *multipart.FileHeader) (service.UploadedFile, error) {
	if header.Size > h.maxUpload {
		return service.UploadedFile{}, fmt.Errorf("file %q exceeds the upload size limit", header.Filename)
	}

	handle, err := header.Open()
	if err != nil {
		return service.UploadedFile{}, fmt.Errorf("open file %q: %w", header.Filename, err)
	}
	defer handle.Close()

	data, err := io.ReadAll(io.LimitReader(handle, h.maxUpload+1))
	if err != nil {
		return service.UploadedFile{}, fmt.Errorf("read file %q: %w", header.Filename, err)
	}
	if int64(len(data)) > h.maxUpload {
		return service.UploadedFile{}, fmt.Errorf("file %q exceeds the upload size limit", header.Filename)
	}

	return service.UploadedFile{Name: header.Filename, Data: data}, nil
}

func (h *BatchHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrBatchNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "batch not found")
	case errors.Is(err, service.ErrNoAnswerKey), errors.Is(err, service.ErrNoSubmissions):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
