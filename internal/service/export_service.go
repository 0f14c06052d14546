package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gradescan/gradescan-api/internal/export"
	"github.com/gradescan/gradescan-api/internal/repository"
	"github.com/gradescan/gradescan-api/internal/verdict"
)

// ExportService renders a batch's grading results as CSV.
type ExportService interface {
	WriteCSV(ctx context.Context, batchID string, w io.Writer) error
}

type exportService struct {
	batches repository.BatchRepository
	records repository.RecordRepository
	logger  zerolog.Logger
}

// NewExportService constructs the export service.
func NewExportService(batches repository.BatchRepository, records repository.RecordRepository, logger zerolog.Logger) ExportService {
	return &exportService{
		batches: batches,
		records: records,
		logger:  logger.With().Str("component", "export_service").Logger(),
	}
}

func (s *exportService) WriteCSV(ctx context.Context, batchID string, w io.Writer) error {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBatchNotFound
		}
		return err
	}

	records, err := s.records.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}

	rows := make([]export.Row, 0, len(records))
	for _, record := range records {
		row := export.Row{
			Name:     record.Identifier,
			Total:    record.Total,
			GradedAt: record.GradedAt,
		}

		if record.HasResult() {
			var result verdict.GradingResult
			if err := json.Unmarshal(record.ResultJSON, &result); err != nil {
				s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("stored result is unreadable, exporting totals only")
			} else if !result.Malformed() {
				row.Questions = result.Questions
				row.Feedback = result.Feedback
			}
		}

		rows = append(rows, row)
	}

	return export.Write(w, rows)
}
