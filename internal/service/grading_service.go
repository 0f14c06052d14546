package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradescan/gradescan-api/internal/dto"
	"github.com/gradescan/gradescan-api/internal/models"
	"github.com/gradescan/gradescan-api/internal/observability"
	"github.com/gradescan/gradescan-api/internal/repository"
	"github.com/gradescan/gradescan-api/internal/scoring"
	"github.com/gradescan/gradescan-api/internal/verdict"
	"github.com/gradescan/gradescan-api/pkg/ai"
)

// ErrGradingInFlight indicates the record already has a grading call underway.
var ErrGradingInFlight = errors.New("grading already in progress for this record")

// GradingService drives records through the grading lifecycle:
// idle, sent, processing, received, displayed, with error reachable on any
// transport failure. Parse failures still reach displayed, carrying the raw
// response, so the user never loses data.
type GradingService interface {
	GradeRecord(ctx context.Context, recordID string) (dto.RecordResponse, error)
	GradeBatch(ctx context.Context, batchID string) (dto.GradeBatchResponse, error)
}

type gradingService struct {
	records   repository.RecordRepository
	batches   repository.BatchRepository
	grader    ai.Grader
	settings  SettingsService
	cache     SummaryInvalidator
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(records repository.RecordRepository, batches repository.BatchRepository, grader ai.Grader, settings SettingsService, cache SummaryInvalidator, logger zerolog.Logger) GradingService {
	return &gradingService{
		records:   records,
		batches:   batches,
		grader:    grader,
		settings:  settings,
		cache:     cache,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "grading_service").Logger(),
		tracer:    otel.Tracer("github.com/gradescan/gradescan-api/internal/service/grading"),
		now:       time.Now,
	}
}

func (s *gradingService) GradeRecord(ctx context.Context, recordID string) (dto.RecordResponse, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RecordResponse{}, ErrRecordNotFound
		}
		return dto.RecordResponse{}, err
	}

	if record.InFlight() {
		return dto.RecordResponse{}, ErrGradingInFlight
	}

	batch, err := s.batches.GetByID(ctx, record.BatchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RecordResponse{}, ErrBatchNotFound
		}
		return dto.RecordResponse{}, err
	}

	graded, err := s.grade(ctx, record, batch.KeyText)
	if err != nil {
		return dto.RecordResponse{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, record.BatchID)
	}

	return dto.NewRecordResponse(graded, s.now()), nil
}

// GradeBatch grades every record lacking a stored result, strictly one at a
// time. Sequencing caps in-flight model calls at one, which avoids provider
// rate-limit bursts; an individual failure never aborts the rest of the run.
func (s *gradingService) GradeBatch(ctx context.Context, batchID string) (dto.GradeBatchResponse, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeBatchResponse{}, ErrBatchNotFound
		}
		return dto.GradeBatchResponse{}, err
	}

	records, err := s.records.ListByBatch(ctx, batchID)
	if err != nil {
		return dto.GradeBatchResponse{}, err
	}

	response := dto.GradeBatchResponse{BatchID: batchID}
	for _, record := range records {
		if record.HasResult() || record.InFlight() {
			response.Skipped++
			response.Outcomes = append(response.Outcomes, dto.GradeOutcome{
				RecordID:   record.ID,
				Identifier: record.Identifier,
				Status:     record.Status,
			})
			continue
		}

		graded, err := s.grade(ctx, record, batch.KeyText)
		if err != nil {
			// Repository failure, not a grading failure: report and move on.
			response.Failed++
			response.Outcomes = append(response.Outcomes, dto.GradeOutcome{
				RecordID:   record.ID,
				Identifier: record.Identifier,
				Status:     record.Status,
				Error:      err.Error(),
			})
			continue
		}

		outcome := dto.GradeOutcome{
			RecordID:   graded.ID,
			Identifier: graded.Identifier,
			Status:     graded.Status,
			Error:      graded.LastError,
		}
		if graded.Status == models.RecordStatusDisplayed {
			response.Graded++
		} else {
			response.Failed++
		}
		response.Outcomes = append(response.Outcomes, outcome)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, batchID)
	}

	return response, nil
}

// grade drives one record through the lifecycle. A transport failure lands
// the record in the error state; only repository errors are returned.
func (s *gradingService) grade(ctx context.Context, record models.Record, keyText string) (models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "grading.grade", trace.WithAttributes(
		attribute.String("grading.record_id", record.ID),
	))
	defer span.End()

	sentAt := s.now()
	record.Status = models.RecordStatusSent
	record.SentAt = &sentAt
	record.GradedAt = nil
	record.LastError = ""
	if err := s.records.Update(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record update failed")
		return record, err
	}

	// Visible to concurrent reads so the elapsed display can tick.
	record.Status = models.RecordStatusProcessing
	if err := s.records.Update(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record update failed")
		return record, err
	}

	systemPrompt := s.settings.GradingPrompt(ctx)
	userPrompt := buildGradingPrompt(keyText, record.RawContent)

	raw, err := s.grader.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		observability.GradingOutcomes().WithLabelValues(models.RecordStatusError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading call failed")
		s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("grading call failed")

		record.Status = models.RecordStatusError
		record.LastError = err.Error()
		if updateErr := s.records.Update(ctx, &record); updateErr != nil {
			return record, updateErr
		}
		return record, nil
	}

	record.Status = models.RecordStatusReceived

	result := verdict.Parse(raw)
	summary := scoring.Aggregate(result)

	if summary.ReportedMismatch {
		s.logger.Warn().
			Str("record_id", record.ID).
			Float64("reported_total", *result.ReportedTotal).
			Float64("recomputed_total", summary.Total).
			Msg("model-reported total disagrees with recomputed sum, using recomputed value")
	}

	if result.Malformed() {
		s.logger.Warn().Str("record_id", record.ID).Msg("grading response was not valid JSON, storing raw text")
	} else {
		result.Feedback = s.sanitizer.Sanitize(result.Feedback)
		gradedAt := s.now()
		record.GradedAt = &gradedAt
		record.Letter = scoring.Letter(summary.Percentage)
		record.Passed = scoring.Passed(summary.Percentage, s.settings.PassThreshold(ctx))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "result serialisation failed")
		return record, fmt.Errorf("serialise grading result: %w", err)
	}

	record.ResultJSON = datatypes.JSON(payload)
	record.Total = summary.Total
	record.Worth = summary.Worth
	record.Percentage = summary.Percentage
	record.Status = models.RecordStatusDisplayed

	if err := s.records.Update(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record update failed")
		return record, err
	}

	observability.GradingOutcomes().WithLabelValues(models.RecordStatusDisplayed).Inc()
	span.SetAttributes(
		attribute.Float64("grading.total", record.Total),
		attribute.Float64("grading.percentage", record.Percentage),
		attribute.Bool("grading.parse_error", result.Malformed()),
	)

	return record, nil
}

func buildGradingPrompt(keyText, submission string) string {
	builder := strings.Builder{}
	builder.WriteString("# Answer Key\n")
	builder.WriteString(keyText)
	builder.WriteString("\n\n# Student Submission\n")
	builder.WriteString(submission)
	builder.WriteString("\n\nGrade the submission against the answer key. Return JSON.")
	return builder.String()
}
