package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradescan/gradescan-api/internal/dto"
	"github.com/gradescan/gradescan-api/internal/extract"
	"github.com/gradescan/gradescan-api/internal/models"
	"github.com/gradescan/gradescan-api/internal/observability"
	"github.com/gradescan/gradescan-api/internal/repository"
	"github.com/gradescan/gradescan-api/internal/splitter"
)

// ErrBatchNotFound indicates the batch was not located.
var ErrBatchNotFound = errors.New("batch not found")

// ErrRecordNotFound indicates the record was not located.
var ErrRecordNotFound = errors.New("record not found")

// ErrNoSubmissions indicates a batch upload carried no usable files.
var ErrNoSubmissions = errors.New("at least one submission file is required")

// ErrNoAnswerKey indicates a batch upload carried neither a key file nor key text.
var ErrNoAnswerKey = errors.New("an answer key is required")

// UploadedFile is one file received in a batch upload.
type UploadedFile struct {
	Name string
	Data []byte
}

// BatchCreateInput carries everything needed to create a batch.
type BatchCreateInput struct {
	Name    string
	KeyText string
	KeyFile *UploadedFile
	Files   []UploadedFile
}

// BatchService manages upload batches and their grading records.
type BatchService interface {
	Create(ctx context.Context, input BatchCreateInput) (dto.BatchResponse, error)
	List(ctx context.Context) ([]dto.BatchResponse, error)
	Get(ctx context.Context, id string) (dto.BatchResponse, error)
	ListRecords(ctx context.Context, batchID string) ([]dto.RecordResponse, error)
	GetRecord(ctx context.Context, recordID string) (dto.RecordResponse, error)
	UpdateRecordContent(ctx context.Context, recordID string, payload dto.RecordUpdateRequest) (dto.RecordResponse, error)
}

type batchService struct {
	batches   repository.BatchRepository
	records   repository.RecordRepository
	extractor *extract.Service
	cache     SummaryInvalidator
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewBatchService constructs the batch service.
func NewBatchService(batches repository.BatchRepository, records repository.RecordRepository, extractor *extract.Service, cache SummaryInvalidator, logger zerolog.Logger) BatchService {
	return &batchService{
		batches:   batches,
		records:   records,
		extractor: extractor,
		cache:     cache,
		logger:    logger.With().Str("component", "batch_service").Logger(),
		tracer:    otel.Tracer("github.com/gradescan/gradescan-api/internal/service/batch"),
		now:       time.Now,
	}
}

func (s *batchService) Create(ctx context.Context, input BatchCreateInput) (dto.BatchResponse, error) {
	ctx, span := s.tracer.Start(ctx, "batch.create")
	defer span.End()

	keyText := strings.TrimSpace(input.KeyText)
	if keyText == "" && input.KeyFile != nil {
		keyText, _ = s.extractor.Extract(input.KeyFile.Name, input.KeyFile.Data)
	}
	if keyText == "" {
		span.RecordError(ErrNoAnswerKey)
		span.SetStatus(codes.Error, "missing answer key")
		return dto.BatchResponse{}, ErrNoAnswerKey
	}

	if len(input.Files) == 0 {
		span.RecordError(ErrNoSubmissions)
		span.SetStatus(codes.Error, "missing submissions")
		return dto.BatchResponse{}, ErrNoSubmissions
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = fmt.Sprintf("Batch %s", s.now().Format("2006-01-02 15:04"))
	}

	batch := models.Batch{
		ID:      uuid.NewString(),
		Name:    name,
		KeyText: keyText,
	}

	for _, file := range input.Files {
		batch.Records = append(batch.Records, s.recordsForFile(file)...)
	}

	if err := s.batches.Create(ctx, &batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch persistence failed")
		return dto.BatchResponse{}, err
	}

	observability.BatchRecords().Observe(float64(len(batch.Records)))
	span.SetAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.Int("batch.records", len(batch.Records)),
	)
	s.logger.Info().Str("batch_id", batch.ID).Int("records", len(batch.Records)).Msg("batch created")

	return dto.NewBatchResponse(batch), nil
}

// recordsForFile turns one uploaded file into grading records. ZIP archives
// expand to one file per entry; text extracted from a scan is run through
// the splitter and fans out to one record per detected student.
func (s *batchService) recordsForFile(file UploadedFile) []models.Record {
	if extract.DetectKind(file.Name, file.Data) == extract.KindZip {
		entries, err := extract.ExpandZip(file.Data)
		if err != nil {
			s.logger.Warn().Err(err).Str("filename", file.Name).Msg("zip expansion failed")
			return []models.Record{s.newRecord(file.Name, fmt.Sprintf("[unreadable ZIP: %s]", file.Name), extract.KindZip)}
		}

		var records []models.Record
		for _, entry := range entries {
			records = append(records, s.recordsForFile(UploadedFile{Name: entry.Name, Data: entry.Data})...)
		}
		return records
	}

	text, kind := s.extractor.Extract(file.Name, file.Data)
	segments := splitter.Split(text)

	if len(segments) <= 1 {
		return []models.Record{s.newRecord(file.Name, text, kind)}
	}

	base := strings.TrimSuffix(file.Name, filepath.Ext(file.Name))
	records := make([]models.Record, 0, len(segments))
	for i, segment := range segments {
		identifier := fmt.Sprintf("%s-Student%d", base, i+1)
		records = append(records, s.newRecord(identifier, segment, kind))
	}
	return records
}

func (s *batchService) newRecord(identifier, content string, kind extract.Kind) models.Record {
	return models.Record{
		ID:         uuid.NewString(),
		Identifier: identifier,
		SourceKind: string(kind),
		RawContent: content,
		Status:     models.RecordStatusIdle,
	}
}

func (s *batchService) List(ctx context.Context) ([]dto.BatchResponse, error) {
	batches, err := s.batches.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.BatchResponse, 0, len(batches))
	for _, batch := range batches {
		responses = append(responses, dto.NewBatchResponse(batch))
	}
	return responses, nil
}

func (s *batchService) Get(ctx context.Context, id string) (dto.BatchResponse, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BatchResponse{}, ErrBatchNotFound
		}
		return dto.BatchResponse{}, err
	}

	return dto.NewBatchResponse(batch), nil
}

func (s *batchService) ListRecords(ctx context.Context, batchID string) ([]dto.RecordResponse, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}

	records, err := s.records.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	responses := make([]dto.RecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, dto.NewRecordResponse(record, now))
	}
	return responses, nil
}

func (s *batchService) GetRecord(ctx context.Context, recordID string) (dto.RecordResponse, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RecordResponse{}, ErrRecordNotFound
		}
		return dto.RecordResponse{}, err
	}

	return dto.NewRecordResponse(record, s.now()), nil
}

// UpdateRecordContent re-edits a record's extracted text. The edit
// invalidates any stored grading result and returns the record to idle.
func (s *batchService) UpdateRecordContent(ctx context.Context, recordID string, payload dto.RecordUpdateRequest) (dto.RecordResponse, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RecordResponse{}, ErrRecordNotFound
		}
		return dto.RecordResponse{}, err
	}

	record.RawContent = payload.RawContent
	record.Status = models.RecordStatusIdle
	record.ResultJSON = datatypes.JSON(nil)
	record.LastError = ""
	record.SentAt = nil
	record.GradedAt = nil
	record.Total = 0
	record.Worth = 0
	record.Percentage = 0
	record.Letter = ""
	record.Passed = false

	if err := s.records.Update(ctx, &record); err != nil {
		return dto.RecordResponse{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, record.BatchID)
	}

	return dto.NewRecordResponse(record, s.now()), nil
}
