package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gradescan/gradescan-api/internal/dto"
	"github.com/gradescan/gradescan-api/internal/models"
	"github.com/gradescan/gradescan-api/internal/repository"
)

// SummaryInvalidator drops a batch's cached summary after a grading or
// content mutation.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, batchID string)
}

// SummaryService produces aggregated grading metrics per batch.
type SummaryService interface {
	SummaryInvalidator
	GetSummary(ctx context.Context, batchID string) (dto.BatchSummaryResponse, error)
}

type summaryService struct {
	batches  repository.BatchRepository
	records  repository.RecordRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewSummaryService builds the batch summary aggregator. A nil cache client
// disables caching.
func NewSummaryService(batches repository.BatchRepository, records repository.RecordRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) SummaryService {
	return &summaryService{
		batches:  batches,
		records:  records,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "summary_service").Logger(),
	}
}

func summaryCacheKey(batchID string) string {
	return fmt.Sprintf("summary:batch:%s", batchID)
}

func (s *summaryService) GetSummary(ctx context.Context, batchID string) (dto.BatchSummaryResponse, error) {
	cacheKey := summaryCacheKey(batchID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.BatchSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("batch_id", batchID).Msg("summary cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read summary cache")
		}
	}

	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BatchSummaryResponse{}, ErrBatchNotFound
		}
		return dto.BatchSummaryResponse{}, err
	}

	records, err := s.records.ListByBatch(ctx, batchID)
	if err != nil {
		return dto.BatchSummaryResponse{}, err
	}

	response := buildSummary(batchID, records)

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store summary cache")
			}
		}
	}

	return response, nil
}

func (s *summaryService) Invalidate(ctx context.Context, batchID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, summaryCacheKey(batchID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("failed to invalidate summary cache")
	}
}

func buildSummary(batchID string, records []models.Record) dto.BatchSummaryResponse {
	response := dto.BatchSummaryResponse{
		BatchID: batchID,
		Records: make([]dto.RecordSummary, 0, len(records)),
	}

	var percentageSum float64
	for _, record := range records {
		response.TotalCount++
		if record.GradedAt != nil {
			response.GradedCount++
			percentageSum += record.Percentage
			if record.Passed {
				response.PassCount++
			}
		}

		response.Records = append(response.Records, dto.RecordSummary{
			RecordID:   record.ID,
			Identifier: record.Identifier,
			Status:     record.Status,
			Total:      record.Total,
			Worth:      record.Worth,
			Percentage: record.Percentage,
			Letter:     record.Letter,
			Passed:     record.Passed,
		})
	}

	if response.GradedCount > 0 {
		response.AveragePercentage = percentageSum / float64(response.GradedCount)
	}

	return response
}
