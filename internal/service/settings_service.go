package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gradescan/gradescan-api/internal/config"
	"github.com/gradescan/gradescan-api/internal/dto"
	"github.com/gradescan/gradescan-api/internal/repository"
	"github.com/gradescan/gradescan-api/internal/scoring"
)

// Keys under which the persisted configuration lives.
const (
	SettingKeyAPIKey        = "openai_api_key"
	SettingKeyGradingPrompt = "grading_prompt"
	SettingKeyPassThreshold = "pass_threshold"
)

// SettingsService exposes the persisted configuration: the API credential,
// the grading prompt, and the pass threshold. Values fall back to the
// process configuration when nothing is stored.
type SettingsService interface {
	Get(ctx context.Context) (dto.SettingsResponse, error)
	Update(ctx context.Context, payload dto.SettingsUpdateRequest) (dto.SettingsResponse, error)
	APIKey(ctx context.Context) string
	GradingPrompt(ctx context.Context) string
	PassThreshold(ctx context.Context) float64
}

type settingsService struct {
	repo      repository.SettingRepository
	cfg       config.Config
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSettingsService constructs the settings service.
func NewSettingsService(repo repository.SettingRepository, cfg config.Config, validator *validator.Validate, logger zerolog.Logger) SettingsService {
	return &settingsService{
		repo:      repo,
		cfg:       cfg,
		validator: validator,
		logger:    logger.With().Str("component", "settings_service").Logger(),
	}
}

func (s *settingsService) Get(ctx context.Context) (dto.SettingsResponse, error) {
	return dto.SettingsResponse{
		GradingPrompt: s.GradingPrompt(ctx),
		PassThreshold: s.PassThreshold(ctx),
		APIKeySet:     s.APIKey(ctx) != "",
	}, nil
}

func (s *settingsService) Update(ctx context.Context, payload dto.SettingsUpdateRequest) (dto.SettingsResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SettingsResponse{}, err
	}

	if payload.GradingPrompt != nil {
		if err := s.repo.Set(ctx, SettingKeyGradingPrompt, strings.TrimSpace(*payload.GradingPrompt)); err != nil {
			return dto.SettingsResponse{}, err
		}
	}

	if payload.PassThreshold != nil {
		if err := s.repo.Set(ctx, SettingKeyPassThreshold, strconv.FormatFloat(*payload.PassThreshold, 'f', -1, 64)); err != nil {
			return dto.SettingsResponse{}, err
		}
	}

	if payload.APIKey != nil {
		if err := s.repo.Set(ctx, SettingKeyAPIKey, strings.TrimSpace(*payload.APIKey)); err != nil {
			return dto.SettingsResponse{}, err
		}
	}

	return s.Get(ctx)
}

func (s *settingsService) APIKey(ctx context.Context) string {
	if value, ok := s.lookup(ctx, SettingKeyAPIKey); ok && value != "" {
		return value
	}
	return s.cfg.OpenAIAPIKey
}

func (s *settingsService) GradingPrompt(ctx context.Context) string {
	if value, ok := s.lookup(ctx, SettingKeyGradingPrompt); ok && value != "" {
		return value
	}
	if s.cfg.GradingPrompt != "" {
		return s.cfg.GradingPrompt
	}
	return config.DefaultGradingPrompt
}

func (s *settingsService) PassThreshold(ctx context.Context) float64 {
	if value, ok := s.lookup(ctx, SettingKeyPassThreshold); ok && value != "" {
		threshold, err := strconv.ParseFloat(value, 64)
		if err == nil && threshold >= 0 && threshold <= 100 {
			return threshold
		}
		s.logger.Warn().Str("value", value).Msg("stored pass threshold is unusable, falling back")
	}
	if s.cfg.PassThreshold > 0 {
		return s.cfg.PassThreshold
	}
	return scoring.DefaultPassThreshold
}

func (s *settingsService) lookup(ctx context.Context, key string) (string, bool) {
	value, found, err := s.repo.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to read setting")
		return "", false
	}
	return value, found
}
