package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradescan",
		Subsystem: "ai",
		Name:      "grading_duration_seconds",
		Help:      "Duration of grading completion requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradescan",
		Subsystem: "ai",
		Name:      "grading_failures_total",
		Help:      "Number of failed grading completion requests",
	}, []string{"model"})
)

// ErrNoAPIKey indicates no OpenAI credential is configured.
var ErrNoAPIKey = fmt.Errorf("openai api key is not configured")

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	// KeySource returns the current API credential. The credential lives in
	// the settings store and may change between calls without a restart.
	KeySource   func(ctx context.Context) string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API.
type OpenAIGrader struct {
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger

	mu        sync.Mutex
	client    *openai.Client
	clientKey string
}

// NewOpenAIGrader builds a new grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.KeySource == nil {
		return nil, fmt.Errorf("openai key source is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	tracer := otel.Tracer("github.com/gradescan/gradescan-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIGrader{
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Complete sends the grading prompt to OpenAI and returns the completion
// text untouched. There is no retry: a request runs to completion or fails.
func (g *OpenAIGrader) Complete(parent context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, span := g.tracer.Start(parent, "openai.complete", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
	))
	defer span.End()

	client, err := g.clientFor(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai complete: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	g.logger.Debug().
		Str("model", g.cfg.Model).
		Dur("duration", duration).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("grading completion finished")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// clientFor returns a chat client bound to the current credential,
// rebuilding it only when the stored key changes.
func (g *OpenAIGrader) clientFor(ctx context.Context) (*openai.Client, error) {
	key := strings.TrimSpace(g.cfg.KeySource(ctx))
	if key == "" {
		return nil, ErrNoAPIKey
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil || g.clientKey != key {
		g.client = openai.NewClientWithConfig(openai.DefaultConfig(key))
		g.clientKey = key
	}

	return g.client, nil
}
