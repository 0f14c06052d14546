package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName         string
	AppEnv          string
	AppPort         string
	DatabaseURL     string
	RedisURL        string
	OpenAIAPIKey    string
	OpenAIModel     string
	AIMaxTokens     int
	AITemperature   float32
	GradingPrompt   string
	PassThreshold   float64
	SummaryCacheTTL time.Duration
	MaxUploadMB     int
}

// DefaultGradingPrompt instructs the model to grade a submission against the
// answer key and answer with the JSON shape the verdict parser expects.
const DefaultGradingPrompt = `You are a strict but fair grader. Compare the student's submission against the answer key question by question. Respond with a single JSON object and nothing else, using this shape: {"studentName": string, "total": number, "worth": number, "feedback": string, "questions": [{"id": string, "question": string, "studentAnswer": string, "correctAnswer": string, "closeness": number from 0 to 100, "verdict": "Correct" | "Partial" | "Incorrect", "score": number, "maxScore": number}]}. Award partial credit where deserved and keep feedback short and actionable.`

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADESCAN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GradeScan API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.url", "gradescan.db")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.temperature", 0.0)
	v.SetDefault("pass.threshold", 70.0)
	v.SetDefault("summary.cache_ttl", "2m")
	v.SetDefault("max_upload_mb", 25)

	ttlString := v.GetString("summary.cache_ttl")
	if ttlString == "" {
		ttlString = "2m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid summary cache ttl: %w", err)
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		OpenAIModel:     v.GetString("openai.model"),
		AIMaxTokens:     v.GetInt("ai.max_tokens"),
		AITemperature:   float32(v.GetFloat64("ai.temperature")),
		GradingPrompt:   v.GetString("grading_prompt"),
		PassThreshold:   v.GetFloat64("pass.threshold"),
		SummaryCacheTTL: ttl,
		MaxUploadMB:     v.GetInt("max_upload_mb"),
	}

	if cfg.GradingPrompt == "" {
		cfg.GradingPrompt = DefaultGradingPrompt
	}

	if cfg.PassThreshold < 0 || cfg.PassThreshold > 100 {
		return Config{}, fmt.Errorf("pass threshold must be between 0 and 100")
	}

	if cfg.AIMaxTokens <= 0 {
		cfg.AIMaxTokens = 2048
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 25
	}

	return cfg, nil
}
