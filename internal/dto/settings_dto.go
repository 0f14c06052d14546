package dto

// SettingsResponse exposes the persisted configuration. The API credential
// itself is never echoed back, only whether one is stored.
type SettingsResponse struct {
	GradingPrompt string  `json:"grading_prompt"`
	PassThreshold float64 `json:"pass_threshold"`
	APIKeySet     bool    `json:"api_key_set"`
}

// SettingsUpdateRequest updates persisted configuration. Absent fields are
// left unchanged.
type SettingsUpdateRequest struct {
	GradingPrompt *string  `json:"grading_prompt,omitempty"`
	PassThreshold *float64 `json:"pass_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	APIKey        *string  `json:"api_key,omitempty"`
}
