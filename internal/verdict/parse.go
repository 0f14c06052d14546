package verdict

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema is a deliberately loose structural gate: the payload must be a
// JSON object and, when present, questions must be an array of objects.
// Field-level coercion happens after validation so that models emitting
// numbers as strings still parse.
const resultSchemaJSON = `{
	"type": "object",
	"properties": {
		"questions": {
			"type": "array",
			"items": {"type": "object"}
		}
	}
}`

var resultSchema = jsonschema.MustCompileString("grading_result.json", resultSchemaJSON)

var fenceTag = regexp.MustCompile(`^[A-Za-z0-9_+-]*$`)

// StripFence removes a single fenced-code-block decoration (triple-backtick
// markers with an optional language tag) wrapped around the payload. Models
// routinely wrap JSON this way despite being asked not to.
func StripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = trimmed[3:]
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		if fenceTag.MatchString(strings.TrimSpace(trimmed[:nl])) {
			trimmed = trimmed[nl+1:]
		}
	}

	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

type wireQuestion struct {
	ID            json.RawMessage `json:"id"`
	QuestionText  string          `json:"question"`
	StudentAnswer string          `json:"studentAnswer"`
	CorrectAnswer string          `json:"correctAnswer"`
	Closeness     json.RawMessage `json:"closeness"`
	Verdict       string          `json:"verdict"`
	Score         json.RawMessage `json:"score"`
	MaxScore      json.RawMessage `json:"maxScore"`
}

type wirePayload struct {
	StudentName string          `json:"studentName"`
	Total       json.RawMessage `json:"total"`
	Worth       json.RawMessage `json:"worth"`
	Questions   []wireQuestion  `json:"questions"`
	Feedback    string          `json:"feedback"`
}

// Parse validates and coerces a raw model response into a GradingResult.
// It never returns an error: a payload that is not valid JSON, or that fails
// the structural gate, yields a result carrying only a ParseError with the
// original text so the caller can still show the response.
func Parse(raw string) *GradingResult {
	content := StripFence(raw)

	var probe interface{}
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		return &GradingResult{ParseError: &ParseError{Raw: raw}}
	}
	if err := resultSchema.Validate(probe); err != nil {
		return &GradingResult{ParseError: &ParseError{Raw: raw}}
	}

	var wire wirePayload
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return &GradingResult{ParseError: &ParseError{Raw: raw}}
	}

	result := &GradingResult{
		StudentName: strings.TrimSpace(wire.StudentName),
		Feedback:    strings.TrimSpace(wire.Feedback),
	}

	if total, ok := coerceNumber(wire.Total); ok {
		result.ReportedTotal = &total
	}
	if worth, ok := coerceNumber(wire.Worth); ok {
		result.DeclaredWorth = &worth
	}

	for _, question := range wire.Questions {
		score, _ := coerceNumber(question.Score)
		closeness, _ := coerceNumber(question.Closeness)

		// A question with no declared maximum is worth exactly one point.
		maxScore, ok := coerceNumber(question.MaxScore)
		if !ok {
			maxScore = 1
		}

		result.Questions = append(result.Questions, QuestionResult{
			ID:            coerceString(question.ID),
			QuestionText:  question.QuestionText,
			StudentAnswer: question.StudentAnswer,
			CorrectAnswer: question.CorrectAnswer,
			Closeness:     clampCloseness(closeness),
			Verdict:       NormalizeVerdict(question.Verdict),
			Score:         score,
			MaxScore:      maxScore,
		})
	}

	return result
}

// coerceNumber reads a numeric field that may arrive as a JSON number, a
// quoted number, null, or garbage. The second return reports presence of a
// usable value.
func coerceNumber(raw json.RawMessage) (float64, bool) {
	token := strings.TrimSpace(string(raw))
	if token == "" || token == "null" {
		return 0, false
	}

	if strings.HasPrefix(token, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return 0, false
		}
		token = strings.TrimSpace(unquoted)
	}

	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// coerceString reads an identifier that may arrive as a string or a number.
func coerceString(raw json.RawMessage) string {
	token := strings.TrimSpace(string(raw))
	if token == "" || token == "null" {
		return ""
	}

	if strings.HasPrefix(token, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err == nil {
			return strings.TrimSpace(unquoted)
		}
	}

	if value, err := strconv.ParseFloat(token, 64); err == nil {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}

	return token
}

func clampCloseness(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
