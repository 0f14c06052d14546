package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gradescan/gradescan-api/internal/config"
	"github.com/gradescan/gradescan-api/internal/models"
	"github.com/gradescan/gradescan-api/internal/verdict"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fakeRecordRepo struct {
	records map[string]models.Record
	order   []string
	updates int
}

func newFakeRecordRepo(records ...models.Record) *fakeRecordRepo {
	repo := &fakeRecordRepo{records: make(map[string]models.Record)}
	for _, record := range records {
		repo.records[record.ID] = record
		repo.order = append(repo.order, record.ID)
	}
	return repo
}

func (f *fakeRecordRepo) ListByBatch(ctx context.Context, batchID string) ([]models.Record, error) {
	var out []models.Record
	for _, id := range f.order {
		if f.records[id].BatchID == batchID {
			out = append(out, f.records[id])
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) GetByID(ctx context.Context, id string) (models.Record, error) {
	record, ok := f.records[id]
	if !ok {
		return models.Record{}, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (f *fakeRecordRepo) Create(ctx context.Context, record *models.Record) error {
	f.records[record.ID] = *record
	f.order = append(f.order, record.ID)
	return nil
}

func (f *fakeRecordRepo) Update(ctx context.Context, record *models.Record) error {
	f.updates++
	f.records[record.ID] = *record
	return nil
}

type fakeBatchRepo struct {
	batches map[string]models.Batch
}

func newFakeBatchRepo(batches ...models.Batch) *fakeBatchRepo {
	repo := &fakeBatchRepo{batches: make(map[string]models.Batch)}
	for _, batch := range batches {
		repo.batches[batch.ID] = batch
	}
	return repo
}

func (f *fakeBatchRepo) List(ctx context.Context) ([]models.Batch, error) {
	var out []models.Batch
	for _, batch := range f.batches {
		out = append(out, batch)
	}
	return out, nil
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, id string) (models.Batch, error) {
	batch, ok := f.batches[id]
	if !ok {
		return models.Batch{}, gorm.ErrRecordNotFound
	}
	return batch, nil
}

func (f *fakeBatchRepo) Create(ctx context.Context, batch *models.Batch) error {
	f.batches[batch.ID] = *batch
	return nil
}

type fakeSettingRepo struct {
	values map[string]string
	err    error
}

func (f *fakeSettingRepo) Get(ctx context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fakeSettingRepo) Set(ctx context.Context, key, value string) error {
	if f.err != nil {
		return f.err
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	return nil
}

// scriptedGrader returns canned responses in order, then repeats the last.
type scriptedGrader struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (g *scriptedGrader) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, userPrompt)
	if g.err != nil {
		return "", g.err
	}
	index := g.calls - 1
	if index >= len(g.responses) {
		index = len(g.responses) - 1
	}
	return g.responses[index], nil
}

type invalidationSpy struct {
	batchIDs []string
}

func (s *invalidationSpy) Invalidate(ctx context.Context, batchID string) {
	s.batchIDs = append(s.batchIDs, batchID)
}

func newTestSettings(values map[string]string) SettingsService {
	repo := &fakeSettingRepo{values: values}
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewSettingsService(repo, config.Config{PassThreshold: 70}, validate, testLogger())
}

const validGradingResponse = `{
	"studentName": "Ada Lovelace",
	"total": 8,
	"worth": 10,
	"feedback": "Solid work, revise question two.",
	"questions": [
		{"id": "Q1", "question": "2+2?", "studentAnswer": "4", "correctAnswer": "4", "closeness": 100, "verdict": "Correct", "score": 5, "maxScore": 5},
		{"id": "Q2", "question": "Capital of France?", "studentAnswer": "Lyon", "correctAnswer": "Paris", "closeness": 30, "verdict": "Partial", "score": 3, "maxScore": 5}
	]
}`

func TestGradeRecordReachesDisplayed(t *testing.T) {
	record := models.Record{ID: "r1", BatchID: "b1", Identifier: "alice", RawContent: "answers", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{responses: []string{validGradingResponse}}
	cache := &invalidationSpy{}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), cache, testLogger())

	response, err := svc.GradeRecord(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, models.RecordStatusDisplayed, response.Status)
	require.Equal(t, 8.0, response.Total)
	require.Equal(t, 10.0, response.Worth)
	require.Equal(t, 80.0, response.Percentage)
	require.Equal(t, "B", response.Letter)
	require.True(t, response.Passed)
	require.NotNil(t, response.GradedAt)
	require.Equal(t, []string{"b1"}, cache.batchIDs)

	var result verdict.GradingResult
	require.NoError(t, json.Unmarshal(response.Result, &result))
	require.Equal(t, "Ada Lovelace", result.StudentName)
	require.Len(t, result.Questions, 2)
	require.Nil(t, result.ParseError)
}

func TestGradeRecordFencedResponse(t *testing.T) {
	record := models.Record{ID: "r1", BatchID: "b1", RawContent: "answers", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{responses: []string{"```json\n" + validGradingResponse + "\n```"}}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), nil, testLogger())

	response, err := svc.GradeRecord(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, models.RecordStatusDisplayed, response.Status)
	require.Equal(t, 8.0, response.Total)
}

func TestGradeRecordTransportError(t *testing.T) {
	record := models.Record{ID: "r1", BatchID: "b1", RawContent: "answers", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{err: errors.New("connection refused")}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), nil, testLogger())

	response, err := svc.GradeRecord(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, models.RecordStatusError, response.Status)
	require.Contains(t, response.LastError, "connection refused")
	require.Nil(t, response.Result)
	require.Nil(t, response.GradedAt)

	stored := records.records["r1"]
	require.Equal(t, models.RecordStatusError, stored.Status)
	require.False(t, stored.HasResult())
}

func TestGradeRecordParseFailureStillDisplayed(t *testing.T) {
	record := models.Record{ID: "r1", BatchID: "b1", RawContent: "answers", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{responses: []string{"I could not grade this submission."}}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), nil, testLogger())

	response, err := svc.GradeRecord(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, models.RecordStatusDisplayed, response.Status)
	require.Zero(t, response.Total)
	require.Nil(t, response.GradedAt)
	require.False(t, response.Passed)

	var result verdict.GradingResult
	require.NoError(t, json.Unmarshal(response.Result, &result))
	require.NotNil(t, result.ParseError)
	require.Equal(t, "I could not grade this submission.", result.ParseError.Raw)
}

func TestGradeRecordRecomputedTotalIsAuthoritative(t *testing.T) {
	// The model claims 99 but the question scores sum to 8.
	response := `{"total": 99, "questions": [
		{"id": "Q1", "verdict": "Correct", "score": 5, "maxScore": 5},
		{"id": "Q2", "verdict": "Partial", "score": 3, "maxScore": 5}
	]}`
	record := models.Record{ID: "r1", BatchID: "b1", RawContent: "answers", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{responses: []string{response}}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), nil, testLogger())

	graded, err := svc.GradeRecord(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 8.0, graded.Total)
	require.Equal(t, 10.0, graded.Worth)
}

func TestGradeRecordSanitizesFeedback(t *testing.T) {
	response := `{"feedback": "Good job<script>alert(1)</script>", "questions": [
		{"id": "Q1", "verdict": "Correct", "score": 1, "maxScore": 1}
	]}`
	record := models.Record{ID: "r1", BatchID: "b1", RawContent: "answers", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{responses: []string{response}}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), nil, testLogger())

	graded, err := svc.GradeRecord(context.Background(), "r1")
	require.NoError(t, err)

	var result verdict.GradingResult
	require.NoError(t, json.Unmarshal(graded.Result, &result))
	require.Equal(t, "Good job", result.Feedback)
}

func TestGradeRecordUsesStoredPassThreshold(t *testing.T) {
	record := models.Record{ID: "r1", BatchID: "b1", RawContent: "answers", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{responses: []string{validGradingResponse}}
	settings := newTestSettings(map[string]string{SettingKeyPassThreshold: "85"})

	svc := NewGradingService(records, batches, grader, settings, nil, testLogger())

	graded, err := svc.GradeRecord(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 80.0, graded.Percentage)
	require.False(t, graded.Passed)
}

func TestGradeRecordInFlightRejected(t *testing.T) {
	sentAt := time.Now()
	record := models.Record{ID: "r1", BatchID: "b1", Status: models.RecordStatusProcessing, SentAt: &sentAt}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{responses: []string{validGradingResponse}}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), nil, testLogger())

	_, err := svc.GradeRecord(context.Background(), "r1")
	require.ErrorIs(t, err, ErrGradingInFlight)
	require.Zero(t, grader.calls)
}

func TestGradeRecordNotFound(t *testing.T) {
	svc := NewGradingService(newFakeRecordRepo(), newFakeBatchRepo(), &scriptedGrader{}, newTestSettings(nil), nil, testLogger())

	_, err := svc.GradeRecord(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestGradeRecordPromptCarriesKeyAndSubmission(t *testing.T) {
	record := models.Record{ID: "r1", BatchID: "b1", RawContent: "student wrote this", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(record)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "1. Paris"})
	grader := &scriptedGrader{responses: []string{validGradingResponse}}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), nil, testLogger())

	_, err := svc.GradeRecord(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, grader.prompts, 1)
	require.Contains(t, grader.prompts[0], "1. Paris")
	require.Contains(t, grader.prompts[0], "student wrote this")
}

func TestGradeBatchSkipsGradedAndContinuesPastFailures(t *testing.T) {
	graded := models.Record{ID: "r1", BatchID: "b1", Identifier: "done", Status: models.RecordStatusDisplayed, ResultJSON: []byte(`{}`)}
	pending := models.Record{ID: "r2", BatchID: "b1", Identifier: "bad-json", Status: models.RecordStatusIdle}
	another := models.Record{ID: "r3", BatchID: "b1", Identifier: "fresh", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(graded, pending, another)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})

	// First ungraded record gets garbage, second gets a valid result. A
	// parse failure still counts as graded because the record reaches
	// displayed with the raw text preserved.
	grader := &scriptedGrader{responses: []string{"not json at all", validGradingResponse}}
	cache := &invalidationSpy{}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), cache, testLogger())

	response, err := svc.GradeBatch(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, 1, response.Skipped)
	require.Equal(t, 2, response.Graded)
	require.Equal(t, 0, response.Failed)
	require.Len(t, response.Outcomes, 3)
	require.Equal(t, 2, grader.calls)
	require.Equal(t, []string{"b1"}, cache.batchIDs)
}

func TestGradeBatchTransportFailureCountsFailed(t *testing.T) {
	first := models.Record{ID: "r1", BatchID: "b1", Identifier: "a", Status: models.RecordStatusIdle}
	second := models.Record{ID: "r2", BatchID: "b1", Identifier: "b", Status: models.RecordStatusIdle}
	records := newFakeRecordRepo(first, second)
	batches := newFakeBatchRepo(models.Batch{ID: "b1", KeyText: "key"})
	grader := &scriptedGrader{err: errors.New("provider down")}

	svc := NewGradingService(records, batches, grader, newTestSettings(nil), nil, testLogger())

	response, err := svc.GradeBatch(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, 0, response.Graded)
	require.Equal(t, 2, response.Failed)
	// Both records were still attempted.
	require.Equal(t, 2, grader.calls)
	for _, outcome := range response.Outcomes {
		require.Equal(t, models.RecordStatusError, outcome.Status)
		require.Contains(t, outcome.Error, "provider down")
	}
}

func TestGradeBatchUnknownBatch(t *testing.T) {
	svc := NewGradingService(newFakeRecordRepo(), newFakeBatchRepo(), &scriptedGrader{}, newTestSettings(nil), nil, testLogger())

	_, err := svc.GradeBatch(context.Background(), "missing")
	require.ErrorIs(t, err, ErrBatchNotFound)
}
