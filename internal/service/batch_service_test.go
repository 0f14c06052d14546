package service

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/gradescan/gradescan-api/internal/dto"
	"github.com/gradescan/gradescan-api/internal/extract"
	"github.com/gradescan/gradescan-api/internal/models"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, content := range entries {
		file, err := writer.Create(name)
		require.NoError(t, err)
		_, err = file.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

func newBatchServiceForTest(batches *fakeBatchRepo, records *fakeRecordRepo, cache SummaryInvalidator) BatchService {
	return NewBatchService(batches, records, extract.NewService(testLogger()), cache, testLogger())
}

func TestBatchCreateSplitsMultiStudentFile(t *testing.T) {
	batches := newFakeBatchRepo()
	svc := newBatchServiceForTest(batches, newFakeRecordRepo(), nil)

	blob := "Student: Alice\nanswers from alice\n\nStudent: Bob\nanswers from bob\n"
	response, err := svc.Create(context.Background(), BatchCreateInput{
		Name:    "Midterm",
		KeyText: "1. Paris",
		Files:   []UploadedFile{{Name: "scans.txt", Data: []byte(blob)}},
	})
	require.NoError(t, err)
	require.Equal(t, "Midterm", response.Name)
	require.Equal(t, 2, response.RecordCount)

	stored := batches.batches[response.ID]
	require.Len(t, stored.Records, 2)
	require.Equal(t, "scans-Student1", stored.Records[0].Identifier)
	require.Equal(t, "scans-Student2", stored.Records[1].Identifier)
	require.Contains(t, stored.Records[0].RawContent, "answers from alice")
	require.Contains(t, stored.Records[1].RawContent, "answers from bob")
	for _, record := range stored.Records {
		require.Equal(t, models.RecordStatusIdle, record.Status)
	}
}

func TestBatchCreateSingleStudentFile(t *testing.T) {
	batches := newFakeBatchRepo()
	svc := newBatchServiceForTest(batches, newFakeRecordRepo(), nil)

	response, err := svc.Create(context.Background(), BatchCreateInput{
		KeyText: "1. Paris",
		Files:   []UploadedFile{{Name: "alice.txt", Data: []byte("just one submission")}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, response.RecordCount)

	stored := batches.batches[response.ID]
	require.Equal(t, "alice.txt", stored.Records[0].Identifier)
	require.Equal(t, "just one submission", stored.Records[0].RawContent)
}

func TestBatchCreateExpandsZip(t *testing.T) {
	batches := newFakeBatchRepo()
	svc := newBatchServiceForTest(batches, newFakeRecordRepo(), nil)

	archive := buildZip(t, map[string]string{
		"alice.txt": "alice answers",
		"bob.txt":   "bob answers",
	})

	response, err := svc.Create(context.Background(), BatchCreateInput{
		KeyText: "key",
		Files:   []UploadedFile{{Name: "submissions.zip", Data: archive}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, response.RecordCount)

	identifiers := make([]string, 0, 2)
	for _, record := range batches.batches[response.ID].Records {
		identifiers = append(identifiers, record.Identifier)
	}
	require.ElementsMatch(t, []string{"alice.txt", "bob.txt"}, identifiers)
}

func TestBatchCreateKeyFromFile(t *testing.T) {
	batches := newFakeBatchRepo()
	svc := newBatchServiceForTest(batches, newFakeRecordRepo(), nil)

	response, err := svc.Create(context.Background(), BatchCreateInput{
		KeyFile: &UploadedFile{Name: "key.txt", Data: []byte("1. Paris\n2. 1789")},
		Files:   []UploadedFile{{Name: "alice.txt", Data: []byte("answers")}},
	})
	require.NoError(t, err)
	require.Contains(t, batches.batches[response.ID].KeyText, "1. Paris")
}

func TestBatchCreateDefaultsName(t *testing.T) {
	batches := newFakeBatchRepo()
	svc := newBatchServiceForTest(batches, newFakeRecordRepo(), nil)

	response, err := svc.Create(context.Background(), BatchCreateInput{
		KeyText: "key",
		Files:   []UploadedFile{{Name: "alice.txt", Data: []byte("answers")}},
	})
	require.NoError(t, err)
	require.Contains(t, response.Name, "Batch ")
}

func TestBatchCreateRequiresAnswerKey(t *testing.T) {
	svc := newBatchServiceForTest(newFakeBatchRepo(), newFakeRecordRepo(), nil)

	_, err := svc.Create(context.Background(), BatchCreateInput{
		Files: []UploadedFile{{Name: "alice.txt", Data: []byte("answers")}},
	})
	require.ErrorIs(t, err, ErrNoAnswerKey)
}

func TestBatchCreateRequiresSubmissions(t *testing.T) {
	svc := newBatchServiceForTest(newFakeBatchRepo(), newFakeRecordRepo(), nil)

	_, err := svc.Create(context.Background(), BatchCreateInput{KeyText: "key"})
	require.ErrorIs(t, err, ErrNoSubmissions)
}

func TestBatchGetNotFound(t *testing.T) {
	svc := newBatchServiceForTest(newFakeBatchRepo(), newFakeRecordRepo(), nil)

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestUpdateRecordContentClearsResult(t *testing.T) {
	gradedAt := time.Now()
	record := models.Record{
		ID:         "r1",
		BatchID:    "b1",
		Identifier: "alice",
		RawContent: "old text",
		Status:     models.RecordStatusDisplayed,
		ResultJSON: datatypes.JSON([]byte(`{"total": 8}`)),
		Total:      8,
		Worth:      10,
		Percentage: 80,
		Letter:     "B",
		Passed:     true,
		SentAt:     &gradedAt,
		GradedAt:   &gradedAt,
	}
	records := newFakeRecordRepo(record)
	cache := &invalidationSpy{}
	svc := newBatchServiceForTest(newFakeBatchRepo(), records, cache)

	response, err := svc.UpdateRecordContent(context.Background(), "r1", dto.RecordUpdateRequest{RawContent: "corrected text"})
	require.NoError(t, err)
	require.Equal(t, "corrected text", response.RawContent)
	require.Equal(t, models.RecordStatusIdle, response.Status)
	require.Nil(t, response.Result)
	require.Zero(t, response.Total)
	require.Empty(t, response.Letter)
	require.False(t, response.Passed)
	require.Nil(t, response.GradedAt)
	require.Equal(t, []string{"b1"}, cache.batchIDs)

	stored := records.records["r1"]
	require.False(t, stored.HasResult())
	require.Nil(t, stored.SentAt)
}

func TestUpdateRecordContentNotFound(t *testing.T) {
	svc := newBatchServiceForTest(newFakeBatchRepo(), newFakeRecordRepo(), nil)

	_, err := svc.UpdateRecordContent(context.Background(), "missing", dto.RecordUpdateRequest{RawContent: "text"})
	require.ErrorIs(t, err, ErrRecordNotFound)
}
