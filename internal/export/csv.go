// Package export serialises graded records to CSV. The column layout fans
// out per distinct question id: one fixed pair of leading columns, six
// columns for every question id seen across the batch, and two trailing
// columns. Question ids collide freely across records; matching is
// independent per record.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gradescan/gradescan-api/internal/verdict"
)

// Row is one record's exportable view.
type Row struct {
	Name      string
	Total     float64
	Questions []verdict.QuestionResult
	Feedback  string
	GradedAt  *time.Time
}

var questionColumns = []string{"Question", "StudentAnswer", "CorrectAnswer", "Verdict", "Closeness", "QuestionScore"}

// Write renders the rows as CSV. Question ids are ordered by first
// appearance across the batch so per-record question ordering is preserved.
// Missing values render as empty cells.
func Write(w io.Writer, rows []Row) error {
	ids := collectQuestionIDs(rows)

	writer := csv.NewWriter(w)
	if err := writer.Write(header(ids)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rows {
		if err := writer.Write(renderRow(row, ids)); err != nil {
			return fmt.Errorf("write csv row for %q: %w", row.Name, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func collectQuestionIDs(rows []Row) []string {
	seen := map[string]bool{}
	var ids []string
	for _, row := range rows {
		for _, question := range row.Questions {
			if !seen[question.ID] {
				seen[question.ID] = true
				ids = append(ids, question.ID)
			}
		}
	}
	return ids
}

func header(ids []string) []string {
	cells := []string{"Name", "TotalScore"}
	for _, id := range ids {
		for _, column := range questionColumns {
			cells = append(cells, fmt.Sprintf("%s %s", id, column))
		}
	}
	return append(cells, "Feedback", "GradedAt")
}

func renderRow(row Row, ids []string) []string {
	byID := map[string]verdict.QuestionResult{}
	for _, question := range row.Questions {
		if _, exists := byID[question.ID]; !exists {
			byID[question.ID] = question
		}
	}

	cells := []string{row.Name, formatNumber(row.Total)}
	for _, id := range ids {
		question, ok := byID[id]
		if !ok {
			cells = append(cells, "", "", "", "", "", "")
			continue
		}
		cells = append(cells,
			question.QuestionText,
			question.StudentAnswer,
			question.CorrectAnswer,
			string(question.Verdict),
			formatNumber(question.Closeness),
			formatNumber(question.Score),
		)
	}

	gradedAt := ""
	if row.GradedAt != nil {
		gradedAt = row.GradedAt.UTC().Format(time.RFC3339)
	}
	return append(cells, row.Feedback, gradedAt)
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
