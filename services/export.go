package services

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"elearning-platform/models"

	"github.com/xuri/excelize/v2"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StudentLookup resolves student ids to display names for exports.
type StudentLookup func(studentID string) string

// ExportSubmissionsXLSX renders an exercise's submissions as a workbook with
// a data sheet and a summary sheet.
func ExportSubmissionsXLSX(exercise *models.Exercise, submissions []models.ExerciseSubmission, studentName StudentLookup) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Error closing Excel file", "error", err)
		}
	}()

	sheetName := "Submissions"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	headers := []string{
		"Submission ID", "Student ID", "Student", "Attempt", "Correct",
		"Total", "Score (%)", "Passed", "Time Taken (min)", "Submitted At",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	var scoreSum float64
	var passedCount int
	for rowIdx, sub := range submissions {
		name := ""
		if studentName != nil {
			name = studentName(sub.StudentID)
		}
		row := []any{
			sub.ID.Hex(), sub.StudentID, name, sub.Attempt, sub.CorrectAnswers,
			sub.TotalQuestions, sub.Score, sub.Passed, sub.TimeTakenMinutes,
			sub.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", rowIdx+2, err)
		}
		scoreSum += sub.Score
		if sub.Passed {
			passedCount++
		}
	}

	f.SetColWidth(sheetName, "A", "J", 18)

	summarySheetName := "Summary"
	if _, err := f.NewSheet(summarySheetName); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	average := 0.0
	if len(submissions) > 0 {
		average = scoreSum / float64(len(submissions))
	}
	summary := [][]any{
		{"Exercise", exercise.Title},
		{"Exercise ID", exercise.ID.Hex()},
		{"Passing Score (%)", exercise.PassingScore},
		{"Submissions", len(submissions)},
		{"Passed", passedCount},
		{"Average Score (%)", average},
		{"Generated At", time.Now().UTC().Format(time.RFC3339)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write summary: %w", err)
		}
	}
	f.SetColWidth(summarySheetName, "A", "B", 24)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
