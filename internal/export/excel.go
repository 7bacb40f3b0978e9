package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

const (
	summarySheet = "Summary"
	entriesSheet = "Run Log"
)

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// score band fill colours, highest band first
var bands = []struct {
	label string
	min   int
	fill  string
}{
	{"Excellent (90+)", 90, "C6EFCE"},
	{"Good (70-89)", 70, "FFEB9C"},
	{"Fair (50-69)", 50, "FFC7CE"},
	{"Poor (<50)", -1 << 31, "FF9999"},
}

func bandIndex(score int) int {
	for i, b := range bands {
		if score >= b.min {
			return i
		}
	}
	return len(bands) - 1
}

// XLSXSink writes a workbook with a summary sheet and an entries sheet
type XLSXSink struct {
	Path string
}

// Write implements Sink
func (s XLSXSink) Write(_ context.Context, runLog *models.RunLog) error {
	if err := checkRunLog(runLog); err != nil {
		return err
	}
	return ExportToExcel(runLog, s.Path)
}

// ExportToExcel generates an Excel file for one run
func ExportToExcel(runLog *models.RunLog, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	// Ensure output path has .xlsx extension
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	if err := createSummarySheet(f, summarySheet, runLog); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	if err := createEntriesSheet(f, entriesSheet, runLog.Entries); err != nil {
		return fmt.Errorf("failed to create run log sheet: %w", err)
	}

	// Try to save the file directly
	if err := f.SaveAs(outputPath); err != nil {
		// If direct save fails, try buffer write fallback
		var buf bytes.Buffer
		if writeErr := f.Write(&buf); writeErr != nil {
			return fmt.Errorf("failed to save Excel file: direct save failed (%v), buffer write also failed: %w", err, writeErr)
		}

		if fileErr := os.WriteFile(outputPath, buf.Bytes(), 0644); fileErr != nil {
			return fmt.Errorf("failed to save Excel file: direct save failed (%v), file write failed: %w", err, fileErr)
		}
	}

	return nil
}

// createSummarySheet writes run metadata and score statistics
func createSummarySheet(f *excelize.File, sheetName string, runLog *models.RunLog) error {
	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "B", 40)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	labelStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}

	row := 1
	heading := func(title string) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), title)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
		f.MergeCell(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row))
		row++
	}
	pair := func(label string, value any) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), label)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), labelStyle)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), value)
		row++
	}

	heading("Resume Feedback Run")
	row++

	pair("Run ID:", runLog.RunID)
	pair("Started:", formatTime(runLog.StartedAt))
	pair("Finished:", formatTime(runLog.FinishedAt))
	pair("Resumes Processed:", runLog.Len())
	pair("Feedback Delivered:", runLog.DeliveredCount())

	degraded := 0
	for _, e := range runLog.Entries {
		if e.ExtractionDegraded {
			degraded++
		}
	}
	pair("Extraction Degraded:", degraded)
	row++

	if runLog.Len() == 0 {
		return nil
	}

	heading("Statistics:")

	counts := make([]int, len(bands))
	minScore, maxScore, total := runLog.Entries[0].TotalScore, runLog.Entries[0].TotalScore, 0
	for _, e := range runLog.Entries {
		counts[bandIndex(e.TotalScore)]++
		total += e.TotalScore
		minScore = min(minScore, e.TotalScore)
		maxScore = max(maxScore, e.TotalScore)
	}

	for i, b := range bands {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), b.label+":")
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), counts[i])
		row++
	}
	row++

	pair("Average Score:", fmt.Sprintf("%.2f", float64(total)/float64(runLog.Len())))
	pair("Highest Score:", maxScore)
	pair("Lowest Score:", minScore)

	return nil
}

// createEntriesSheet writes one colour-coded row per entry in run order
func createEntriesSheet(f *excelize.File, sheetName string, entries []models.RunLogEntry) error {
	widths := []float64{30, 40, 12, 12, 12, 12, 12, 10, 30, 12}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, w)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	rowStyles := make([]int, len(bands))
	linkStyles := make([]int, len(bands))
	for i, b := range bands {
		fill := excelize.Fill{Type: "pattern", Color: []string{b.fill}, Pattern: 1}
		if rowStyles[i], err = f.NewStyle(&excelize.Style{Fill: fill, Border: thinBorder}); err != nil {
			return err
		}
		if linkStyles[i], err = f.NewStyle(&excelize.Style{
			Font:   &excelize.Font{Color: "0563C1", Underline: "single"},
			Fill:   fill,
			Border: thinBorder,
		}); err != nil {
			return err
		}
	}

	headers := append(append([]string{}, models.Columns...), "delivery_error", "extraction_degraded")
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, e := range entries {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), e.Sender)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), e.DocumentPath)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), e.MatchScore)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), e.YearsExperience)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), e.HasAIExperience)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), e.FormattingOK)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), e.TotalScore)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), e.Delivered)
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), e.DeliveryError)
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), e.ExtractionDegraded)

		band := bandIndex(e.TotalScore)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), rowStyles[band])

		if e.DocumentPath != "" {
			cell := fmt.Sprintf("B%d", row)
			absPath, err := filepath.Abs(e.DocumentPath)
			if err != nil {
				absPath = e.DocumentPath
			}
			// file:// links need forward slashes on Windows too
			fileURL := "file:///" + strings.TrimPrefix(strings.ReplaceAll(absPath, "\\", "/"), "/")
			f.SetCellHyperLink(sheetName, cell, fileURL, "External")
			f.SetCellStyle(sheetName, cell, cell, linkStyles[band])
		}
	}

	if len(entries) > 0 {
		f.AutoFilter(sheetName, fmt.Sprintf("A1:%s%d", lastCol, len(entries)+1), []excelize.AutoFilterOptions{})
	}

	// Freeze top row
	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
