package storage

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/datalith/dq-check-workflow/report"
)

var checksSheetHeaders = []string{"Check ID", "Category", "Passed", "Severity", "Metric", "Message"}

// ChecksWorkbook renders the check results as a spreadsheet for
// analysts who review reports outside the dashboard.
func ChecksWorkbook(rep *report.QualityReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Checks"
	f.SetSheetName("Sheet1", sheetName)

	for i, h := range checksSheetHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}

	for rowIdx, c := range rep.Checks {
		values := []interface{}{
			c.CheckID,
			string(c.Category),
			c.Passed,
			string(c.Severity),
			c.MetricValue,
			c.Message,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	summaryName := "Summary"
	if _, err := f.NewSheet(summaryName); err != nil {
		return nil, fmt.Errorf("error creating summary sheet: %w", err)
	}
	summaryRows := [][]interface{}{
		{"Database", rep.Database},
		{"Table", rep.Table},
		{"Status", string(rep.Status)},
		{"Quality Score", rep.ExecutionSummary.QualityScore},
		{"Checks Performed", rep.ExecutionSummary.ChecksPerformed},
		{"Checks Passed", rep.ExecutionSummary.ChecksPassed},
		{"Checks Failed", rep.ExecutionSummary.ChecksFailed},
		{"Total Time (s)", rep.ExecutionSummary.TotalTimeSeconds},
	}
	for rowIdx, row := range summaryRows {
		for i, v := range row {
			cell, _ := excelize.CoordinatesToCellName(i+1, rowIdx+1)
			f.SetCellValue(summaryName, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
