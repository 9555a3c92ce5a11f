// Package xlsx exports a run summary as a spreadsheet for review.
package xlsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

const (
	sheetPairs    = "Pairs"
	sheetOverview = "Overview"
)

// Build returns the workbook bytes: one row per pair plus an overview sheet.
func Build(summary domain.RunSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetPairs); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetOverview); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	headers := []any{"Document", "Case", "Status", "Truncated", "Error kind", "Detail"}
	if err := f.SetSheetRow(sheetPairs, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write headers: %w", err)
	}

	row := 2
	write := func(values []any) error {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		row++
		return f.SetSheetRow(sheetPairs, cell, &values)
	}
	for _, o := range summary.Outputs {
		if err := write([]any{o.DocumentID, o.CaseName, "ok", o.Truncated, "", strings.Join(o.Paths, "\n")}); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	for _, fl := range summary.Failures {
		if err := write([]any{fl.DocumentID, fl.CaseName, "failed", fl.Truncated, fl.Kind, fl.Reason}); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}

	_ = f.SetColWidth(sheetPairs, "A", "B", 28)
	_ = f.SetColWidth(sheetPairs, "C", "E", 14)
	_ = f.SetColWidth(sheetPairs, "F", "F", 80)
	_ = f.AutoFilter(sheetPairs, fmt.Sprintf("A1:F%d", max(row-1, 1)), nil)

	overview := [][]any{
		{"Model", summary.Model},
		{"Documents", summary.Documents},
		{"Cases", summary.Cases},
		{"Pairs", summary.Pairs},
		{"Succeeded", summary.Succeeded},
		{"Failed", summary.Failed},
		{"Skipped", summary.Skipped},
		{"Truncated", summary.Truncated},
		{"Duration (s)", summary.Duration.Seconds()},
	}
	for i, values := range overview {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetOverview, cell, &values); err != nil {
			return nil, fmt.Errorf("write overview: %w", err)
		}
	}
	_ = f.SetColWidth(sheetOverview, "A", "A", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func WriteFile(path string, summary domain.RunSummary) error {
	data, err := Build(summary)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "summary workbook", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.WrapError(domain.ErrIO, "summary workbook", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.WrapError(domain.ErrIO, "summary workbook", err)
	}
	return nil
}
