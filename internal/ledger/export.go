package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"tenantgate/pkg/models"
)

var exportHeader = []string{"Date", "Time", "Provider", "Description", "Endpoint", "Quantity", "Unit Cost", "Total Cost", "Tenant"}

func exportRow(e models.CostEntry) []string {
	tenant := "N/A"
	if e.TenantID != nil {
		tenant = *e.TenantID
	}
	return []string{
		e.Timestamp.Format("2006-01-02"),
		e.Timestamp.Format("15:04:05"),
		e.Provider,
		e.Description,
		e.Endpoint,
		strconv.FormatInt(e.Quantity, 10),
		"$" + e.UnitCost.StringFixed(4),
		"$" + e.TotalCost.StringFixed(4),
		tenant,
	}
}

// WriteCSV writes entries as CSV with a header row.
func WriteCSV(w io.Writer, entries []models.CostEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(exportRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSX renders entries as a spreadsheet with a totals row.
func XLSX(entries []models.CostEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "API Costs"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, h := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheet, "A1", "I1", headerStyle); err != nil {
		return nil, err
	}

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.Timestamp.Format("2006-01-02"),
			e.Timestamp.Format("15:04:05"),
			e.Provider,
			e.Description,
			e.Endpoint,
			e.Quantity,
			e.UnitCost.InexactFloat64(),
			e.TotalCost.InexactFloat64(),
			exportRow(e)[8],
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	totalRow := len(entries) + 2
	if err := f.SetCellValue(sheet, fmt.Sprintf("G%d", totalRow), "Total"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("H%d", totalRow), Sum(entries).InexactFloat64()); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
