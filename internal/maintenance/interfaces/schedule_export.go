package interfaces

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	maintenance "machinery-cloud/internal/maintenance/domain"
)

// BuildSchedulePDF renders the maintenance schedule as a PDF report.
func BuildSchedulePDF(entries []maintenance.Entry, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Maintenance Schedule")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Entries: %d", len(entries)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 6, "Machine", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Scheduled", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Priority", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Components", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, entry := range entries {
		pdf.CellFormat(35, 6, entry.MachineID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(entry.Type), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, entry.ScheduledAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, string(entry.Priority), "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, string(entry.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, strings.Join(entry.Components, ", "), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildScheduleXLSX renders the maintenance schedule as a spreadsheet.
func BuildScheduleXLSX(entries []maintenance.Entry, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Schedule"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Machine", "Type", "Scheduled", "Duration (min)", "Priority", "Status", "Components"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
	}

	for row, entry := range entries {
		values := []any{
			entry.MachineID,
			string(entry.Type),
			entry.ScheduledAt.Format("2006-01-02 15:04"),
			int(entry.Duration.Minutes()),
			string(entry.Priority),
			string(entry.Status),
			strings.Join(entry.Components, ", "),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	footer, err := excelize.CoordinatesToCellName(1, len(entries)+3)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheet, footer, "Generated "+generatedAt.Format(time.RFC3339)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
