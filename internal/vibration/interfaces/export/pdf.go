package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"vibration-monitor/internal/vibration/application"
	vibration "vibration-monitor/internal/vibration/domain"
)

// AnomalyReportPDF renders a scan report as a table. Codes are used instead
// of display names because the core PDF fonts are Latin-only.
func AnomalyReportPDF(report application.ScanReport, catalog vibration.Catalog) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Vibration Anomaly Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", report.Date))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s .. %s (%d days)", report.From, report.To, report.WindowDays))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Threshold: %.2f%%  Comparison offset: %d", report.Params.ThresholdPct, report.Params.ComparisonOffset))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Anomalies: %d", len(report.Anomalies)))
	pdf.Ln(8)

	widths := []float64{22, 34, 22, 28, 28, 28, 28, 30, 30}
	headers := []string{"Unit", "Equipment", "Param", "Previous", "Current", "Increase %", "Increase", "Prev. date", "Date"}
	pdf.SetFont("Arial", "B", 10)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 6, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, a := range report.Anomalies {
		cells := []string{
			unitCode(catalog, a.Unit),
			equipmentCode(catalog, a.Equipment),
			a.Parameter,
			FormatValue(a.PreviousValue),
			FormatValue(a.CurrentValue),
			fmt.Sprintf("%.2f", a.IncreasePercentage),
			fmt.Sprintf("%.2f", a.IncreaseAmount),
			a.PreviousDate,
			a.Date,
		}
		for i, cell := range cells {
			align := "C"
			if i >= 3 && i <= 6 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unitCode(catalog vibration.Catalog, id vibration.Unit) string {
	if unit, ok := catalog.Unit(id); ok && unit.Code != "" {
		return unit.Code
	}
	return string(id)
}

func equipmentCode(catalog vibration.Catalog, id string) string {
	if equipment, ok := catalog.Equipment(id); ok && equipment.Code != "" {
		return equipment.Code
	}
	return id
}
