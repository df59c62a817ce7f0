package export

import (
	"bytes"
	"time"

	"github.com/xuri/excelize/v2"

	vibration "vibration-monitor/internal/vibration/domain"
)

const readingsSheet = "readings"

// ReadingsXLSX renders the CSV columns as a workbook. Parameter values are
// written as numbers.
func ReadingsXLSX(readings []vibration.Reading, catalog vibration.Catalog, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", readingsSheet); err != nil {
		return nil, err
	}

	for col, header := range Headers(catalog) {
		if err := setCell(f, col, 1, header); err != nil {
			return nil, err
		}
	}
	rows := Rows(readings, catalog, loc)
	for i, row := range rows {
		for col, cell := range row[:len(baseHeaders)] {
			if err := setCell(f, col, i+2, cell); err != nil {
				return nil, err
			}
		}
		for j, parameter := range catalog.Parameters {
			value, ok := readings[i].Parameters[parameter.ID]
			if !ok {
				continue
			}
			if err := setCell(f, len(baseHeaders)+j, i+2, value); err != nil {
				return nil, err
			}
		}
	}
	_ = f.SetPanes(readingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(readingsSheet, cell, value)
}
