package export

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	vibration "vibration-monitor/internal/vibration/domain"
)

const (
	utf8BOM     = "\ufeff"
	unknownUser = "نامشخص"
)

var baseHeaders = []string{"واحد", "تجهیز", "تاریخ", "زمان", "کاربر", "یادداشت"}

// Headers returns the export columns: the fixed reading columns followed by
// parameter names in catalog order.
func Headers(catalog vibration.Catalog) []string {
	headers := append([]string(nil), baseHeaders...)
	for _, parameter := range catalog.Parameters {
		headers = append(headers, parameter.Name)
	}
	return headers
}

// Rows renders one row per reading, aligned with Headers. Missing parameter
// values are empty cells.
func Rows(readings []vibration.Reading, catalog vibration.Catalog, loc *time.Location) [][]string {
	if loc == nil {
		loc = time.Local
	}
	rows := make([][]string, 0, len(readings))
	for _, reading := range readings {
		row := []string{
			string(reading.Unit),
			equipmentName(catalog, reading.Equipment),
			reading.DateString(),
			recordedTime(reading, loc),
			recordedBy(reading),
			reading.Notes,
		}
		for _, parameter := range catalog.Parameters {
			value, ok := reading.Parameters[parameter.ID]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, FormatValue(value))
		}
		rows = append(rows, row)
	}
	return rows
}

// ToCSV renders readings as UTF-8 CSV with a byte order mark, one record per
// line. Cells holding a delimiter, quote or line break are quoted.
func ToCSV(readings []vibration.Reading, catalog vibration.Catalog, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(utf8BOM)
	w := csv.NewWriter(&b)
	// strings.Builder never fails a write.
	_ = w.Write(Headers(catalog))
	_ = w.WriteAll(Rows(readings, catalog, loc))
	return b.String()
}

// FormatValue prints v at its stored precision.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func equipmentName(catalog vibration.Catalog, id string) string {
	if equipment, ok := catalog.Equipment(id); ok && equipment.Name != "" {
		return equipment.Name
	}
	return id
}

func recordedTime(reading vibration.Reading, loc *time.Location) string {
	if reading.CreatedAt.IsZero() {
		return ""
	}
	return reading.CreatedAt.In(loc).Format("15:04:05")
}

func recordedBy(reading vibration.Reading) string {
	switch {
	case reading.RecordedByName != "":
		return reading.RecordedByName
	case reading.RecordedBy != "":
		return reading.RecordedBy
	default:
		return unknownUser
	}
}
