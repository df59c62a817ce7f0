package vibration

import (
	"encoding/json"
	"time"
)

// UnitStatistics summarises what is stored for one unit.
type UnitStatistics struct {
	Unit           Unit      `json:"unit"`
	TotalRecords   int       `json:"total_records"`
	TotalDays      int       `json:"total_days"`
	EquipmentCount int       `json:"equipment_count"`
	LastUpdate     time.Time `json:"last_update"`
	// DataSize is the JSON-encoded size of the unit's readings in bytes.
	DataSize int `json:"data_size"`
}

// ComputeUnitStatistics aggregates readings that all belong to unit.
func ComputeUnitStatistics(unit Unit, readings []Reading) UnitStatistics {
	stats := UnitStatistics{Unit: unit, TotalRecords: len(readings)}
	days := make(map[time.Time]struct{})
	equipment := make(map[string]struct{})
	for _, r := range readings {
		days[Day(r.Date)] = struct{}{}
		equipment[r.Equipment] = struct{}{}
		if r.CreatedAt.After(stats.LastUpdate) {
			stats.LastUpdate = r.CreatedAt
		}
	}
	stats.TotalDays = len(days)
	stats.EquipmentCount = len(equipment)
	if len(readings) > 0 {
		if data, err := json.Marshal(readings); err == nil {
			stats.DataSize = len(data)
		}
	}
	return stats
}
