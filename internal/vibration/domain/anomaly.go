package vibration

import (
	"math"
	"sort"
	"time"
)

// Anomaly is a flagged increase between two readings of the same parameter.
type Anomaly struct {
	Unit               Unit    `json:"unit"`
	Equipment          string  `json:"equipment"`
	Parameter          string  `json:"parameter"`
	ParameterName      string  `json:"parameter_name"`
	CurrentValue       float64 `json:"current_value"`
	PreviousValue      float64 `json:"previous_value"`
	IncreasePercentage float64 `json:"increase_percentage"`
	IncreaseAmount     float64 `json:"increase_amount"`
	Date               string  `json:"date"`
	PreviousDate       string  `json:"previous_date"`
}

// AnomalyParams configures detection.
type AnomalyParams struct {
	// ThresholdPct flags increases at or above this percentage.
	ThresholdPct float64 `json:"threshold_pct"`
	// ComparisonOffset compares each reading with the one this many positions
	// earlier in its date-sorted group. Gaps in recording are not skipped.
	ComparisonOffset int `json:"comparison_offset"`
}

type anomalyGroup struct {
	unit      Unit
	equipment string
}

// FindAnomalies scores readings per (unit, equipment) group and returns the
// flagged increases, highest percentage first.
func FindAnomalies(readings []Reading, catalog Catalog, params AnomalyParams) []Anomaly {
	offset := params.ComparisonOffset
	if offset < 1 {
		offset = 1
	}

	groups := make(map[anomalyGroup][]Reading)
	for _, reading := range readings {
		key := anomalyGroup{unit: reading.Unit, equipment: reading.Equipment}
		groups[key] = append(groups[key], reading)
	}
	keys := make([]anomalyGroup, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].unit != keys[j].unit {
			return keys[i].unit < keys[j].unit
		}
		return keys[i].equipment < keys[j].equipment
	})

	var anomalies []Anomaly
	for _, key := range keys {
		records := groups[key]
		if len(records) < 2 {
			continue
		}
		sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
		for i := offset; i < len(records); i++ {
			current := records[i]
			previous := records[i-offset]
			for _, parameter := range catalog.Parameters {
				anomaly, ok := scorePair(current, previous, parameter, params.ThresholdPct)
				if ok {
					anomalies = append(anomalies, anomaly)
				}
			}
		}
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].IncreasePercentage > anomalies[j].IncreasePercentage
	})
	return anomalies
}

func scorePair(current, previous Reading, parameter ParameterDef, threshold float64) (Anomaly, bool) {
	currentValue, ok := current.Parameters[parameter.ID]
	if !ok || math.IsNaN(currentValue) {
		return Anomaly{}, false
	}
	previousValue, ok := previous.Parameters[parameter.ID]
	if !ok || math.IsNaN(previousValue) || previousValue <= 0 {
		return Anomaly{}, false
	}
	increase := (currentValue - previousValue) / previousValue * 100
	if increase < threshold {
		return Anomaly{}, false
	}
	return Anomaly{
		Unit:               current.Unit,
		Equipment:          current.Equipment,
		Parameter:          parameter.ID,
		ParameterName:      parameter.Name,
		CurrentValue:       currentValue,
		PreviousValue:      previousValue,
		IncreasePercentage: round2(increase),
		IncreaseAmount:     round2(currentValue - previousValue),
		Date:               FormatDate(current.Date),
		PreviousDate:       FormatDate(previous.Date),
	}, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AnalysisWindow returns the inclusive day range [today-windowDays, today].
func AnalysisWindow(today time.Time, windowDays int) (from, to time.Time) {
	to = Day(today)
	return to.AddDate(0, 0, -windowDays), to
}
