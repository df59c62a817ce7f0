package vibration

import "time"

// Snapshot is a frozen copy of one day's readings across all units, keyed by
// equipment_unit.
type Snapshot struct {
	date   time.Time
	values map[string]map[string]float64
}

// NewSnapshot freezes readings for date. It fails with ErrNoDataForDate when
// readings is empty.
func NewSnapshot(date time.Time, readings []Reading) (Snapshot, error) {
	if len(readings) == 0 {
		return Snapshot{}, ErrNoDataForDate
	}
	values := make(map[string]map[string]float64, len(readings))
	for _, reading := range readings {
		params := make(map[string]float64, len(reading.Parameters))
		for id, value := range reading.Parameters {
			params[id] = value
		}
		values[EquipmentPriorityKey(reading.Equipment, reading.Unit)] = params
	}
	return Snapshot{date: Day(date), values: values}, nil
}

// Date returns the snapshot day.
func (s Snapshot) Date() time.Time { return s.date }

// Len returns the number of (equipment, unit) entries.
func (s Snapshot) Len() int { return len(s.values) }

// Value returns the frozen value for key and parameter.
func (s Snapshot) Value(key, parameterID string) (float64, bool) {
	params, ok := s.values[key]
	if !ok {
		return 0, false
	}
	value, ok := params[parameterID]
	return value, ok
}

// SlidePosition indexes the equipment × parameter product.
type SlidePosition struct {
	EquipmentIndex int `json:"equipment_index"`
	ParameterIndex int `json:"parameter_index"`
}

// Next moves to the following parameter, wrapping to the next equipment and
// from the last equipment back to the first.
func (p SlidePosition) Next(equipmentCount, parameterCount int) SlidePosition {
	if equipmentCount <= 0 || parameterCount <= 0 {
		return SlidePosition{}
	}
	p = p.Clamp(equipmentCount, parameterCount)
	p.ParameterIndex++
	if p.ParameterIndex < parameterCount {
		return p
	}
	p.ParameterIndex = 0
	p.EquipmentIndex++
	if p.EquipmentIndex >= equipmentCount {
		p.EquipmentIndex = 0
	}
	return p
}

// Clamp keeps the position inside the product when the orders shrink.
func (p SlidePosition) Clamp(equipmentCount, parameterCount int) SlidePosition {
	if p.EquipmentIndex >= equipmentCount || p.EquipmentIndex < 0 {
		p.EquipmentIndex = 0
	}
	if p.ParameterIndex >= parameterCount || p.ParameterIndex < 0 {
		p.ParameterIndex = 0
	}
	return p
}

// Frame is what the slideshow shows at a position.
type Frame struct {
	Date      string        `json:"date"`
	Position  SlidePosition `json:"position"`
	Unit      Unit          `json:"unit"`
	Equipment EquipmentDef  `json:"equipment"`
	Parameter ParameterDef  `json:"parameter"`
	Value     float64       `json:"value"`
	HasValue  bool          `json:"has_value"`
}

// Frame renders the snapshot at pos under the given orders.
func (s Snapshot) Frame(pos SlidePosition, equipment []ScopedEquipment, parameters []ParameterDef) (Frame, bool) {
	if len(equipment) == 0 || len(parameters) == 0 {
		return Frame{}, false
	}
	pos = pos.Clamp(len(equipment), len(parameters))
	scoped := equipment[pos.EquipmentIndex]
	parameter := parameters[pos.ParameterIndex]
	value, ok := s.Value(scoped.SnapshotKey(), parameter.ID)
	return Frame{
		Date:      FormatDate(s.date),
		Position:  pos,
		Unit:      scoped.Unit,
		Equipment: scoped.EquipmentDef,
		Parameter: parameter,
		Value:     value,
		HasValue:  ok,
	}, true
}
