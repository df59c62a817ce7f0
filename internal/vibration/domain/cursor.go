package vibration

import (
	"math"
	"time"
)

// EntryState is the state of a data-entry session.
type EntryState int

const (
	EntryIdle EntryState = iota
	EntryUnitSelected
	EntryEntering
	EntryComplete
)

// String returns the state label.
func (s EntryState) String() string {
	switch s {
	case EntryIdle:
		return "idle"
	case EntryUnitSelected:
		return "unit_selected"
	case EntryEntering:
		return "entering"
	case EntryComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Slot is the (equipment, parameter) position being filled.
type Slot struct {
	EquipmentIndex int          `json:"equipment_index"`
	ParameterIndex int          `json:"parameter_index"`
	Equipment      EquipmentDef `json:"equipment"`
	Parameter      ParameterDef `json:"parameter"`
}

// DayData holds a unit's values for one day: equipment id → parameter id → value.
type DayData map[string]map[string]float64

// DayDataFromReadings groups readings by equipment.
func DayDataFromReadings(readings []Reading) DayData {
	data := make(DayData, len(readings))
	for _, reading := range readings {
		values := make(map[string]float64, len(reading.Parameters))
		for id, value := range reading.Parameters {
			values[id] = value
		}
		data[reading.Equipment] = values
	}
	return data
}

// EntryCursor walks an operator through the day's entry slots. It is not safe
// for concurrent use.
type EntryCursor struct {
	state          EntryState
	unit           Unit
	day            time.Time
	equipment      []EquipmentDef
	parameters     []ParameterDef
	data           DayData
	notes          map[string]string
	equipmentIndex int
	parameterIndex int
}

// NewEntryCursor returns an idle cursor.
func NewEntryCursor() *EntryCursor {
	return &EntryCursor{state: EntryIdle}
}

// State returns the current state.
func (c *EntryCursor) State() EntryState { return c.state }

// Unit returns the selected unit.
func (c *EntryCursor) Unit() Unit { return c.unit }

// Day returns the session day.
func (c *EntryCursor) Day() time.Time { return c.day }

// Position returns the raw cursor indexes.
func (c *EntryCursor) Position() (equipmentIndex, parameterIndex int) {
	return c.equipmentIndex, c.parameterIndex
}

// SelectUnit discards any session state and binds the cursor to unit and day.
func (c *EntryCursor) SelectUnit(unit Unit, day time.Time) {
	*c = EntryCursor{
		state: EntryUnitSelected,
		unit:  unit,
		day:   Day(day),
		data:  DayData{},
		notes: map[string]string{},
	}
}

// Reset returns the cursor to idle.
func (c *EntryCursor) Reset() {
	*c = EntryCursor{state: EntryIdle}
}

// Load installs the day's stored readings and the effective orders, then
// moves to the first incomplete slot.
func (c *EntryCursor) Load(readings []Reading, equipment []EquipmentDef, parameters []ParameterDef) {
	if c.state == EntryIdle {
		return
	}
	c.equipment = equipment
	c.parameters = parameters
	c.data = DayDataFromReadings(readings)
	c.notes = make(map[string]string, len(readings))
	for _, reading := range readings {
		if reading.Notes != "" {
			c.notes[reading.Equipment] = reading.Notes
		}
	}
	c.Resume()
}

// Resume positions the cursor at the first incomplete slot. When every slot
// holds a value the cursor rewinds to (0,0) for overwriting and the state is
// Complete.
func (c *EntryCursor) Resume() {
	if c.state == EntryIdle {
		return
	}
	for i, equipment := range c.equipment {
		values, ok := c.data[equipment.ID]
		if !ok {
			c.moveTo(i, 0, EntryEntering)
			return
		}
		filled := 0
		for _, parameter := range c.parameters {
			if hasValue(values, parameter.ID) {
				filled++
			}
		}
		if filled < len(c.parameters) {
			c.moveTo(i, filled, EntryEntering)
			return
		}
	}
	c.moveTo(0, 0, EntryComplete)
}

// Current returns the slot under the cursor.
func (c *EntryCursor) Current() (Slot, bool) {
	if c.state != EntryEntering && c.state != EntryComplete {
		return Slot{}, false
	}
	if c.equipmentIndex >= len(c.equipment) || c.parameterIndex >= len(c.parameters) {
		return Slot{}, false
	}
	return Slot{
		EquipmentIndex: c.equipmentIndex,
		ParameterIndex: c.parameterIndex,
		Equipment:      c.equipment[c.equipmentIndex],
		Parameter:      c.parameters[c.parameterIndex],
	}, true
}

// FinishesEquipment reports whether accepting a value at the current slot
// completes its equipment.
func (c *EntryCursor) FinishesEquipment() bool {
	_, ok := c.Current()
	return ok && c.parameterIndex == len(c.parameters)-1
}

// ValuesWith returns a copy of the current equipment's values with value
// placed at the current slot. The cursor is not changed.
func (c *EntryCursor) ValuesWith(value float64) map[string]float64 {
	slot, ok := c.Current()
	if !ok {
		return nil
	}
	values := c.Values(slot.Equipment.ID)
	values[slot.Parameter.ID] = value
	return values
}

// Accept stores value at the current slot and advances. It returns the slot
// that was filled.
func (c *EntryCursor) Accept(value float64) (Slot, bool) {
	slot, ok := c.Current()
	if !ok {
		return Slot{}, false
	}
	values := c.data[slot.Equipment.ID]
	if values == nil {
		values = make(map[string]float64, len(c.parameters))
		c.data[slot.Equipment.ID] = values
	}
	values[slot.Parameter.ID] = value
	c.advance()
	return slot, true
}

func (c *EntryCursor) advance() {
	c.parameterIndex++
	if c.parameterIndex < len(c.parameters) {
		c.state = EntryEntering
		return
	}
	c.parameterIndex = 0
	c.equipmentIndex++
	if c.equipmentIndex < len(c.equipment) {
		c.state = EntryEntering
		return
	}
	c.moveTo(0, 0, EntryComplete)
}

// Back retreats one slot: to the previous parameter, or to the last parameter
// of the previous equipment. It is a no-op at the first slot.
func (c *EntryCursor) Back() {
	if _, ok := c.Current(); !ok {
		return
	}
	switch {
	case c.parameterIndex > 0:
		c.parameterIndex--
	case c.equipmentIndex > 0:
		c.equipmentIndex--
		c.parameterIndex = len(c.parameters) - 1
	default:
		return
	}
	c.state = EntryEntering
}

// SetNote attaches a free-text note to the current equipment.
func (c *EntryCursor) SetNote(note string) bool {
	slot, ok := c.Current()
	if !ok {
		return false
	}
	if note == "" {
		delete(c.notes, slot.Equipment.ID)
		return true
	}
	c.notes[slot.Equipment.ID] = note
	return true
}

// Note returns the note held for equipmentID.
func (c *EntryCursor) Note(equipmentID string) string {
	return c.notes[equipmentID]
}

// Values returns a copy of the values held for equipmentID.
func (c *EntryCursor) Values(equipmentID string) map[string]float64 {
	src := c.data[equipmentID]
	out := make(map[string]float64, len(src)+1)
	for id, value := range src {
		out[id] = value
	}
	return out
}

// Data returns a copy of the whole day map.
func (c *EntryCursor) Data() DayData {
	out := make(DayData, len(c.data))
	for id := range c.data {
		out[id] = c.Values(id)
	}
	return out
}

// Progress returns the number of filled slots and the total.
func (c *EntryCursor) Progress() (filled, total int) {
	total = len(c.equipment) * len(c.parameters)
	for _, equipment := range c.equipment {
		values := c.data[equipment.ID]
		for _, parameter := range c.parameters {
			if hasValue(values, parameter.ID) {
				filled++
			}
		}
	}
	return filled, total
}

func (c *EntryCursor) moveTo(equipmentIndex, parameterIndex int, state EntryState) {
	c.equipmentIndex = equipmentIndex
	c.parameterIndex = parameterIndex
	c.state = state
}

func hasValue(values map[string]float64, parameterID string) bool {
	value, ok := values[parameterID]
	return ok && !math.IsNaN(value)
}
