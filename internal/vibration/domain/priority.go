package vibration

import (
	"sort"
	"strings"
)

// ParameterMode selects how the parameter order is resolved.
type ParameterMode string

const (
	ParameterModeDefault       ParameterMode = "default"
	ParameterModeVelocityFirst ParameterMode = "velocity-first"
	ParameterModeCustom        ParameterMode = "custom"
)

// Valid returns true when the mode is supported.
func (m ParameterMode) Valid() bool {
	switch m {
	case ParameterModeDefault, ParameterModeVelocityFirst, ParameterModeCustom:
		return true
	default:
		return false
	}
}

// PriorityEntry assigns a rank to a scoped key.
type PriorityEntry struct {
	Key  string `json:"key"`
	Rank int    `json:"rank"`
}

// PriorityOverrides is an ordered override map. Slice order is insertion order
// and breaks ties between equal ranks.
type PriorityOverrides []PriorityEntry

// Set updates the rank of key, appending it when absent.
func (p PriorityOverrides) Set(key string, rank int) PriorityOverrides {
	for i := range p {
		if p[i].Key == key {
			p[i].Rank = rank
			return p
		}
	}
	return append(p, PriorityEntry{Key: key, Rank: rank})
}

// Rank returns the rank of key.
func (p PriorityOverrides) Rank(key string) (int, bool) {
	for _, entry := range p {
		if entry.Key == key {
			return entry.Rank, true
		}
	}
	return 0, false
}

// sorted returns a rank-ascending copy, stable on insertion order.
func (p PriorityOverrides) sorted() PriorityOverrides {
	out := append(PriorityOverrides(nil), p...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// EquipmentPriorityKey builds the unit-scoped override key for equipment.
func EquipmentPriorityKey(equipmentID string, unit Unit) string {
	return equipmentID + "_" + string(unit)
}

// SplitEquipmentPriorityKey separates an override key into equipment and unit.
// Keys without a known unit suffix return an empty unit.
func SplitEquipmentPriorityKey(key string, units []UnitDef) (string, Unit) {
	for _, unit := range units {
		if base, ok := strings.CutSuffix(key, "_"+string(unit.ID)); ok {
			return base, unit.ID
		}
	}
	return key, ""
}

// ScopedEquipment is an equipment entry bound to a unit, as shown in
// cross-unit views such as the slideshow.
type ScopedEquipment struct {
	EquipmentDef
	Unit Unit `json:"unit"`
}

// SnapshotKey is the key of this equipment's readings inside a slideshow snapshot.
func (s ScopedEquipment) SnapshotKey() string {
	return EquipmentPriorityKey(s.ID, s.Unit)
}

// EffectiveEquipmentOrder resolves the entry order of equipment for unit.
// Only overrides scoped to unit are considered; without any, the catalog
// declaration order is returned.
func EffectiveEquipmentOrder(unit Unit, overrides PriorityOverrides, catalog Catalog) []EquipmentDef {
	if len(overrides) == 0 || unit == "" {
		return append([]EquipmentDef(nil), catalog.Equipments...)
	}
	suffix := "_" + string(unit)
	scoped := make(PriorityOverrides, 0, len(overrides))
	for _, entry := range overrides {
		if strings.HasSuffix(entry.Key, suffix) {
			scoped = append(scoped, entry)
		}
	}
	if len(scoped) == 0 {
		return append([]EquipmentDef(nil), catalog.Equipments...)
	}
	result := make([]EquipmentDef, 0, len(scoped))
	for _, entry := range scoped.sorted() {
		if equipment, ok := catalog.Equipment(strings.TrimSuffix(entry.Key, suffix)); ok {
			result = append(result, equipment)
		}
	}
	return result
}

// DisplayEquipmentOrder resolves the cross-unit equipment order. Without
// overrides every catalog equipment is listed for each unit, unit by unit.
func DisplayEquipmentOrder(overrides PriorityOverrides, catalog Catalog) []ScopedEquipment {
	if len(overrides) == 0 {
		result := make([]ScopedEquipment, 0, len(catalog.Units)*len(catalog.Equipments))
		for _, unit := range catalog.Units {
			for _, equipment := range catalog.Equipments {
				result = append(result, ScopedEquipment{EquipmentDef: equipment, Unit: unit.ID})
			}
		}
		return result
	}
	result := make([]ScopedEquipment, 0, len(overrides))
	for _, entry := range overrides.sorted() {
		id, unit := SplitEquipmentPriorityKey(entry.Key, catalog.Units)
		equipment, ok := catalog.Equipment(id)
		if !ok || unit == "" {
			continue
		}
		result = append(result, ScopedEquipment{EquipmentDef: equipment, Unit: unit})
	}
	return result
}

// EffectiveParameterOrder resolves the parameter order for mode.
func EffectiveParameterOrder(mode ParameterMode, overrides PriorityOverrides, catalog Catalog) []ParameterDef {
	switch {
	case mode == ParameterModeVelocityFirst:
		result := make([]ParameterDef, 0, len(catalog.Parameters))
		for _, parameter := range catalog.Parameters {
			if parameter.Type == ParameterTypeVelocity {
				result = append(result, parameter)
			}
		}
		for _, parameter := range catalog.Parameters {
			if parameter.Type == ParameterTypeAcceleration {
				result = append(result, parameter)
			}
		}
		return result
	case mode == ParameterModeCustom && len(overrides) > 0:
		result := make([]ParameterDef, 0, len(overrides))
		for _, entry := range overrides.sorted() {
			if parameter, ok := catalog.Parameter(entry.Key); ok {
				result = append(result, parameter)
			}
		}
		return result
	}
	return parametersByOrder(catalog)
}

func parametersByOrder(catalog Catalog) []ParameterDef {
	result := append([]ParameterDef(nil), catalog.Parameters...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result
}

// DefaultEquipmentPriorities seeds ranks for every equipment of every unit,
// unit by unit in catalog order.
func DefaultEquipmentPriorities(catalog Catalog) PriorityOverrides {
	result := make(PriorityOverrides, 0, len(catalog.Units)*len(catalog.Equipments))
	rank := 1
	for _, unit := range catalog.Units {
		for _, equipment := range catalog.Equipments {
			result = append(result, PriorityEntry{Key: EquipmentPriorityKey(equipment.ID, unit.ID), Rank: rank})
			rank++
		}
	}
	return result
}

// DefaultParameterPriorities seeds ranks from each parameter's Order.
func DefaultParameterPriorities(catalog Catalog) PriorityOverrides {
	result := make(PriorityOverrides, 0, len(catalog.Parameters))
	for _, parameter := range catalog.Parameters {
		result = append(result, PriorityEntry{Key: parameter.ID, Rank: parameter.Order})
	}
	return result
}
