package settings

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	vibration "vibration-monitor/internal/vibration/domain"
)

const (
	defaultThreshold      = 20
	defaultTimeRangeDays  = 7
	defaultComparisonDays = 1
	defaultSlideshowSpeed = 3000
	minimumSlideshowSpeed = 250
	defaultTheme          = "light"
	defaultPrimaryColor   = "#2563eb"
)

// ErrInvalidSettings marks settings that cannot be applied.
var ErrInvalidSettings = errors.New("settings: invalid")

// Settings are the operator preferences shared by entry, display and analysis.
type Settings struct {
	Theme        string            `yaml:"theme" json:"theme"`
	PrimaryColor string            `yaml:"primary_color" json:"primary_color"`
	UnitColors   map[string]string `yaml:"unit_colors" json:"unit_colors"`
	Display      Priorities        `yaml:"display" json:"display"`
	Entry        Priorities        `yaml:"entry" json:"entry"`
	Analysis     Analysis          `yaml:"analysis" json:"analysis"`
	Slideshow    Slideshow         `yaml:"slideshow" json:"slideshow"`
}

// Priorities holds one ordering configuration.
type Priorities struct {
	Equipment     RankMap                 `yaml:"equipment" json:"equipment"`
	Parameters    RankMap                 `yaml:"parameters" json:"parameters"`
	ParameterMode vibration.ParameterMode `yaml:"parameter_mode" json:"parameter_mode"`
}

// Analysis holds the anomaly detector defaults.
type Analysis struct {
	ThresholdPct   float64 `yaml:"threshold_pct" json:"threshold_pct"`
	TimeRangeDays  int     `yaml:"time_range_days" json:"time_range_days"`
	ComparisonDays int     `yaml:"comparison_days" json:"comparison_days"`
}

// Slideshow holds playback preferences.
type Slideshow struct {
	SpeedMS int `yaml:"speed_ms" json:"speed_ms"`
}

// Interval returns the tick interval.
func (s Slideshow) Interval() time.Duration {
	return time.Duration(s.SpeedMS) * time.Millisecond
}

// Defaults returns the stock settings with seeded priorities.
func Defaults(catalog vibration.Catalog) Settings {
	colors := make(map[string]string, len(catalog.Units))
	for _, unit := range catalog.Units {
		colors[string(unit.ID)] = unit.Color
	}
	s := Settings{
		Theme:        defaultTheme,
		PrimaryColor: defaultPrimaryColor,
		UnitColors:   colors,
		Display:      Priorities{ParameterMode: vibration.ParameterModeDefault},
		Entry:        Priorities{ParameterMode: vibration.ParameterModeDefault},
		Analysis: Analysis{
			ThresholdPct:   defaultThreshold,
			TimeRangeDays:  defaultTimeRangeDays,
			ComparisonDays: defaultComparisonDays,
		},
		Slideshow: Slideshow{SpeedMS: defaultSlideshowSpeed},
	}
	s.SeedPriorities(catalog)
	return s
}

// SeedPriorities fills empty display equipment, display parameter and entry
// parameter ranks. Entry equipment stays empty so entry follows catalog order.
func (s *Settings) SeedPriorities(catalog vibration.Catalog) {
	if len(s.Display.Equipment) == 0 {
		s.Display.Equipment = RankMap(vibration.DefaultEquipmentPriorities(catalog))
	}
	if len(s.Display.Parameters) == 0 {
		s.Display.Parameters = RankMap(vibration.DefaultParameterPriorities(catalog))
	}
	if len(s.Entry.Parameters) == 0 {
		s.Entry.Parameters = RankMap(vibration.DefaultParameterPriorities(catalog))
	}
}

// Normalize replaces missing or out-of-range values with defaults.
func (s *Settings) Normalize(catalog vibration.Catalog) {
	if s.Theme == "" {
		s.Theme = defaultTheme
	}
	if s.PrimaryColor == "" {
		s.PrimaryColor = defaultPrimaryColor
	}
	if s.UnitColors == nil {
		s.UnitColors = make(map[string]string, len(catalog.Units))
	}
	for _, unit := range catalog.Units {
		if s.UnitColors[string(unit.ID)] == "" {
			s.UnitColors[string(unit.ID)] = unit.Color
		}
	}
	if !s.Display.ParameterMode.Valid() {
		s.Display.ParameterMode = vibration.ParameterModeDefault
	}
	if !s.Entry.ParameterMode.Valid() {
		s.Entry.ParameterMode = vibration.ParameterModeDefault
	}
	if s.Analysis.ThresholdPct <= 0 {
		s.Analysis.ThresholdPct = defaultThreshold
	}
	if s.Analysis.TimeRangeDays <= 0 {
		s.Analysis.TimeRangeDays = defaultTimeRangeDays
	}
	if s.Analysis.ComparisonDays <= 0 {
		s.Analysis.ComparisonDays = defaultComparisonDays
	}
	if s.Slideshow.SpeedMS <= 0 {
		s.Slideshow.SpeedMS = defaultSlideshowSpeed
	}
	if s.Slideshow.SpeedMS < minimumSlideshowSpeed {
		s.Slideshow.SpeedMS = minimumSlideshowSpeed
	}
	s.SeedPriorities(catalog)
}

// Validate rejects settings an operator submitted with impossible values.
func (s Settings) Validate() error {
	for _, mode := range []vibration.ParameterMode{s.Display.ParameterMode, s.Entry.ParameterMode} {
		if mode != "" && !mode.Valid() {
			return fmt.Errorf("%w: parameter mode %q", ErrInvalidSettings, mode)
		}
	}
	if s.Analysis.ThresholdPct < 0 || s.Analysis.TimeRangeDays < 0 || s.Analysis.ComparisonDays < 0 {
		return fmt.Errorf("%w: negative analysis value", ErrInvalidSettings)
	}
	if s.Slideshow.SpeedMS < 0 {
		return fmt.Errorf("%w: negative slideshow speed", ErrInvalidSettings)
	}
	return nil
}

// EntryEquipmentOrder resolves the data-entry equipment order for unit.
func (s Settings) EntryEquipmentOrder(unit vibration.Unit, catalog vibration.Catalog) []vibration.EquipmentDef {
	return vibration.EffectiveEquipmentOrder(unit, vibration.PriorityOverrides(s.Entry.Equipment), catalog)
}

// EntryParameterOrder resolves the data-entry parameter order.
func (s Settings) EntryParameterOrder(catalog vibration.Catalog) []vibration.ParameterDef {
	return vibration.EffectiveParameterOrder(s.Entry.ParameterMode, vibration.PriorityOverrides(s.Entry.Parameters), catalog)
}

// DisplayEquipmentOrder resolves the unit-annotated display order.
func (s Settings) DisplayEquipmentOrder(catalog vibration.Catalog) []vibration.ScopedEquipment {
	return vibration.DisplayEquipmentOrder(vibration.PriorityOverrides(s.Display.Equipment), catalog)
}

// DisplayParameterOrder resolves the display parameter order.
func (s Settings) DisplayParameterOrder(catalog vibration.Catalog) []vibration.ParameterDef {
	return vibration.EffectiveParameterOrder(s.Display.ParameterMode, vibration.PriorityOverrides(s.Display.Parameters), catalog)
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.UnitColors = make(map[string]string, len(s.UnitColors))
	for k, v := range s.UnitColors {
		out.UnitColors[k] = v
	}
	out.Display = s.Display.clone()
	out.Entry = s.Entry.clone()
	return out
}

func (p Priorities) clone() Priorities {
	p.Equipment = append(RankMap(nil), p.Equipment...)
	p.Parameters = append(RankMap(nil), p.Parameters...)
	return p
}

// RankMap is an override map that keeps its key order through YAML, where
// it is written as a plain mapping of key to rank.
type RankMap vibration.PriorityOverrides

// UnmarshalYAML reads a mapping node in document order.
func (m *RankMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*m = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: priorities must be a mapping (line %d)", ErrInvalidSettings, node.Line)
	}
	out := make(RankMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var (
			key  string
			rank int
		)
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&rank); err != nil {
			return fmt.Errorf("%w: rank for %q: %v", ErrInvalidSettings, key, err)
		}
		out = RankMap(vibration.PriorityOverrides(out).Set(key, rank))
	}
	*m = out
	return nil
}

// MarshalYAML writes the entries as an ordered mapping.
func (m RankMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, entry := range m {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: entry.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(entry.Rank)},
		)
	}
	return node, nil
}
