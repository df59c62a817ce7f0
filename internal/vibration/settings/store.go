package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	vibration "vibration-monitor/internal/vibration/domain"
)

// Store keeps the current settings in memory, backed by an optional YAML file.
type Store struct {
	mu       sync.RWMutex
	path     string
	catalog  vibration.Catalog
	current  Settings
	onChange []func(Settings)
}

// NewStore constructs a store. An empty path keeps settings in memory only.
func NewStore(path string, catalog vibration.Catalog) *Store {
	return &Store{path: path, catalog: catalog, current: Defaults(catalog)}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// OnChange registers fn to run after every successful Load, Save or Reset.
func (s *Store) OnChange(fn func(Settings)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Load reads the file, overlaying it on defaults. A missing file yields the
// defaults and is not an error.
func (s *Store) Load() (Settings, error) {
	loaded := Defaults(s.catalog)
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return s.Get(), err
		default:
			var fromFile Settings
			if err := yaml.Unmarshal(data, &fromFile); err != nil {
				return s.Get(), fmt.Errorf("%w: %v", ErrInvalidSettings, err)
			}
			loaded = overlay(loaded, fromFile)
		}
	}
	loaded.Normalize(s.catalog)
	s.replace(loaded)
	return loaded.Clone(), nil
}

// Save validates, normalizes and persists next.
func (s *Store) Save(next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return s.Get(), err
	}
	next = next.Clone()
	next.Normalize(s.catalog)
	if err := s.write(next); err != nil {
		return s.Get(), err
	}
	s.replace(next)
	return next.Clone(), nil
}

// Reset restores and persists the defaults.
func (s *Store) Reset() (Settings, error) {
	defaults := Defaults(s.catalog)
	if err := s.write(defaults); err != nil {
		return s.Get(), err
	}
	s.replace(defaults)
	return defaults.Clone(), nil
}

func (s *Store) replace(next Settings) {
	s.mu.Lock()
	s.current = next
	handlers := append(([]func(Settings))(nil), s.onChange...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(next.Clone())
	}
}

func (s *Store) write(next Settings) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(next)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yaml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// overlay copies fields set in the file over base, as a partial document
// only names what it changes.
func overlay(base, file Settings) Settings {
	if file.Theme != "" {
		base.Theme = file.Theme
	}
	if file.PrimaryColor != "" {
		base.PrimaryColor = file.PrimaryColor
	}
	for unit, color := range file.UnitColors {
		base.UnitColors[unit] = color
	}
	base.Display = overlayPriorities(base.Display, file.Display)
	base.Entry = overlayPriorities(base.Entry, file.Entry)
	if file.Analysis.ThresholdPct != 0 {
		base.Analysis.ThresholdPct = file.Analysis.ThresholdPct
	}
	if file.Analysis.TimeRangeDays != 0 {
		base.Analysis.TimeRangeDays = file.Analysis.TimeRangeDays
	}
	if file.Analysis.ComparisonDays != 0 {
		base.Analysis.ComparisonDays = file.Analysis.ComparisonDays
	}
	if file.Slideshow.SpeedMS != 0 {
		base.Slideshow.SpeedMS = file.Slideshow.SpeedMS
	}
	return base
}

func overlayPriorities(base, file Priorities) Priorities {
	if len(file.Equipment) > 0 {
		base.Equipment = file.Equipment
	}
	if len(file.Parameters) > 0 {
		base.Parameters = file.Parameters
	}
	if file.ParameterMode != "" {
		base.ParameterMode = file.ParameterMode
	}
	return base
}
