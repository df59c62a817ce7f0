package vibration

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// DateLayout is the wire and storage format of a reading day.
const DateLayout = "2006-01-02"

// Reading is one day's set of parameter values for a (unit, equipment) pair.
type Reading struct {
	ID             string             `json:"id"`
	Unit           Unit               `json:"unit"`
	Equipment      string             `json:"equipment"`
	Date           time.Time          `json:"-"`
	Parameters     map[string]float64 `json:"parameters"`
	Notes          string             `json:"notes,omitempty"`
	RecordedBy     string             `json:"recorded_by,omitempty"`
	RecordedByName string             `json:"recorded_by_name,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

type readingAlias Reading

type readingJSON struct {
	readingAlias
	Date string `json:"date"`
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{readingAlias: readingAlias(r), Date: FormatDate(r.Date)})
}

// UnmarshalJSON accepts Date as YYYY-MM-DD.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw readingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Reading(raw.readingAlias)
	if raw.Date != "" {
		date, err := ParseDate(raw.Date)
		if err != nil {
			return err
		}
		r.Date = date
	}
	return nil
}

// Key returns the uniqueness key of the reading.
func (r Reading) Key() ReadingKey {
	return ReadingKey{Unit: r.Unit, Equipment: r.Equipment, Date: Day(r.Date)}
}

// DateString formats the reading day.
func (r Reading) DateString() string {
	return FormatDate(r.Date)
}

// Validate checks reading invariants that do not need the catalog.
func (r Reading) Validate() error {
	if r.Unit == "" {
		return ErrUnknownUnit
	}
	if r.Equipment == "" {
		return ErrUnknownEquipment
	}
	if r.Date.IsZero() {
		return ErrInvalidDate
	}
	for id, value := range r.Parameters {
		if id == "" {
			return ErrUnknownParameter
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return errors.New("vibration: non-finite parameter value")
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate parameters safely.
func (r Reading) Clone() Reading {
	out := r
	out.Parameters = make(map[string]float64, len(r.Parameters))
	for id, value := range r.Parameters {
		out.Parameters[id] = value
	}
	return out
}

// ReadingKey identifies a reading: at most one per (unit, equipment, day).
type ReadingKey struct {
	Unit      Unit
	Equipment string
	Date      time.Time
}

// Day truncates t to its calendar day, expressed as UTC midnight.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return Day(now)
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t.UTC(), nil
}

// FormatDate renders a day as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// SortNewestFirst orders readings by date then created_at, both descending.
func SortNewestFirst(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		if !readings[i].Date.Equal(readings[j].Date) {
			return readings[i].Date.After(readings[j].Date)
		}
		return readings[i].CreatedAt.After(readings[j].CreatedAt)
	})
}

// ReadingFilter selects readings from storage. Zero fields do not filter.
type ReadingFilter struct {
	Unit      Unit
	Equipment string
	Date      time.Time
	DateFrom  time.Time
	DateTo    time.Time
	Limit     int
}

// Matches reports whether a reading satisfies the filter (limit excluded).
func (f ReadingFilter) Matches(r Reading) bool {
	if f.Unit != "" && r.Unit != f.Unit {
		return false
	}
	if f.Equipment != "" && r.Equipment != f.Equipment {
		return false
	}
	return f.coversDate(Day(r.Date))
}

// Covers reports whether a change to (unit, equipment, date) could alter the
// result of this filter. Empty equipment on the change side matches any.
func (f ReadingFilter) Covers(unit Unit, equipment string, date time.Time) bool {
	if f.Unit != "" && unit != "" && f.Unit != unit {
		return false
	}
	if f.Equipment != "" && equipment != "" && f.Equipment != equipment {
		return false
	}
	if date.IsZero() {
		return true
	}
	return f.coversDate(Day(date))
}

func (f ReadingFilter) coversDate(day time.Time) bool {
	if !f.Date.IsZero() && !Day(f.Date).Equal(day) {
		return false
	}
	if !f.DateFrom.IsZero() && day.Before(Day(f.DateFrom)) {
		return false
	}
	if !f.DateTo.IsZero() && day.After(Day(f.DateTo)) {
		return false
	}
	return true
}

// Key renders the filter as a canonical string, usable as a cache key.
func (f ReadingFilter) Key() string {
	values := url.Values{}
	values.Set("unit", string(f.Unit))
	values.Set("equipment", f.Equipment)
	values.Set("date", FormatDate(f.Date))
	values.Set("from", FormatDate(f.DateFrom))
	values.Set("to", FormatDate(f.DateTo))
	values.Set("limit", strconv.Itoa(f.Limit))
	return "readings?" + values.Encode()
}

// ParseFilterKey reverses Key. The second result is false for foreign keys.
func ParseFilterKey(key string) (ReadingFilter, bool) {
	const prefix = "readings?"
	if len(key) < len(prefix) || key[:len(prefix)] != prefix {
		return ReadingFilter{}, false
	}
	values, err := url.ParseQuery(key[len(prefix):])
	if err != nil {
		return ReadingFilter{}, false
	}
	var f ReadingFilter
	f.Unit = Unit(values.Get("unit"))
	f.Equipment = values.Get("equipment")
	for name, dst := range map[string]*time.Time{"date": &f.Date, "from": &f.DateFrom, "to": &f.DateTo} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		parsed, err := ParseDate(raw)
		if err != nil {
			return ReadingFilter{}, false
		}
		*dst = parsed
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return ReadingFilter{}, false
		}
		f.Limit = limit
	}
	return f, true
}

// ReadingRepository is the storage collaborator consumed by the core.
type ReadingRepository interface {
	// List returns matching readings, newest date first, newest created_at first.
	List(ctx context.Context, filter ReadingFilter) ([]Reading, error)
	// Upsert stores the reading keyed by (unit, equipment, date), replacing any
	// earlier one. It assigns ID and CreatedAt on the passed reading.
	Upsert(ctx context.Context, reading *Reading) error
}

// ChangeType is the kind of a backing-store change.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent describes a backing-store change. Unit, Equipment and Date may be
// empty when the store cannot tell which rows changed.
type ChangeEvent struct {
	Type      ChangeType `json:"type"`
	Unit      Unit       `json:"unit,omitempty"`
	Equipment string     `json:"equipment,omitempty"`
	Date      string     `json:"date,omitempty"`
}

// Day parses the event date; zero when absent or malformed.
func (e ChangeEvent) Day() time.Time {
	if e.Date == "" {
		return time.Time{}
	}
	day, err := ParseDate(e.Date)
	if err != nil {
		return time.Time{}
	}
	return day
}

// ChangeSource delivers change notifications.
type ChangeSource interface {
	Subscribe(handler func(ChangeEvent)) (unsubscribe func())
}
