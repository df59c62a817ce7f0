package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vibration "vibration-monitor/internal/vibration/domain"
)

// EntryView is the externally visible state of one entry session.
type EntryView struct {
	State  string             `json:"state"`
	Unit   vibration.Unit     `json:"unit,omitempty"`
	Date   string             `json:"date,omitempty"`
	Slot   *vibration.Slot    `json:"slot,omitempty"`
	Filled int                `json:"filled"`
	Total  int                `json:"total"`
	Note   string             `json:"note,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
}

// SubmitResult reports what a Submit did.
type SubmitResult struct {
	Filled vibration.Slot     `json:"filled"`
	Value  float64            `json:"value"`
	Saved  *vibration.Reading `json:"saved,omitempty"`
	View   EntryView          `json:"view"`
}

type entrySession struct {
	mu     sync.Mutex
	cursor *vibration.EntryCursor
}

// EntryService runs data-entry sessions, one per actor.
type EntryService struct {
	readings *ReadingService
	repo     vibration.ReadingRepository
	catalog  vibration.Catalog
	settings SettingsSource
	clock    Clock
	loc      *time.Location

	mu       sync.Mutex
	sessions map[string]*entrySession
}

// EntryOption configures the service.
type EntryOption func(*EntryService)

// WithEntryClock overrides the clock.
func WithEntryClock(clock Clock) EntryOption {
	return func(s *EntryService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithEntryLocation sets the zone that decides the current day.
func WithEntryLocation(loc *time.Location) EntryOption {
	return func(s *EntryService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewEntryService constructs an entry service. Day data is read through repo,
// which should be the caching repository, and written through readings.
func NewEntryService(readings *ReadingService, repo vibration.ReadingRepository, catalog vibration.Catalog, settings SettingsSource, opts ...EntryOption) (*EntryService, error) {
	if readings == nil {
		return nil, errors.New("entry service: nil reading service")
	}
	if repo == nil {
		return nil, errors.New("entry service: nil repository")
	}
	if settings == nil {
		return nil, errors.New("entry service: nil settings")
	}
	s := &EntryService{
		readings: readings,
		repo:     repo,
		catalog:  catalog,
		settings: settings,
		clock:    systemClock{},
		loc:      time.Local,
		sessions: make(map[string]*entrySession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SelectUnit starts a fresh session for actor on unit and today's date,
// positioned at the first incomplete slot.
func (s *EntryService) SelectUnit(ctx context.Context, actor Actor, unit vibration.Unit) (EntryView, error) {
	if !s.catalog.HasUnit(unit) {
		return EntryView{}, vibration.ErrUnknownUnit
	}
	sess := s.session(actor, true)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.load(ctx, sess.cursor, unit); err != nil {
		return EntryView{}, err
	}
	return view(sess.cursor), nil
}

// Current returns the session view.
func (s *EntryService) Current(actor Actor) (EntryView, error) {
	sess := s.session(actor, false)
	if sess == nil {
		return EntryView{State: vibration.EntryIdle.String()}, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return view(sess.cursor), nil
}

// Submit validates raw for the current slot, stores it and advances. When the
// value completes an equipment its reading is persisted first; on failure the
// cursor does not move.
func (s *EntryService) Submit(ctx context.Context, actor Actor, raw string) (SubmitResult, error) {
	sess, err := s.active(actor)
	if err != nil {
		return SubmitResult{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	cursor := sess.cursor

	if rolled, err := s.rollover(ctx, cursor); err != nil || rolled {
		if err == nil {
			err = vibration.ErrDayChanged
		}
		return SubmitResult{View: view(cursor)}, err
	}

	slot, ok := cursor.Current()
	if !ok {
		return SubmitResult{View: view(cursor)}, vibration.ErrNoSession
	}
	value, err := s.catalog.ValidateValue(raw, slot.Parameter.ID)
	if err != nil {
		s.readings.countRejection(slot.Parameter.ID)
		return SubmitResult{View: view(cursor)}, err
	}

	result := SubmitResult{Filled: slot, Value: value}
	if cursor.FinishesEquipment() {
		saved, err := s.save(ctx, actor, cursor, slot.Equipment.ID, cursor.ValuesWith(value))
		if err != nil {
			return SubmitResult{View: view(cursor)}, err
		}
		result.Saved = &saved
	}
	cursor.Accept(value)
	result.View = view(cursor)
	return result, nil
}

// Back retreats one slot.
func (s *EntryService) Back(actor Actor) (EntryView, error) {
	sess, err := s.active(actor)
	if err != nil {
		return EntryView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.cursor.Back()
	return view(sess.cursor), nil
}

// SetNote sets the note for the current equipment.
func (s *EntryService) SetNote(actor Actor, note string) (EntryView, error) {
	sess, err := s.active(actor)
	if err != nil {
		return EntryView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.cursor.SetNote(note) {
		return view(sess.cursor), vibration.ErrNoSession
	}
	return view(sess.cursor), nil
}

// SaveCurrent persists the current equipment with whatever values it holds.
func (s *EntryService) SaveCurrent(ctx context.Context, actor Actor) (vibration.Reading, error) {
	sess, err := s.active(actor)
	if err != nil {
		return vibration.Reading{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	cursor := sess.cursor

	if rolled, err := s.rollover(ctx, cursor); err != nil || rolled {
		if err == nil {
			err = vibration.ErrDayChanged
		}
		return vibration.Reading{}, err
	}
	slot, ok := cursor.Current()
	if !ok {
		return vibration.Reading{}, vibration.ErrNoSession
	}
	values := cursor.Values(slot.Equipment.ID)
	if len(values) == 0 && cursor.Note(slot.Equipment.ID) == "" {
		return vibration.Reading{}, fmt.Errorf("%w: nothing entered for %s", vibration.ErrValidationRejected, slot.Equipment.ID)
	}
	return s.save(ctx, actor, cursor, slot.Equipment.ID, values)
}

// EditValue replaces one stored value and refreshes the actor's session when
// it shows the same unit and day.
func (s *EntryService) EditValue(ctx context.Context, actor Actor, unit vibration.Unit, equipmentID string, date time.Time, parameterID, raw string) (vibration.Reading, error) {
	saved, err := s.readings.EditValue(ctx, actor, unit, equipmentID, date, parameterID, raw)
	if err != nil {
		return vibration.Reading{}, err
	}
	if sess := s.session(actor, false); sess != nil {
		sess.mu.Lock()
		cursor := sess.cursor
		if cursor.State() != vibration.EntryIdle && cursor.Unit() == unit && cursor.Day().Equal(saved.Date) {
			if err := s.load(ctx, cursor, unit); err != nil {
				sess.mu.Unlock()
				return saved, err
			}
		}
		sess.mu.Unlock()
	}
	return saved, nil
}

// Close ends the actor's session.
func (s *EntryService) Close(actor Actor) {
	s.mu.Lock()
	delete(s.sessions, actor.ID)
	s.mu.Unlock()
}

func (s *EntryService) session(actor Actor, create bool) *entrySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[actor.ID]
	if !ok && create {
		sess = &entrySession{cursor: vibration.NewEntryCursor()}
		s.sessions[actor.ID] = sess
	}
	return sess
}

func (s *EntryService) active(actor Actor) (*entrySession, error) {
	sess := s.session(actor, false)
	if sess == nil {
		return nil, vibration.ErrNoSession
	}
	return sess, nil
}

func (s *EntryService) today() time.Time {
	return vibration.Today(s.clock.Now(), s.loc)
}

// load reads today's readings for unit and rebuilds the cursor. The cursor is
// left untouched when the read fails.
func (s *EntryService) load(ctx context.Context, cursor *vibration.EntryCursor, unit vibration.Unit) error {
	day := s.today()
	readings, err := s.repo.List(ctx, vibration.ReadingFilter{Unit: unit, Date: day})
	if err != nil {
		return err
	}
	current := s.settings.Get()
	cursor.SelectUnit(unit, day)
	cursor.Load(readings, current.EntryEquipmentOrder(unit, s.catalog), current.EntryParameterOrder(s.catalog))
	return nil
}

// rollover reloads the session when the calendar day has moved on.
func (s *EntryService) rollover(ctx context.Context, cursor *vibration.EntryCursor) (bool, error) {
	if cursor.State() == vibration.EntryIdle {
		return false, vibration.ErrNoSession
	}
	if cursor.Day().Equal(s.today()) {
		return false, nil
	}
	if err := s.load(ctx, cursor, cursor.Unit()); err != nil {
		return false, err
	}
	return true, nil
}

func (s *EntryService) save(ctx context.Context, actor Actor, cursor *vibration.EntryCursor, equipmentID string, values map[string]float64) (vibration.Reading, error) {
	reading := vibration.Reading{
		Unit:       cursor.Unit(),
		Equipment:  equipmentID,
		Date:       cursor.Day(),
		Parameters: values,
		Notes:      cursor.Note(equipmentID),
	}
	return s.readings.persist(ctx, actor, reading, SourceEntry)
}

func view(cursor *vibration.EntryCursor) EntryView {
	v := EntryView{State: cursor.State().String()}
	if cursor.State() == vibration.EntryIdle {
		return v
	}
	v.Unit = cursor.Unit()
	v.Date = vibration.FormatDate(cursor.Day())
	v.Filled, v.Total = cursor.Progress()
	if slot, ok := cursor.Current(); ok {
		v.Slot = &slot
		v.Note = cursor.Note(slot.Equipment.ID)
		v.Values = cursor.Values(slot.Equipment.ID)
	}
	return v
}
