package vibration

import "errors"

var (
	// ErrValidationRejected is returned when a value fails the numeric/type rule.
	ErrValidationRejected = errors.New("vibration: value rejected")
	// ErrNoDataForDate is returned when a slideshow is started for an empty day.
	ErrNoDataForDate = errors.New("vibration: no data for date")
	// ErrStorageFailure wraps failures of the storage collaborator.
	ErrStorageFailure = errors.New("vibration: storage failure")
	// ErrPermissionDenied is returned when the caller's session does not grant the action.
	ErrPermissionDenied = errors.New("vibration: permission denied")
	// ErrUnknownUnit is returned for a unit outside the catalog.
	ErrUnknownUnit = errors.New("vibration: unknown unit")
	// ErrUnknownEquipment is returned for an equipment id outside the catalog.
	ErrUnknownEquipment = errors.New("vibration: unknown equipment")
	// ErrUnknownParameter is returned for a parameter id outside the catalog.
	ErrUnknownParameter = errors.New("vibration: unknown parameter")
	// ErrInvalidDate is returned when a reading date is zero.
	ErrInvalidDate = errors.New("vibration: invalid date")
	// ErrNoSession is returned when an entry operation runs before a unit is selected.
	ErrNoSession = errors.New("vibration: no entry session")
	// ErrDayChanged is returned when the calendar day rolled over during an entry session.
	ErrDayChanged = errors.New("vibration: day changed, session reloaded")
	// ErrReadingNotFound is returned when an edit targets a missing reading.
	ErrReadingNotFound = errors.New("vibration: reading not found")
	// ErrSlideshowNotRunning is returned for player controls while stopped.
	ErrSlideshowNotRunning = errors.New("vibration: slideshow not running")
)
