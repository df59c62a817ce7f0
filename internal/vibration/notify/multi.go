package notify

import (
	"context"
	"errors"

	"vibration-monitor/internal/vibration/application"
)

// MultiNotifier dispatches scan reports to multiple notifiers.
type MultiNotifier struct {
	notifiers []application.ScanNotifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...application.ScanNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// NotifyScan forwards report to all notifiers and joins their errors.
func (m *MultiNotifier) NotifyScan(ctx context.Context, report application.ScanReport) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.NotifyScan(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
