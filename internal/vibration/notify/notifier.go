package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"vibration-monitor/internal/vibration/application"
	vibration "vibration-monitor/internal/vibration/domain"
)

const defaultMaxLines = 20

// Clock provides time for dedupe bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// AnomalyNotifier renders scan reports and sends them through a channel.
// Identical content for the same report day is sent once.
type AnomalyNotifier struct {
	channel    Channel
	template   *Template
	clock      Clock
	maxLines   int
	notifyZero bool

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*AnomalyNotifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *AnomalyNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithMaxLines caps the anomalies listed in one message.
func WithMaxLines(max int) Option {
	return func(n *AnomalyNotifier) {
		if max > 0 {
			n.maxLines = max
		}
	}
}

// WithNotifyWhenClean also sends reports that found nothing.
func WithNotifyWhenClean(enabled bool) Option {
	return func(n *AnomalyNotifier) {
		n.notifyZero = enabled
	}
}

// NewAnomalyNotifier constructs a notifier.
func NewAnomalyNotifier(channel Channel, template *Template, opts ...Option) (*AnomalyNotifier, error) {
	if channel == nil {
		return nil, errors.New("anomaly notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &AnomalyNotifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		maxLines: defaultMaxLines,
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyScan implements application.ScanNotifier.
func (n *AnomalyNotifier) NotifyScan(ctx context.Context, report application.ScanReport) error {
	if n == nil {
		return nil
	}
	if len(report.Anomalies) == 0 && !n.notifyZero {
		return nil
	}
	content, err := n.template.Render(buildTemplateData(report, n.maxLines))
	if err != nil {
		return err
	}
	if !n.shouldSend(report.Date, content) {
		return nil
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return err
	}
	n.markSent(report.Date, content)
	return nil
}

func buildTemplateData(report application.ScanReport, maxLines int) TemplateData {
	data := TemplateData{
		Trigger:      report.Trigger,
		TriggerLabel: triggerLabel(report.Trigger),
		Date:         report.Date,
		From:         report.From,
		To:           report.To,
		WindowDays:   report.WindowDays,
		Threshold:    formatFloat(report.Params.ThresholdPct),
		Offset:       report.Params.ComparisonOffset,
		Count:        len(report.Anomalies),
	}
	for i, anomaly := range report.Anomalies {
		if i >= maxLines {
			data.Truncated = len(report.Anomalies) - maxLines
			break
		}
		data.Lines = append(data.Lines, formatAnomaly(anomaly))
	}
	return data
}

func formatAnomaly(a vibration.Anomaly) string {
	return fmt.Sprintf("%s %s %s: %s -> %s (+%s%%, %s -> %s)",
		a.Unit, a.Equipment, a.Parameter,
		formatFloat(a.PreviousValue), formatFloat(a.CurrentValue),
		formatFloat(a.IncreasePercentage), a.PreviousDate, a.Date)
}

func triggerLabel(trigger string) string {
	switch trigger {
	case application.TriggerSchedule:
		return "daily"
	case application.TriggerManual:
		return "manual"
	default:
		return trigger
	}
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func (n *AnomalyNotifier) shouldSend(day, content string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	record, ok := n.sent[day]
	return !ok || record.hash != hashContent(content)
}

// markSent remembers content for day and forgets earlier days.
func (n *AnomalyNotifier) markSent(day, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for key := range n.sent {
		if key != day {
			delete(n.sent, key)
		}
	}
	n.sent[day] = sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
