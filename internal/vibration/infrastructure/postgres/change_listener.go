package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	vibration "vibration-monitor/internal/vibration/domain"
)

const defaultReconnectDelay = 2 * time.Second

// ChangeListener turns readings NOTIFY payloads into change events.
type ChangeListener struct {
	dsn            string
	publish        func(vibration.ChangeEvent)
	logger         *log.Logger
	reconnectDelay time.Duration
}

// ListenerOption configures the listener.
type ListenerOption func(*ChangeListener)

// WithReconnectDelay sets the wait between connection attempts.
func WithReconnectDelay(d time.Duration) ListenerOption {
	return func(l *ChangeListener) {
		if d > 0 {
			l.reconnectDelay = d
		}
	}
}

// NewChangeListener constructs a listener.
func NewChangeListener(dsn string, publish func(vibration.ChangeEvent), logger *log.Logger, opts ...ListenerOption) (*ChangeListener, error) {
	if dsn == "" {
		return nil, errors.New("change listener: empty dsn")
	}
	if publish == nil {
		return nil, errors.New("change listener: nil publisher")
	}
	if logger == nil {
		logger = log.Default()
	}
	l := &ChangeListener{
		dsn:            dsn,
		publish:        publish,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run listens until ctx is cancelled, reconnecting after failures. After a
// reconnect a wide change event is published since notifications may have
// been missed.
func (l *ChangeListener) Run(ctx context.Context) {
	connected := false
	for {
		err := l.listen(ctx, connected)
		if ctx.Err() != nil {
			return
		}
		connected = true
		l.logger.Printf("change listener disconnected: err=%v", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *ChangeListener) listen(ctx context.Context, reconnect bool) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return err
	}
	if reconnect {
		l.publish(vibration.ChangeEvent{Type: vibration.ChangeUpdate})
	}
	l.logger.Printf("change listener ready: channel=%s", ChangeChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.publish(DecodeChange(notification.Payload))
	}
}

// DecodeChange parses a trigger payload. Malformed payloads yield an event
// without unit or date, which invalidates everything.
func DecodeChange(payload string) vibration.ChangeEvent {
	var event vibration.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return vibration.ChangeEvent{Type: vibration.ChangeUpdate}
	}
	switch event.Type {
	case vibration.ChangeInsert, vibration.ChangeUpdate, vibration.ChangeDelete:
	default:
		event.Type = vibration.ChangeUpdate
	}
	return event
}
