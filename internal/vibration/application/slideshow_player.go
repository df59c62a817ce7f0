package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"vibration-monitor/internal/observability/metrics"
	vibration "vibration-monitor/internal/vibration/domain"
)

// PlayerStatus is the externally visible player state.
type PlayerStatus struct {
	Running    bool                    `json:"running"`
	Paused     bool                    `json:"paused"`
	Date       string                  `json:"date,omitempty"`
	Position   vibration.SlidePosition `json:"position"`
	IntervalMS int64                   `json:"interval_ms"`
	Frame      *vibration.Frame        `json:"frame,omitempty"`
}

// Player plays one day's readings as a timed slideshow. Once started it
// only reads its frozen snapshot.
type Player struct {
	repo     vibration.ReadingRepository
	catalog  vibration.Catalog
	settings SettingsSource
	onFrame  func(vibration.Frame)

	mu       sync.Mutex
	running  bool
	paused   bool
	snapshot vibration.Snapshot
	pos      vibration.SlidePosition
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	reset    chan time.Duration
}

// PlayerOption configures the player.
type PlayerOption func(*Player)

// WithFrameListener is called after every tick with the new frame.
func WithFrameListener(fn func(vibration.Frame)) PlayerOption {
	return func(p *Player) {
		p.onFrame = fn
	}
}

// NewPlayer constructs a stopped player.
func NewPlayer(repo vibration.ReadingRepository, catalog vibration.Catalog, settings SettingsSource, opts ...PlayerOption) (*Player, error) {
	if repo == nil {
		return nil, errors.New("slideshow player: nil repository")
	}
	if settings == nil {
		return nil, errors.New("slideshow player: nil settings")
	}
	p := &Player{repo: repo, catalog: catalog, settings: settings}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start loads date's readings and begins playback at (0,0). When the date has
// no readings it returns ErrNoDataForDate and leaves the player as it was.
func (p *Player) Start(ctx context.Context, date time.Time) error {
	readings, err := p.repo.List(ctx, vibration.ReadingFilter{Date: date})
	if err != nil {
		return err
	}
	snapshot, err := vibration.NewSnapshot(date, readings)
	if err != nil {
		return err
	}

	p.mu.Lock()
	oldStop, oldDone := p.stop, p.done
	interval := p.interval
	if interval <= 0 {
		interval = p.settings.Get().Slideshow.Interval()
	}
	p.running = true
	p.paused = false
	p.snapshot = snapshot
	p.pos = vibration.SlidePosition{}
	p.interval = interval
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.reset = make(chan time.Duration, 1)
	go p.run(interval, p.stop, p.done, p.reset)
	p.mu.Unlock()

	halt(oldStop, oldDone)
	return nil
}

// Pause stops cursor movement without discarding anything.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return vibration.ErrSlideshowNotRunning
	}
	p.paused = true
	return nil
}

// Resume continues after Pause.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return vibration.ErrSlideshowNotRunning
	}
	p.paused = false
	return nil
}

// Stop releases the ticker and resets the playback state. A configured
// interval is kept for the next Start.
func (p *Player) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.running = false
	p.paused = false
	p.snapshot = vibration.Snapshot{}
	p.pos = vibration.SlidePosition{}
	p.stop, p.done, p.reset = nil, nil, nil
	p.mu.Unlock()
	halt(stop, done)
}

// SetInterval changes the tick interval, taking effect immediately.
func (p *Player) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New("slideshow player: interval must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
	if p.running {
		select {
		case <-p.reset:
		default:
		}
		p.reset <- d
	}
	return nil
}

// Step advances one slot by hand, also while paused.
func (p *Player) Step() (vibration.Frame, error) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return vibration.Frame{}, vibration.ErrSlideshowNotRunning
	}
	frame := p.advanceLocked()
	p.mu.Unlock()
	p.emit(frame)
	return frame, nil
}

// Frame returns the frame under the cursor.
func (p *Player) Frame() (vibration.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return vibration.Frame{}, vibration.ErrSlideshowNotRunning
	}
	frame, _ := p.frameLocked()
	return frame, nil
}

// Status returns the player state and, when running, the current frame.
func (p *Player) Status() PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := PlayerStatus{
		Running:    p.running,
		Paused:     p.paused,
		Position:   p.pos,
		IntervalMS: p.interval.Milliseconds(),
	}
	if p.running {
		status.Date = vibration.FormatDate(p.snapshot.Date())
		if frame, ok := p.frameLocked(); ok {
			status.Frame = &frame
		}
	}
	return status
}

func (p *Player) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}, reset <-chan time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case d := <-reset:
			ticker.Reset(d)
		case <-ticker.C:
			p.tick(stop)
		}
	}
}

func (p *Player) tick(owner <-chan struct{}) {
	p.mu.Lock()
	if !p.running || p.paused || p.stop != owner {
		p.mu.Unlock()
		return
	}
	frame := p.advanceLocked()
	p.mu.Unlock()
	metrics.IncSlideshowTick()
	p.emit(frame)
}

// advanceLocked moves the cursor using the orders in effect right now.
func (p *Player) advanceLocked() vibration.Frame {
	equipment, parameters := p.orders()
	p.pos = p.pos.Next(len(equipment), len(parameters))
	frame, _ := p.snapshot.Frame(p.pos, equipment, parameters)
	return frame
}

func (p *Player) frameLocked() (vibration.Frame, bool) {
	equipment, parameters := p.orders()
	return p.snapshot.Frame(p.pos.Clamp(len(equipment), len(parameters)), equipment, parameters)
}

func (p *Player) orders() ([]vibration.ScopedEquipment, []vibration.ParameterDef) {
	current := p.settings.Get()
	return current.DisplayEquipmentOrder(p.catalog), current.DisplayParameterOrder(p.catalog)
}

func (p *Player) emit(frame vibration.Frame) {
	if p.onFrame != nil {
		p.onFrame(frame)
	}
}

func halt(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
