package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/offlinefirst/sessiontrace/pkg/config"
	"github.com/offlinefirst/sessiontrace/pkg/event"
	"github.com/offlinefirst/sessiontrace/pkg/storage"
)

// Settings are the capture settings frozen at session creation time.
type Settings struct {
	ScreenQuality    string `json:"screen_quality"`
	ScreenFPS        int    `json:"screen_fps"`
	ScreenResolution []int  `json:"screen_resolution,omitempty"`
}

// Metadata is the durable document describing one session.
type Metadata struct {
	SessionID        string            `json:"session_id"`
	SessionName      string            `json:"session_name"`
	RecordersEnabled map[string]bool   `json:"recorders_enabled"`
	Settings         Settings          `json:"settings"`
	AppVersion       string            `json:"app_version,omitempty"`
	StartTime        *time.Time        `json:"start_time,omitempty"`
	EndTime          *time.Time        `json:"end_time,omitempty"`
	DurationSeconds  float64           `json:"duration_seconds,omitempty"`
	EventsDropped    map[string]uint64 `json:"events_dropped,omitempty"`
}

// Options configure a new session.
type Options struct {
	Name       string
	Config     config.Config
	Store      *storage.Store
	AppVersion string
	Clock      func() time.Time
}

// Session is one bounded recording run: a generated identity, an on-disk
// directory, and an append-only event log. Lifecycle is created, then
// active, then stopped; once stopped the session is immutable except for
// deletion through the store.
type Session struct {
	id      string
	name    string
	layout  storage.Layout
	cfg     config.Config
	clock   func() time.Time
	version string

	mu        sync.Mutex
	active    bool
	log       *storage.LogWriter
	startTime time.Time
	endTime   time.Time
	meta      Metadata
}

// New creates the session identity and its storage directory.
func New(opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, errors.New("store must be provided")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	id := uuid.NewString()
	name := opts.Name
	if name == "" {
		name = "session_" + clock().Format("20060102_150405")
	}

	layout, err := opts.Store.Create(id)
	if err != nil {
		return nil, err
	}

	var resolution []int
	if opts.Config.Screen.Width > 0 && opts.Config.Screen.Height > 0 {
		resolution = []int{opts.Config.Screen.Width, opts.Config.Screen.Height}
	}

	return &Session{
		id:      id,
		name:    name,
		layout:  layout,
		cfg:     opts.Config,
		clock:   clock,
		version: opts.AppVersion,
		meta: Metadata{
			SessionID:   id,
			SessionName: name,
			RecordersEnabled: map[string]bool{
				"keyboard": opts.Config.Recorders.Keyboard,
				"mouse":    opts.Config.Recorders.Mouse,
				"screen":   opts.Config.Recorders.Screen,
				"audio":    opts.Config.Recorders.Audio,
			},
			Settings: Settings{
				ScreenQuality:    opts.Config.Screen.Quality,
				ScreenFPS:        opts.Config.Screen.FPS,
				ScreenResolution: resolution,
			},
			AppVersion: opts.AppVersion,
		},
	}, nil
}

// ID reports the generated session identifier.
func (s *Session) ID() string { return s.id }

// Name reports the human-readable session name.
func (s *Session) Name() string { return s.name }

// Layout reports the session's storage locations.
func (s *Session) Layout() storage.Layout { return s.layout }

// Active reports whether the session is accepting events.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start opens the event log and writes the initial metadata document.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}

	log, err := storage.NewLogWriter(storage.LogOptions{
		Path:          s.layout.EventLogPath,
		FlushCount:    s.cfg.Log.FlushCount,
		FlushInterval: time.Duration(s.cfg.Log.FlushIntervalSeconds) * time.Second,
		Clock:         s.clock,
	})
	if err != nil {
		return err
	}

	s.log = log
	s.startTime = s.clock()
	s.active = true
	start := s.startTime
	s.meta.StartTime = &start

	if err := storage.WriteMetadata(s.layout.MetadataPath, s.meta); err != nil {
		return err
	}
	return nil
}

// Record appends one event to the session log. Events arriving after Stop
// are rejected so a slow-to-stop recorder cannot write into a later
// session's log.
func (s *Session) Record(ev event.Event) error {
	s.mu.Lock()
	if !s.active || s.log == nil {
		s.mu.Unlock()
		return storage.ErrLogClosed
	}
	log := s.log
	s.mu.Unlock()
	return log.Append(ev)
}

// Stop deactivates the session, closes the log with a final flush, and
// writes the final metadata document. Per-modality drop counters from the
// bounded input queues land in the metadata here.
func (s *Session) Stop(dropped map[string]uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.active = false
	s.endTime = s.clock()

	end := s.endTime
	s.meta.EndTime = &end
	s.meta.DurationSeconds = s.endTime.Sub(s.startTime).Seconds()
	if len(dropped) > 0 {
		s.meta.EventsDropped = dropped
	}

	var errs []error
	if err := s.log.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event log: %w", err))
	}
	if err := storage.WriteMetadata(s.layout.MetadataPath, s.meta); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Duration reports elapsed recording time: final once stopped, running
// while active.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	if !s.endTime.IsZero() {
		return s.endTime.Sub(s.startTime)
	}
	return s.clock().Sub(s.startTime)
}
