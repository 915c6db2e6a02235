package element

import (
	"sync"
	"time"

	"github.com/stwalsh4118/marquee/internal/models"
)

// SimulatedConfig configures a Simulated element
type SimulatedConfig struct {
	// Duration of loaded on-demand media in seconds, 0 for unbounded (live)
	Duration float64
	// TickInterval drives playback from the wall clock, 0 disables the ticker
	TickInterval time.Duration
}

type pendingStart struct {
	seconds  float64
	autoplay bool
	snap     bool
}

// Simulated is a headless element that advances a position while playing.
// It backs the daemon's headless players and the orchestrator tests.
type Simulated struct {
	cfg SimulatedConfig

	mu           sync.Mutex
	source       []models.MediaURI
	start        pendingStart
	position     float64
	paused       *bool
	ended        bool
	initialized  bool
	destroyed    bool
	presentation Presentation
	subs         listeners

	stopChan chan struct{}
	done     chan struct{}
}

// NewSimulated creates a simulated element and starts its ticker if configured
func NewSimulated(cfg SimulatedConfig) *Simulated {
	s := &Simulated{
		cfg:      cfg,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if cfg.TickInterval > 0 {
		go s.run()
	} else {
		close(s.done)
	}
	return s
}

// SimulatedFactory returns a Factory producing simulated elements
func SimulatedFactory(cfg SimulatedConfig) Factory {
	return func(string) (Adapter, error) {
		return NewSimulated(cfg), nil
	}
}

func (s *Simulated) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.Advance(now.Sub(last))
			last = now
		}
	}
}

// Advance moves playback forward by d if playing
func (s *Simulated) Advance(d time.Duration) {
	s.mu.Lock()
	if s.destroyed || !s.initialized || s.paused == nil || *s.paused {
		s.mu.Unlock()
		return
	}
	s.position += d.Seconds()
	events := []Event{{Kind: EventTimeUpdate, Time: floatPtr(s.position)}}
	if s.cfg.Duration > 0 && s.position >= s.cfg.Duration {
		s.position = s.cfg.Duration
		s.paused = boolPtr(true)
		s.ended = true
		events = append(events, Event{Kind: EventEnded, Time: floatPtr(s.position)})
	}
	fns := s.subs.snapshot()
	s.mu.Unlock()

	emit(fns, events...)
}

// SetSource loads uris and applies the pending start configuration
func (s *Simulated) SetSource(uris []models.MediaURI) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.source = append([]models.MediaURI(nil), uris...)
	start := s.start
	s.start = pendingStart{}
	s.ended = false

	if len(uris) == 0 {
		s.initialized = false
		s.paused = nil
		s.position = 0
		s.mu.Unlock()
		return
	}

	s.initialized = true
	s.position = start.seconds
	if start.snap {
		s.position = ResolveStartTime(start.seconds, s.cfg.Duration)
	}
	events := []Event{{Kind: EventLoadedMetadata, Time: floatPtr(s.position)}}
	if start.autoplay {
		s.paused = boolPtr(false)
		events = append(events, Event{Kind: EventPlay, Time: floatPtr(s.position)})
	} else {
		s.paused = boolPtr(true)
	}
	fns := s.subs.snapshot()
	s.mu.Unlock()

	emit(fns, events...)
}

// SetStartTime configures the next SetSource
func (s *Simulated) SetStartTime(seconds float64, autoplay bool, snapCorrect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = pendingStart{seconds: seconds, autoplay: autoplay, snap: snapCorrect}
}

// Play resumes playback, restarting from 0 after the end was reached
func (s *Simulated) Play() {
	s.mu.Lock()
	if s.destroyed || !s.initialized || (s.paused != nil && !*s.paused) {
		s.mu.Unlock()
		return
	}
	if s.ended {
		s.position = 0
		s.ended = false
	}
	s.paused = boolPtr(false)
	ev := Event{Kind: EventPlay, Time: floatPtr(s.position)}
	fns := s.subs.snapshot()
	s.mu.Unlock()

	emit(fns, ev)
}

// Pause pauses playback
func (s *Simulated) Pause() {
	s.mu.Lock()
	if s.destroyed || !s.initialized || s.paused == nil || *s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = boolPtr(true)
	ev := Event{Kind: EventPause, Time: floatPtr(s.position)}
	fns := s.subs.snapshot()
	s.mu.Unlock()

	emit(fns, ev)
}

// JumpToTime seeks and optionally starts playback
func (s *Simulated) JumpToTime(seconds float64, startPlaying bool) {
	s.mu.Lock()
	if s.destroyed || !s.initialized {
		s.mu.Unlock()
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if s.cfg.Duration > 0 && seconds > s.cfg.Duration {
		seconds = s.cfg.Duration
	}
	s.position = seconds
	s.ended = false
	ev := Event{Kind: EventTimeUpdate, Time: floatPtr(s.position)}
	fns := s.subs.snapshot()
	s.mu.Unlock()

	emit(fns, ev)
	if startPlaying {
		s.Play()
	}
}

// CurrentTime returns the position, nil while nothing is loaded
func (s *Simulated) CurrentTime() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	return floatPtr(s.position)
}

// Paused returns the paused state, nil while nothing is loaded
func (s *Simulated) Paused() *bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == nil {
		return nil
	}
	return boolPtr(*s.paused)
}

// Ended reports whether playback reached the end, nil while nothing is loaded
func (s *Simulated) Ended() *bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	return boolPtr(s.ended)
}

// Initialized reports whether a source is loaded
func (s *Simulated) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Source returns the loaded URIs
func (s *Simulated) Source() []models.MediaURI {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MediaURI(nil), s.source...)
}

// Present stores the presentation
func (s *Simulated) Present(p Presentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presentation = p
}

// Presentation returns the last presentation
func (s *Simulated) Presentation() Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presentation
}

// Subscribe registers fn for element events
func (s *Simulated) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.subs.add(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs.remove(id)
	}
}

// Destroy stops the ticker and drops all subscribers. Safe to call twice.
func (s *Simulated) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.subs = listeners{}
	s.mu.Unlock()

	close(s.stopChan)
	<-s.done
}
