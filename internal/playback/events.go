package playback

import "sync"

// EventKind names an orchestrator event
type EventKind string

// Events produced by an orchestrator
const (
	EventLoaded                      EventKind = "loaded"
	EventPlay                        EventKind = "play"
	EventPause                       EventKind = "pause"
	EventEnded                       EventKind = "ended"
	EventPlayerTypeChanged           EventKind = "playerTypeChanged"
	EventStreamStateChanged          EventKind = "streamStateChanged"
	EventNumLikesChanged             EventKind = "numLikesChanged"
	EventNumDislikesChanged          EventKind = "numDislikesChanged"
	EventLikeTypeChanged             EventKind = "likeTypeChanged"
	EventViewCountChanged            EventKind = "viewCountChanged"
	EventStreamViewCountChanged      EventKind = "streamViewCountChanged"
	EventVodViewCountChanged         EventKind = "vodViewCountChanged"
	EventNumWatchingNowChanged       EventKind = "numWatchingNowChanged"
	EventScheduledPublishTimeChanged EventKind = "scheduledPublishTimeChanged"
	EventOverrideModeChanged         EventKind = "overrideModeChanged"
	EventEmbedDataAvailable          EventKind = "embedDataAvailable"
)

// Event is delivered to subscribers
type Event struct {
	Kind      EventKind
	ContentID string
}

type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(Event)
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Event))
	}
	s.nextID++
	id := s.nextID
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

func (s *subscribers) snapshot() []func(Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(Event), 0, len(s.fns))
	for _, fn := range s.fns {
		out = append(out, fn)
	}
	return out
}

func (s *subscribers) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = nil
}
