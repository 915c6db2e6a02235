// Package element wraps a concrete media engine behind a uniform
// play/pause/seek/source contract with an event stream.
package element

import (
	"time"

	"github.com/stwalsh4118/marquee/internal/models"
)

// EventKind names an event emitted by a media element
type EventKind string

// Element events
const (
	EventPlay           EventKind = "play"
	EventPause          EventKind = "pause"
	EventTimeUpdate     EventKind = "timeUpdate"
	EventEnded          EventKind = "ended"
	EventLoadedMetadata EventKind = "loadedMetadata"
)

// Event is emitted by an element to its subscribers
type Event struct {
	Kind EventKind
	// Time is the playback position when the event fired, nil if unknown
	Time *float64
}

// Presentation is everything around the media that an element may render
type Presentation struct {
	Mode                models.PlaybackMode     `json:"mode"`
	Title               string                  `json:"title,omitempty"`
	TitleURI            string                  `json:"title_uri,omitempty"`
	CoverURI            string                  `json:"cover_uri,omitempty"`
	CustomMessage       *string                 `json:"custom_message,omitempty"`
	ShowStreamOver      bool                    `json:"show_stream_over"`
	VodAvailableShortly bool                    `json:"vod_available_shortly"`
	ScheduledStart      *time.Time              `json:"scheduled_start,omitempty"`
	IsStream            bool                    `json:"is_stream"`
	ExternalStreamURL   *string                 `json:"external_stream_url,omitempty"`
	Chapters            []models.Chapter        `json:"chapters,omitempty"`
	Thumbnails          []models.ScrubThumbnail `json:"thumbnails,omitempty"`
}

// Adapter is the media engine contract the orchestrator drives.
// SetStartTime configures how the next SetSource begins playback.
type Adapter interface {
	SetSource(uris []models.MediaURI)
	SetStartTime(seconds float64, autoplay bool, snapCorrect bool)
	Play()
	Pause()
	JumpToTime(seconds float64, startPlaying bool)
	// CurrentTime returns nil while nothing is loaded
	CurrentTime() *float64
	// Paused returns nil when the state is unknown
	Paused() *bool
	Ended() *bool
	Initialized() bool
	Present(p Presentation)
	Subscribe(fn func(Event)) func()
	Destroy()
}

// Factory creates a new element for a content item
type Factory func(contentID string) (Adapter, error)

// listeners is a small registry shared by the element implementations
type listeners struct {
	next int
	fns  map[int]func(Event)
}

func (l *listeners) add(fn func(Event)) int {
	if l.fns == nil {
		l.fns = make(map[int]func(Event))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return id
}

func (l *listeners) remove(id int) {
	delete(l.fns, id)
}

func (l *listeners) snapshot() []func(Event) {
	out := make([]func(Event), 0, len(l.fns))
	for _, fn := range l.fns {
		out = append(out, fn)
	}
	return out
}

func emit(fns []func(Event), events ...Event) {
	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }
