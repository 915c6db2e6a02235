// Package analytics emits playback telemetry. Reports are queued and handed
// to sinks by a background worker so reporting never blocks playback logic.
package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/models"
)

// Action names a reported playback action
type Action string

// Reported actions. ActionPlaying is the periodic heartbeat.
const (
	ActionPlay    Action = "play"
	ActionPause   Action = "pause"
	ActionEnded   Action = "ended"
	ActionPlaying Action = "playing"
)

const sinkTimeout = 5 * time.Second

// Event is one analytics report
type Event struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"session_id"`
	Action      Action              `json:"action"`
	Mode        models.PlaybackMode `json:"mode"`
	ContentID   string              `json:"content_id"`
	CurrentTime *float64            `json:"current_time"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Sink receives analytics events
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Reporter fans reports out to sinks from a single worker goroutine.
// A full queue drops the report.
type Reporter struct {
	sessionID string
	sinks     []Sink
	queue     chan Event
	log       zerolog.Logger

	dropped atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewReporter creates a reporter with a queue of queueSize events
func NewReporter(queueSize int, sinks ...Sink) *Reporter {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Reporter{
		sessionID: uuid.NewString(),
		sinks:     sinks,
		queue:     make(chan Event, queueSize),
		log:       logger.Component("analytics"),
		stopChan:  make(chan struct{}),
	}
}

// SessionID identifies this reporter's events
func (r *Reporter) SessionID() string {
	return r.sessionID
}

// Start launches the worker
func (r *Reporter) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run()
	})
}

// Stop delivers queued events and stops the worker. Safe to call twice.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Dropped returns the number of reports discarded because the queue was full
func (r *Reporter) Dropped() uint64 {
	return r.dropped.Load()
}

// Report queues an event. It never blocks.
func (r *Reporter) Report(action Action, mode models.PlaybackMode, contentID string, currentTime *float64) {
	select {
	case <-r.stopChan:
		return
	default:
	}

	ev := Event{
		ID:          uuid.NewString(),
		SessionID:   r.sessionID,
		Action:      action,
		Mode:        mode,
		ContentID:   contentID,
		CurrentTime: currentTime,
		Timestamp:   time.Now().UTC(),
	}

	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
		r.log.Debug().Str("action", string(action)).Str("content_id", contentID).Msg("Analytics queue full, dropping event")
	}
}

func (r *Reporter) run() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.queue:
			r.deliver(ev)
		case <-r.stopChan:
			for {
				select {
				case ev := <-r.queue:
					r.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Reporter) deliver(ev Event) {
	for _, sink := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.Handle(ctx, ev); err != nil {
			r.log.Debug().Err(err).Str("sink", sink.Name()).Str("action", string(ev.Action)).Msg("Analytics sink failed")
		}
		cancel()
	}
}
