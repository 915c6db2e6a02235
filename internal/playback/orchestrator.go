// Package playback reconciles the media state reported by the site with a
// single media element. An Orchestrator polls (or is notified of) state
// changes for one content item, decides between ad, live and on-demand
// playback and drives the element, quality selection, resume positions,
// analytics and watching registration.
//
// All orchestrator logic runs on one task loop goroutine. Timers, fetch
// completions, element events, notifications and quality changes post tasks
// to that loop; accessors read the committed state under a mutex.
package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stwalsh4118/marquee/internal/analytics"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/device"
	"github.com/stwalsh4118/marquee/internal/element"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/models"
	"github.com/stwalsh4118/marquee/internal/notify"
	"github.com/stwalsh4118/marquee/internal/quality"
	"github.com/stwalsh4118/marquee/internal/resume"
)

var (
	// ErrLikesDisabled is returned by like operations when no like endpoint is configured
	ErrLikesDisabled = errors.New("likes are disabled")
	// ErrInvalidLikeType is returned for like requests other than like, dislike or reset
	ErrInvalidLikeType = errors.New("like type must be like, dislike or reset")
	// ErrMissingDependency is returned by New when a required dependency is nil
	ErrMissingDependency = errors.New("missing orchestrator dependency")
)

const (
	defaultPollInterval          = 15 * time.Second
	defaultConnectedPollInterval = 25 * time.Second
	defaultHeartbeatInterval     = 10 * time.Second
	defaultWatchingInterval      = 10 * time.Second
	defaultRememberInterval      = 5 * time.Second
	defaultFetchTimeout          = 30 * time.Second
)

// Config holds the per player settings
type Config struct {
	ContentID               string
	AutoPlayVod             bool
	AutoPlayStream          bool
	SmartAutoPlay           bool
	IgnoreExternalStreamURL bool
	InitialVodQualityID     *int64
	InitialStreamQualityID  *int64
	// VodStartTime is where on-demand playback starts on first load, nil to decide automatically
	VodStartTime *float64

	PollInterval          time.Duration
	ConnectedPollInterval time.Duration
	HeartbeatInterval     time.Duration
	WatchingInterval      time.Duration
	RememberInterval      time.Duration
	FetchTimeout          time.Duration
}

// ConfigFromSettings builds a Config for contentID from the player settings.
// Quality ids of 0 mean no initial quality.
func ConfigFromSettings(contentID string, p *config.PlayerConfig) Config {
	cfg := Config{
		ContentID:               contentID,
		AutoPlayVod:             p.AutoPlayVod,
		AutoPlayStream:          p.AutoPlayStream,
		SmartAutoPlay:           p.SmartAutoPlay,
		IgnoreExternalStreamURL: p.IgnoreExternalStreamURL,
		PollInterval:            p.PollInterval,
		ConnectedPollInterval:   p.ConnectedPollInterval,
		HeartbeatInterval:       p.HeartbeatInterval,
		WatchingInterval:        p.WatchingInterval,
		RememberInterval:        p.RememberInterval,
	}
	if p.InitialVodQualityID != 0 {
		id := p.InitialVodQualityID
		cfg.InitialVodQualityID = &id
	}
	if p.InitialStreamQualityID != 0 {
		id := p.InitialStreamQualityID
		cfg.InitialStreamQualityID = &id
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ConnectedPollInterval <= 0 {
		c.ConnectedPollInterval = defaultConnectedPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.WatchingInterval <= 0 {
		c.WatchingInterval = defaultWatchingInterval
	}
	if c.RememberInterval <= 0 {
		c.RememberInterval = defaultRememberInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
}

// StateClient is the site API an orchestrator consumes
type StateClient interface {
	FetchState(ctx context.Context, contentID string) (*models.MediaStateSnapshot, error)
	RegisterWatching(ctx context.Context, contentID string, playing bool, position *int64) error
	RegisterLike(ctx context.Context, contentID string, likeType models.LikeType) (bool, error)
	WatchingEnabled() bool
	LikesEnabled() bool
}

// PositionStore remembers on-demand playback positions
type PositionStore interface {
	RecordPosition(ctx context.Context, sourceID models.SourceID, seconds float64)
	Position(ctx context.Context, sourceID models.SourceID, serverPosition *float64) *float64
}

// Reporter receives analytics reports
type Reporter interface {
	Report(action analytics.Action, mode models.PlaybackMode, contentID string, currentTime *float64)
}

// Dependencies are the collaborators of an orchestrator. Client and
// Elements are required; the rest fall back to inert implementations.
type Dependencies struct {
	Client    StateClient
	Elements  element.Factory
	Bridge    notify.Bridge
	Resume    PositionStore
	Analytics Reporter
	Filter    *device.Filter
	Now       func() time.Time
}

type nopReporter struct{}

func (nopReporter) Report(analytics.Action, models.PlaybackMode, string, *float64) {}

// Orchestrator owns what is playing for one content item and why
type Orchestrator struct {
	cfg     Config
	deps    Dependencies
	log     zerolog.Logger
	quality *quality.Coordinator

	loop  *taskLoop
	tasks *taskGroup
	subs  subscribers

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	stopped   atomic.Bool
	startOnce sync.Once

	mu        sync.Mutex
	started   bool
	destroyed bool
	effects   []func()

	loaded          bool
	loadedCallbacks []func()

	element      element.Adapter
	unsubElement func()
	unsubQuality func()
	bridgeSubs   []notify.Subscription

	fetchCancel   context.CancelFunc
	fetchGen      uint64
	pollTimer     timerID
	watchTimer    timerID
	rememberTimer timerID
	heartbeat     timerID

	snapshot        *models.MediaStateSnapshot
	sourceID        models.SourceID
	rememberedStart *float64
	mode            models.PlaybackMode
	currentURIs     []models.MediaURI
	streamState     *models.StreamState
	streamStartTime *time.Time
	embedData       map[string]interface{}

	overrideEnabled bool
	queuedOverride  bool

	streamViewCount      *int64
	vodViewCount         *int64
	numWatchingNow       *int64
	scheduledPublishTime *int64
	numLikes             *int64
	numDislikes          *int64
	likeType             models.LikeType

	autoPlayVod            bool
	autoPlayStream         bool
	resolvedAutoPlayVod    bool
	resolvedAutoPlayStream bool
	vodStartTime           *float64
}

// New creates an orchestrator. Nothing happens until Start is called.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if cfg.ContentID == "" {
		return nil, errors.New("content id is required")
	}
	if deps.Client == nil || deps.Elements == nil {
		return nil, ErrMissingDependency
	}
	cfg.applyDefaults()
	if deps.Resume == nil {
		deps.Resume = resume.NewStore(nil, 0)
	}
	if deps.Analytics == nil {
		deps.Analytics = nopReporter{}
	}
	if deps.Filter == nil {
		deps.Filter = device.NewFilter(device.Desktop)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:                    cfg,
		deps:                   deps,
		log:                    logger.Component("playback").With().Str("content_id", cfg.ContentID).Logger(),
		loop:                   newTaskLoop(),
		ctx:                    ctx,
		cancel:                 cancel,
		done:                   make(chan struct{}),
		autoPlayVod:            cfg.AutoPlayVod,
		autoPlayStream:         cfg.AutoPlayStream,
		resolvedAutoPlayVod:    cfg.AutoPlayVod,
		resolvedAutoPlayStream: cfg.AutoPlayStream,
		vodStartTime:           cfg.VodStartTime,
	}
	o.tasks = newTaskGroup(o.post)
	// Quality changes raised while reconciling run on a later loop tick
	o.quality = quality.NewCoordinator(func(fn func()) { o.post(fn) })
	o.unsubQuality = o.quality.OnChange(o.onQualityChange)
	return o, nil
}

// Start subscribes to notifications, starts the timers and issues the first refresh
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		o.mu.Lock()
		if o.destroyed {
			o.mu.Unlock()
			return
		}
		o.started = true
		o.loop.start()

		if o.deps.Bridge != nil {
			for _, ev := range notify.StateEvents {
				sub := o.deps.Bridge.On(notify.Topic(o.cfg.ContentID, ev), func(notify.Notification) {
					o.post(o.refreshLocked)
				})
				o.bridgeSubs = append(o.bridgeSubs, sub)
			}
		}
		o.heartbeat = o.tasks.every(o.cfg.HeartbeatInterval, o.heartbeatLocked)
		if o.deps.Client.WatchingEnabled() {
			o.watchTimer = o.tasks.after(o.cfg.WatchingInterval, o.registerWatchingAndScheduleLocked)
		}
		o.mu.Unlock()

		o.post(o.refreshLocked)
	})
}

// Destroy cancels every timer and the in-flight fetch, detaches from the
// notification bridge and tears down the element. No callback fires once
// Destroy returns. It is idempotent and does not wait for the loop, so it
// may be called from an event handler.
func (o *Orchestrator) Destroy() {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return
	}
	o.destroyed = true
	o.stopped.Store(true)
	started := o.started

	o.cancel()
	o.tasks.stopAll()
	if o.deps.Bridge != nil {
		for _, sub := range o.bridgeSubs {
			o.deps.Bridge.Off(sub)
		}
	}
	o.bridgeSubs = nil
	if o.unsubQuality != nil {
		o.unsubQuality()
	}
	if o.unsubElement != nil {
		o.unsubElement()
	}
	el := o.element
	o.effects = nil
	o.loadedCallbacks = nil
	o.mu.Unlock()

	o.loop.stop()
	o.subs.clear()
	if el != nil {
		el.Destroy()
	}

	go func() {
		if started {
			<-o.loop.done
		}
		o.wg.Wait()
		close(o.done)
	}()
	o.log.Debug().Msg("Player destroyed")
}

// Done is closed once the loop and every background request have finished after Destroy
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// post runs fn on the loop under the orchestrator lock. Effects queued by fn
// run after the lock is released.
func (o *Orchestrator) post(fn func()) bool {
	return o.loop.post(func() {
		o.mu.Lock()
		if o.destroyed {
			o.mu.Unlock()
			return
		}
		fn()
		effects := o.effects
		o.effects = nil
		o.mu.Unlock()

		for _, effect := range effects {
			if o.stopped.Load() {
				return
			}
			effect()
		}
	})
}

// background runs fn on its own goroutine tracked by Done. Callers hold o.mu.
func (o *Orchestrator) background(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}

func (o *Orchestrator) emitLocked(kind EventKind) {
	ev := Event{Kind: kind, ContentID: o.cfg.ContentID}
	o.effects = append(o.effects, func() {
		for _, fn := range o.subs.snapshot() {
			if o.stopped.Load() {
				return
			}
			fn(ev)
		}
	})
}

// Subscribe registers fn for every produced event and returns its unsubscribe func
func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	return o.subs.add(fn)
}

// OnLoaded runs cb once the first snapshot has been reconciled, immediately
// if that already happened
func (o *Orchestrator) OnLoaded(cb func()) {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return
	}
	if o.loaded {
		o.mu.Unlock()
		cb()
		return
	}
	o.loadedCallbacks = append(o.loadedCallbacks, cb)
	o.mu.Unlock()
}

// Refresh requests an immediate state fetch
func (o *Orchestrator) Refresh() {
	o.post(o.refreshLocked)
}

func (o *Orchestrator) onQualityChange(change quality.Change) {
	o.updatePlayerLocked()
	if change.UserInitiated {
		o.refreshLocked()
	}
}

func (o *Orchestrator) onElementEvent(ev element.Event) {
	switch ev.Kind {
	case element.EventPlay:
		o.resolvedAutoPlayVod = o.autoPlayVod
		o.resolvedAutoPlayStream = o.autoPlayStream
		o.emitLocked(EventPlay)
		o.reportLocked(analytics.ActionPlay)
		o.registerWatchingAndScheduleLocked()
	case element.EventPause:
		if o.cfg.SmartAutoPlay {
			o.resolvedAutoPlayVod = false
			o.resolvedAutoPlayStream = false
		}
		o.emitLocked(EventPause)
		o.reportLocked(analytics.ActionPause)
		o.registerWatchingAndScheduleLocked()
	case element.EventEnded:
		o.emitLocked(EventEnded)
		o.reportLocked(analytics.ActionEnded)
	case element.EventLoadedMetadata:
		if o.mode == models.ModeLive {
			now := o.deps.Now()
			o.streamStartTime = &now
		}
	}
}

func (o *Orchestrator) reportLocked(action analytics.Action) {
	var current *float64
	if o.element != nil {
		current = o.element.CurrentTime()
	}
	o.deps.Analytics.Report(action, o.mode, o.cfg.ContentID, current)
}

func (o *Orchestrator) heartbeatLocked() {
	if !o.mode.IsPlayable() || o.element == nil {
		return
	}
	if p := o.element.Paused(); p == nil || *p {
		return
	}
	o.reportLocked(analytics.ActionPlaying)
}
