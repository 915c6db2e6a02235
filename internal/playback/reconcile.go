package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"

	"github.com/stwalsh4118/marquee/internal/element"
	"github.com/stwalsh4118/marquee/internal/models"
)

// refreshLocked aborts the in-flight fetch, if any, and issues a new one.
// The poll timer is re-armed by the completion, never here.
func (o *Orchestrator) refreshLocked() {
	o.tasks.cancel(o.pollTimer)
	o.pollTimer = 0
	if o.fetchCancel != nil {
		o.fetchCancel()
	}

	o.fetchGen++
	gen := o.fetchGen
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.FetchTimeout)
	o.fetchCancel = cancel

	client := o.deps.Client
	store := o.deps.Resume
	contentID := o.cfg.ContentID
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()

		snapshot, err := client.FetchState(ctx, contentID)
		var remembered *float64
		if err == nil {
			if id := snapshot.SourceIdentity(); id != "" {
				remembered = store.Position(ctx, id, snapshot.RememberedPlaybackTime)
			}
		}
		o.post(func() { o.completeFetchLocked(gen, snapshot, remembered, err) })
	}()
}

func (o *Orchestrator) completeFetchLocked(gen uint64, snapshot *models.MediaStateSnapshot, remembered *float64, err error) {
	if gen != o.fetchGen {
		// superseded, the newer fetch re-arms the timer
		return
	}
	o.fetchCancel = nil

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.log.Warn().Err(err).Msg("Incomplete cycle, state fetch failed")
		}
	} else {
		o.snapshot = snapshot
		o.sourceID = snapshot.SourceIdentity()
		o.rememberedStart = remembered
		o.renderLocked()
	}
	o.schedulePollLocked()
}

func (o *Orchestrator) schedulePollLocked() {
	interval := o.cfg.PollInterval
	if o.deps.Bridge != nil && o.deps.Bridge.IsConnected() {
		interval = o.cfg.ConnectedPollInterval
	}
	o.tasks.cancel(o.pollTimer)
	o.pollTimer = o.tasks.after(interval, o.refreshLocked)
}

// renderLocked commits the latest snapshot
func (o *Orchestrator) renderLocked() {
	if o.snapshot == nil {
		return
	}
	o.updateEmbedDataLocked()
	o.updateOverrideModeLocked()
	o.updatePlayerLocked()
	o.updateViewCountsLocked()
	o.updateNumWatchingNowLocked()
	o.updateScheduledPublishTimeLocked()
	o.updateLikesLocked()
}

func (o *Orchestrator) updateEmbedDataLocked() {
	// embed data does not change once known
	if o.embedData != nil || o.snapshot.EmbedData == nil {
		return
	}
	o.embedData = o.snapshot.EmbedData
	o.emitLocked(EventEmbedDataAvailable)
}

func (o *Orchestrator) updateOverrideModeLocked() {
	if o.queuedOverride != o.overrideEnabled {
		o.overrideEnabled = o.queuedOverride
		o.emitLocked(EventOverrideModeChanged)
	}
}

// updatePlayerLocked is the reconciliation step. The element is reloaded
// only when the mode or the chosen URIs change; everything else is patched.
func (o *Orchestrator) updatePlayerLocked() {
	snap := o.snapshot
	if snap == nil {
		return
	}

	firstLoad := false
	if o.element == nil {
		el, err := o.deps.Elements(o.cfg.ContentID)
		if err != nil {
			o.log.Error().Err(err).Msg("Failed to create media element")
			return
		}
		o.element = el
		o.unsubElement = el.Subscribe(func(ev element.Event) {
			o.post(func() { o.onElementEvent(ev) })
		})
		firstLoad = true
	}
	el := o.element

	res := Resolve(snap, o.deps.Filter, o.overrideEnabled, o.cfg.IgnoreExternalStreamURL)

	o.quality.SetAvailableQualities(models.Qualities(res.Groups), res.Mode == o.mode)
	if res.Mode == models.ModeVOD && o.mode != models.ModeVOD {
		o.applyInitialQualityLocked(o.cfg.InitialVodQualityID)
	}
	if res.Mode == models.ModeLive && o.mode != models.ModeLive {
		o.applyInitialQualityLocked(o.cfg.InitialStreamQualityID)
	}

	chosenID, hasChosen := o.quality.ChosenQualityID()
	chosen := chooseURIs(res.Groups, chosenID, hasChosen)

	urisChanged := res.Mode == o.mode && !models.EqualURIs(o.currentURIs, chosen)
	o.currentURIs = chosen

	if res.Mode != o.mode || urisChanged {
		decision, ok := DecideStart(StartInput{
			Mode:           res.Mode,
			URIsChanged:    urisChanged,
			StreamShowOver: snap.StateIs(models.StreamStateShowOver),
			FirstLoad:      firstLoad,
			RequestedStart: o.vodStartTime,
			Remembered:     o.rememberedStart,
			CurrentTime:    el.CurrentTime(),
			Paused:         el.Paused(),
			AutoPlayVod:    o.resolvedAutoPlayVod,
			AutoPlayStream: o.resolvedAutoPlayStream,
		})
		if ok {
			el.SetStartTime(decision.Seconds, decision.Autoplay, decision.SnapCorrect)
		}
		el.SetSource(chosen)
		o.log.Debug().
			Str("mode", res.Mode.String()).
			Bool("uris_changed", urisChanged).
			Int("uris", len(chosen)).
			Msg("Player source updated")
	}

	previousMode := o.mode
	o.mode = res.Mode
	el.Present(o.presentationLocked(res))

	if res.Mode == models.ModeVOD {
		o.startRememberLocked()
	} else {
		o.stopRememberLocked()
	}

	if !equalStreamState(o.streamState, snap.StreamState) {
		o.streamState = copyStreamState(snap.StreamState)
		o.emitLocked(EventStreamStateChanged)
	}
	if previousMode != res.Mode {
		o.log.Info().Str("from", previousMode.String()).Str("to", res.Mode.String()).Msg("Player type changed")
		o.emitLocked(EventPlayerTypeChanged)
	}

	if firstLoad {
		o.loaded = true
		o.emitLocked(EventLoaded)
		callbacks := o.loadedCallbacks
		o.loadedCallbacks = nil
		for _, cb := range callbacks {
			o.effects = append(o.effects, cb)
		}
	}
}

func (o *Orchestrator) applyInitialQualityLocked(id *int64) {
	if id == nil || !o.quality.HasQuality(*id) {
		return
	}
	_ = o.quality.SetQuality(*id, false)
}

func (o *Orchestrator) presentationLocked(res Resolution) element.Presentation {
	snap := o.snapshot
	p := element.Presentation{
		Mode:              res.Mode,
		Title:             snap.Title,
		TitleURI:          o.titleURILocked(),
		CoverURI:          snap.CoverURI,
		ShowStreamOver:    snap.StateIs(models.StreamStateShowOver),
		IsStream:          snap.HasStream,
		ExternalStreamURL: res.ExternalStreamURL,
	}
	if snap.StateIs(models.StreamStateNotLive) {
		p.CustomMessage = snap.StreamInfoMsg
	}
	p.VodAvailableShortly = p.ShowStreamOver && snap.AvailableOnDemand != nil && *snap.AvailableOnDemand
	if !p.ShowStreamOver {
		p.ScheduledStart = snap.PublishTime()
	}
	if res.Mode == models.ModeVOD {
		p.Chapters = snap.VodChapters
		p.Thumbnails = snap.VodThumbnails
	}
	return p
}

// titleURILocked returns the share link, pointing at the current position for on-demand content
func (o *Orchestrator) titleURILocked() string {
	if o.snapshot == nil {
		return ""
	}
	uri := o.snapshot.URI
	if o.mode != models.ModeVOD || o.element == nil {
		return uri
	}
	current := o.element.CurrentTime()
	if current == nil || *current <= 0 {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	t := *current
	q := u.Query()
	q.Set("t", fmt.Sprintf("%dm%ds", int64(math.Floor(t/60)), int64(math.Floor(math.Mod(t, 60)))))
	u.RawQuery = q.Encode()
	return u.String()
}

func (o *Orchestrator) updateViewCountsLocked() {
	vodChanged := !equalInt64(o.vodViewCount, o.snapshot.VodViewCount)
	o.vodViewCount = copyInt64(o.snapshot.VodViewCount)
	streamChanged := !equalInt64(o.streamViewCount, o.snapshot.StreamViewCount)
	o.streamViewCount = copyInt64(o.snapshot.StreamViewCount)
	if vodChanged {
		o.emitLocked(EventVodViewCountChanged)
	}
	if streamChanged {
		o.emitLocked(EventStreamViewCountChanged)
	}
	if vodChanged || streamChanged {
		o.emitLocked(EventViewCountChanged)
	}
}

func (o *Orchestrator) updateNumWatchingNowLocked() {
	if !o.deps.Client.WatchingEnabled() {
		return
	}
	if !equalInt64(o.numWatchingNow, o.snapshot.NumWatchingNow) {
		o.numWatchingNow = copyInt64(o.snapshot.NumWatchingNow)
		o.emitLocked(EventNumWatchingNowChanged)
	}
}

func (o *Orchestrator) updateScheduledPublishTimeLocked() {
	if !equalInt64(o.scheduledPublishTime, o.snapshot.ScheduledPublishTime) {
		o.scheduledPublishTime = copyInt64(o.snapshot.ScheduledPublishTime)
		o.emitLocked(EventScheduledPublishTimeChanged)
	}
}

func (o *Orchestrator) updateLikesLocked() {
	if !o.deps.Client.LikesEnabled() {
		return
	}
	if !equalInt64(o.numLikes, o.snapshot.NumLikes) {
		o.numLikes = copyInt64(o.snapshot.NumLikes)
		o.emitLocked(EventNumLikesChanged)
	}
	if !equalInt64(o.numDislikes, o.snapshot.NumDislikes) {
		o.numDislikes = copyInt64(o.snapshot.NumDislikes)
		o.emitLocked(EventNumDislikesChanged)
	}
	if o.likeType != o.snapshot.LikeType {
		o.likeType = o.snapshot.LikeType
		o.emitLocked(EventLikeTypeChanged)
	}
}

// registerWatchingAndScheduleLocked reports the watching state now and
// restarts the watching interval
func (o *Orchestrator) registerWatchingAndScheduleLocked() {
	if !o.deps.Client.WatchingEnabled() {
		return
	}
	o.tasks.cancel(o.watchTimer)
	o.sendWatchingLocked()
	o.watchTimer = o.tasks.after(o.cfg.WatchingInterval, o.registerWatchingAndScheduleLocked)
}

func (o *Orchestrator) sendWatchingLocked() {
	playing := false
	var position *int64
	if o.element != nil {
		if o.mode.IsPlayable() {
			if p := o.element.Paused(); p != nil && !*p {
				playing = true
			}
		}
		if o.mode == models.ModeVOD {
			if t := o.element.CurrentTime(); t != nil {
				secs := int64(math.Floor(*t))
				position = &secs
			}
		}
	}

	client := o.deps.Client
	contentID := o.cfg.ContentID
	log := o.log
	o.background(func(ctx context.Context) {
		if err := client.RegisterWatching(ctx, contentID, playing, position); err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Msg("Failed to register watching")
		}
	})
}

func (o *Orchestrator) startRememberLocked() {
	if o.rememberTimer != 0 {
		return
	}
	o.rememberTimer = o.tasks.every(o.cfg.RememberInterval, o.updateRememberedTimeLocked)
	o.post(o.updateRememberedTimeLocked)
}

func (o *Orchestrator) stopRememberLocked() {
	o.tasks.cancel(o.rememberTimer)
	o.rememberTimer = 0
}

// updateRememberedTimeLocked records the position while on-demand content is
// actually playing. Stale ticks after a mode switch fail the checks.
func (o *Orchestrator) updateRememberedTimeLocked() {
	if o.mode != models.ModeVOD || o.sourceID == "" || o.element == nil {
		return
	}
	if p := o.element.Paused(); p == nil || *p {
		return
	}
	current := o.element.CurrentTime()
	if current == nil || !o.element.Initialized() {
		return
	}

	store := o.deps.Resume
	sourceID := o.sourceID
	seconds := *current
	o.background(func(ctx context.Context) {
		store.RecordPosition(ctx, sourceID, seconds)
	})
}

func equalInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func equalStreamState(a, b *models.StreamState) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyStreamState(v *models.StreamState) *models.StreamState {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
