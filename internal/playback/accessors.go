package playback

import (
	"time"

	"github.com/stwalsh4118/marquee/internal/element"
	"github.com/stwalsh4118/marquee/internal/models"
)

// ContentID returns the content item this player is bound to
func (o *Orchestrator) ContentID() string {
	return o.cfg.ContentID
}

// Loaded reports whether the first snapshot has been reconciled
func (o *Orchestrator) Loaded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loaded
}

// PlayerType returns the committed playback mode
func (o *Orchestrator) PlayerType() models.PlaybackMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// StreamState returns the stream state, nil when there is no stream
func (o *Orchestrator) StreamState() *models.StreamState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyStreamState(o.streamState)
}

// StreamStartTime returns when the current live stream started loading
func (o *Orchestrator) StreamStartTime() *time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.streamStartTime == nil {
		return nil
	}
	t := *o.streamStartTime
	return &t
}

// NumLikes returns the like count, nil when the site hides it
func (o *Orchestrator) NumLikes() (*int64, error) {
	if !o.deps.Client.LikesEnabled() {
		return nil, ErrLikesDisabled
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyInt64(o.numLikes), nil
}

// NumDislikes returns the dislike count, nil when the site hides it
func (o *Orchestrator) NumDislikes() (*int64, error) {
	if !o.deps.Client.LikesEnabled() {
		return nil, ErrLikesDisabled
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyInt64(o.numDislikes), nil
}

// LikeType returns the viewer's like choice
func (o *Orchestrator) LikeType() (models.LikeType, error) {
	if !o.deps.Client.LikesEnabled() {
		return models.LikeTypeNone, ErrLikesDisabled
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.likeType, nil
}

// StreamViewCount returns the live view count
func (o *Orchestrator) StreamViewCount() *int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyInt64(o.streamViewCount)
}

// VodViewCount returns the on-demand view count
func (o *Orchestrator) VodViewCount() *int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyInt64(o.vodViewCount)
}

// ViewCount sums the stream and on-demand view counts. It is nil when both are unknown.
func (o *Orchestrator) ViewCount() *int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewCountLocked()
}

func (o *Orchestrator) viewCountLocked() *int64 {
	if o.snapshot == nil || (o.streamViewCount == nil && o.vodViewCount == nil) {
		return nil
	}
	var total int64
	if o.streamViewCount != nil {
		total += *o.streamViewCount
	}
	if o.vodViewCount != nil {
		total += *o.vodViewCount
	}
	return &total
}

// NumWatchingNow returns how many viewers are watching, nil when unknown
func (o *Orchestrator) NumWatchingNow() *int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyInt64(o.numWatchingNow)
}

// ScheduledPublishTime returns when the content is scheduled to go live
func (o *Orchestrator) ScheduledPublishTime() *time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scheduledPublishTime == nil {
		return nil
	}
	t := time.Unix(*o.scheduledPublishTime, 0).UTC()
	return &t
}

// EmbedData returns the embed data once the site provided it
func (o *Orchestrator) EmbedData() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.embedData
}

// TitleURI returns the share link, with a t=XmYs position for on-demand content
func (o *Orchestrator) TitleURI() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.titleURILocked()
}

// Qualities returns the selectable qualities for the current mode
func (o *Orchestrator) Qualities() []models.Quality {
	return o.quality.Available()
}

// ChosenQualityID returns the selected quality
func (o *Orchestrator) ChosenQualityID() (int64, bool) {
	return o.quality.ChosenQualityID()
}

// SetQuality selects a quality on behalf of the user. The element is
// reloaded on the next loop tick and the state refreshed.
func (o *Orchestrator) SetQuality(id int64) error {
	return o.quality.SetQuality(id, true)
}

// EnableOverrideMode queues the override flag; it applies on the next reconciliation
func (o *Orchestrator) EnableOverrideMode(enabled bool) {
	o.mu.Lock()
	o.queuedOverride = enabled
	o.mu.Unlock()
	o.post(o.renderLocked)
}

// OverrideModeEnabled returns the applied override flag
func (o *Orchestrator) OverrideModeEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overrideEnabled
}

// AutoPlayVod returns the configured on-demand autoplay intent
func (o *Orchestrator) AutoPlayVod() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoPlayVod
}

// AutoPlayStream returns the configured live autoplay intent
func (o *Orchestrator) AutoPlayStream() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoPlayStream
}

// SetAutoPlayVod changes the on-demand autoplay intent. Enabling it only
// re-arms autoplay when nothing is paused.
func (o *Orchestrator) SetAutoPlayVod(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autoPlayVod = enabled
	o.resolvedAutoPlayVod = o.resolveAutoPlayLocked(enabled)
}

// SetAutoPlayStream changes the live autoplay intent
func (o *Orchestrator) SetAutoPlayStream(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autoPlayStream = enabled
	o.resolvedAutoPlayStream = o.resolveAutoPlayLocked(enabled)
}

func (o *Orchestrator) resolveAutoPlayLocked(enabled bool) bool {
	if !enabled {
		return false
	}
	if o.element == nil {
		return true
	}
	p := o.element.Paused()
	return p == nil || !*p
}

// resolvedAutoPlay returns the effective autoplay flags
func (o *Orchestrator) resolvedAutoPlay() (vod, stream bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolvedAutoPlayVod, o.resolvedAutoPlayStream
}

// VodStartTime returns the requested first load position
func (o *Orchestrator) VodStartTime() *float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.vodStartTime == nil {
		return nil
	}
	v := *o.vodStartTime
	return &v
}

// SetVodStartTime sets the first load position, nil to decide automatically
func (o *Orchestrator) SetVodStartTime(seconds *float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seconds == nil {
		o.vodStartTime = nil
		return
	}
	v := *seconds
	o.vodStartTime = &v
}

func (o *Orchestrator) currentElement() element.Adapter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed || o.element == nil {
		return nil
	}
	return o.element
}

// Play starts playback if there is an element
func (o *Orchestrator) Play() {
	if el := o.currentElement(); el != nil {
		el.Play()
	}
}

// Pause pauses playback if there is an element
func (o *Orchestrator) Pause() {
	if el := o.currentElement(); el != nil {
		el.Pause()
	}
}

// JumpToTime seeks if there is an element
func (o *Orchestrator) JumpToTime(seconds float64, startPlaying bool) {
	if el := o.currentElement(); el != nil {
		el.JumpToTime(seconds, startPlaying)
	}
}

// CurrentTime returns the element position, nil without an element
func (o *Orchestrator) CurrentTime() *float64 {
	if el := o.currentElement(); el != nil {
		return el.CurrentTime()
	}
	return nil
}

// Paused returns whether playback is paused, nil when unknown
func (o *Orchestrator) Paused() *bool {
	if el := o.currentElement(); el != nil {
		return el.Paused()
	}
	return nil
}

// HasEnded returns whether playback reached the end, nil when unknown
func (o *Orchestrator) HasEnded() *bool {
	if el := o.currentElement(); el != nil {
		return el.Ended()
	}
	return nil
}

// Status is a point in time view of a player
type Status struct {
	ContentID            string              `json:"content_id"`
	Loaded               bool                `json:"loaded"`
	Mode                 string              `json:"mode"`
	StreamState          *models.StreamState `json:"stream_state"`
	OverrideMode         bool                `json:"override_mode"`
	Qualities            []models.Quality    `json:"qualities"`
	ChosenQualityID      *int64              `json:"chosen_quality_id"`
	CurrentTime          *float64            `json:"current_time"`
	Paused               *bool               `json:"paused"`
	Ended                *bool               `json:"ended"`
	ViewCount            *int64              `json:"view_count"`
	StreamViewCount      *int64              `json:"stream_view_count"`
	VodViewCount         *int64              `json:"vod_view_count"`
	NumWatchingNow       *int64              `json:"num_watching_now"`
	Likes                *models.LikeState   `json:"likes,omitempty"`
	ScheduledPublishTime *time.Time          `json:"scheduled_publish_time"`
	TitleURI             string              `json:"title_uri"`
	AutoPlayVod          bool                `json:"auto_play_vod"`
	AutoPlayStream       bool                `json:"auto_play_stream"`
	StreamStartTime      *time.Time          `json:"stream_start_time"`
}

// Status collects the player state
func (o *Orchestrator) Status() Status {
	st := Status{
		ContentID:            o.cfg.ContentID,
		Loaded:               o.Loaded(),
		Mode:                 o.PlayerType().String(),
		StreamState:          o.StreamState(),
		OverrideMode:         o.OverrideModeEnabled(),
		Qualities:            o.Qualities(),
		CurrentTime:          o.CurrentTime(),
		Paused:               o.Paused(),
		Ended:                o.HasEnded(),
		ViewCount:            o.ViewCount(),
		StreamViewCount:      o.StreamViewCount(),
		VodViewCount:         o.VodViewCount(),
		NumWatchingNow:       o.NumWatchingNow(),
		ScheduledPublishTime: o.ScheduledPublishTime(),
		TitleURI:             o.TitleURI(),
		AutoPlayVod:          o.AutoPlayVod(),
		AutoPlayStream:       o.AutoPlayStream(),
		StreamStartTime:      o.StreamStartTime(),
	}
	if id, ok := o.ChosenQualityID(); ok {
		st.ChosenQualityID = &id
	}
	if o.deps.Client.LikesEnabled() {
		o.mu.Lock()
		st.Likes = &models.LikeState{
			NumLikes:    copyInt64(o.numLikes),
			NumDislikes: copyInt64(o.numDislikes),
			Choice:      o.likeType,
		}
		o.mu.Unlock()
	}
	return st
}
