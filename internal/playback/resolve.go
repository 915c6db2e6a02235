package playback

import (
	"github.com/stwalsh4118/marquee/internal/device"
	"github.com/stwalsh4118/marquee/internal/models"
)

// Resolution is the desired player state derived from one snapshot
type Resolution struct {
	Mode models.PlaybackMode
	// Groups holds the playable groups for Mode. It is empty for ad mode and
	// when a live stream is hosted externally.
	Groups            []models.URIGroup
	StreamGroups      []models.URIGroup
	VodGroups         []models.URIGroup
	ExternalStreamURL *string
}

// Resolve decides the playback mode for a snapshot. Live takes precedence
// over on-demand; anything without playable media falls back to ad.
// A finished stream only keeps its DVR capable URIs.
func Resolve(snap *models.MediaStateSnapshot, filter *device.Filter, override, ignoreExternal bool) Resolution {
	streamGroups := filter.Filter(snap.StreamURIGroups)
	vodGroups := filter.Filter(snap.VodURIGroups)

	showOver := snap.StateIs(models.StreamStateShowOver)
	if showOver {
		streamGroups = device.DVROnly(streamGroups)
	}

	var external *string
	if snap.HasStream && !showOver && !ignoreExternal && snap.ExternalStreamURL != nil && *snap.ExternalStreamURL != "" {
		external = snap.ExternalStreamURL
	}

	res := Resolution{
		Mode:              models.ModeAd,
		StreamGroups:      streamGroups,
		VodGroups:         vodGroups,
		ExternalStreamURL: external,
	}

	liveCandidate := snap.HasStream &&
		(snap.StateIs(models.StreamStateLive) ||
			(showOver && len(streamGroups) > 0) ||
			(override && snap.StateIs(models.StreamStateNotLive)))
	if liveCandidate && (external != nil || len(streamGroups) > 0) {
		res.Mode = models.ModeLive
		if external == nil {
			res.Groups = streamGroups
		}
		return res
	}

	vodCandidate := snap.HasVod &&
		((snap.IsVodLive() && !snap.StateIs(models.StreamStateNotLive)) || override)
	if vodCandidate && len(vodGroups) > 0 {
		res.Mode = models.ModeVOD
		res.Groups = vodGroups
		res.ExternalStreamURL = nil
	}
	return res
}

// chooseURIs returns the URIs of the group matching the chosen quality,
// falling back to the first group
func chooseURIs(groups []models.URIGroup, chosen int64, hasChosen bool) []models.MediaURI {
	if len(groups) == 0 {
		return nil
	}
	if hasChosen {
		for _, g := range groups {
			if g.Quality.ID == chosen {
				return g.URIs
			}
		}
	}
	return groups[0].URIs
}

// StartInput is everything the start policy looks at when the source is reloaded
type StartInput struct {
	Mode           models.PlaybackMode
	URIsChanged    bool
	StreamShowOver bool
	FirstLoad      bool
	RequestedStart *float64
	Remembered     *float64
	CurrentTime    *float64
	Paused         *bool
	AutoPlayVod    bool
	AutoPlayStream bool
}

// StartDecision is passed to the element before the source is set
type StartDecision struct {
	Seconds     float64
	Autoplay    bool
	SnapCorrect bool
}

// DecideStart picks the start position and autoplay for a reload.
// It returns false for modes that play nothing.
func DecideStart(in StartInput) (StartDecision, bool) {
	playing := in.Paused != nil && !*in.Paused
	current := 0.0
	if in.CurrentTime != nil {
		current = *in.CurrentTime
	}

	switch in.Mode {
	case models.ModeLive:
		switch {
		case in.URIsChanged:
			return StartDecision{Seconds: current, Autoplay: playing}, true
		case in.StreamShowOver:
			return StartDecision{Autoplay: in.AutoPlayVod}, true
		default:
			return StartDecision{Autoplay: in.AutoPlayStream}, true
		}

	case models.ModeVOD:
		computed := 0.0
		if in.Remembered != nil {
			computed = *in.Remembered
		}
		requested := in.FirstLoad && in.RequestedStart != nil
		switch {
		case in.URIsChanged:
			return StartDecision{Seconds: current, Autoplay: playing}, true
		case requested:
			return StartDecision{Seconds: *in.RequestedStart, Autoplay: in.AutoPlayVod}, true
		default:
			return StartDecision{Seconds: computed, Autoplay: in.AutoPlayVod, SnapCorrect: true}, true
		}
	}
	return StartDecision{}, false
}
