package models

import (
	"strings"
	"time"
)

// Quality describes one encoded rendition of a content item
type Quality struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MediaURI is a single playable location for a rendition
type MediaURI struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
	// SupportedDevices is a comma separated device list, nil means every device
	SupportedDevices *string `json:"supportedDevices"`
	DVR              bool    `json:"uriWithDvrSupport"`
}

// Devices returns the parsed supported device list, nil when all devices are supported
func (u MediaURI) Devices() []string {
	if u.SupportedDevices == nil {
		return nil
	}
	parts := strings.Split(*u.SupportedDevices, ",")
	devices := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			devices = append(devices, p)
		}
	}
	return devices
}

// Equal compares every field that matters for playback
func (u MediaURI) Equal(other MediaURI) bool {
	if u.URI != other.URI || u.Type != other.Type || u.DVR != other.DVR {
		return false
	}
	if (u.SupportedDevices == nil) != (other.SupportedDevices == nil) {
		return false
	}
	return u.SupportedDevices == nil || *u.SupportedDevices == *other.SupportedDevices
}

// URIGroup is a quality together with its ordered URIs
type URIGroup struct {
	Quality Quality    `json:"quality"`
	URIs    []MediaURI `json:"uris"`
}

// Qualities extracts the quality descriptors of the groups in order
func Qualities(groups []URIGroup) []Quality {
	qualities := make([]Quality, 0, len(groups))
	for _, g := range groups {
		qualities = append(qualities, g.Quality)
	}
	return qualities
}

// EqualURIs compares two URI lists positionally. Order encodes priority.
func EqualURIs(a, b []MediaURI) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Chapter marks a point of interest in an on-demand video
type Chapter struct {
	Title string  `json:"title"`
	Time  float64 `json:"time"`
}

// ScrubThumbnail is a preview image for a position in an on-demand video
type ScrubThumbnail struct {
	URI  string  `json:"uri"`
	Time float64 `json:"time"`
}

// MediaStateSnapshot is one decoded response from the player info endpoint.
// Fields not relevant to the content are null, never absent.
type MediaStateSnapshot struct {
	ID                     int64                  `json:"id"`
	Title                  string                 `json:"title"`
	URI                    string                 `json:"uri"`
	ScheduledPublishTime   *int64                 `json:"scheduledPublishTime"`
	CoverURI               string                 `json:"coverUri"`
	EmbedData              map[string]interface{} `json:"embedData"`
	HasStream              bool                   `json:"hasStream"`
	StreamInfoMsg          *string                `json:"streamInfoMsg"`
	StreamState            *StreamState           `json:"streamState"`
	StreamEndTime          *int64                 `json:"streamEndTime"`
	StreamURIGroups        []URIGroup             `json:"streamUris"`
	AvailableOnDemand      *bool                  `json:"availableOnDemand"`
	ExternalStreamURL      *string                `json:"externalStreamUrl"`
	StreamViewCount        *int64                 `json:"streamViewCount"`
	HasVod                 bool                   `json:"hasVod"`
	VodSourceID            *SourceID              `json:"vodSourceId"`
	VodLive                *bool                  `json:"vodLive"`
	VodURIGroups           []URIGroup             `json:"videoUris"`
	VodViewCount           *int64                 `json:"vodViewCount"`
	VodChapters            []Chapter              `json:"vodChapters"`
	VodThumbnails          []ScrubThumbnail       `json:"vodThumbnails"`
	RememberedPlaybackTime *float64               `json:"rememberedPlaybackTime"`
	NumWatchingNow         *int64                 `json:"numWatchingNow"`
	NumLikes               *int64                 `json:"numLikes"`
	NumDislikes            *int64                 `json:"numDislikes"`
	LikeType               LikeType               `json:"likeType"`
}

// StateIs reports whether the content has a stream in the given state
func (s *MediaStateSnapshot) StateIs(state StreamState) bool {
	return s.HasStream && s.StreamState != nil && *s.StreamState == state
}

// IsVodLive reports the vodLive flag, false when unset
func (s *MediaStateSnapshot) IsVodLive() bool {
	return s.VodLive != nil && *s.VodLive
}

// PublishTime converts the scheduled publish time to a time.Time
func (s *MediaStateSnapshot) PublishTime() *time.Time {
	if s.ScheduledPublishTime == nil {
		return nil
	}
	t := time.Unix(*s.ScheduledPublishTime, 0).UTC()
	return &t
}

// SourceIdentity returns the on-demand source id, empty when there is none
func (s *MediaStateSnapshot) SourceIdentity() SourceID {
	if s.VodSourceID == nil {
		return ""
	}
	return *s.VodSourceID
}

// LikeState is the like aggregate owned by a player
type LikeState struct {
	NumLikes    *int64   `json:"num_likes"`
	NumDislikes *int64   `json:"num_dislikes"`
	Choice      LikeType `json:"choice"`
}
