package models

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// PlaybackMode is the resolved kind of content the player is showing
type PlaybackMode string

// Playback modes. The zero value means no snapshot has been reconciled yet.
const (
	ModeUnresolved PlaybackMode = ""
	ModeAd         PlaybackMode = "ad"
	ModeLive       PlaybackMode = "live"
	ModeVOD        PlaybackMode = "vod"
)

// String returns the mode name, "none" for the unresolved mode
func (m PlaybackMode) String() string {
	if m == ModeUnresolved {
		return "none"
	}
	return string(m)
}

// IsPlayable reports whether the mode drives actual media playback
func (m PlaybackMode) IsPlayable() bool {
	return m == ModeLive || m == ModeVOD
}

// StreamState is the server-reported state of a live stream
type StreamState int

// Stream states as numbered on the wire
const (
	StreamStateNotLive  StreamState = 1
	StreamStateLive     StreamState = 2
	StreamStateShowOver StreamState = 3
)

var streamStateNames = map[StreamState]string{
	StreamStateNotLive:  "notLive",
	StreamStateLive:     "live",
	StreamStateShowOver: "showOver",
}

// String returns the state name
func (s StreamState) String() string {
	if name, ok := streamStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsValid checks if the state is one of the known stream states
func (s StreamState) IsValid() bool {
	_, ok := streamStateNames[s]
	return ok
}

// ParseStreamState parses either the numeric or the named form of a stream state
func ParseStreamState(value string) (StreamState, error) {
	for state, name := range streamStateNames {
		if name == value {
			return state, nil
		}
	}
	n, err := strconv.Atoi(value)
	if err == nil && StreamState(n).IsValid() {
		return StreamState(n), nil
	}
	return 0, fmt.Errorf("invalid stream state: %q", value)
}

// MarshalJSON encodes the state by name
func (s StreamState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts 1/2/3 as sent by the site as well as the state names
func (s *StreamState) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var (
		state StreamState
		err   error
	)
	switch v := raw.(type) {
	case float64:
		state, err = ParseStreamState(strconv.Itoa(int(v)))
	case string:
		state, err = ParseStreamState(v)
	default:
		err = fmt.Errorf("invalid stream state: %s", string(data))
	}
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// LikeType is the current user's choice on a content item
type LikeType string

// Like types. LikeTypeReset is only valid as a request.
const (
	LikeTypeNone    LikeType = ""
	LikeTypeLike    LikeType = "like"
	LikeTypeDislike LikeType = "dislike"
	LikeTypeReset   LikeType = "reset"
)

// IsValidRequest checks if the type can be sent to the like endpoint
func (l LikeType) IsValidRequest() bool {
	return l == LikeTypeLike || l == LikeTypeDislike || l == LikeTypeReset
}

// Resulting returns the state a successful request of this type leaves behind
func (l LikeType) Resulting() LikeType {
	if l == LikeTypeReset {
		return LikeTypeNone
	}
	return l
}

// SourceID identifies the encoded source file behind an on-demand video.
// Several content items can share one source.
type SourceID string

// UnmarshalJSON accepts numeric and string identifiers
func (s *SourceID) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*s = SourceID(strconv.FormatInt(int64(v), 10))
	case string:
		*s = SourceID(v)
	case nil:
		*s = ""
	default:
		return fmt.Errorf("invalid source id: %s", string(data))
	}
	return nil
}
