//go:build integration
// +build integration

package integration

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/marquee/internal/api"
	"github.com/stwalsh4118/marquee/internal/models"
	"github.com/stwalsh4118/marquee/internal/notify"
)

func TestLiveToVodOnNotification(t *testing.T) {
	s := newStack(t)
	s.site.set("1", liveSnapshot(1))

	resp, body := s.do(t, http.MethodPost, "/api/players/1", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	require.Eventually(t, func() bool {
		st := s.status(t, "1")
		return st.Loaded && st.Mode == "live" && st.Paused != nil && !*st.Paused
	}, waitFor, tick)

	st := s.status(t, "1")
	require.NotNil(t, st.ViewCount)
	assert.Equal(t, int64(120), *st.ViewCount)
	require.NotNil(t, st.Likes)
	assert.Equal(t, int64(10), *st.Likes.NumLikes)

	// the stream ends and the recording becomes available
	s.site.set("1", vodSnapshot(1))
	require.Eventually(t, func() bool {
		s.notify(t, notify.EventVodAvailable, "1")
		return s.status(t, "1").Mode == "vod"
	}, waitFor, 50*time.Millisecond)

	st = s.status(t, "1")
	require.NotNil(t, st.StreamState)
	assert.Equal(t, models.StreamStateShowOver, *st.StreamState)
	assert.Len(t, st.Qualities, 2)
	require.NotNil(t, st.ViewCount)
	assert.Equal(t, int64(150), *st.ViewCount)
}

func TestNotificationForOtherContentIsIgnored(t *testing.T) {
	s := newStack(t)
	s.site.set("1", liveSnapshot(1))

	resp, _ := s.do(t, http.MethodPost, "/api/players/1", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Eventually(t, func() bool { return s.status(t, "1").Mode == "live" }, waitFor, tick)

	s.site.set("1", vodSnapshot(1))
	s.notify(t, notify.EventVodAvailable, "2")

	require.Never(t, func() bool { return s.status(t, "1").Mode == "vod" }, 200*time.Millisecond, tick)
}

func TestSeekIsRemembered(t *testing.T) {
	s := newStack(t)
	s.site.set("2", vodSnapshot(2))

	resp, _ := s.do(t, http.MethodPost, "/api/players/2", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Eventually(t, func() bool {
		st := s.status(t, "2")
		return st.Mode == "vod" && st.Paused != nil && !*st.Paused
	}, waitFor, tick)

	resp, body := s.do(t, http.MethodPost, "/api/players/2/seek", api.SeekRequest{Time: floatPtr(600), Play: true})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	require.Eventually(t, func() bool {
		pos := s.store.Position(context.Background(), models.SourceID("src-2"), nil)
		return pos != nil && *pos == 600
	}, waitFor, tick)

	resp, _ = s.do(t, http.MethodDelete, "/api/players/2", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/players", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list api.PlayerListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 0, list.Total)
}

func TestLikeRoundTrip(t *testing.T) {
	s := newStack(t)
	s.site.set("1", liveSnapshot(1))

	resp, _ := s.do(t, http.MethodPost, "/api/players/1", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Eventually(t, func() bool { return s.status(t, "1").Loaded }, waitFor, tick)

	resp, body := s.do(t, http.MethodPost, "/api/players/1/like", api.LikeRequest{Type: models.LikeTypeLike})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var like api.LikeResponse
	require.NoError(t, json.Unmarshal(body, &like))
	assert.True(t, like.Success)
	assert.Equal(t, models.LikeTypeLike, like.LikeType)
	require.NotNil(t, like.NumLikes)
	assert.Equal(t, int64(11), *like.NumLikes)
	assert.Equal(t, []string{"like"}, s.site.likeRequests())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newStack(t)
	s.site.set("1", liveSnapshot(1))

	resp, body := s.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health api.HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Storage)
	assert.Equal(t, "connected", health.Notifications)

	resp, _ = s.do(t, http.MethodPost, "/api/players/1", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, body := s.do(t, http.MethodGet, "/metrics", nil)
		return strings.Contains(string(body), `marquee_player_events_total{action="play",mode="live"} 1`)
	}, waitFor, tick)
}
