//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/marquee/internal/analytics"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/device"
	"github.com/stwalsh4118/marquee/internal/models"
	"github.com/stwalsh4118/marquee/internal/notify"
	"github.com/stwalsh4118/marquee/internal/playback"
	"github.com/stwalsh4118/marquee/internal/player"
	"github.com/stwalsh4118/marquee/internal/resume"
	"github.com/stwalsh4118/marquee/internal/server"
	"github.com/stwalsh4118/marquee/internal/siteapi"
)

const (
	redisChannel = "marquee:test"
	waitFor      = 3 * time.Second
	tick         = 10 * time.Millisecond
)

// fakeSite serves player info snapshots and accepts watching and like requests
type fakeSite struct {
	mu        sync.Mutex
	snapshots map[string]*models.MediaStateSnapshot
	likes     []string
	watching  int
	server    *httptest.Server
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	site := &fakeSite{snapshots: make(map[string]*models.MediaStateSnapshot)}

	mux := http.NewServeMux()
	mux.HandleFunc("/player/{id}/playerinfo", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		snap, ok := site.snapshots[r.PathValue("id")]
		var body []byte
		if ok {
			body, _ = json.Marshal(snap)
		}
		site.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/player/{id}/register-watching", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.watching++
		site.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/player/{id}/register-like", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		site.mu.Lock()
		site.likes = append(site.likes, r.PostForm.Get("type"))
		site.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func (s *fakeSite) set(id string, snap *models.MediaStateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = snap
}

func (s *fakeSite) likeRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.likes...)
}

// stack is a fully wired daemon listening on an httptest server
type stack struct {
	site    *fakeSite
	redis   *miniredis.Miniredis
	hub     *notify.Hub
	store   *resume.Store
	manager *player.Manager
	api     *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()

	site := newFakeSite(t)
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Logging: config.LoggingConfig{Level: "error"},
		Site: config.SiteConfig{
			BaseURL:              site.server.URL,
			PlayerInfoPath:       "/player/{id}/playerinfo",
			RegisterWatchingPath: "/player/{id}/register-watching",
			RegisterLikePath:     "/player/{id}/register-like",
			RequestTimeout:       2 * time.Second,
		},
		Player: config.PlayerConfig{
			Device:                "desktop",
			Engine:                "simulated",
			AutoPlayVod:           true,
			AutoPlayStream:        true,
			PollInterval:          time.Hour,
			ConnectedPollInterval: time.Hour,
			HeartbeatInterval:     time.Hour,
			WatchingInterval:      time.Hour,
			RememberInterval:      20 * time.Millisecond,
		},
		Resume: config.ResumeConfig{
			Backend:   resume.BackendSQLite,
			Path:      filepath.Join(t.TempDir(), "marquee.db"),
			Retention: 24 * time.Hour,
		},
		Notifications: config.NotificationsConfig{
			Source:       "redis",
			RedisAddr:    mr.Addr(),
			RedisChannel: redisChannel,
		},
		Analytics: config.AnalyticsConfig{Metrics: true, QueueSize: 16},
		Manager:   config.ManagerConfig{MaxPlayers: 4},
	}

	store, err := resume.Open(&cfg.Resume)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := notify.NewHub()
	feed, err := notify.OpenFeed(&cfg.Notifications, hub)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = feed.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, hub.IsConnected, waitFor, tick, "redis feed never subscribed")

	reg := prometheus.NewRegistry()
	reporter, metrics := analytics.Build(&cfg.Analytics, reg)
	reporter.Start()
	t.Cleanup(reporter.Stop)

	elements, err := player.ElementFactory(&cfg.Player)
	require.NoError(t, err)

	manager := player.NewManager(&cfg.Manager, &cfg.Player, player.NewBuilder(playback.Dependencies{
		Client:    siteapi.New(&cfg.Site),
		Elements:  elements,
		Bridge:    hub,
		Resume:    store,
		Analytics: reporter,
		Filter:    device.NewFilter(device.Parse(cfg.Player.Device)),
	}))
	manager.OnClose(metrics.Forget)
	require.NoError(t, manager.Start())
	t.Cleanup(manager.Stop)

	srv := server.New(cfg, manager, store, hub, reg)
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &stack{site: site, redis: mr, hub: hub, store: store, manager: manager, api: api}
}

func (s *stack) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.api.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

// status fetches the player status through the API
func (s *stack) status(t *testing.T, id string) playback.Status {
	t.Helper()
	resp, body := s.do(t, http.MethodGet, "/api/players/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var pr struct {
		Status playback.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &pr))
	return pr.Status
}

func (s *stack) notify(t *testing.T, event notify.Event, id string) {
	t.Helper()
	s.redis.Publish(redisChannel, `{"eventId":"mediaItem.`+string(event)+`","payload":{"id":"`+id+`"}}`)
}

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }

func statePtr(s models.StreamState) *models.StreamState { return &s }

func liveSnapshot(id int64) *models.MediaStateSnapshot {
	return &models.MediaStateSnapshot{
		ID:              id,
		Title:           "Launch",
		HasStream:       true,
		StreamState:     statePtr(models.StreamStateLive),
		StreamViewCount: int64Ptr(120),
		NumLikes:        int64Ptr(10),
		NumDislikes:     int64Ptr(1),
		StreamURIGroups: []models.URIGroup{
			{Quality: models.Quality{ID: 1, Name: "HD"}, URIs: []models.MediaURI{{URI: "live-hd.m3u8", Type: "application/x-mpegURL"}}},
		},
	}
}

func vodSnapshot(id int64) *models.MediaStateSnapshot {
	source := models.SourceID(fmt.Sprintf("src-%d", id))
	snap := liveSnapshot(id)
	snap.StreamState = statePtr(models.StreamStateShowOver)
	snap.StreamURIGroups = nil
	snap.HasVod = true
	snap.VodLive = boolPtr(true)
	snap.VodSourceID = &source
	snap.VodViewCount = int64Ptr(30)
	snap.VodURIGroups = []models.URIGroup{
		{Quality: models.Quality{ID: 1, Name: "HD"}, URIs: []models.MediaURI{{URI: "vod-hd.m3u8"}}},
		{Quality: models.Quality{ID: 2, Name: "SD"}, URIs: []models.MediaURI{{URI: "vod-sd.m3u8"}}},
	}
	return snap
}

func floatPtr(v float64) *float64 { return &v }
