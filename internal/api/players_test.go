package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/marquee/internal/element"
	"github.com/stwalsh4118/marquee/internal/models"
	"github.com/stwalsh4118/marquee/internal/playback"
	"github.com/stwalsh4118/marquee/internal/player"
)

// mockPlayerManager is a test helper that implements playerManager
type mockPlayerManager struct {
	openFunc  func(contentID string, opts player.OpenOptions) (*player.Session, bool, error)
	getFunc   func(contentID string) (*player.Session, bool)
	closeFunc func(contentID string) error
	listFunc  func() []*player.Session
}

func (m *mockPlayerManager) Open(contentID string, opts player.OpenOptions) (*player.Session, bool, error) {
	if m.openFunc != nil {
		return m.openFunc(contentID, opts)
	}
	return nil, false, nil
}

func (m *mockPlayerManager) Get(contentID string) (*player.Session, bool) {
	if m.getFunc != nil {
		return m.getFunc(contentID)
	}
	return nil, false
}

func (m *mockPlayerManager) Close(contentID string) error {
	if m.closeFunc != nil {
		return m.closeFunc(contentID)
	}
	return nil
}

func (m *mockPlayerManager) List() []*player.Session {
	if m.listFunc != nil {
		return m.listFunc()
	}
	return nil
}

// stubClient serves a live stream with two qualities
type stubClient struct {
	likes   bool
	likeErr error
}

func (c *stubClient) FetchState(context.Context, string) (*models.MediaStateSnapshot, error) {
	state := models.StreamStateLive
	likes, dislikes := int64(10), int64(1)
	return &models.MediaStateSnapshot{
		URI:         "https://site.example/v/1",
		HasStream:   true,
		StreamState: &state,
		StreamURIGroups: []models.URIGroup{
			{Quality: models.Quality{ID: 1, Name: "HD"}, URIs: []models.MediaURI{{URI: "hd"}}},
			{Quality: models.Quality{ID: 2, Name: "SD"}, URIs: []models.MediaURI{{URI: "sd"}}},
		},
		NumLikes:    &likes,
		NumDislikes: &dislikes,
	}, nil
}

func (c *stubClient) RegisterWatching(context.Context, string, bool, *int64) error { return nil }

func (c *stubClient) RegisterLike(context.Context, string, models.LikeType) (bool, error) {
	if c.likeErr != nil {
		return false, c.likeErr
	}
	return true, nil
}

func (c *stubClient) WatchingEnabled() bool { return false }

func (c *stubClient) LikesEnabled() bool { return c.likes }

// newTestSession opens a loaded player backed by a simulated element
func newTestSession(t *testing.T, client *stubClient) *player.Session {
	t.Helper()
	o, err := playback.New(playback.Config{ContentID: "1", PollInterval: time.Hour, HeartbeatInterval: time.Hour},
		playback.Dependencies{
			Client:   client,
			Elements: element.SimulatedFactory(element.SimulatedConfig{}),
		})
	require.NoError(t, err)
	o.Start()
	t.Cleanup(o.Destroy)
	require.Eventually(t, o.Loaded, 2*time.Second, 5*time.Millisecond)
	return &player.Session{ContentID: "1", Player: o, CreatedAt: time.Now()}
}

func managerWith(s *player.Session) *mockPlayerManager {
	return &mockPlayerManager{
		getFunc: func(contentID string) (*player.Session, bool) {
			if s != nil && contentID == s.ContentID {
				return s, true
			}
			return nil, false
		},
	}
}

// setupPlayerTestRouter creates a test Gin router with player routes
func setupPlayerTestRouter(manager *mockPlayerManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupPlayerRoutes(router.Group("/api"), manager)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOpenPlayer(t *testing.T) {
	session := newTestSession(t, &stubClient{})

	tests := []struct {
		name       string
		body       string
		openErr    error
		created    bool
		wantStatus int
		wantError  string
	}{
		{name: "created", created: true, wantStatus: http.StatusCreated},
		{name: "existing", wantStatus: http.StatusOK},
		{name: "with options", body: `{"auto_play_vod":false,"vod_start_time":30}`, created: true, wantStatus: http.StatusCreated},
		{name: "invalid body", body: `{"vod_start_time":"soon"}`, wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "too many", openErr: player.ErrTooManyPlayers, wantStatus: http.StatusTooManyRequests, wantError: "too_many_players"},
		{name: "stopped", openErr: player.ErrManagerStopped, wantStatus: http.StatusServiceUnavailable, wantError: "service_unavailable"},
		{name: "build failure", openErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantError: "open_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOpts player.OpenOptions
			manager := &mockPlayerManager{
				openFunc: func(contentID string, opts player.OpenOptions) (*player.Session, bool, error) {
					assert.Equal(t, "1", contentID)
					gotOpts = opts
					if tt.openErr != nil {
						return nil, false, tt.openErr
					}
					return session, tt.created, nil
				},
			}
			router := setupPlayerTestRouter(manager)

			w := doRequest(router, http.MethodPost, "/api/players/1", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantError != "" {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantError, resp.Error)
				return
			}

			var resp PlayerResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "1", resp.ContentID)
			assert.Equal(t, "live", resp.Status.Mode)

			if tt.body != "" {
				require.NotNil(t, gotOpts.AutoPlayVod)
				assert.False(t, *gotOpts.AutoPlayVod)
				require.NotNil(t, gotOpts.VodStartTime)
				assert.Equal(t, 30.0, *gotOpts.VodStartTime)
			}
		})
	}
}

func TestGetPlayer(t *testing.T) {
	session := newTestSession(t, &stubClient{})
	router := setupPlayerTestRouter(managerWith(session))

	w := doRequest(router, http.MethodGet, "/api/players/1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp PlayerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "live", resp.Status.Mode)
	assert.True(t, resp.Status.Loaded)
	require.NotNil(t, resp.Status.StreamState)
	assert.Equal(t, models.StreamStateLive, *resp.Status.StreamState)
	assert.Len(t, resp.Status.Qualities, 2)

	w = doRequest(router, http.MethodGet, "/api/players/2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPlayers(t *testing.T) {
	session := newTestSession(t, &stubClient{})
	router := setupPlayerTestRouter(&mockPlayerManager{
		listFunc: func() []*player.Session { return []*player.Session{session} },
	})

	w := doRequest(router, http.MethodGet, "/api/players", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp PlayerListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Players, 1)
	assert.Equal(t, "1", resp.Players[0].ContentID)
}

func TestClosePlayer(t *testing.T) {
	router := setupPlayerTestRouter(&mockPlayerManager{
		closeFunc: func(contentID string) error {
			if contentID == "1" {
				return nil
			}
			return player.ErrPlayerNotFound
		},
	})

	w := doRequest(router, http.MethodDelete, "/api/players/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/players/2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlayPauseSeek(t *testing.T) {
	session := newTestSession(t, &stubClient{})
	router := setupPlayerTestRouter(managerWith(session))

	w := doRequest(router, http.MethodPost, "/api/players/1/play", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, session.Player.Paused())
	assert.False(t, *session.Player.Paused())

	w = doRequest(router, http.MethodPost, "/api/players/1/pause", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, *session.Player.Paused())

	w = doRequest(router, http.MethodPost, "/api/players/1/seek", `{"time":42}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, session.Player.CurrentTime())
	assert.Equal(t, 42.0, *session.Player.CurrentTime())

	w = doRequest(router, http.MethodPost, "/api/players/1/seek", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/players/1/seek", `{"time":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/players/9/play", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLike(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		session := newTestSession(t, &stubClient{likes: true})
		router := setupPlayerTestRouter(managerWith(session))

		w := doRequest(router, http.MethodPost, "/api/players/1/like", `{"type":"like"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp LikeResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, models.LikeTypeLike, resp.LikeType)
		require.NotNil(t, resp.NumLikes)
		assert.Equal(t, int64(11), *resp.NumLikes)
	})

	t.Run("site failure", func(t *testing.T) {
		session := newTestSession(t, &stubClient{likes: true, likeErr: errors.New("status 403")})
		router := setupPlayerTestRouter(managerWith(session))

		w := doRequest(router, http.MethodPost, "/api/players/1/like", `{"type":"dislike"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp LikeResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, models.LikeTypeNone, resp.LikeType)
	})

	t.Run("disabled", func(t *testing.T) {
		session := newTestSession(t, &stubClient{})
		router := setupPlayerTestRouter(managerWith(session))

		w := doRequest(router, http.MethodPost, "/api/players/1/like", `{"type":"like"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid type", func(t *testing.T) {
		session := newTestSession(t, &stubClient{likes: true})
		router := setupPlayerTestRouter(managerWith(session))

		w := doRequest(router, http.MethodPost, "/api/players/1/like", `{"type":"love"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doRequest(router, http.MethodPost, "/api/players/1/like", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSetQuality(t *testing.T) {
	session := newTestSession(t, &stubClient{})
	router := setupPlayerTestRouter(managerWith(session))

	w := doRequest(router, http.MethodPost, "/api/players/1/quality", `{"quality_id":2}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	id, ok := session.Player.ChosenQualityID()
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)

	w = doRequest(router, http.MethodPost, "/api/players/1/quality", `{"quality_id":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unknown_quality", resp.Error)
}

func TestOverrideAndRefresh(t *testing.T) {
	session := newTestSession(t, &stubClient{})
	router := setupPlayerTestRouter(managerWith(session))

	w := doRequest(router, http.MethodPost, "/api/players/1/override", `{"enabled":true}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, session.Player.OverrideModeEnabled, 2*time.Second, 5*time.Millisecond)

	w = doRequest(router, http.MethodPost, "/api/players/1/refresh", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}
