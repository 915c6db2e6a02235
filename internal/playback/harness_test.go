package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/marquee/internal/analytics"
	"github.com/stwalsh4118/marquee/internal/element"
	"github.com/stwalsh4118/marquee/internal/models"
	"github.com/stwalsh4118/marquee/internal/notify"
	"github.com/stwalsh4118/marquee/internal/resume"
)

const (
	testContentID = "1"
	waitFor       = 2 * time.Second
	tick          = 5 * time.Millisecond
)

// mockStateClient is a mock implementation of StateClient
type mockStateClient struct {
	FetchStateFunc       func(ctx context.Context, contentID string) (*models.MediaStateSnapshot, error)
	RegisterWatchingFunc func(ctx context.Context, contentID string, playing bool, position *int64) error
	RegisterLikeFunc     func(ctx context.Context, contentID string, likeType models.LikeType) (bool, error)
	watching             bool
	likes                bool
}

func (m *mockStateClient) FetchState(ctx context.Context, contentID string) (*models.MediaStateSnapshot, error) {
	return m.FetchStateFunc(ctx, contentID)
}

func (m *mockStateClient) RegisterWatching(ctx context.Context, contentID string, playing bool, position *int64) error {
	if m.RegisterWatchingFunc != nil {
		return m.RegisterWatchingFunc(ctx, contentID, playing, position)
	}
	return nil
}

func (m *mockStateClient) RegisterLike(ctx context.Context, contentID string, likeType models.LikeType) (bool, error) {
	if m.RegisterLikeFunc != nil {
		return m.RegisterLikeFunc(ctx, contentID, likeType)
	}
	return true, nil
}

func (m *mockStateClient) WatchingEnabled() bool { return m.watching }

func (m *mockStateClient) LikesEnabled() bool { return m.likes }

// snapshotServer hands out copies of the current snapshot and counts fetches
type snapshotServer struct {
	mu    sync.Mutex
	snap  *models.MediaStateSnapshot
	err   error
	calls int
}

func (s *snapshotServer) fetch(_ context.Context, _ string) (*models.MediaStateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	c := *s.snap
	return &c, nil
}

func (s *snapshotServer) set(snap *models.MediaStateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func (s *snapshotServer) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// countingElement records every source it is given
type countingElement struct {
	*element.Simulated

	mu      sync.Mutex
	sources [][]models.MediaURI
}

func (e *countingElement) SetSource(uris []models.MediaURI) {
	e.mu.Lock()
	e.sources = append(e.sources, append([]models.MediaURI(nil), uris...))
	e.mu.Unlock()
	e.Simulated.SetSource(uris)
}

func (e *countingElement) loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sources)
}

func (e *countingElement) lastSource() []models.MediaURI {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sources) == 0 {
		return nil
	}
	return e.sources[len(e.sources)-1]
}

type eventRecorder struct {
	mu     sync.Mutex
	events []EventKind
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Kind)
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.events {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type report struct {
	action analytics.Action
	mode   models.PlaybackMode
}

type mockReporter struct {
	mu      sync.Mutex
	reports []report
}

func (m *mockReporter) Report(action analytics.Action, mode models.PlaybackMode, _ string, _ *float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report{action: action, mode: mode})
}

func (m *mockReporter) count(action analytics.Action) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reports {
		if r.action == action {
			n++
		}
	}
	return n
}

type harness struct {
	t        *testing.T
	o        *Orchestrator
	server   *snapshotServer
	client   *mockStateClient
	hub      *notify.Hub
	store    *resume.Store
	reporter *mockReporter
	events   *eventRecorder

	mu sync.Mutex
	el *countingElement
}

type harnessOption func(h *harness, cfg *Config)

func withClient(fn func(c *mockStateClient)) harnessOption {
	return func(h *harness, _ *Config) { fn(h.client) }
}

func withConfig(fn func(cfg *Config)) harnessOption {
	return func(_ *harness, cfg *Config) { fn(cfg) }
}

// newHarness builds an unstarted orchestrator serving snap. Every interval
// defaults to an hour so only the timers a test shortens fire.
func newHarness(t *testing.T, snap *models.MediaStateSnapshot, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		server:   &snapshotServer{snap: snap},
		hub:      notify.NewHub(),
		store:    resume.NewStore(resume.NewMemoryStorage(), 0),
		reporter: &mockReporter{},
		events:   &eventRecorder{},
	}
	h.client = &mockStateClient{FetchStateFunc: h.server.fetch}

	cfg := Config{
		ContentID:             testContentID,
		PollInterval:          time.Hour,
		ConnectedPollInterval: time.Hour,
		HeartbeatInterval:     time.Hour,
		WatchingInterval:      time.Hour,
		RememberInterval:      time.Hour,
	}
	for _, opt := range opts {
		opt(h, &cfg)
	}

	o, err := New(cfg, Dependencies{
		Client: h.client,
		Elements: func(string) (element.Adapter, error) {
			el := &countingElement{Simulated: element.NewSimulated(element.SimulatedConfig{Duration: 3600})}
			h.mu.Lock()
			h.el = el
			h.mu.Unlock()
			return el, nil
		},
		Bridge:    h.hub,
		Resume:    h.store,
		Analytics: h.reporter,
	})
	require.NoError(t, err)
	h.o = o
	o.Subscribe(h.events.record)

	t.Cleanup(func() {
		o.Destroy()
		select {
		case <-o.Done():
		case <-time.After(waitFor):
			t.Error("orchestrator did not shut down")
		}
	})
	return h
}

func (h *harness) element() *countingElement {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.el
}

// startAndLoad starts the orchestrator and waits for the first reconciliation
func (h *harness) startAndLoad() *countingElement {
	h.t.Helper()
	h.o.Start()
	require.Eventually(h.t, h.o.Loaded, waitFor, tick)
	el := h.element()
	require.NotNil(h.t, el)
	return el
}

func liveSnapshot() *models.MediaStateSnapshot {
	return &models.MediaStateSnapshot{
		ID:              1,
		Title:           "Launch",
		URI:             "https://site.example/v/1",
		HasStream:       true,
		StreamState:     statePtr(models.StreamStateLive),
		StreamURIGroups: []models.URIGroup{group(1, "HD", models.MediaURI{URI: "a"})},
	}
}

func vodSnapshot() *models.MediaStateSnapshot {
	source := models.SourceID("src-1")
	return &models.MediaStateSnapshot{
		ID:          1,
		Title:       "Launch",
		URI:         "https://site.example/v/1",
		HasVod:      true,
		VodLive:     boolPtr(true),
		VodSourceID: &source,
		VodURIGroups: []models.URIGroup{
			group(1, "HD", models.MediaURI{URI: "hd.m3u8"}),
			group(2, "SD", models.MediaURI{URI: "sd.m3u8"}),
		},
	}
}
