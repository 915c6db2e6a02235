package analytics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Handle(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func ptr(f float64) *float64 { return &f }

func TestReporter_DeliversToEverySink(t *testing.T) {
	defer goleak.VerifyNone(t)

	first := &recordingSink{err: errors.New("sink down")}
	second := &recordingSink{}
	r := NewReporter(8, first, second)
	r.Start()

	r.Report(ActionPlay, models.ModeVOD, "42", ptr(12))
	r.Report(ActionPlaying, models.ModeVOD, "42", ptr(22))
	r.Stop()

	for _, sink := range []*recordingSink{first, second} {
		events := sink.snapshot()
		require.Len(t, events, 2)
		assert.Equal(t, ActionPlay, events[0].Action)
		assert.Equal(t, ActionPlaying, events[1].Action)
		assert.Equal(t, "42", events[0].ContentID)
		assert.Equal(t, r.SessionID(), events[0].SessionID)
		assert.NotEqual(t, events[0].ID, events[1].ID)
	}
}

func TestReporter_DropsWhenQueueFull(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(1, sink)

	r.Report(ActionPlay, models.ModeLive, "1", nil)
	r.Report(ActionPause, models.ModeLive, "1", nil)
	r.Report(ActionEnded, models.ModeLive, "1", nil)
	assert.Equal(t, uint64(2), r.Dropped())

	r.Start()
	r.Stop()
	require.Len(t, sink.snapshot(), 1)
	assert.Equal(t, ActionPlay, sink.snapshot()[0].Action)
}

func TestReporter_ReportAfterStopIsIgnored(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(4, sink)
	r.Start()
	r.Stop()
	r.Stop()

	r.Report(ActionPlay, models.ModeVOD, "1", nil)
	assert.Empty(t, sink.snapshot())
	assert.Zero(t, r.Dropped())
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetricsSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewMetricsSink(reg)

	ctx := context.Background()
	require.NoError(t, sink.Handle(ctx, Event{Action: ActionPlaying, Mode: models.ModeVOD, ContentID: "7", CurrentTime: ptr(40)}))
	require.NoError(t, sink.Handle(ctx, Event{Action: ActionPlaying, Mode: models.ModeVOD, ContentID: "7", CurrentTime: ptr(50)}))
	require.NoError(t, sink.Handle(ctx, Event{Action: ActionPause, Mode: models.ModeLive, ContentID: "8"}))

	assert.Equal(t, 2.0, counterValue(t, sink.events.WithLabelValues("playing", "vod")))
	assert.Equal(t, 1.0, counterValue(t, sink.events.WithLabelValues("pause", "live")))

	var m dto.Metric
	require.NoError(t, sink.position.WithLabelValues("7").Write(&m))
	assert.Equal(t, 50.0, m.GetGauge().GetValue())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "marquee_player_events_total")
	assert.Contains(t, names, "marquee_player_position_seconds")
}

func TestHTTPSink_PostsJSON(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, time.Second, 100, 10)
	err := sink.Handle(context.Background(), Event{ID: "e1", Action: ActionPlay, Mode: models.ModeLive, ContentID: "3"})
	require.NoError(t, err)
	assert.Equal(t, "e1", received.ID)
	assert.Equal(t, ActionPlay, received.Action)
	assert.Equal(t, models.ModeLive, received.Mode)
}

func TestHTTPSink_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, time.Second, 1000, 100)
	for i := 0; i < 5; i++ {
		assert.Error(t, sink.Handle(context.Background(), Event{Action: ActionPlay}))
	}
	assert.Equal(t, gobreaker.StateOpen, sink.State())

	err := sink.Handle(context.Background(), Event{Action: ActionPlay})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), calls.Load())
}

func TestHTTPSink_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, time.Second, 0.001, 1)
	require.NoError(t, sink.Handle(context.Background(), Event{Action: ActionPlay}))
	assert.ErrorIs(t, sink.Handle(context.Background(), Event{Action: ActionPlay}), ErrRateLimited)
}

func TestBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, metrics := Build(&config.AnalyticsConfig{
		Log:          true,
		Metrics:      true,
		CollectorURL: "http://collector.invalid/events",
		QueueSize:    4,
		RateLimit:    1,
		Burst:        1,
	}, reg)
	require.NotNil(t, metrics)
	require.Len(t, r.sinks, 3)
	assert.Equal(t, "log", r.sinks[0].Name())
	assert.Equal(t, "metrics", r.sinks[1].Name())
	assert.Equal(t, "http", r.sinks[2].Name())

	r, metrics = Build(&config.AnalyticsConfig{QueueSize: 4}, reg)
	assert.Nil(t, metrics)
	assert.Empty(t, r.sinks)
}
