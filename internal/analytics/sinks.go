package analytics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/logger"
)

// ErrRateLimited is returned by HTTPSink when the collector budget is exhausted
var ErrRateLimited = errors.New("analytics collector rate limit exceeded")

// LogSink writes every event to the log
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink
func NewLogSink() *LogSink {
	return &LogSink{log: logger.Component("analytics")}
}

// Name implements Sink
func (s *LogSink) Name() string { return "log" }

// Handle implements Sink
func (s *LogSink) Handle(_ context.Context, ev Event) error {
	e := s.log.Info().
		Str("action", string(ev.Action)).
		Str("mode", ev.Mode.String()).
		Str("content_id", ev.ContentID)
	if ev.CurrentTime != nil {
		e = e.Float64("current_time", *ev.CurrentTime)
	}
	e.Msg("Playback event")
	return nil
}

// MetricsSink counts events in prometheus
type MetricsSink struct {
	events   *prometheus.CounterVec
	position *prometheus.GaugeVec
}

// NewMetricsSink registers the player metrics with reg
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)
	return &MetricsSink{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marquee_player_events_total",
			Help: "Total number of playback events by action and mode",
		}, []string{"action", "mode"}),
		position: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marquee_player_position_seconds",
			Help: "Last reported playback position per content item",
		}, []string{"content_id"}),
	}
}

// Name implements Sink
func (s *MetricsSink) Name() string { return "metrics" }

// Handle implements Sink
func (s *MetricsSink) Handle(_ context.Context, ev Event) error {
	s.events.WithLabelValues(string(ev.Action), ev.Mode.String()).Inc()
	if ev.CurrentTime != nil {
		s.position.WithLabelValues(ev.ContentID).Set(*ev.CurrentTime)
	}
	return nil
}

// Forget removes the position series of a content item
func (s *MetricsSink) Forget(contentID string) {
	s.position.DeleteLabelValues(contentID)
}

// HTTPSink posts events as JSON to a collector. Requests are rate limited
// and pass through a circuit breaker so a dead collector is not hammered.
type HTTPSink struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[struct{}]
	log     zerolog.Logger
}

// NewHTTPSink creates a sink posting to url
func NewHTTPSink(url string, timeout time.Duration, limit float64, burst int) *HTTPSink {
	log := logger.Component("analytics")
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "analytics-collector",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
		},
	})
	return &HTTPSink{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		cb:      cb,
		log:     log,
	}
}

// Name implements Sink
func (s *HTTPSink) Name() string { return "http" }

// State exposes the breaker state
func (s *HTTPSink) State() gobreaker.State {
	return s.cb.State()
}

// Handle implements Sink
func (s *HTTPSink) Handle(ctx context.Context, ev Event) error {
	if !s.limiter.Allow() {
		return ErrRateLimited
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = s.cb.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return struct{}{}, fmt.Errorf("collector returned status %d", resp.StatusCode)
		}
		return struct{}{}, nil
	})
	return err
}

// Build creates a reporter with the sinks enabled in cfg. The metrics sink
// is returned separately so callers can drop per-content series.
func Build(cfg *config.AnalyticsConfig, reg prometheus.Registerer) (*Reporter, *MetricsSink) {
	var (
		sinks   []Sink
		metrics *MetricsSink
	)
	if cfg.Log {
		sinks = append(sinks, NewLogSink())
	}
	if cfg.Metrics && reg != nil {
		metrics = NewMetricsSink(reg)
		sinks = append(sinks, metrics)
	}
	if cfg.CollectorURL != "" {
		sinks = append(sinks, NewHTTPSink(cfg.CollectorURL, cfg.CollectorTimeout, cfg.RateLimit, cfg.Burst))
	}
	return NewReporter(cfg.QueueSize, sinks...), metrics
}
