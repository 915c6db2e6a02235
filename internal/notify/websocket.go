package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 32 * time.Second
	readTimeout       = 60 * time.Second
	pingInterval      = 30 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// WebSocketFeed reads notifications from a websocket and reconnects with
// exponential backoff when the connection drops.
type WebSocketFeed struct {
	url        string
	hub        *Hub
	minBackoff time.Duration
	maxBackoff time.Duration
	pingEvery  time.Duration
	dialer     websocket.Dialer
}

// NewWebSocketFeed creates a feed for url. maxBackoff <= 0 uses 32s.
func NewWebSocketFeed(url string, hub *Hub, maxBackoff time.Duration) *WebSocketFeed {
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &WebSocketFeed{
		url:        url,
		hub:        hub,
		minBackoff: defaultMinBackoff,
		maxBackoff: maxBackoff,
		pingEvery:  pingInterval,
		dialer:     websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// Run connects and reads until ctx is cancelled
func (f *WebSocketFeed) Run(ctx context.Context) error {
	delay := f.minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := f.connect(ctx)
		if err != nil {
			log().Info().Err(err).Dur("delay", delay).Msg("Notification websocket unavailable, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			delay *= 2
			if delay > f.maxBackoff {
				delay = f.maxBackoff
			}
			continue
		}

		delay = f.minBackoff
		f.serve(ctx, conn)
	}
}

func (f *WebSocketFeed) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := f.dialer.DialContext(ctx, f.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// serve reads from conn until it fails or ctx ends
func (f *WebSocketFeed) serve(ctx context.Context, conn *websocket.Conn) {
	f.hub.SetConnected(true)
	log().Info().Str("url", f.url).Msg("Notification websocket connected")

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.keepAlive(connCtx, conn)
	}()

	defer func() {
		cancel()
		_ = conn.Close()
		wg.Wait()
		f.hub.SetConnected(false)
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log().Info().Err(err).Msg("Notification websocket read failed")
			}
			return
		}
		dispatch(f.hub, message)
	}
}

// keepAlive pings on an interval and closes conn when ctx ends so the
// blocked reader returns
func (f *WebSocketFeed) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log().Debug().Err(err).Msg("Notification websocket ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}
