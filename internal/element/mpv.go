package element

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/models"
)

const (
	defaultMPVBinary       = "mpv"
	defaultStartupTimeout  = 5 * time.Second
	socketPollInterval     = 50 * time.Millisecond
	observeTimePos         = 1
	observePause           = 2
	observeDuration        = 3
	observeEOFReached      = 4
	propertyChangeEvent    = "property-change"
	fileLoadedEvent        = "file-loaded"
	ipcTimeUpdateThreshold = 0.25
)

// MPVConfig configures the mpv element
type MPVConfig struct {
	Binary         string
	SocketDir      string
	ExtraArgs      []string
	StartupTimeout time.Duration
}

// MPVFactory returns a Factory launching one mpv process per player
func MPVFactory(cfg MPVConfig) Factory {
	return func(contentID string) (Adapter, error) {
		return NewMPV(cfg, contentID)
	}
}

type ipcCommand struct {
	Command   []interface{} `json:"command"`
	RequestID int64         `json:"request_id,omitempty"`
}

type ipcMessage struct {
	Event string          `json:"event"`
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// MPV drives an mpv process through its JSON IPC socket
type MPV struct {
	cmd        *exec.Cmd
	socketPath string
	conn       net.Conn

	writeMu   sync.Mutex
	requestID int64

	mu           sync.Mutex
	start        pendingStart
	snapPending  bool
	loaded       bool
	position     *float64
	duration     float64
	paused       *bool
	ended        bool
	destroyed    bool
	presentation Presentation
	subs         listeners

	done chan struct{}
}

// NewMPV launches mpv in idle mode and connects to its IPC socket
func NewMPV(cfg MPVConfig, contentID string) (*MPV, error) {
	if cfg.Binary == "" {
		cfg.Binary = defaultMPVBinary
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if cfg.SocketDir == "" {
		cfg.SocketDir = os.TempDir()
	}

	socketPath := filepath.Join(cfg.SocketDir, fmt.Sprintf("marquee-%s-%s.sock", contentID, uuid.NewString()[:8]))
	args := append([]string{
		"--idle=yes",
		"--no-terminal",
		"--keep-open=yes",
		"--input-ipc-server=" + socketPath,
	}, cfg.ExtraArgs...)

	cmd, err := launchProcess(cfg.Binary, args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupTimeout)
	defer cancel()

	conn, err := dialSocket(ctx, socketPath)
	if err != nil {
		_ = terminateProcess(cmd)
		return nil, fmt.Errorf("failed to connect to mpv ipc socket: %w", err)
	}

	m := newMPV(conn)
	m.cmd = cmd
	m.socketPath = socketPath
	return m, nil
}

func dialSocket(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(socketPollInterval):
		}
	}
}

// newMPV wires an element to an established IPC connection
func newMPV(conn net.Conn) *MPV {
	m := &MPV{
		conn: conn,
		done: make(chan struct{}),
	}
	go m.readLoop()

	m.send("observe_property", observeTimePos, "time-pos")
	m.send("observe_property", observePause, "pause")
	m.send("observe_property", observeDuration, "duration")
	m.send("observe_property", observeEOFReached, "eof-reached")
	return m
}

func (m *MPV) send(args ...interface{}) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.requestID++
	data, err := json.Marshal(ipcCommand{Command: args, RequestID: m.requestID})
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to encode mpv command")
		return
	}
	data = append(data, '\n')
	if _, err := m.conn.Write(data); err != nil {
		logger.Log.Debug().Err(err).Interface("command", args).Msg("Failed to write mpv command")
	}
}

func (m *MPV) readLoop() {
	defer close(m.done)

	scanner := bufio.NewScanner(m.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			logger.Log.Debug().Err(err).Msg("Ignoring malformed mpv message")
			continue
		}
		m.handle(msg)
	}
}

func (m *MPV) handle(msg ipcMessage) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}

	var (
		events []Event
		seekTo *float64
	)

	switch msg.Event {
	case fileLoadedEvent:
		m.loaded = true
		m.ended = false
		events = append(events, Event{Kind: EventLoadedMetadata, Time: m.position})
	case propertyChangeEvent:
		switch msg.ID {
		case observeTimePos:
			var pos *float64
			_ = json.Unmarshal(msg.Data, &pos)
			prev := m.position
			m.position = pos
			if m.loaded && pos != nil && (prev == nil || abs(*pos-*prev) >= ipcTimeUpdateThreshold) {
				events = append(events, Event{Kind: EventTimeUpdate, Time: floatPtr(*pos)})
			}
		case observePause:
			var paused bool
			if err := json.Unmarshal(msg.Data, &paused); err == nil {
				changed := m.paused == nil || *m.paused != paused
				m.paused = boolPtr(paused)
				if changed && m.loaded {
					kind := EventPlay
					if paused {
						kind = EventPause
					}
					events = append(events, Event{Kind: kind, Time: m.position})
				}
			}
		case observeDuration:
			var d *float64
			_ = json.Unmarshal(msg.Data, &d)
			if d != nil {
				m.duration = *d
				if m.snapPending {
					m.snapPending = false
					if target := ResolveStartTime(m.start.seconds, m.duration); target != m.start.seconds {
						seekTo = floatPtr(target)
					}
				}
			}
		case observeEOFReached:
			var eof bool
			if err := json.Unmarshal(msg.Data, &eof); err == nil && eof && !m.ended && m.loaded {
				m.ended = true
				events = append(events, Event{Kind: EventEnded, Time: m.position})
			}
		}
	}
	fns := m.subs.snapshot()
	m.mu.Unlock()

	if seekTo != nil {
		m.send("seek", *seekTo, "absolute")
	}
	emit(fns, events...)
}

// SetSource loads the first URI, honouring the pending start configuration
func (m *MPV) SetSource(uris []models.MediaURI) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	start := m.start
	m.start = pendingStart{}
	m.loaded = false
	m.ended = false
	m.position = nil
	m.duration = 0

	if len(uris) == 0 {
		m.paused = nil
		m.snapPending = false
		m.mu.Unlock()
		m.send("stop")
		return
	}
	m.start = start
	m.snapPending = start.snap
	m.mu.Unlock()

	m.send("set_property", "start", strconv.FormatFloat(start.seconds, 'f', 3, 64))
	m.send("set_property", "pause", !start.autoplay)
	m.send("loadfile", uris[0].URI, "replace")
}

// SetStartTime configures the next SetSource
func (m *MPV) SetStartTime(seconds float64, autoplay bool, snapCorrect bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start = pendingStart{seconds: seconds, autoplay: autoplay, snap: snapCorrect}
}

// Play resumes playback
func (m *MPV) Play() {
	if m.Initialized() {
		m.send("set_property", "pause", false)
	}
}

// Pause pauses playback
func (m *MPV) Pause() {
	if m.Initialized() {
		m.send("set_property", "pause", true)
	}
}

// JumpToTime seeks to an absolute position
func (m *MPV) JumpToTime(seconds float64, startPlaying bool) {
	if !m.Initialized() {
		return
	}
	m.send("seek", seconds, "absolute")
	if startPlaying {
		m.send("set_property", "pause", false)
	}
}

// CurrentTime returns the last reported position
func (m *MPV) CurrentTime() *float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || m.position == nil {
		return nil
	}
	return floatPtr(*m.position)
}

// Paused returns the last reported pause state
func (m *MPV) Paused() *bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || m.paused == nil {
		return nil
	}
	return boolPtr(*m.paused)
}

// Ended reports whether the end of the file was reached
func (m *MPV) Ended() *bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return nil
	}
	return boolPtr(m.ended)
}

// Initialized reports whether a file is loaded
func (m *MPV) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded && !m.destroyed
}

// Present updates the window title, mpv has no overlay for the rest
func (m *MPV) Present(p Presentation) {
	m.mu.Lock()
	changed := m.presentation.Title != p.Title
	m.presentation = p
	destroyed := m.destroyed
	m.mu.Unlock()

	if changed && !destroyed && p.Title != "" {
		m.send("set_property", "title", p.Title)
	}
}

// Subscribe registers fn for element events
func (m *MPV) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.subs.add(fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs.remove(id)
	}
}

// Destroy closes the IPC connection and terminates mpv
func (m *MPV) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.subs = listeners{}
	m.mu.Unlock()

	m.send("quit")
	_ = m.conn.Close()
	<-m.done

	if m.cmd != nil {
		if err := terminateProcess(m.cmd); err != nil && !errors.Is(err, ErrProcessNotFound) {
			logger.Log.Warn().Err(err).Msg("Failed to terminate mpv")
		}
	}
	if m.socketPath != "" {
		_ = os.Remove(m.socketPath)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
