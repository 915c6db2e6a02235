// Package player keeps one playback orchestrator per content item open for
// the daemon and closes the ones nobody has touched for a while.
package player

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/playback"
)

// Common errors
var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrManagerStopped = errors.New("player manager has been stopped")
	ErrTooManyPlayers = errors.New("too many open players")
)

const destroyTimeout = 5 * time.Second

// IsNotFound checks if an error is a player not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlayerNotFound)
}

// Builder creates an unstarted orchestrator
type Builder func(cfg playback.Config) (*playback.Orchestrator, error)

// NewBuilder returns a Builder sharing deps between every player
func NewBuilder(deps playback.Dependencies) Builder {
	return func(cfg playback.Config) (*playback.Orchestrator, error) {
		return playback.New(cfg, deps)
	}
}

// OpenOptions overrides the configured player settings for one player
type OpenOptions struct {
	AutoPlayVod    *bool    `json:"auto_play_vod"`
	AutoPlayStream *bool    `json:"auto_play_stream"`
	VodStartTime   *float64 `json:"vod_start_time"`
	Override       bool     `json:"override"`
}

// Session is an open player
type Session struct {
	ContentID string
	Player    *playback.Orchestrator
	CreatedAt time.Time

	lastAccess atomic.Int64
}

// Touch records an access at now
func (s *Session) Touch(now time.Time) {
	s.lastAccess.Store(now.UnixNano())
}

// LastAccess returns when the player was last used
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// Manager owns the open players
type Manager struct {
	cfg     *config.ManagerConfig
	player  *config.PlayerConfig
	build   Builder
	onClose func(contentID string)
	now     func() time.Time
	log     zerolog.Logger

	sessions      map[string]*Session
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	cleanupDone   chan struct{}
	mu            sync.RWMutex
	stopped       bool
}

// NewManager creates a manager building players with build
func NewManager(cfg *config.ManagerConfig, playerCfg *config.PlayerConfig, build Builder) *Manager {
	return &Manager{
		cfg:         cfg,
		player:      playerCfg,
		build:       build,
		now:         time.Now,
		log:         logger.Component("player"),
		sessions:    make(map[string]*Session),
		stopChan:    make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// OnClose registers fn to run after a player is closed
func (m *Manager) OnClose(fn func(contentID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// Start launches the idle cleanup loop
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrManagerStopped
	}
	if m.cleanupTicker != nil || m.cfg.CleanupInterval <= 0 {
		return nil
	}

	m.cleanupTicker = time.NewTicker(m.cfg.CleanupInterval)
	go m.runCleanupLoop()

	m.log.Info().
		Dur("cleanup_interval", m.cfg.CleanupInterval).
		Dur("idle_timeout", m.cfg.IdleTimeout).
		Int("max_players", m.cfg.MaxPlayers).
		Msg("Player manager started")
	return nil
}

// Stop closes every player and the cleanup loop
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	ticker := m.cleanupTicker
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	close(m.stopChan)
	if ticker != nil {
		<-m.cleanupDone
		ticker.Stop()
	}

	for _, s := range sessions {
		m.destroy(s)
	}
	m.log.Info().Int("closed_players", len(sessions)).Msg("Player manager stopped")
}

// Open returns the player for contentID, creating and starting it if needed.
// Options only apply when the player is created.
func (m *Manager) Open(contentID string, opts OpenOptions) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, false, ErrManagerStopped
	}
	now := m.now()
	if existing, ok := m.sessions[contentID]; ok {
		existing.Touch(now)
		return existing, false, nil
	}
	if m.cfg.MaxPlayers > 0 && len(m.sessions) >= m.cfg.MaxPlayers {
		return nil, false, ErrTooManyPlayers
	}

	cfg := playback.ConfigFromSettings(contentID, m.player)
	if opts.AutoPlayVod != nil {
		cfg.AutoPlayVod = *opts.AutoPlayVod
	}
	if opts.AutoPlayStream != nil {
		cfg.AutoPlayStream = *opts.AutoPlayStream
	}
	cfg.VodStartTime = opts.VodStartTime

	o, err := m.build(cfg)
	if err != nil {
		return nil, false, err
	}
	if opts.Override {
		o.EnableOverrideMode(true)
	}

	s := &Session{ContentID: contentID, Player: o, CreatedAt: now}
	s.Touch(now)
	m.sessions[contentID] = s
	o.Start()

	m.log.Info().
		Str("content_id", contentID).
		Int("open_players", len(m.sessions)).
		Msg("Player opened")
	return s, true, nil
}

// Get returns the open player for contentID and records the access
func (m *Manager) Get(contentID string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[contentID]
	m.mu.RUnlock()
	if ok {
		s.Touch(m.now())
	}
	return s, ok
}

// Close destroys the player for contentID
func (m *Manager) Close(contentID string) error {
	m.mu.Lock()
	s, ok := m.sessions[contentID]
	if ok {
		delete(m.sessions, contentID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrPlayerNotFound
	}
	m.destroy(s)
	m.log.Info().Str("content_id", contentID).Msg("Player closed")
	return nil
}

// List returns the open players ordered by content id
func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ContentID < sessions[j].ContentID
	})
	return sessions
}

// Len returns the number of open players
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) destroy(s *Session) {
	s.Player.Destroy()
	select {
	case <-s.Player.Done():
	case <-time.After(destroyTimeout):
		m.log.Warn().Str("content_id", s.ContentID).Msg("Player did not stop in time")
	}

	m.mu.RLock()
	onClose := m.onClose
	m.mu.RUnlock()
	if onClose != nil {
		onClose(s.ContentID)
	}
}

func (m *Manager) runCleanupLoop() {
	defer close(m.cleanupDone)

	for {
		select {
		case <-m.stopChan:
			return
		case <-m.cleanupTicker.C:
			m.performCleanup()
		}
	}
}

// performCleanup closes players idle for longer than the idle timeout
func (m *Manager) performCleanup() {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastAccess().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.log.Info().
			Str("content_id", s.ContentID).
			Time("last_access", s.LastAccess()).
			Msg("Closing idle player")
		m.destroy(s)
	}
}
