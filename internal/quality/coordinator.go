// Package quality tracks the selectable renditions of a player and the chosen one.
package quality

import (
	"errors"
	"sync"

	"github.com/stwalsh4118/marquee/internal/models"
)

// ErrUnknownQuality is returned when selecting a quality that is not available
var ErrUnknownQuality = errors.New("quality not available")

// Scheduler runs fn at a later point, never synchronously inside the caller
type Scheduler func(fn func())

// Change describes a change of the chosen quality
type Change struct {
	QualityID int64
	// Selected is false when the available list became empty
	Selected      bool
	UserInitiated bool
}

// Coordinator owns the chosen quality. Change notifications go through the
// scheduler so a change raised while the owner is reconciling is handled on a
// later tick instead of re-entering it.
type Coordinator struct {
	mu        sync.Mutex
	available []models.Quality
	chosen    int64
	hasChosen bool
	listeners map[int]func(Change)
	nextID    int
	schedule  Scheduler
}

// NewCoordinator creates a coordinator. A nil scheduler defers to a new goroutine.
func NewCoordinator(schedule Scheduler) *Coordinator {
	if schedule == nil {
		schedule = func(fn func()) { go fn() }
	}
	return &Coordinator{
		listeners: make(map[int]func(Change)),
		schedule:  schedule,
	}
}

// OnChange registers a listener and returns a function removing it
func (c *Coordinator) OnChange(fn func(Change)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// SetAvailableQualities replaces the selectable set. With stickToCurrent the
// current choice survives if it is still offered, otherwise the first entry wins.
func (c *Coordinator) SetAvailableQualities(qualities []models.Quality, stickToCurrent bool) {
	c.mu.Lock()
	c.available = append([]models.Quality(nil), qualities...)

	if len(qualities) == 0 {
		if !c.hasChosen {
			c.mu.Unlock()
			return
		}
		c.hasChosen = false
		c.chosen = 0
		c.notifyLocked(Change{})
		c.mu.Unlock()
		return
	}

	if stickToCurrent && c.hasChosen && c.containsLocked(c.chosen) {
		c.mu.Unlock()
		return
	}

	next := qualities[0].ID
	if c.hasChosen && c.chosen == next {
		c.mu.Unlock()
		return
	}
	c.chosen = next
	c.hasChosen = true
	c.notifyLocked(Change{QualityID: next, Selected: true})
	c.mu.Unlock()
}

// ChosenQualityID returns the chosen quality, false when nothing is available
func (c *Coordinator) ChosenQualityID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chosen, c.hasChosen
}

// Available returns a copy of the selectable qualities
func (c *Coordinator) Available() []models.Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Quality(nil), c.available...)
}

// HasQuality reports whether id is currently selectable
func (c *Coordinator) HasQuality(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.containsLocked(id)
}

// SetQuality selects a quality. Selecting the current choice is a no-op.
func (c *Coordinator) SetQuality(id int64, userInitiated bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.containsLocked(id) {
		return ErrUnknownQuality
	}
	if c.hasChosen && c.chosen == id {
		return nil
	}
	c.chosen = id
	c.hasChosen = true
	c.notifyLocked(Change{QualityID: id, Selected: true, UserInitiated: userInitiated})
	return nil
}

func (c *Coordinator) containsLocked(id int64) bool {
	for _, q := range c.available {
		if q.ID == id {
			return true
		}
	}
	return false
}

func (c *Coordinator) notifyLocked(change Change) {
	if len(c.listeners) == 0 {
		return
	}
	listeners := make([]func(Change), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.schedule(func() {
		for _, l := range listeners {
			l(change)
		}
	})
}
