package playback

import (
	"sync"
	"time"
)

// taskLoop runs posted functions one at a time on a single goroutine.
// The queue is unbounded so posting never blocks the poster.
type taskLoop struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool

	wake     chan struct{}
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newTaskLoop() *taskLoop {
	return &taskLoop{
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (l *taskLoop) start() {
	go l.run()
}

// post queues fn and reports whether the loop accepted it
func (l *taskLoop) post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *taskLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		tasks := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		for _, fn := range tasks {
			if l.isStopped() {
				return
			}
			fn()
		}

		if len(tasks) > 0 {
			continue
		}
		select {
		case <-l.wake:
		case <-l.stopChan:
			return
		}
	}
}

func (l *taskLoop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// stop drops queued tasks and ends the loop after the running task returns
func (l *taskLoop) stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.tasks = nil
		l.mu.Unlock()
		close(l.stopChan)
	})
}

// timerID identifies a timer in a taskGroup. Zero is never issued.
type timerID uint64

// taskGroup owns every timer of an orchestrator. Expired timers post their
// function to the loop; stopAll releases everything at once.
type taskGroup struct {
	mu      sync.Mutex
	post    func(func()) bool
	timers  map[timerID]*time.Timer
	nextID  timerID
	stopped bool
}

func newTaskGroup(post func(func()) bool) *taskGroup {
	return &taskGroup{
		post:   post,
		timers: make(map[timerID]*time.Timer),
	}
}

// after runs fn once on the loop after d
func (g *taskGroup) after(d time.Duration, fn func()) timerID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return 0
	}
	g.nextID++
	id := g.nextID
	g.timers[id] = time.AfterFunc(d, func() {
		g.mu.Lock()
		_, ok := g.timers[id]
		delete(g.timers, id)
		g.mu.Unlock()
		if ok {
			g.post(fn)
		}
	})
	return id
}

// every runs fn on the loop each d until cancelled
func (g *taskGroup) every(d time.Duration, fn func()) timerID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return 0
	}
	g.nextID++
	id := g.nextID

	var tick func()
	tick = func() {
		g.mu.Lock()
		if _, ok := g.timers[id]; !ok || g.stopped {
			g.mu.Unlock()
			return
		}
		g.timers[id] = time.AfterFunc(d, tick)
		g.mu.Unlock()
		g.post(fn)
	}
	g.timers[id] = time.AfterFunc(d, tick)
	return id
}

// cancel stops a timer. Unknown and zero ids are ignored.
func (g *taskGroup) cancel(id timerID) {
	if id == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.timers[id]; ok {
		t.Stop()
		delete(g.timers, id)
	}
}

// active returns the number of live timers
func (g *taskGroup) active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// stopAll cancels every timer and refuses new ones
func (g *taskGroup) stopAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
}
