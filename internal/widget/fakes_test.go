package widget

import (
	"errors"
	"sort"
	"sync"
	"time"

	"pkt.systems/ascart/schema"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*manualTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
	}
}

// Pending counts armed timers.
func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			count++
		}
	}
	return count
}

// Last returns the most recently armed timer.
func (c *manualClock) Last() *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

type recordingSurface struct {
	mu        sync.Mutex
	id        schema.WidgetID
	scratch   string
	updates   []schema.WidgetSnapshot
	moves     [][2]int
	dismissed int
}

func (s *recordingSurface) Update(snapshot schema.WidgetSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, snapshot)
}

func (s *recordingSurface) Move(dx, dy int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, [2]int{dx, dy})
}

func (s *recordingSurface) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed++
}

func (s *recordingSurface) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *recordingSurface) dismissCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dismissed
}

type recordingFactory struct {
	mu       sync.Mutex
	surfaces map[schema.WidgetID]*recordingSurface
	fail     bool
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{surfaces: make(map[schema.WidgetID]*recordingSurface)}
}

func (f *recordingFactory) Open(id schema.WidgetID, scratchPath string) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("surface unavailable")
	}
	surface := &recordingSurface{id: id, scratch: scratchPath}
	f.surfaces[id] = surface
	return surface, nil
}

func (f *recordingFactory) get(id schema.WidgetID) *recordingSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surfaces[id]
}
