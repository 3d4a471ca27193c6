// Package tui presents widget sessions in a terminal with bubbletea.
package tui

import (
	"sync"

	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/internal/widget"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// Screen is a widget.SurfaceFactory that keeps the latest state of every
// open widget for a bubbletea model to render. Surface calls only touch the
// screen's own state and never wait on the terminal program.
type Screen struct {
	mu     sync.Mutex
	views  map[schema.WidgetID]schema.WidgetSnapshot
	order  []schema.WidgetID
	opened int
	dirty  chan struct{}
	done   chan struct{}
	once   sync.Once
	log    pslog.Logger
}

// NewScreen constructs an empty screen.
func NewScreen(logger pslog.Logger) *Screen {
	return &Screen{
		views: make(map[schema.WidgetID]schema.WidgetSnapshot),
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
		log:   logx.Or(logger),
	}
}

// Open implements widget.SurfaceFactory.
func (s *Screen) Open(id schema.WidgetID, _ string) (widget.Surface, error) {
	s.mu.Lock()
	if _, ok := s.views[id]; !ok {
		s.order = append(s.order, id)
	}
	s.views[id] = schema.WidgetSnapshot{ID: id}
	s.opened++
	s.mu.Unlock()
	logx.WithWidget(s.log, id).Debug("tui surface opened")
	s.notify()
	return &screenSurface{screen: s, id: id}, nil
}

// Views returns the open widgets in open order.
func (s *Screen) Views() []schema.WidgetSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.WidgetSnapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.views[id])
	}
	return out
}

// Opened reports how many surfaces were ever opened on this screen.
func (s *Screen) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Changed is signalled after any surface update. Signals coalesce.
func (s *Screen) Changed() <-chan struct{} {
	return s.dirty
}

// Done is closed by Close.
func (s *Screen) Done() <-chan struct{} {
	return s.done
}

// Close releases models waiting on the screen.
func (s *Screen) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Screen) notify() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Screen) update(id schema.WidgetID, fn func(*schema.WidgetSnapshot)) {
	s.mu.Lock()
	view, ok := s.views[id]
	if ok {
		fn(&view)
		s.views[id] = view
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

func (s *Screen) remove(id schema.WidgetID) {
	s.mu.Lock()
	delete(s.views, id)
	for i, current := range s.order {
		if current == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	logx.WithWidget(s.log, id).Debug("tui surface dismissed")
	s.notify()
}

type screenSurface struct {
	screen *Screen
	id     schema.WidgetID
}

func (s *screenSurface) Update(snapshot schema.WidgetSnapshot) {
	s.screen.update(s.id, func(view *schema.WidgetSnapshot) { *view = snapshot })
}

func (s *screenSurface) Move(dx, dy int) {
	s.screen.update(s.id, func(view *schema.WidgetSnapshot) {
		view.OffsetX += dx
		view.OffsetY += dy
	})
}

func (s *screenSurface) Dismiss() {
	s.screen.remove(s.id)
}
