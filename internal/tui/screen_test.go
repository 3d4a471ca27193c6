package tui

import (
	"testing"
	"time"

	"pkt.systems/ascart/schema"
)

func waitChanged(t *testing.T, s *Screen) {
	t.Helper()
	select {
	case <-s.Changed():
	case <-time.After(time.Second):
		t.Fatalf("expected change signal")
	}
}

func TestScreenTracksSurfaces(t *testing.T) {
	s := NewScreen(nil)
	first, err := s.Open("a", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, _ := s.Open("b", "/tmp/x.html")
	waitChanged(t, s)

	first.Update(schema.WidgetSnapshot{ID: "a", Text: "one", OffsetX: 1})
	second.Update(schema.WidgetSnapshot{ID: "b", Text: "two"})
	first.Move(2, 3)
	waitChanged(t, s)

	views := s.Views()
	if len(views) != 2 || views[0].ID != "a" || views[1].ID != "b" {
		t.Fatalf("unexpected views %+v", views)
	}
	if views[0].Text != "one" || views[0].OffsetX != 3 || views[0].OffsetY != 3 {
		t.Fatalf("unexpected first view %+v", views[0])
	}

	first.Dismiss()
	waitChanged(t, s)
	views = s.Views()
	if len(views) != 1 || views[0].ID != "b" {
		t.Fatalf("unexpected views after dismiss %+v", views)
	}
	if s.Opened() != 2 {
		t.Fatalf("expected opened count 2, got %d", s.Opened())
	}

	first.Update(schema.WidgetSnapshot{ID: "a", Text: "late"})
	if len(s.Views()) != 1 {
		t.Fatalf("update after dismiss must not resurrect the view")
	}
}

func TestScreenSignalsCoalesce(t *testing.T) {
	s := NewScreen(nil)
	surface, _ := s.Open("a", "")
	for i := 0; i < 10; i++ {
		surface.Update(schema.WidgetSnapshot{ID: "a", FrameIndex: i})
	}
	waitChanged(t, s)
	select {
	case <-s.Changed():
		t.Fatalf("signals should coalesce")
	default:
	}
	if got := s.Views()[0].FrameIndex; got != 9 {
		t.Fatalf("expected latest snapshot, got frame %d", got)
	}
}

func TestScreenClose(t *testing.T) {
	s := NewScreen(nil)
	s.Close()
	s.Close()
	select {
	case <-s.Done():
	default:
		t.Fatalf("expected done after close")
	}
}
