package httpapi

import (
	"errors"
	"testing"

	"pkt.systems/ascart/schema"
)

func TestHubReplayIsBounded(t *testing.T) {
	hub := NewHub(3, nil)
	for i := 0; i < 5; i++ {
		hub.OnBackendMessage(schema.Message{Kind: schema.MessageStatus, Text: "pong"})
	}
	events := hub.Replay(BackendTopic, 0, 10)
	if len(events) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(events))
	}
	if events[0].Seq != 3 || events[2].Seq != 5 {
		t.Fatalf("unexpected seqs %d..%d", events[0].Seq, events[2].Seq)
	}
	if got := hub.Replay(BackendTopic, 3, 4); len(got) != 1 || got[0].Seq != 4 {
		t.Fatalf("unexpected window %+v", got)
	}
	if got := hub.Replay("missing", 0, 10); got != nil {
		t.Fatalf("expected nil replay for unknown topic")
	}
}

func TestHubSubscribeReceivesLaterEvents(t *testing.T) {
	hub := NewHub(10, nil)
	hub.OnWorkerState(schema.ProcessState{Phase: schema.PhaseStarting})
	ch, unsub, seq, err := hub.Subscribe(BackendTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	if seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}
	hub.OnWorkerState(schema.ProcessState{Phase: schema.PhaseRunning, PID: 7})
	event := <-ch
	if event.Type != EventWorker || event.Worker.Phase != schema.PhaseRunning || event.Seq != 2 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestHubSurfaceLifecycle(t *testing.T) {
	hub := NewHub(10, nil)
	backend, unsubBackend, _, err := hub.Subscribe(BackendTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubBackend()

	surface, err := hub.Open("w1", "/tmp/ascart_widget_w1.html")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened := <-backend; opened.Type != EventWidgetOpened || opened.WidgetID != "w1" {
		t.Fatalf("unexpected open event %+v", opened)
	}
	if path, ok := hub.Document("w1"); !ok || path != "/tmp/ascart_widget_w1.html" {
		t.Fatalf("unexpected document %q %v", path, ok)
	}

	ch, unsub, _, err := hub.Subscribe("w1")
	if err != nil {
		t.Fatalf("subscribe w1: %v", err)
	}
	surface.Update(schema.WidgetSnapshot{ID: "w1", Text: "art"})
	surface.Move(2, 3)
	surface.Dismiss()

	var types []string
	for event := range ch {
		types = append(types, event.Type)
	}
	want := []string{EventSnapshot, EventMove, EventDismiss}
	if len(types) != len(want) {
		t.Fatalf("unexpected events %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("unexpected events %v", types)
		}
	}
	unsub()

	if closed := <-backend; closed.Type != EventWidgetClosed || closed.WidgetID != "w1" {
		t.Fatalf("unexpected close event %+v", closed)
	}
	if _, ok := hub.Document("w1"); ok {
		t.Fatalf("document should be forgotten after dismiss")
	}
}

func TestHubRefusesRetiredWidgetTopic(t *testing.T) {
	hub := NewHub(10, nil)
	if _, _, _, err := hub.Subscribe("never-opened"); !errors.Is(err, schema.ErrWidgetNotFound) {
		t.Fatalf("expected ErrWidgetNotFound, got %v", err)
	}
	surface, err := hub.Open("w2", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	surface.Dismiss()
	if _, _, _, err := hub.Subscribe("w2"); !errors.Is(err, schema.ErrWidgetNotFound) {
		t.Fatalf("expected ErrWidgetNotFound after dismiss, got %v", err)
	}
	surface.Update(schema.WidgetSnapshot{ID: "w2"})
	hub.mu.Lock()
	_, leaked := hub.topics["w2"]
	hub.mu.Unlock()
	if leaked {
		t.Fatalf("retired widget topic was recreated")
	}
}

func TestHubMessageDropsRawBytes(t *testing.T) {
	hub := NewHub(10, nil)
	hub.OnBackendMessage(schema.Message{Kind: schema.MessageStatus, Raw: []byte("{}")})
	events := hub.Replay(BackendTopic, 0, 1)
	if len(events) != 1 || events[0].Message.Raw != nil {
		t.Fatalf("expected raw bytes stripped")
	}
}
