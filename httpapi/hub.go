package httpapi

import (
	"sync"
	"time"

	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/internal/widget"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// BackendTopic carries worker messages, worker state and widget lifecycle.
// Every widget additionally has its own topic named by its id.
const BackendTopic = "backend"

// Stream event types.
const (
	EventMessage      = "message"
	EventWorker       = "worker"
	EventWidgetOpened = "widget_opened"
	EventWidgetClosed = "widget_closed"
	EventSnapshot     = "snapshot"
	EventMove         = "move"
	EventDismiss      = "dismiss"
)

const (
	defaultHubHistory  = 256
	subscriberCapacity = 256
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64                 `json:"seq"`
	Type      string                 `json:"type"`
	WidgetID  schema.WidgetID        `json:"widget_id,omitempty"`
	Message   *schema.Message        `json:"message,omitempty"`
	Worker    *schema.ProcessState   `json:"worker,omitempty"`
	Widget    *schema.WidgetSnapshot `json:"widget,omitempty"`
	DX        int                    `json:"dx,omitempty"`
	DY        int                    `json:"dy,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Hub broadcasts events per topic. It is also a widget.SurfaceFactory: each
// widget surface publishes to the widget's topic.
type Hub struct {
	mu          sync.Mutex
	topics      map[string]*topicHub
	documents   map[schema.WidgetID]string
	historySize int
	log         pslog.Logger
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = defaultHubHistory
	}
	return &Hub{
		topics:      make(map[string]*topicHub),
		documents:   make(map[schema.WidgetID]string),
		historySize: historySize,
		log:         logx.Or(logger),
	}
}

// OnBackendMessage publishes a worker message on the backend topic.
func (h *Hub) OnBackendMessage(msg schema.Message) {
	h.log.Trace("hub backend message", "kind", msg.Kind)
	msg.Raw = nil
	h.publish(BackendTopic, StreamEvent{
		Type:      EventMessage,
		Message:   &msg,
		Timestamp: time.Now(),
	})
}

// OnWorkerState publishes a worker lifecycle transition on the backend topic.
func (h *Hub) OnWorkerState(state schema.ProcessState) {
	h.log.Trace("hub worker state", "phase", state.Phase)
	h.publish(BackendTopic, StreamEvent{
		Type:      EventWorker,
		Worker:    &state,
		Timestamp: time.Now(),
	})
}

// Open implements widget.SurfaceFactory.
func (h *Hub) Open(id schema.WidgetID, scratchPath string) (widget.Surface, error) {
	h.mu.Lock()
	h.documents[id] = scratchPath
	h.mu.Unlock()
	h.publish(BackendTopic, StreamEvent{
		Type:      EventWidgetOpened,
		WidgetID:  id,
		Timestamp: time.Now(),
	})
	return &hubSurface{hub: h, id: id}, nil
}

// Document returns the scratch document path of an open widget. The path is
// empty when the widget has no scratch document.
func (h *Hub) Document(id schema.WidgetID) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path, ok := h.documents[id]
	return path, ok
}

// Subscribe registers a subscriber for a topic. The returned seq is the last
// event published before the subscription. Widget topics only exist while
// the widget is open; other topics fail with schema.ErrWidgetNotFound.
func (h *Hub) Subscribe(topic string) (<-chan StreamEvent, func(), uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	th, ok := h.topicLocked(topic)
	if !ok {
		h.log.Debug("hub subscribe rejected", "topic", topic)
		return nil, nil, 0, schema.ErrWidgetNotFound
	}
	ch := make(chan StreamEvent, subscriberCapacity)
	th.subs[ch] = struct{}{}
	seq := th.seq
	log := h.log.With("topic", topic)
	log.Debug("hub subscribe", "subs", len(th.subs), "seq", seq)
	unsub := func() {
		h.mu.Lock()
		remaining := 0
		if _, ok := th.subs[ch]; ok {
			delete(th.subs, ch)
			close(ch)
			remaining = len(th.subs)
		}
		h.mu.Unlock()
		log.Debug("hub unsubscribe", "subs", remaining)
	}
	return ch, unsub, seq, nil
}

// Replay returns retained events with after < seq <= upto.
func (h *Hub) Replay(topic string, after, upto uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	th := h.topics[topic]
	if th == nil {
		return nil
	}
	events := make([]StreamEvent, 0, len(th.history))
	for _, event := range th.history {
		if event.Seq > after && event.Seq <= upto {
			events = append(events, event)
		}
	}
	h.log.Debug("hub replay", "topic", topic, "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(topic string, event StreamEvent) {
	h.mu.Lock()
	th, ok := h.topicLocked(topic)
	if !ok {
		h.mu.Unlock()
		h.log.Trace("hub event for retired topic", "topic", topic, "type", event.Type)
		return
	}
	th.seq++
	event.Seq = th.seq
	th.history = append(th.history, event)
	if len(th.history) > h.historySize {
		th.history = th.history[len(th.history)-h.historySize:]
	}
	dropped := 0
	for sub := range th.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		h.log.Warn("hub event dropped", "topic", topic, "type", event.Type, "dropped", dropped)
	}
}

// retire closes every subscriber of a widget topic and forgets the widget.
func (h *Hub) retire(id schema.WidgetID) {
	h.mu.Lock()
	th := h.topics[string(id)]
	delete(h.topics, string(id))
	delete(h.documents, id)
	subs := 0
	if th != nil {
		for sub := range th.subs {
			delete(th.subs, sub)
			close(sub)
			subs++
		}
	}
	h.mu.Unlock()
	logx.WithWidget(h.log, id).Debug("hub widget retired", "subs", subs)
}

// topicLocked returns the topic, creating it when it is the backend topic or
// belongs to an open widget.
func (h *Hub) topicLocked(topic string) (*topicHub, bool) {
	th := h.topics[topic]
	if th != nil {
		return th, true
	}
	if topic != BackendTopic {
		if _, open := h.documents[schema.WidgetID(topic)]; !open {
			return nil, false
		}
	}
	th = &topicHub{subs: make(map[chan StreamEvent]struct{})}
	h.topics[topic] = th
	return th, true
}

type topicHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}

// hubSurface publishes a widget session to its topic. Publishing never
// blocks, so it is safe under the session lock.
type hubSurface struct {
	hub *Hub
	id  schema.WidgetID
}

func (s *hubSurface) Update(snapshot schema.WidgetSnapshot) {
	s.hub.publish(string(s.id), StreamEvent{
		Type:      EventSnapshot,
		WidgetID:  s.id,
		Widget:    &snapshot,
		Timestamp: time.Now(),
	})
}

func (s *hubSurface) Move(dx, dy int) {
	s.hub.publish(string(s.id), StreamEvent{
		Type:      EventMove,
		WidgetID:  s.id,
		DX:        dx,
		DY:        dy,
		Timestamp: time.Now(),
	})
}

func (s *hubSurface) Dismiss() {
	now := time.Now()
	s.hub.publish(string(s.id), StreamEvent{Type: EventDismiss, WidgetID: s.id, Timestamp: now})
	s.hub.retire(s.id)
	s.hub.publish(BackendTopic, StreamEvent{Type: EventWidgetClosed, WidgetID: s.id, Timestamp: now})
}
