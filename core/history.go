package core

import (
	"strings"
	"sync"

	"pkt.systems/ascart/schema"
)

// historyLoadFailed prefixes the error the worker sends in place of a list.
const historyLoadFailed = "History load failed"

// historyTracker mirrors the worker's positional history list. Indices are
// only meaningful against the list they were read from, so a delete spends
// the list's freshness until the list requested after it arrives.
//
// The worker answers get_history in order, one reply per request. pending
// counts unanswered requests; barrier counts the replies still due up to and
// including the refresh that follows the last delete. Replies to requests
// sent before that delete describe the old list and never restore freshness.
type historyTracker struct {
	mu      sync.Mutex
	entries []schema.HistoryEntry
	fresh   bool
	pending int
	barrier int
}

func (h *historyTracker) observe(msg schema.Message) {
	switch {
	case msg.Kind == schema.MessageHistoryList:
	case msg.Kind == schema.MessageError && strings.HasPrefix(msg.Detail, historyLoadFailed):
		h.mu.Lock()
		h.answered()
		h.mu.Unlock()
		return
	default:
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.answered()
	h.entries = append([]schema.HistoryEntry(nil), msg.History...)
	h.fresh = h.barrier == 0
}

func (h *historyTracker) answered() {
	if h.pending > 0 {
		h.pending--
	}
	if h.barrier > 0 {
		h.barrier--
	}
}

// requested records a get_history about to be sent.
func (h *historyTracker) requested() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending++
}

// unsent undoes requested when the request never reached the worker.
func (h *historyTracker) unsent() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.answered()
}

// reset forgets in-flight requests once the worker is gone.
func (h *historyTracker) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = 0
	h.barrier = 0
	h.fresh = false
}

func (h *historyTracker) snapshot() ([]schema.HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schema.HistoryEntry(nil), h.entries...), h.fresh
}

// claim validates index against the current list, marks it stale and
// reserves the refresh that will follow the delete.
func (h *historyTracker) claim(index int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.fresh {
		return schema.ErrStaleHistory
	}
	if index < 0 || index >= len(h.entries) {
		return schema.ErrHistoryIndex
	}
	h.fresh = false
	h.pending++
	h.barrier = h.pending
	return nil
}

// release undoes claim when the delete never reached the worker.
func (h *historyTracker) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.answered()
	h.barrier = 0
	h.fresh = true
}
