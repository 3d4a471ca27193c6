// Package eventbus fans decoded worker messages out to every interested
// surface and forwards outbound commands to the worker.
package eventbus

import (
	"context"
	"sync"

	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// Sender delivers commands to the worker.
type Sender interface {
	Send(ctx context.Context, cmd schema.Command) error
}

// MessageHandler observes every inbound message.
type MessageHandler func(schema.Message)

// StateHandler observes worker lifecycle changes.
type StateHandler func(schema.ProcessState)

type messageSub struct {
	id uint64
	fn MessageHandler
}

type stateSub struct {
	id uint64
	fn StateHandler
}

// Router is a broadcast fan-out. The protocol carries no correlation id, so
// every subscriber sees every message and ordering is the only correlation.
type Router struct {
	sender Sender
	log    pslog.Logger

	mu       sync.Mutex
	nextID   uint64
	messages []messageSub
	states   []stateSub
}

// New constructs a Router that submits through sender.
func New(sender Sender, logger pslog.Logger) *Router {
	return &Router{sender: sender, log: logx.Or(logger)}
}

// Submit forwards cmd to the worker. Nothing waits for a reply.
func (r *Router) Submit(ctx context.Context, cmd schema.Command) error {
	if r == nil || r.sender == nil {
		return schema.ErrNotRunning
	}
	if cmd == nil {
		return schema.ErrUnknownCommand
	}
	r.log.Debug("router submit", "command", cmd.CommandName())
	return r.sender.Send(ctx, cmd)
}

// Subscribe registers a message handler and returns its unsubscribe func.
// Handlers run in registration order.
func (r *Router) Subscribe(fn MessageHandler) func() {
	if r == nil || fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.messages = append(r.messages, messageSub{id: id, fn: fn})
	count := len(r.messages)
	r.mu.Unlock()
	r.log.Debug("router subscribe", "subs", count)
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.messages = removeSub(r.messages, func(s messageSub) bool { return s.id == id })
			r.mu.Unlock()
			r.log.Debug("router unsubscribe")
		})
	}
}

// WatchState registers a lifecycle handler and returns its unsubscribe func.
func (r *Router) WatchState(fn StateHandler) func() {
	if r == nil || fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.states = append(r.states, stateSub{id: id, fn: fn})
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.states = removeSub(r.states, func(s stateSub) bool { return s.id == id })
			r.mu.Unlock()
		})
	}
}

// Subscribers reports the number of message handlers.
func (r *Router) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Dispatch delivers msg to every handler registered at the time of the call.
// A panicking handler is logged and does not stop delivery to the rest.
func (r *Router) Dispatch(msg schema.Message) {
	if r == nil {
		return
	}
	r.mu.Lock()
	subs := append([]messageSub(nil), r.messages...)
	r.mu.Unlock()
	r.log.Trace("router dispatch", "kind", msg.Kind, "subs", len(subs))
	for _, sub := range subs {
		r.safeCall(string(msg.Kind), func() { sub.fn(msg) })
	}
}

// PublishState delivers a lifecycle change to every state watcher.
func (r *Router) PublishState(state schema.ProcessState) {
	if r == nil {
		return
	}
	r.mu.Lock()
	subs := append([]stateSub(nil), r.states...)
	r.mu.Unlock()
	for _, sub := range subs {
		r.safeCall("state", func() { sub.fn(state) })
	}
}

func (r *Router) safeCall(kind string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("router handler panicked", "kind", kind, "panic", rec)
		}
	}()
	fn()
}

func removeSub[T any](subs []T, match func(T) bool) []T {
	out := subs[:0:0]
	for _, sub := range subs {
		if !match(sub) {
			out = append(out, sub)
		}
	}
	return out
}
