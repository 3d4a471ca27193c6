// Package widget manages floating presentation sessions that show or
// animate conversion results.
package widget

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/internal/persist"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// RegistryConfig controls session creation.
type RegistryConfig struct {
	Policy      schema.WidgetPolicy
	FontSize    int
	MinFontSize int
	MaxFontSize int
	// Autoplay starts animated sessions as soon as they open.
	Autoplay bool
	Clock    Clock
}

// Registry is the only owner of the active session set. Open and close are
// serialized by its lock.
type Registry struct {
	cfg      RegistryConfig
	surfaces SurfaceFactory
	scratch  *persist.ScratchStore
	log      pslog.Logger

	mu       sync.Mutex
	sessions map[schema.WidgetID]*Session
	order    []schema.WidgetID
}

// NewRegistry constructs a registry. surfaces and scratch may be nil.
func NewRegistry(cfg RegistryConfig, surfaces SurfaceFactory, scratch *persist.ScratchStore, logger pslog.Logger) *Registry {
	if cfg.Policy == "" {
		cfg.Policy = schema.PolicyMulti
	}
	if cfg.MinFontSize <= 0 {
		cfg.MinFontSize = schema.DefaultMinFontSize
	}
	if cfg.MaxFontSize <= 0 {
		cfg.MaxFontSize = schema.DefaultMaxFontSize
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = schema.DefaultFontSize
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	return &Registry{
		cfg:      cfg,
		surfaces: surfaces,
		scratch:  scratch,
		log:      logx.Or(logger),
		sessions: make(map[schema.WidgetID]*Session),
	}
}

// Policy reports the configured policy.
func (r *Registry) Policy() schema.WidgetPolicy {
	return r.cfg.Policy
}

// Open creates a session for payload. Under the single policy every existing
// session is closed first.
func (r *Registry) Open(ctx context.Context, payload schema.PresentationPayload) (schema.WidgetID, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.Policy == schema.PolicySingle {
		for _, id := range append([]schema.WidgetID(nil), r.order...) {
			r.closeLocked(id, "replaced")
		}
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	id := schema.WidgetID(uid.String())
	log := logx.WithWidget(r.log, id)

	scfg := SessionConfig{
		FontSize:    r.cfg.FontSize,
		MinFontSize: r.cfg.MinFontSize,
		MaxFontSize: r.cfg.MaxFontSize,
		Clock:       r.cfg.Clock,
	}
	// The document is rendered from the initial snapshot before the surface
	// exists, so the session is built against a placeholder first.
	draft := newSession(id, payload, nil, scfg, log)
	if r.scratch != nil {
		doc, err := RenderDocument(draft.Snapshot())
		if err != nil {
			return "", err
		}
		path, err := r.scratch.Write(string(id), doc)
		if err != nil {
			return "", err
		}
		scfg.ScratchPath = path
	}

	var surface Surface = nopSurface{}
	if r.surfaces != nil {
		surface, err = r.surfaces.Open(id, scfg.ScratchPath)
		if err != nil {
			r.removeScratch(id)
			log.Warn("widget surface open failed", "err", err)
			return "", err
		}
	}

	session := newSession(id, payload, surface, scfg, log)
	r.sessions[id] = session
	r.order = append(r.order, id)
	session.publish()
	if r.cfg.Autoplay {
		session.Play()
	}
	log.Info("widget opened", "animated", payload.Animated, "frames", len(payload.Frames), "policy", r.cfg.Policy, "active", len(r.order))
	return id, nil
}

// Close tears the session down. Unknown ids are a no-op reporting false.
func (r *Registry) Close(ctx context.Context, id schema.WidgetID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked(id, "requested")
}

// CloseAll closes every session in open order and returns how many closed.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	closed := 0
	for _, id := range append([]schema.WidgetID(nil), r.order...) {
		if r.closeLocked(id, "shutdown") {
			closed++
		}
	}
	return closed
}

func (r *Registry) closeLocked(id schema.WidgetID, reason string) bool {
	session, ok := r.sessions[id]
	if !ok {
		return false
	}
	delete(r.sessions, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	session.Close()
	r.removeScratch(id)
	logx.WithWidget(r.log, id).Info("widget closed", "reason", reason, "active", len(r.order))
	return true
}

func (r *Registry) removeScratch(id schema.WidgetID) {
	if r.scratch == nil {
		return
	}
	if err := r.scratch.Remove(string(id)); err != nil {
		logx.WithWidget(r.log, id).Warn("widget scratch cleanup failed", "err", err)
	}
}

// Relocate applies a relative move to a session's surface.
func (r *Registry) Relocate(id schema.WidgetID, dx, dy int) error {
	session, ok := r.Session(id)
	if !ok {
		return schema.ErrWidgetNotFound
	}
	session.Relocate(dx, dy)
	return nil
}

// Control applies a playback or display action to a session.
func (r *Registry) Control(id schema.WidgetID, action schema.WidgetAction) (schema.WidgetSnapshot, error) {
	session, ok := r.Session(id)
	if !ok {
		return schema.WidgetSnapshot{}, schema.ErrWidgetNotFound
	}
	return session.Apply(action)
}

// Session returns the live session for id.
func (r *Registry) Session(id schema.WidgetID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// List returns snapshots of the live sessions in open order.
func (r *Registry) List() []schema.WidgetSnapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		sessions = append(sessions, r.sessions[id])
	}
	r.mu.Unlock()
	out := make([]schema.WidgetSnapshot, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Snapshot())
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
