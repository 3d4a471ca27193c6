package widget

import (
	"sync"
	"time"

	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

// SessionConfig bounds a session's display settings.
type SessionConfig struct {
	FontSize    int
	MinFontSize int
	MaxFontSize int
	Clock       Clock
	ScratchPath string
}

// Session animates one frame sequence on one surface.
//
// Every armed wake-up carries the generation it was armed under. Cancelling
// bumps the generation, so a callback that already fired but has not yet
// taken the lock finds a stale generation and does nothing.
type Session struct {
	id      schema.WidgetID
	cfg     SessionConfig
	surface Surface
	log     pslog.Logger

	mu       sync.Mutex
	state    schema.PlaybackState
	animated bool
	static   string
	frames   []string
	delays   []time.Duration
	index    int
	fontSize int
	controls bool
	offsetX  int
	offsetY  int
	timer    Timer
	gen      uint64
}

func newSession(id schema.WidgetID, payload schema.PresentationPayload, surface Surface, cfg SessionConfig, log pslog.Logger) *Session {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if surface == nil {
		surface = nopSurface{}
	}
	log = logx.Or(log)
	s := &Session{
		id:       id,
		cfg:      cfg,
		surface:  surface,
		log:      log,
		state:    schema.PlaybackIdle,
		animated: payload.Animated,
		static:   payload.StaticArt,
		fontSize: clamp(cfg.FontSize, cfg.MinFontSize, cfg.MaxFontSize),
		controls: true,
	}
	if len(payload.Frames) > 0 {
		s.frames = append([]string(nil), payload.Frames...)
		s.delays = schema.NormalizeDelays(len(s.frames), payload.Delays)
		if len(payload.Delays) != len(payload.Frames) {
			log.Debug("widget delays normalized", "frames", len(payload.Frames), "delays", len(payload.Delays))
		}
	}
	return s
}

// ID returns the session identity.
func (s *Session) ID() schema.WidgetID {
	return s.id
}

// Play starts the animation. It is a no-op for sequences of fewer than two
// frames, for closed sessions and for sessions already playing.
func (s *Session) Play() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schema.PlaybackClosed || s.state == schema.PlaybackPlaying || len(s.frames) < 2 {
		return false
	}
	s.state = schema.PlaybackPlaying
	s.armLocked()
	s.publishLocked()
	return true
}

// Pause stops the animation and keeps the current frame.
func (s *Session) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != schema.PlaybackPlaying {
		return false
	}
	s.disarmLocked()
	s.state = schema.PlaybackPaused
	s.publishLocked()
	return true
}

// TogglePlay pauses a playing session and plays any other.
func (s *Session) TogglePlay() bool {
	s.mu.Lock()
	playing := s.state == schema.PlaybackPlaying
	s.mu.Unlock()
	if playing {
		return s.Pause()
	}
	return s.Play()
}

// StepForward shows the next frame, wrapping at the end.
func (s *Session) StepForward() bool {
	return s.step(1)
}

// StepBackward shows the previous frame, wrapping at the start.
func (s *Session) StepBackward() bool {
	return s.step(-1)
}

func (s *Session) step(delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schema.PlaybackClosed || len(s.frames) == 0 {
		return false
	}
	playing := s.state == schema.PlaybackPlaying
	s.disarmLocked()
	n := len(s.frames)
	s.index = ((s.index+delta)%n + n) % n
	if playing {
		s.armLocked()
	}
	s.publishLocked()
	return true
}

// Resize adjusts the font size by delta within the configured bounds.
func (s *Session) Resize(delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schema.PlaybackClosed {
		return false
	}
	next := clamp(s.fontSize+delta, s.cfg.MinFontSize, s.cfg.MaxFontSize)
	if next == s.fontSize {
		return false
	}
	s.fontSize = next
	s.publishLocked()
	return true
}

// ToggleControls shows or hides the playback controls.
func (s *Session) ToggleControls() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schema.PlaybackClosed {
		return false
	}
	s.controls = !s.controls
	s.publishLocked()
	return true
}

// Relocate applies a relative move. Deltas compose without reading the
// surface position.
func (s *Session) Relocate(dx, dy int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schema.PlaybackClosed {
		return false
	}
	if dx == 0 && dy == 0 {
		return false
	}
	s.offsetX += dx
	s.offsetY += dy
	s.surface.Move(dx, dy)
	return true
}

// Apply runs a named control action and returns the resulting snapshot.
func (s *Session) Apply(action schema.WidgetAction) (schema.WidgetSnapshot, error) {
	switch action {
	case schema.ActionPlay:
		s.Play()
	case schema.ActionPause:
		s.Pause()
	case schema.ActionToggle:
		s.TogglePlay()
	case schema.ActionNext:
		s.StepForward()
	case schema.ActionPrev:
		s.StepBackward()
	case schema.ActionLarger:
		s.Resize(1)
	case schema.ActionSmaller:
		s.Resize(-1)
	case schema.ActionToggleControls:
		s.ToggleControls()
	default:
		return s.Snapshot(), schema.ErrInvalidAction
	}
	return s.Snapshot(), nil
}

// Close cancels any pending wake-up and dismisses the surface. It is safe in
// every state and reports whether this call closed the session.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schema.PlaybackClosed {
		return false
	}
	s.disarmLocked()
	s.state = schema.PlaybackClosed
	s.surface.Dismiss()
	return true
}

// Snapshot returns the renderable state.
func (s *Session) Snapshot() schema.WidgetSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() schema.WidgetSnapshot {
	text := s.static
	if len(s.frames) > 0 {
		text = s.frames[s.index]
	}
	return schema.WidgetSnapshot{
		ID:              s.id,
		State:           s.state,
		Animated:        s.animated,
		FrameIndex:      s.index,
		FrameCount:      len(s.frames),
		Text:            text,
		FontSizePx:      s.fontSize,
		ControlsVisible: s.controls,
		OffsetX:         s.offsetX,
		OffsetY:         s.offsetY,
		ScratchPath:     s.cfg.ScratchPath,
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked()
}

func (s *Session) publishLocked() {
	s.surface.Update(s.snapshotLocked())
}

func (s *Session) armLocked() {
	s.gen++
	gen := s.gen
	s.timer = s.cfg.Clock.AfterFunc(s.delays[s.index], func() { s.advance(gen) })
}

func (s *Session) disarmLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) advance(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != schema.PlaybackPlaying {
		return
	}
	s.timer = nil
	s.index = (s.index + 1) % len(s.frames)
	s.log.Trace("widget frame", "index", s.index)
	s.armLocked()
	s.publishLocked()
}

func clamp(value, lo, hi int) int {
	if lo > 0 && value < lo {
		return lo
	}
	if hi > 0 && value > hi {
		return hi
	}
	return value
}
