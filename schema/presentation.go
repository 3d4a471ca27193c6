package schema

import (
	"fmt"
	"strings"
)

// PresentationPayload is the content of an "open presentation" request.
type PresentationPayload struct {
	Animated  bool     `json:"isGif"`
	StaticArt string   `json:"ascii,omitempty"`
	Frames    []string `json:"frames,omitempty"`
	Delays    []int    `json:"delays,omitempty"`
}

// PayloadFromMessage builds a presentation payload from a conversion result.
func PayloadFromMessage(msg Message) (PresentationPayload, error) {
	switch msg.Kind {
	case MessageASCIIResult:
		return PresentationPayload{StaticArt: msg.ASCII}, nil
	case MessageGIFResult:
		return PresentationPayload{Animated: true, Frames: msg.Frames, Delays: msg.Delays}, nil
	default:
		return PresentationPayload{}, ErrInvalidPayload
	}
}

// Validate rejects payloads with nothing to show.
func (p PresentationPayload) Validate() error {
	if p.Animated {
		if len(p.Frames) == 0 && p.StaticArt == "" {
			return ErrInvalidPayload
		}
		return nil
	}
	if strings.TrimSpace(p.StaticArt) == "" && len(p.Frames) == 0 {
		return ErrInvalidPayload
	}
	return nil
}

// PlaybackState is the animation state of a widget session.
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackClosed  PlaybackState = "closed"
)

// WidgetAction is a user input applied to a widget session.
type WidgetAction string

const (
	ActionPlay           WidgetAction = "play"
	ActionPause          WidgetAction = "pause"
	ActionToggle         WidgetAction = "toggle"
	ActionNext           WidgetAction = "next"
	ActionPrev           WidgetAction = "prev"
	ActionLarger         WidgetAction = "larger"
	ActionSmaller        WidgetAction = "smaller"
	ActionToggleControls WidgetAction = "controls"
)

// ParseWidgetAction validates an action name.
func ParseWidgetAction(value string) (WidgetAction, error) {
	switch action := WidgetAction(strings.ToLower(strings.TrimSpace(value))); action {
	case ActionPlay, ActionPause, ActionToggle, ActionNext, ActionPrev, ActionLarger, ActionSmaller, ActionToggleControls:
		return action, nil
	default:
		return "", ErrInvalidAction
	}
}

// WidgetSnapshot is the renderable state of a widget session.
type WidgetSnapshot struct {
	ID              WidgetID      `json:"id"`
	State           PlaybackState `json:"state"`
	Animated        bool          `json:"animated"`
	FrameIndex      int           `json:"frame_index"`
	FrameCount      int           `json:"frame_count"`
	Text            string        `json:"text"`
	FontSizePx      int           `json:"font_size_px"`
	ControlsVisible bool          `json:"controls_visible"`
	OffsetX         int           `json:"offset_x"`
	OffsetY         int           `json:"offset_y"`
	ScratchPath     string        `json:"scratch_path,omitempty"`
}

// FrameLabel renders the "Frame i/N" counter shown by widget controls.
func (s WidgetSnapshot) FrameLabel() string {
	if s.FrameCount == 0 {
		return ""
	}
	return fmt.Sprintf("Frame %d/%d", s.FrameIndex+1, s.FrameCount)
}
