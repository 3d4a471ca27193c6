package schema

import (
	"strings"
	"time"
)

// MessageKind discriminates inbound worker messages.
type MessageKind string

const (
	MessageASCIIResult MessageKind = "ascii-result"
	MessageGIFResult   MessageKind = "gif-result"
	MessageHistoryList MessageKind = "history"
	MessageError       MessageKind = "error"
	MessageStatus      MessageKind = "status"
)

// Message is a decoded inbound worker message. Only the fields of its Kind are set.
type Message struct {
	Kind     MessageKind    `json:"kind"`
	ASCII    string         `json:"ascii,omitempty"`
	Frames   []string       `json:"frames,omitempty"`
	Delays   []int          `json:"delays,omitempty"`
	History  []HistoryEntry `json:"history,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	Text     string         `json:"text,omitempty"`
	FilePath string         `json:"filepath,omitempty"`
	Raw      []byte         `json:"-"`
}

// IsResult reports whether the message carries conversion output.
func (m Message) IsResult() bool {
	return m.Kind == MessageASCIIResult || m.Kind == MessageGIFResult
}

// HistoryEntry is one record of the worker's persisted history.
type HistoryEntry struct {
	Timestamp string         `json:"timestamp"`
	ASCII     string         `json:"ascii"`
	Preview   string         `json:"preview,omitempty"`
	Options   ConvertOptions `json:"options"`
	IsGIF     bool           `json:"isGif,omitempty"`
	Frames    []string       `json:"frames,omitempty"`
	Delays    []int          `json:"delays,omitempty"`
}

var historyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Time parses the entry timestamp. Offsets are optional; naive times are local.
func (e HistoryEntry) Time() (time.Time, bool) {
	value := strings.TrimSpace(e.Timestamp)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range historyTimeLayouts {
		var (
			ts  time.Time
			err error
		)
		if strings.Contains(layout, "Z07") {
			ts, err = time.Parse(layout, value)
		} else {
			ts, err = time.ParseInLocation(layout, value, time.Local)
		}
		if err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Payload converts a history entry into a presentation payload.
func (e HistoryEntry) Payload() PresentationPayload {
	if e.IsGIF && len(e.Frames) > 0 {
		return PresentationPayload{Animated: true, Frames: e.Frames, Delays: e.Delays}
	}
	return PresentationPayload{StaticArt: e.ASCII}
}
