// Package codec maps worker commands and replies to and from their
// newline-delimited JSON wire form.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/schema"
)

// PreviewBytes bounds the line excerpt kept on decode errors.
const PreviewBytes = 200

// DecodeError reports an inbound line that could not be decoded.
type DecodeError struct {
	Preview string
	Size    int
	Err     error
}

func (e *DecodeError) Error() string {
	if e == nil || e.Err == nil {
		return "decode error"
	}
	return fmt.Sprintf("decode %d-byte line: %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Truncated reports whether Preview is shorter than the offending line.
func (e *DecodeError) Truncated() bool {
	return e != nil && len(e.Preview) < e.Size
}

type convertWire struct {
	Command schema.CommandName    `json:"command"`
	Path    string                `json:"path"`
	Options schema.ConvertOptions `json:"options"`
}

type saveWire struct {
	Command  schema.CommandName `json:"command"`
	ASCII    string             `json:"ascii"`
	Filename string             `json:"filename"`
	Format   schema.SaveFormat  `json:"format,omitempty"`
}

type deleteWire struct {
	Command schema.CommandName `json:"command"`
	Index   int                `json:"index"`
}

type bareWire struct {
	Command schema.CommandName `json:"command"`
}

// Encode renders cmd as one JSON object terminated by a single newline.
func Encode(cmd schema.Command) ([]byte, error) {
	var wire any
	switch c := cmd.(type) {
	case schema.ConvertCommand:
		wire = convertWire{Command: schema.CommandConvert, Path: c.Path, Options: c.Options}
	case schema.SaveCommand:
		wire = saveWire{Command: schema.CommandSave, ASCII: c.ASCII, Filename: c.Filename, Format: c.Format}
	case schema.DeleteHistoryCommand:
		wire = deleteWire{Command: schema.CommandDeleteHistory, Index: c.Index}
	case schema.GetHistoryCommand:
		wire = bareWire{Command: schema.CommandGetHistory}
	case schema.PingCommand:
		wire = bareWire{Command: schema.CommandPing}
	default:
		return nil, fmt.Errorf("%w: %T", schema.ErrUnknownCommand, cmd)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoder output already ends with exactly one '\n'.
	if err := enc.Encode(wire); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses one inbound line. It never panics; any failure is returned
// as a *DecodeError carrying a truncated copy of the line.
func Decode(line []byte) (schema.Message, error) {
	line = bytes.TrimSpace(line)
	msg, err := decode(line)
	if err != nil {
		return schema.Message{}, &DecodeError{
			Preview: preview(line),
			Size:    len(line),
			Err:     err,
		}
	}
	msg.Raw = append([]byte(nil), line...)
	return msg, nil
}

func decode(line []byte) (schema.Message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return schema.Message{}, err
	}
	if raw == nil {
		return schema.Message{}, schema.ErrUnrecognizedMessage
	}
	kind := stringField(raw, "type")
	status := stringField(raw, "status")
	switch schema.MessageKind(kind) {
	case schema.MessageASCIIResult:
		return schema.Message{Kind: schema.MessageASCIIResult, ASCII: stringField(raw, "ascii")}, nil
	case schema.MessageGIFResult:
		return schema.Message{
			Kind:   schema.MessageGIFResult,
			Frames: stringList(raw["frames"]),
			Delays: intList(raw["delays"]),
		}, nil
	case schema.MessageStatus:
		return statusMessage(raw), nil
	}
	if _, ok := raw["error"]; ok || status == "error" {
		detail := stringField(raw, "error")
		if detail == "" {
			detail = "worker reported an error"
		}
		return schema.Message{Kind: schema.MessageError, Detail: detail}, nil
	}
	if historyRaw, ok := raw["history"]; ok {
		return schema.Message{Kind: schema.MessageHistoryList, History: historyList(historyRaw)}, nil
	}
	if _, ok := raw["message"]; ok || status != "" {
		return statusMessage(raw), nil
	}
	return schema.Message{}, schema.ErrUnrecognizedMessage
}

func statusMessage(raw map[string]json.RawMessage) schema.Message {
	return schema.Message{
		Kind:     schema.MessageStatus,
		Text:     stringField(raw, "message"),
		FilePath: stringField(raw, "filepath"),
	}
}

func stringField(raw map[string]json.RawMessage, key string) string {
	value, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return ""
	}
	return s
}

// stringList keeps string entries and blanks anything else so frame
// positions stay aligned with their delays.
func stringList(value json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		_ = json.Unmarshal(item, &out[i])
	}
	return out
}

// intList accepts integral or fractional millisecond values; anything else
// becomes 0 and is later replaced by the floor delay.
func intList(value json.RawMessage) []int {
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		return nil
	}
	out := make([]int, len(items))
	for i, item := range items {
		var f float64
		if err := json.Unmarshal(item, &f); err != nil || math.IsNaN(f) || f > math.MaxInt32 {
			continue
		}
		out[i] = int(math.Round(f))
	}
	return out
}

func historyList(value json.RawMessage) []schema.HistoryEntry {
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		return nil
	}
	out := make([]schema.HistoryEntry, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			out = append(out, schema.HistoryEntry{})
			continue
		}
		entry := schema.HistoryEntry{
			Timestamp: stringField(fields, "timestamp"),
			ASCII:     stringField(fields, "ascii"),
			Preview:   stringField(fields, "preview"),
			Frames:    stringList(fields["frames"]),
			Delays:    intList(fields["delays"]),
		}
		if opts, ok := fields["options"]; ok {
			_ = json.Unmarshal(opts, &entry.Options)
		}
		if isGIF, ok := fields["isGif"]; ok {
			_ = json.Unmarshal(isGIF, &entry.IsGIF)
		}
		out = append(out, entry)
	}
	return out
}

func preview(line []byte) string {
	return logx.Truncate(strings.ToValidUTF8(string(line), "?"), PreviewBytes)
}
