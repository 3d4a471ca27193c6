package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithWidgetAddsField(t *testing.T) {
	capture := &logCapture{}
	log := WithWidget(newCaptureLogger(capture), "w1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["widget"] != "w1" {
		t.Fatalf("expected widget field, got %+v", entry)
	}
}

func TestWithWorkerAddsFields(t *testing.T) {
	capture := &logCapture{}
	log := WithWorker(newCaptureLogger(capture), "engine", 42)
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["worker"] != "engine" {
		t.Fatalf("expected worker field, got %+v", entry)
	}
	if fmt.Sprint(entry["pid"]) != "42" {
		t.Fatalf("expected pid field, got %+v", entry)
	}
}

func TestWithWorkerSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	log := WithWorker(newCaptureLogger(capture), "", 0)
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["pid"]; ok {
		t.Fatalf("did not expect pid for unstarted worker")
	}
}

func TestWidgetCtxDeduplicates(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	ctx := ContextWithWidget(context.Background(), logger, "w2")
	WidgetCtx(ctx, "w2").Info("hello")

	line := strings.SplitN(capture.buf.String(), "\n", 2)[0]
	if strings.Count(line, `"widget"`) != 1 {
		t.Fatalf("expected a single widget field, got %s", line)
	}
}

func TestPreview(t *testing.T) {
	got, truncated := Preview("  abcdef  ", 3)
	if got != "abc" || !truncated {
		t.Fatalf("Preview = %q, %t", got, truncated)
	}
	got, truncated = Preview("ab", 3)
	if got != "ab" || truncated {
		t.Fatalf("Preview = %q, %t", got, truncated)
	}
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	got, truncated := Preview("aé€", 4)
	if got != "aé" || !truncated {
		t.Fatalf("Preview = %q, %t", got, truncated)
	}
	if got := Truncate("€€", 2); got != "" {
		t.Fatalf("Truncate = %q", got)
	}
	if got, _ := Preview("ok\xff", 10); got != "ok?" {
		t.Fatalf("expected invalid bytes replaced, got %q", got)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
