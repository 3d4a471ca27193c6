package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"pkt.systems/ascart/schema"
)

func TestConvertFlagsOverlayOnlyChanged(t *testing.T) {
	var flags convertFlags
	cmd := &cobra.Command{Use: "x"}
	flags.register(cmd)
	if err := cmd.ParseFlags([]string{"--width", "64", "--invert", "--ratio", "16:9"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	base := schema.DefaultConvertOptions()
	base.Contrast = 150
	got := flags.options(cmd, base)
	if got.Width != 64 || !got.Invert {
		t.Fatalf("expected flag overrides, got %+v", got)
	}
	if got.Contrast != 150 || got.Charset != base.Charset {
		t.Fatalf("expected unchanged flags to keep config values, got %+v", got)
	}
	if got.Ratio == nil || *got.Ratio != "16:9" {
		t.Fatalf("expected ratio 16:9, got %v", got.Ratio)
	}

	blank := convertFlags{}
	cmd = &cobra.Command{Use: "y"}
	blank.register(cmd)
	if err := cmd.ParseFlags([]string{"--ratio", " "}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	ratio := "4:3"
	base.Ratio = &ratio
	if got := blank.options(cmd, base); got.Ratio != nil {
		t.Fatalf("expected blank ratio to clear, got %q", *got.Ratio)
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	if err := printResult(&buf, schema.Message{Kind: schema.MessageASCIIResult, ASCII: "ab\ncd\n"}, false); err != nil {
		t.Fatalf("print: %v", err)
	}
	if buf.String() != "ab\ncd\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}

	gif := schema.Message{Kind: schema.MessageGIFResult, Frames: []string{"f1", "f2"}, Delays: []int{50}}
	buf.Reset()
	if err := printResult(&buf, gif, false); err != nil {
		t.Fatalf("print: %v", err)
	}
	if buf.String() != "f1\n" {
		t.Fatalf("expected first frame only, got %q", buf.String())
	}
	buf.Reset()
	if err := printResult(&buf, gif, true); err != nil {
		t.Fatalf("print: %v", err)
	}
	want := "--- frame 1/2 (50ms)\nf1\n--- frame 2/2 (100ms)\nf2\n"
	if buf.String() != want {
		t.Fatalf("unexpected frames output %q", buf.String())
	}

	if err := printResult(&buf, schema.Message{Kind: schema.MessageGIFResult}, false); err == nil {
		t.Fatalf("expected error for empty gif")
	}
	if err := printResult(&buf, schema.Message{Kind: schema.MessageStatus}, false); err == nil {
		t.Fatalf("expected error for non-result")
	}
}

func TestResultArt(t *testing.T) {
	if got := resultArt(schema.Message{Kind: schema.MessageASCIIResult, ASCII: "art"}); got != "art" {
		t.Fatalf("unexpected art %q", got)
	}
	if got := resultArt(schema.Message{Kind: schema.MessageGIFResult, Frames: []string{"one", "two"}}); got != "one" {
		t.Fatalf("expected first frame, got %q", got)
	}
	if got := resultArt(schema.Message{Kind: schema.MessageGIFResult}); got != "" {
		t.Fatalf("expected empty art, got %q", got)
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := printHistory(&buf, nil); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), "history is empty") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
	buf.Reset()
	entries := []schema.HistoryEntry{
		{Timestamp: "not a time", ASCII: "\n  first line  \nsecond"},
		{Timestamp: "2026-01-02T03:04:05", Preview: "gif", IsGIF: true, Frames: []string{"a", "b"}},
	}
	if err := printHistory(&buf, entries); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"INDEX", "not a time", "first line", "gif (2 frames)", "2026-01-02 03:04:05"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}
