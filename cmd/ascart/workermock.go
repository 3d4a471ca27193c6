package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"html"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/ascart/schema"
)

const (
	mockHistoryLimit  = 50
	mockPreviewLimit  = 500
	mockGIFFrameCount = 3
	mockHistoryFile   = "history.json"
)

var mockCharsets = map[string]string{
	"detailed": "$@B%8&WM#*oahkbdpqwmZO0QLCJUYXzcvunxrjft/|()1{}[]?-_+~<>i!lI;:,^`'. ",
	"standard": "@%#*+=-:. ",
	"simple":   "#+-. ",
	"blocks":   "█▓▒░ ",
}

func newWorkerMockCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "worker-mock [--output-dir <dir>] [--delay-ms <n>] [--chunked] [--garbage] [--no-file-check]",
		Short:              "Line-delimited JSON conversion worker for testing",
		SilenceErrors:      true,
		SilenceUsage:       true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerMock(args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

type workerMockConfig struct {
	outputDir   string
	delay       time.Duration
	chunked     bool
	garbage     bool
	noFileCheck bool
}

func parseWorkerMockArgs(args []string) (workerMockConfig, error) {
	cfg := workerMockConfig{outputDir: "output"}
	for len(args) > 0 {
		switch args[0] {
		case "--output-dir":
			if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
				return workerMockConfig{}, errors.New("--output-dir requires a value")
			}
			cfg.outputDir = args[1]
			args = args[2:]
		case "--delay-ms":
			if len(args) < 2 {
				return workerMockConfig{}, errors.New("--delay-ms requires a value")
			}
			val, err := strconv.Atoi(args[1])
			if err != nil || val < 0 {
				return workerMockConfig{}, errors.New("invalid --delay-ms")
			}
			cfg.delay = time.Duration(val) * time.Millisecond
			args = args[2:]
		case "--chunked":
			cfg.chunked = true
			args = args[1:]
		case "--garbage":
			cfg.garbage = true
			args = args[1:]
		case "--no-file-check":
			cfg.noFileCheck = true
			args = args[1:]
		default:
			return workerMockConfig{}, fmt.Errorf("unsupported flag: %s", args[0])
		}
	}
	return cfg, nil
}

// workerRequest is the union of every command the worker accepts.
type workerRequest struct {
	Command  string                 `json:"command"`
	Path     string                 `json:"path"`
	Options  *schema.ConvertOptions `json:"options"`
	ASCII    string                 `json:"ascii"`
	Filename string                 `json:"filename"`
	Format   string                 `json:"format"`
	Index    *int                   `json:"index"`
}

type workerMock struct {
	cfg    workerMockConfig
	out    *bufio.Writer
	logw   io.Writer
	replay []schema.HistoryEntry
}

func runWorkerMock(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	cfg, err := parseWorkerMockArgs(args)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()
	go func() {
		select {
		case <-sigCh:
			_, _ = fmt.Fprintln(stderr, "[WORKER INFO] signal received, exiting")
			os.Exit(0)
		case <-done:
		}
	}()

	mock := &workerMock{cfg: cfg, out: bufio.NewWriter(stdout), logw: stderr}
	mock.replay = mock.loadHistory()
	mock.info("worker ready, output dir %s", cfg.outputDir)

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64<<10), schema.DefaultMaxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if cfg.delay > 0 {
			time.Sleep(cfg.delay)
		}
		if cfg.garbage {
			if err := mock.writeRaw([]byte("not json {\n")); err != nil {
				return err
			}
		}
		if err := mock.write(mock.handle(line)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return err
	}
	mock.info("stdin closed, exiting")
	return nil
}

func (m *workerMock) handle(line string) map[string]any {
	var req workerRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return mockError("Invalid JSON: " + err.Error())
	}
	m.info("received command %s", req.Command)
	switch schema.CommandName(req.Command) {
	case schema.CommandPing:
		return map[string]any{"status": "success", "message": "Pong from worker-mock!"}
	case schema.CommandConvert:
		return m.convert(req)
	case schema.CommandSave:
		return m.save(req)
	case schema.CommandGetHistory:
		m.info("history loaded: %d entries", len(m.replay))
		history := m.replay
		if history == nil {
			history = []schema.HistoryEntry{}
		}
		return map[string]any{"status": "success", "history": history}
	case schema.CommandDeleteHistory:
		return m.deleteHistory(req)
	default:
		return mockError("Unknown command: " + req.Command)
	}
}

func (m *workerMock) convert(req workerRequest) map[string]any {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return mockError("No file path provided")
	}
	if !m.cfg.noFileCheck {
		if _, err := os.Stat(path); err != nil {
			return mockError("File not found: " + path)
		}
	}
	opts := schema.DefaultConvertOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	if _, ok := mockCharsets[opts.Charset]; !ok {
		opts.Charset = "detailed"
	}
	if opts.Width <= 0 {
		opts.Width = schema.DefaultConvertOptions().Width
	}
	seed := hashArtSeed(path, opts)

	if strings.EqualFold(filepath.Ext(path), ".gif") {
		frames := make([]string, 0, mockGIFFrameCount)
		delays := make([]int, 0, mockGIFFrameCount)
		for i := range mockGIFFrameCount {
			frames = append(frames, mockArt(seed, opts, i))
			delays = append(delays, 80+20*i)
		}
		m.remember(schema.HistoryEntry{ASCII: frames[0], Options: opts, IsGIF: true, Frames: frames, Delays: delays})
		m.info("gif converted: %d frames", len(frames))
		return map[string]any{
			"status":     "success",
			"type":       string(schema.MessageGIFResult),
			"frames":     frames,
			"delays":     delays,
			"frameCount": len(frames),
		}
	}
	art := mockArt(seed, opts, 0)
	m.remember(schema.HistoryEntry{ASCII: art, Options: opts})
	m.info("image converted: %d chars", len(art))
	return map[string]any{
		"status": "success",
		"type":   string(schema.MessageASCIIResult),
		"ascii":  art,
		"isGif":  false,
	}
}

func (m *workerMock) save(req workerRequest) map[string]any {
	if req.ASCII == "" {
		return mockError("No ASCII art provided")
	}
	format := schema.SaveFormat(req.Format)
	if format == "" {
		format = schema.SaveText
	}
	if format != schema.SaveText && format != schema.SaveHTML {
		return mockError("Unsupported format: " + req.Format)
	}
	name := filepath.Base(strings.TrimSpace(req.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "ascii_art_" + time.Now().Format("20060102_150405")
	}
	name = strings.TrimSuffix(name, filepath.Ext(name)) + "." + string(format)
	body := req.ASCII
	if format == schema.SaveHTML {
		body = "<!DOCTYPE html>\n<html><body><pre>" + html.EscapeString(req.ASCII) + "</pre></body></html>\n"
	}
	if err := os.MkdirAll(m.cfg.outputDir, 0o755); err != nil {
		return mockError(err.Error())
	}
	target := filepath.Join(m.cfg.outputDir, name)
	if err := os.WriteFile(target, []byte(body), 0o644); err != nil {
		return mockError(err.Error())
	}
	m.info("saved %s", target)
	return map[string]any{"status": "success", "message": "Saved to " + target, "filepath": target}
}

func (m *workerMock) deleteHistory(req workerRequest) map[string]any {
	if req.Index == nil {
		return mockError("No history index provided")
	}
	index := *req.Index
	if index < 0 || index >= len(m.replay) {
		return mockError(fmt.Sprintf("History index out of range: %d", index))
	}
	m.replay = append(m.replay[:index], m.replay[index+1:]...)
	m.storeHistory()
	m.info("history entry %d deleted", index)
	return map[string]any{"status": "success", "message": fmt.Sprintf("Deleted history entry %d", index)}
}

func (m *workerMock) remember(entry schema.HistoryEntry) {
	entry.Timestamp = time.Now().Format("2006-01-02T15:04:05.000000")
	entry.Preview = entry.ASCII
	if len(entry.Preview) > mockPreviewLimit {
		entry.Preview = entry.Preview[:mockPreviewLimit]
	}
	m.replay = append(m.replay, entry)
	if len(m.replay) > mockHistoryLimit {
		m.replay = m.replay[len(m.replay)-mockHistoryLimit:]
	}
	m.storeHistory()
}

func (m *workerMock) historyPath() string {
	return filepath.Join(m.cfg.outputDir, mockHistoryFile)
}

func (m *workerMock) loadHistory() []schema.HistoryEntry {
	data, err := os.ReadFile(m.historyPath())
	if err != nil {
		return nil
	}
	var history []schema.HistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		m.info("history unreadable, starting empty: %v", err)
		return nil
	}
	return history
}

func (m *workerMock) storeHistory() {
	if err := os.MkdirAll(m.cfg.outputDir, 0o755); err != nil {
		m.info("history not stored: %v", err)
		return
	}
	data, err := json.MarshalIndent(m.replay, "", "  ")
	if err != nil {
		m.info("history not stored: %v", err)
		return
	}
	if err := os.WriteFile(m.historyPath(), data, 0o644); err != nil {
		m.info("history not stored: %v", err)
	}
}

func (m *workerMock) write(reply map[string]any) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return m.writeRaw(append(data, '\n'))
}

// writeRaw flushes data, split in two writes when chunked so readers see a
// line arrive across reads.
func (m *workerMock) writeRaw(data []byte) error {
	if m.cfg.chunked && len(data) > 1 {
		half := len(data) / 2
		if _, err := m.out.Write(data[:half]); err != nil {
			return err
		}
		if err := m.out.Flush(); err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
		data = data[half:]
	}
	if _, err := m.out.Write(data); err != nil {
		return err
	}
	return m.out.Flush()
}

func (m *workerMock) info(format string, args ...any) {
	_, _ = fmt.Fprintf(m.logw, "[WORKER INFO] "+format+"\n", args...)
}

func mockError(detail string) map[string]any {
	return map[string]any{"status": "error", "error": detail}
}

func hashArtSeed(path string, opts schema.ConvertOptions) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(filepath.Base(path)))
	_, _ = hasher.Write([]byte(opts.Charset))
	_, _ = hasher.Write([]byte(strconv.Itoa(opts.Width)))
	return hasher.Sum64()
}

// mockArt draws a deterministic gradient pattern for seed. Frames shift the
// pattern so animated results differ per frame.
func mockArt(seed uint64, opts schema.ConvertOptions, frame int) string {
	ramp := []rune(mockCharsets[opts.Charset])
	if opts.Invert {
		for i, j := 0, len(ramp)-1; i < j; i, j = i+1, j-1 {
			ramp[i], ramp[j] = ramp[j], ramp[i]
		}
	}
	width := opts.Width
	height := min(max(width/4, 1), 40)
	var b strings.Builder
	for y := range height {
		for x := range width {
			v := (uint64(x*7+y*13+frame) + seed) % uint64(len(ramp))
			b.WriteRune(ramp[v])
		}
		if y < height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
