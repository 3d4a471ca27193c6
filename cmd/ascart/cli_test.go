package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"pkt.systems/ascart/internal/appconfig"
	"pkt.systems/pslog"
)

type cliEnv struct {
	configPath string
	outputDir  string
	imageDir   string
}

// newCLIEnv writes a config whose worker is this test binary running the
// worker mock.
func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("executable: %v", err)
	}
	root := t.TempDir()
	env := cliEnv{
		configPath: filepath.Join(root, "config.yaml"),
		outputDir:  filepath.Join(root, "output"),
		imageDir:   filepath.Join(root, "images"),
	}
	if err := os.MkdirAll(env.imageDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Worker.Binary = self
	cfg.Worker.Args = []string{"--output-dir", env.outputDir}
	cfg.Worker.Env = []string{workerMockEnv + "=1"}
	cfg.Worker.Dir = root
	cfg.Widgets.ScratchDir = filepath.Join(root, "scratch")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(env.configPath, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e cliEnv) image(t *testing.T, name string) string {
	t.Helper()
	return writeImage(t, e.imageDir, name)
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	logger := pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
	err := root.ExecuteContext(pslog.ContextWithLogger(context.Background(), logger))
	return stdout.String(), stderr.String(), err
}

func TestCLIConvertPrintsArt(t *testing.T) {
	env := newCLIEnv(t)
	img := env.image(t, "cat.png")
	out, _, err := runCLI(t, "convert", img, "-c", env.configPath, "--width", "20", "--charset", "blocks")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	rows := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d: %q", len(rows), out)
	}
	for _, row := range rows {
		if n := len([]rune(row)); n != 20 {
			t.Fatalf("expected 20 columns, got %d in %q", n, row)
		}
	}
}

func TestCLIConvertGIFFrames(t *testing.T) {
	env := newCLIEnv(t)
	gif := env.image(t, "dance.gif")
	out, _, err := runCLI(t, "convert", gif, "-c", env.configPath, "--width", "8", "--frames")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	for _, want := range []string{"--- frame 1/3 (80ms)", "--- frame 3/3 (120ms)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCLIConvertReportsWorkerError(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := runCLI(t, "convert", filepath.Join(env.imageDir, "missing.png"), "-c", env.configPath)
	if err == nil || !strings.Contains(err.Error(), "File not found") {
		t.Fatalf("expected worker error, got %v", err)
	}
}

func TestCLIConvertAndSave(t *testing.T) {
	env := newCLIEnv(t)
	img := env.image(t, "cat.png")
	if _, _, err := runCLI(t, "convert", img, "-c", env.configPath, "--width", "8", "--save", "cat", "--format", "html"); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.outputDir, "cat.html")); err != nil {
		t.Fatalf("expected saved file: %v", err)
	}
}

func TestCLIHistoryListAndDelete(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := runCLI(t, "history", "list", "-c", env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "history is empty") {
		t.Fatalf("expected empty history, got %q", out)
	}

	img := env.image(t, "cat.png")
	gif := env.image(t, "dance.gif")
	for _, path := range []string{img, gif} {
		if _, _, err := runCLI(t, "convert", path, "-c", env.configPath, "--width", "8"); err != nil {
			t.Fatalf("convert %s: %v", path, err)
		}
	}
	out, _, err = runCLI(t, "history", "list", "-c", env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "INDEX") || !strings.Contains(out, "gif (3 frames)") {
		t.Fatalf("unexpected history listing:\n%s", out)
	}

	out, stderr, err := runCLI(t, "history", "delete", "1", "-c", env.configPath)
	if err != nil {
		t.Fatalf("history delete: %v", err)
	}
	if !strings.Contains(stderr, "deleting 1") {
		t.Fatalf("expected delete notice, got %q", stderr)
	}
	if strings.Contains(out, "gif") {
		t.Fatalf("expected gif entry removed:\n%s", out)
	}

	if _, _, err := runCLI(t, "history", "delete", "9", "-c", env.configPath); err == nil {
		t.Fatalf("expected out of range delete to fail")
	}
	if _, _, err := runCLI(t, "history", "delete", "x", "-c", env.configPath); err == nil {
		t.Fatalf("expected non-integer index to fail")
	}
}

func TestCLIDoctor(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := runCLI(t, "doctor", "-c", env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	if strings.Contains(out, "FAIL") || !strings.Contains(out, "worker ping") {
		t.Fatalf("unexpected doctor output:\n%s", out)
	}
}

func TestCLIConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	out, _, err := runCLI(t, "config", "init", "-c", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("expected written path, got %q", out)
	}
	if _, _, err := runCLI(t, "config", "init", "-c", path); err == nil {
		t.Fatalf("expected init without --force to refuse overwrite")
	}
	out, _, err = runCLI(t, "config", "show", "-c", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var shown appconfig.Config
	if err := yaml.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("unmarshal shown config: %v", err)
	}
	if shown.ConfigVersion != appconfig.CurrentConfigVersion || shown.Worker.Binary == "" {
		t.Fatalf("unexpected shown config %+v", shown)
	}
}
