package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultStopGrace bounds how long a stopping worker may linger before it is killed.
	DefaultStopGrace = 3 * time.Second
	// DefaultMaxLineBytes caps a single inbound protocol line. Animated
	// results carry every frame on one line, so the cap is generous.
	DefaultMaxLineBytes = 64 << 20
	// DefaultReadBufferBytes is the stdout read size.
	DefaultReadBufferBytes = 32 << 10

	DefaultFontSize    = 6
	DefaultMinFontSize = 2
	DefaultMaxFontSize = 20
)

// BridgeConfig configures the worker bridge and its widget sessions.
type BridgeConfig struct {
	WorkerBinary    string
	WorkerArgs      []string
	WorkerEnv       []string
	WorkerDir       string
	StopGrace       time.Duration
	MaxLineBytes    int
	ReadBufferBytes int

	Policy       WidgetPolicy
	ScratchDir   string
	FontSize     int
	MinFontSize  int
	MaxFontSize  int
	Autoplay     bool
	SweepOnStart bool
}

// NormalizeBridgeConfig applies defaults and validates the config.
func NormalizeBridgeConfig(cfg BridgeConfig) (BridgeConfig, error) {
	cfg.WorkerBinary = strings.TrimSpace(cfg.WorkerBinary)
	if cfg.WorkerBinary == "" {
		return BridgeConfig{}, errors.New("worker binary is required")
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.ReadBufferBytes <= 0 {
		cfg.ReadBufferBytes = DefaultReadBufferBytes
	}
	policy, err := ParseWidgetPolicy(string(cfg.Policy))
	if err != nil {
		return BridgeConfig{}, fmt.Errorf("%w: %q", err, cfg.Policy)
	}
	cfg.Policy = policy
	if strings.TrimSpace(cfg.ScratchDir) == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.MinFontSize <= 0 {
		cfg.MinFontSize = DefaultMinFontSize
	}
	if cfg.MaxFontSize <= 0 {
		cfg.MaxFontSize = DefaultMaxFontSize
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = DefaultFontSize
	}
	if cfg.MinFontSize > cfg.FontSize || cfg.FontSize > cfg.MaxFontSize {
		return BridgeConfig{}, fmt.Errorf("font sizes must satisfy min <= default <= max (got %d/%d/%d)", cfg.MinFontSize, cfg.FontSize, cfg.MaxFontSize)
	}
	return cfg, nil
}
