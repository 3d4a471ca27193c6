package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/ascart/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int                   `mapstructure:"config_version" yaml:"config_version"`
	Worker        WorkerConfig          `mapstructure:"worker" yaml:"worker"`
	Widgets       WidgetsConfig         `mapstructure:"widgets" yaml:"widgets"`
	Convert       schema.ConvertOptions `mapstructure:"convert" yaml:"convert"`
	HTTP          HTTPConfig            `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// WorkerConfig describes how to launch the conversion worker.
type WorkerConfig struct {
	Binary string   `mapstructure:"binary" yaml:"binary"`
	Args   []string `mapstructure:"args" yaml:"args"`
	// Env holds KEY=VALUE pairs. A list keeps key case intact; viper
	// lowercases map keys.
	Env             []string `mapstructure:"env" yaml:"env"`
	Dir             string   `mapstructure:"dir" yaml:"dir"`
	StopGraceMS     int      `mapstructure:"stop_grace_ms" yaml:"stop_grace_ms"`
	MaxLineBytes    int      `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	ReadBufferBytes int      `mapstructure:"read_buffer_bytes" yaml:"read_buffer_bytes"`
}

// WidgetsConfig controls presentation sessions.
type WidgetsConfig struct {
	Policy       string `mapstructure:"policy" yaml:"policy"`
	ScratchDir   string `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	FontSize     int    `mapstructure:"font_size" yaml:"font_size"`
	MinFontSize  int    `mapstructure:"min_font_size" yaml:"min_font_size"`
	MaxFontSize  int    `mapstructure:"max_font_size" yaml:"max_font_size"`
	Autoplay     bool   `mapstructure:"autoplay" yaml:"autoplay"`
	// Theme selects the terminal widget palette.
	Theme        string `mapstructure:"theme" yaml:"theme"`
	SweepOnStart bool   `mapstructure:"sweep_on_start" yaml:"sweep_on_start"`
}

// HTTPConfig configures the HTTP control surface.
type HTTPConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	BasePath   string `mapstructure:"base_path" yaml:"base_path"`
	HubHistory int    `mapstructure:"hub_history" yaml:"hub_history"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Worker: WorkerConfig{
			Binary:          "python3",
			Args:            []string{"main.py"},
			Env:             []string{"PYTHONUNBUFFERED=1"},
			Dir:             filepath.Join(home, ".ascart", "worker"),
			StopGraceMS:     int(schema.DefaultStopGrace / time.Millisecond),
			MaxLineBytes:    schema.DefaultMaxLineBytes,
			ReadBufferBytes: schema.DefaultReadBufferBytes,
		},
		Widgets: WidgetsConfig{
			Policy:       string(schema.PolicyMulti),
			ScratchDir:   filepath.Join(os.TempDir(), "ascart"),
			FontSize:     schema.DefaultFontSize,
			MinFontSize:  schema.DefaultMinFontSize,
			MaxFontSize:  schema.DefaultMaxFontSize,
			Autoplay:     true,
			Theme:        "outrun",
			SweepOnStart: true,
		},
		Convert: schema.DefaultConvertOptions(),
		HTTP: HTTPConfig{
			Addr:       "127.0.0.1:27490",
			BaseURL:    "",
			BasePath:   "",
			HubHistory: 256,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ascart", "config.yaml"), nil
}

// BridgeConfig maps the worker and widget sections onto the bridge config.
func (c Config) BridgeConfig() schema.BridgeConfig {
	return schema.BridgeConfig{
		WorkerBinary:    c.Worker.Binary,
		WorkerArgs:      append([]string(nil), c.Worker.Args...),
		WorkerEnv:       append([]string(nil), c.Worker.Env...),
		WorkerDir:       c.Worker.Dir,
		StopGrace:       time.Duration(c.Worker.StopGraceMS) * time.Millisecond,
		MaxLineBytes:    c.Worker.MaxLineBytes,
		ReadBufferBytes: c.Worker.ReadBufferBytes,
		Policy:          schema.WidgetPolicy(c.Widgets.Policy),
		ScratchDir:      c.Widgets.ScratchDir,
		FontSize:        c.Widgets.FontSize,
		MinFontSize:     c.Widgets.MinFontSize,
		MaxFontSize:     c.Widgets.MaxFontSize,
		Autoplay:        c.Widgets.Autoplay,
		SweepOnStart:    c.Widgets.SweepOnStart,
	}
}
