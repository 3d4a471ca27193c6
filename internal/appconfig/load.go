package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/ascart/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("worker.binary", cfg.Worker.Binary)
	v.SetDefault("worker.args", cfg.Worker.Args)
	v.SetDefault("worker.env", cfg.Worker.Env)
	v.SetDefault("worker.dir", cfg.Worker.Dir)
	v.SetDefault("worker.stop_grace_ms", cfg.Worker.StopGraceMS)
	v.SetDefault("worker.max_line_bytes", cfg.Worker.MaxLineBytes)
	v.SetDefault("worker.read_buffer_bytes", cfg.Worker.ReadBufferBytes)
	v.SetDefault("widgets.policy", cfg.Widgets.Policy)
	v.SetDefault("widgets.scratch_dir", cfg.Widgets.ScratchDir)
	v.SetDefault("widgets.font_size", cfg.Widgets.FontSize)
	v.SetDefault("widgets.min_font_size", cfg.Widgets.MinFontSize)
	v.SetDefault("widgets.max_font_size", cfg.Widgets.MaxFontSize)
	v.SetDefault("widgets.autoplay", cfg.Widgets.Autoplay)
	v.SetDefault("widgets.theme", cfg.Widgets.Theme)
	v.SetDefault("widgets.sweep_on_start", cfg.Widgets.SweepOnStart)
	v.SetDefault("convert.width", cfg.Convert.Width)
	v.SetDefault("convert.charset", cfg.Convert.Charset)
	v.SetDefault("convert.remove_background", cfg.Convert.RemoveBackground)
	v.SetDefault("convert.brightness", cfg.Convert.Brightness)
	v.SetDefault("convert.contrast", cfg.Convert.Contrast)
	v.SetDefault("convert.invert", cfg.Convert.Invert)
	v.SetDefault("convert.keep_original", cfg.Convert.KeepOriginal)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_url", cfg.HTTP.BaseURL)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.hub_history", cfg.HTTP.HubHistory)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateWorkerConfig(cfg.Worker); err != nil {
		return Config{}, err
	}
	if err := validateWidgetsConfig(cfg.Widgets); err != nil {
		return Config{}, err
	}
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateWorkerConfig(cfg WorkerConfig) error {
	if strings.TrimSpace(cfg.Binary) == "" {
		return fmt.Errorf("worker.binary is required")
	}
	for _, pair := range cfg.Env {
		if key, _, ok := strings.Cut(pair, "="); !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("worker.env entries must be KEY=VALUE, got %q", pair)
		}
	}
	if cfg.StopGraceMS < 0 {
		return fmt.Errorf("worker.stop_grace_ms must not be negative")
	}
	return nil
}

func validateWidgetsConfig(cfg WidgetsConfig) error {
	if _, err := schema.ParseWidgetPolicy(cfg.Policy); err != nil {
		return fmt.Errorf("widgets.policy must be %q or %q, got %q", schema.PolicyMulti, schema.PolicySingle, cfg.Policy)
	}
	if cfg.MinFontSize < 1 || cfg.MinFontSize > cfg.FontSize || cfg.FontSize > cfg.MaxFontSize {
		return fmt.Errorf("widgets font sizes must satisfy 1 <= min_font_size <= font_size <= max_font_size")
	}
	return nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("http.base_url must include scheme and host (e.g. http://127.0.0.1:27490)")
		}
	}
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Worker.Binary = expandEnv(cfg.Worker.Binary)
	cfg.Worker.Dir = expandEnv(cfg.Worker.Dir)
	for i, arg := range cfg.Worker.Args {
		cfg.Worker.Args[i] = expandEnv(arg)
	}
	cfg.Widgets.ScratchDir = expandEnv(cfg.Widgets.ScratchDir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	case "TMPDIR":
		return os.TempDir(), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
