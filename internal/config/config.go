package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Daemon contains daemon-wide settings.
type Daemon struct {
	// StateDir holds the registry file, history database, lock file, and logs.
	StateDir string `toml:"state_dir"`
	// Bind is the address the interface listener binds to.
	Bind string `toml:"bind"`
	// PollInterval is the Loop-plug polling interval in minutes. Values
	// below one minute are raised to one minute.
	PollInterval float64 `toml:"poll_interval"`
	LocalOnly    bool    `toml:"local_only"`
	AllowAll     bool    `toml:"allow_all"`
	Whitelist    []string `toml:"whitelist"`
	LogLevel     string  `toml:"log_level"`
	LogFormat    string  `toml:"log_format"`
	HistoryKeep  int     `toml:"history_keep"`
}

// Config is the root of the emp configuration file.
type Config struct {
	Daemon      Daemon                    `toml:"daemon"`
	Attachments map[string]map[string]any `toml:"attachments"`

	path string
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Daemon: Daemon{
			StateDir:     filepath.Join(home, ".local", "share", "emp"),
			Bind:         "127.0.0.1:8525",
			PollInterval: 1,
			LocalOnly:    true,
			AllowAll:     false,
			LogLevel:     "info",
			LogFormat:    "console",
			HistoryKeep:  10000,
		},
		Attachments: map[string]map[string]any{},
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "emp", "config.toml")
}

// Load reads the configuration file at path, falling back to defaults when
// the file does not exist. An empty path selects DefaultPath.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Attachments == nil {
		cfg.Attachments = map[string]map[string]any{}
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Daemon.PollInterval < 1 {
		c.Daemon.PollInterval = 1
	}
	if strings.TrimSpace(c.Daemon.Bind) == "" {
		c.Daemon.Bind = "127.0.0.1:8525"
	}
	if c.Daemon.HistoryKeep <= 0 {
		c.Daemon.HistoryKeep = 10000
	}
}

// Path returns the location this configuration was loaded from.
func (c *Config) Path() string { return c.path }

// SetPath overrides the file location used by Save.
func (c *Config) SetPath(path string) { c.path = path }

// EnsureDirectories creates the state directory tree.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Daemon.StateDir, 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	return nil
}

// RegistryPath returns the registry snapshot location.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.Daemon.StateDir, "registry.json")
}

// HistoryPath returns the event history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Daemon.StateDir, "history.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Daemon.StateDir, "empd.lock")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Daemon.StateDir, "empd.log")
}

// Attach returns the namespaced key/value store for one attachment,
// creating the section if it does not exist yet.
func (c *Config) Attach(name string) *AttachConfig {
	section, ok := c.Attachments[name]
	if !ok {
		section = map[string]any{}
		c.Attachments[name] = section
	}
	return &AttachConfig{name: name, values: section}
}

// ConfigHolder is anything whose live configuration should be captured on save.
type ConfigHolder interface {
	Name() string
	Config() *AttachConfig
	Save()
}

// Save pulls each attachment's live configuration and writes the full file,
// creating parent directories as needed.
func (c *Config) Save(attachments []ConfigHolder) error {
	for _, a := range attachments {
		if a == nil {
			continue
		}
		a.Save()
		if ac := a.Config(); ac != nil {
			c.Attachments[a.Name()] = ac.snapshot()
		}
	}

	if strings.TrimSpace(c.path) == "" {
		return errors.New("config path is unset")
	}
	if dir := filepath.Dir(c.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure config dir: %w", err)
		}
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}
