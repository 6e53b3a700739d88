// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"emp/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted in a unique temp directory per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Daemon.StateDir = filepath.Join(base, "state")
	cfg.Daemon.Bind = "127.0.0.1:0"
	cfg.SetPath(filepath.Join(base, "config.toml"))

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithBind overrides the interface listener bind address.
func WithBind(addr string) ConfigOption {
	return func(c *config.Config) {
		c.Daemon.Bind = addr
	}
}

// WithAttachSetting seeds one attachment configuration key before load.
func WithAttachSetting(attach, key string, value any) ConfigOption {
	return func(c *config.Config) {
		if c.Attachments == nil {
			c.Attachments = map[string]map[string]any{}
		}
		section, ok := c.Attachments[attach]
		if !ok {
			section = map[string]any{}
			c.Attachments[attach] = section
		}
		section[key] = value
	}
}
