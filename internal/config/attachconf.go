package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// AttachConfig is the key/value view one attachment owns. Values are read
// and written by the attachment at runtime; the section is serialized back
// into the main file on Config.Save.
type AttachConfig struct {
	name string

	mu     sync.RWMutex
	values map[string]any
}

// Name returns the attachment section name.
func (a *AttachConfig) Name() string { return a.name }

// Set stores a value under key.
func (a *AttachConfig) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key] = value
}

// GetString returns the string value for key, or fallback.
func (a *AttachConfig) GetString(key, fallback string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[key]
	if !ok {
		return fallback
	}
	return fmt.Sprint(v)
}

// GetInt returns the integer value for key, or fallback.
func (a *AttachConfig) GetInt(key string, fallback int) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch v := a.values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// GetFloat returns the float value for key, or fallback.
func (a *AttachConfig) GetFloat(key string, fallback float64) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch v := a.values[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetBool returns the boolean value for key, or fallback.
func (a *AttachConfig) GetBool(key string, fallback bool) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch v := a.values[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// GetStringList returns the list value for key, or fallback. Scalar string
// values are treated as comma-separated lists.
func (a *AttachConfig) GetStringList(key string, fallback []string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch v := a.values[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			out = append(out, strings.TrimSpace(part))
		}
		return out
	}
	return fallback
}

func (a *AttachConfig) snapshot() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}
