package attach

import (
	"log/slog"
	"sync"

	"emp/internal/config"
	"emp/internal/registry"
)

// Base carries the bookkeeping every attachment shares: identity, config
// section, and the idempotent activation guard. Concrete attachments embed
// it and override the lifecycle hooks they need.
type Base struct {
	name   string
	module string
	kind   registry.Kind
	cfg    *config.AttachConfig
	logger *slog.Logger

	mu        sync.Mutex
	id        string
	activated bool
}

// NewBase seeds the shared attachment state. The makeactive flag defaults
// to true the first time an attachment appears in the config.
func NewBase(name, module string, kind registry.Kind, cfg *config.AttachConfig, logger *slog.Logger) Base {
	return Base{name: name, module: module, kind: kind, cfg: cfg, logger: logger}
}

// SetID is called by the registry at registration time.
func (b *Base) SetID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
}

// ID returns the routing id, empty before registration.
func (b *Base) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

func (b *Base) Name() string                 { return b.name }
func (b *Base) Module() string               { return b.module }
func (b *Base) Kind() registry.Kind          { return b.kind }
func (b *Base) Config() *config.AttachConfig { return b.cfg }

// Logger returns the attachment-scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// MakeActive reports whether the attachment should be activated at startup.
func (b *Base) MakeActive() bool {
	return b.cfg.GetBool("makeactive", true)
}

// SetMakeActive records the startup activation flag in the live config.
func (b *Base) SetMakeActive(active bool) {
	b.cfg.Set("makeactive", active)
}

// Activated reports the current lifecycle state.
func (b *Base) Activated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activated
}

// BeginActivate flips the state to activated and reports whether the caller
// should proceed; false means the attachment was already active.
func (b *Base) BeginActivate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.activated {
		return false
	}
	b.activated = true
	return true
}

// BeginDeactivate flips the state back and reports whether teardown should
// proceed.
func (b *Base) BeginDeactivate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.activated {
		return false
	}
	b.activated = false
	return true
}

// Save flushes in-memory settings to the live config section. The base
// only maintains the makeactive flag; attachments with more state override.
func (b *Base) Save() {
	b.cfg.Set("makeactive", b.MakeActive())
}

// Load is a no-op by default; attachments with events or alerts override.
func (b *Base) Load(*Env) error { return nil }

// Commands is empty by default.
func (b *Base) Commands() []Command { return nil }
