// Package attach defines the attachment surface plugs and alarms implement
// and the manager that collects, registers, and schedules them.
package attach

import (
	"log/slog"

	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/registry"
)

// Command is one entry in an attachment's command table. Run returns the
// value carried back to the sender in a Base reply.
type Command struct {
	Name string
	Help string
	Run  func(args []string) (any, error)
}

// Env is handed to an attachment after registration so it can load its
// events and alerts.
type Env struct {
	Registry *registry.Registry
	Events   *events.Manager
	Logger   *slog.Logger
}

// Attachment is the common lifecycle surface of a plug or alarm. Name,
// Config, and Save double as the config store's holder contract so live
// settings are captured on save.
type Attachment interface {
	registry.Registrant
	ID() string
	Name() string
	Module() string
	Kind() registry.Kind
	Commands() []Command
	// Load runs once after registration, before activation.
	Load(env *Env) error
	Activate() error
	Deactivate() error
	Activated() bool
	MakeActive() bool
	SetMakeActive(bool)
	Config() *config.AttachConfig
	Save()
}

// LoopPlug is a plug polled by the daemon's update cycle. Higher importance
// plugs are polled first.
type LoopPlug interface {
	Attachment
	Update()
	Importance() float64
}

// Factory describes one compiled-in attachment and how to build it.
type Factory struct {
	Name   string
	Module string
	New    func(cfg *config.AttachConfig, logger *slog.Logger) Attachment
}
