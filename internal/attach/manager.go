package attach

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/logging"
	"emp/internal/registry"
)

// Manager owns every loaded attachment. Discovery order is preserved so
// importance ties in GetLoopPlugs stay deterministic.
type Manager struct {
	logger *slog.Logger
	cfg    *config.Config
	reg    *registry.Registry
	events *events.Manager

	mu          sync.RWMutex
	attachments []Attachment
}

// NewManager wires the attachment manager against its collaborators.
func NewManager(cfg *config.Config, reg *registry.Registry, ev *events.Manager, logger *slog.Logger) *Manager {
	return &Manager{
		logger: logging.NewComponentLogger(logger, "attach"),
		cfg:    cfg,
		reg:    reg,
		events: ev,
	}
}

// Collect instantiates every factory, registers the attachment, and runs
// its Load hook. A failing attachment is logged and skipped; it never
// prevents the rest of the catalog from loading.
func (m *Manager) Collect(factories []Factory) {
	for _, f := range factories {
		section := m.cfg.Attach(f.Name)
		logger := logging.NewComponentLogger(m.logger, f.Name)
		a := f.New(section, logger)
		if a == nil {
			m.logger.Warn("factory returned no attachment", logging.String("name", f.Name))
			continue
		}

		switch a.Kind() {
		case registry.KindPlug:
			m.reg.RegisterPlug(f.Name, f.Module, a)
		case registry.KindAlarm:
			m.reg.RegisterAlarm(f.Name, f.Module, a)
		default:
			m.logger.Warn("attachment has unroutable kind",
				logging.String("name", f.Name), logging.String("kind", string(a.Kind())))
			continue
		}

		env := &Env{Registry: m.reg, Events: m.events, Logger: logger}
		if err := a.Load(env); err != nil {
			m.logger.Error("attachment load failed; skipping",
				logging.String("name", f.Name), logging.Error(err))
			m.reg.Deregister(a.ID())
			continue
		}

		m.mu.Lock()
		m.attachments = append(m.attachments, a)
		m.mu.Unlock()
		m.logger.Info("attachment collected",
			logging.String("name", f.Name),
			logging.String(logging.FieldAttachID, a.ID()),
			logging.String("kind", string(a.Kind())))
	}
}

// ActivateAttachments activates every attachment whose makeactive flag is
// set. One attachment's failure never blocks its siblings.
func (m *Manager) ActivateAttachments() {
	for _, a := range m.Attachments() {
		if !a.MakeActive() {
			continue
		}
		if err := a.Activate(); err != nil {
			m.logger.Error("attachment activation failed",
				logging.String("name", a.Name()), logging.Error(err))
		}
	}
}

// DeactivateAll saves and deactivates every active attachment, in reverse
// collection order.
func (m *Manager) DeactivateAll() {
	attachments := m.Attachments()
	for i := len(attachments) - 1; i >= 0; i-- {
		a := attachments[i]
		if !a.Activated() {
			continue
		}
		a.Save()
		if err := a.Deactivate(); err != nil {
			m.logger.Error("attachment deactivation failed",
				logging.String("name", a.Name()), logging.Error(err))
		}
	}
}

// Activate activates one attachment by id or name.
func (m *Manager) Activate(cid string) error {
	a := m.GetAttachment(cid)
	if a == nil {
		return fmt.Errorf("no attachment %q", cid)
	}
	a.SetMakeActive(true)
	return a.Activate()
}

// Deactivate saves and deactivates one attachment by id or name.
func (m *Manager) Deactivate(cid string) error {
	a := m.GetAttachment(cid)
	if a == nil {
		return fmt.Errorf("no attachment %q", cid)
	}
	a.SetMakeActive(false)
	a.Save()
	return a.Deactivate()
}

// GetLoopPlugs returns the polled plugs in descending importance order;
// ties keep collection order.
func (m *Manager) GetLoopPlugs() []LoopPlug {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var plugs []LoopPlug
	for _, a := range m.attachments {
		if lp, ok := a.(LoopPlug); ok {
			plugs = append(plugs, lp)
		}
	}
	sort.SliceStable(plugs, func(i, j int) bool {
		return plugs[i].Importance() > plugs[j].Importance()
	})
	return plugs
}

// GetCommands resolves an attachment id or name to its command table.
func (m *Manager) GetCommands(cid string) ([]Command, bool) {
	a := m.GetAttachment(cid)
	if a == nil {
		return nil, false
	}
	return a.Commands(), true
}

// GetAttachment resolves an id or command name to the live attachment.
func (m *Manager) GetAttachment(cid string) Attachment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attachments {
		if a.ID() == cid || a.Name() == cid {
			return a
		}
	}
	return nil
}

// Attachments returns a snapshot in collection order.
func (m *Manager) Attachments() []Attachment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Attachment(nil), m.attachments...)
}

// Holders adapts the attachments for the config store's save pass.
func (m *Manager) Holders() []config.ConfigHolder {
	attachments := m.Attachments()
	holders := make([]config.ConfigHolder, 0, len(attachments))
	for _, a := range attachments {
		holders = append(holders, a)
	}
	return holders
}
