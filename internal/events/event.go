package events

import (
	"log/slog"
	"sync"

	"emp/internal/logging"
)

// Event is the runtime trigger handle a plug raises. Trigger is idempotent
// while the event is already triggered; duplicate triggers collapse into a
// single dispatch until Detrigger runs.
type Event struct {
	mu        sync.Mutex
	id        string
	producer  string
	name      string
	halfLife  int
	payload   any
	triggered bool
	mgr       *Manager
}

// NewEvent creates an unregistered event. A halfLife above zero makes the
// event auto-detrigger that many seconds after dispatch.
func NewEvent(name string, halfLife int) *Event {
	return &Event{name: name, halfLife: halfLife}
}

// ID returns the routing id assigned at registration, empty before then.
func (e *Event) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Name returns the event's registered name.
func (e *Event) Name() string { return e.name }

// Producer returns the owning plug's id.
func (e *Event) Producer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.producer
}

// Payload returns the value attached by the most recent Trigger call.
func (e *Event) Payload() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payload
}

// Triggered reports whether the event is currently in the triggered state.
func (e *Event) Triggered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.triggered
}

// Trigger marks the event triggered and hands it to the manager's dispatch
// queue. Triggering an event that was never registered with a manager is
// dropped with a warning instead of crashing the plug.
func (e *Event) Trigger(payload any) {
	e.mu.Lock()
	if e.mgr == nil {
		e.mu.Unlock()
		slog.Default().Warn("trigger on unregistered event dropped",
			logging.String("name", e.name),
			logging.String(logging.FieldEventType, "event_trigger_dropped"))
		return
	}
	if e.triggered {
		e.mu.Unlock()
		return
	}
	e.triggered = true
	e.payload = payload
	id, mgr := e.id, e.mgr
	e.mu.Unlock()
	mgr.enqueue(id)
}

// Detrigger returns the event to idle. It is a no-op while not triggered.
func (e *Event) Detrigger() {
	e.mu.Lock()
	if !e.triggered {
		e.mu.Unlock()
		return
	}
	e.triggered = false
	id, mgr := e.id, e.mgr
	e.mu.Unlock()
	if mgr != nil {
		mgr.clearDecay(id)
	}
}

func (e *Event) bind(id string, mgr *Manager, producer string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.id = id
	e.mgr = mgr
	e.producer = producer
}

func (e *Event) unbind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mgr = nil
	e.triggered = false
}
