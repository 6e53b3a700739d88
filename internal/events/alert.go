package events

// Alert is the runtime handler an alarm registers. The manager calls
// Handler once per dispatched trigger of every subscribed event.
type Alert struct {
	id      string
	name    string
	owner   string
	Handler func(*Event)
}

// NewAlert creates an unregistered alert around a handler.
func NewAlert(name string, handler func(*Event)) *Alert {
	return &Alert{name: name, Handler: handler}
}

// ID returns the routing id assigned at registration, empty before then.
func (a *Alert) ID() string { return a.id }

// Name returns the alert's registered name.
func (a *Alert) Name() string { return a.name }

// Owner returns the owning alarm's id.
func (a *Alert) Owner() string { return a.owner }
