package registry

import (
	"fmt"

	"emp/internal/logging"
)

// LoadEvent registers a named event for a producer and returns its id.
// Registering the same (name, producer) pair again returns the existing id.
func (r *Registry) LoadEvent(name, producerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attachments[producerID]; !ok && producerID != r.daemonID {
		return "", fmt.Errorf("load event %q: unknown producer %q", name, producerID)
	}
	for _, ev := range r.events {
		if ev.Name == name && ev.Producer == producerID {
			return ev.ID, nil
		}
	}
	id := r.newIDLocked()
	r.events[id] = Event{ID: id, Producer: producerID, Name: name}
	r.logger.Debug("event loaded", logging.String(logging.FieldEventID, id), logging.String("name", name))
	return id, nil
}

// LoadAlert registers a named alert for an owner with the same idempotent
// contract as LoadEvent.
func (r *Registry) LoadAlert(name, ownerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attachments[ownerID]; !ok {
		return "", fmt.Errorf("load alert %q: unknown owner %q", name, ownerID)
	}
	for _, al := range r.alerts {
		if al.Name == name && al.Owner == ownerID {
			return al.ID, nil
		}
	}
	id := r.newIDLocked()
	r.alerts[id] = Alert{ID: id, Owner: ownerID, Name: name}
	r.logger.Debug("alert loaded", logging.String(logging.FieldAlertID, id), logging.String("name", name))
	return id, nil
}

// UnloadEvent removes an event and every subscription referencing it.
func (r *Registry) UnloadEvent(eid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[eid]; !ok {
		return false
	}
	delete(r.events, eid)
	r.subs = filterSubs(r.subs, func(s Subscription) bool {
		return (s.Kind == SubEventToAlert || s.Kind == SubEventToAlarm) && s.Source == eid
	})
	return true
}

// UnloadAlert removes an alert and every subscription referencing it.
func (r *Registry) UnloadAlert(aid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[aid]; !ok {
		return false
	}
	delete(r.alerts, aid)
	r.subs = filterSubs(r.subs, func(s Subscription) bool {
		return (s.Kind == SubEventToAlert || s.Kind == SubPlugToAlert) && s.Target == aid
	})
	return true
}

// Events returns a snapshot of every registered event.
func (r *Registry) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev)
	}
	return out
}

// Alerts returns a snapshot of every registered alert.
func (r *Registry) Alerts() []Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Alert, 0, len(r.alerts))
	for _, al := range r.alerts {
		out = append(out, al)
	}
	return out
}

// EventID resolves an event by (name, producer id or cmd).
func (r *Registry) EventID(name, producer string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pid, ok := r.resolveAttachLocked(producer)
	if !ok {
		return "", false
	}
	for _, ev := range r.events {
		if ev.Name == name && ev.Producer == pid {
			return ev.ID, true
		}
	}
	return "", false
}

func filterSubs(subs []Subscription, drop func(Subscription) bool) []Subscription {
	out := subs[:0]
	for _, s := range subs {
		if drop(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}
