package registry

// Subscribe links an event side to an alert side. Each side may name a
// specific event or alert id, or an attachment (id or command name) meaning
// "all of its events" or "all of its alerts". The arguments are accepted in
// either order. Subscribe fails when either side cannot be resolved to a
// known event, alert, plug, or alarm.
func (r *Registry) Subscribe(side1, side2 string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.resolveSubLocked(side1, side2)
	if !ok {
		sub, ok = r.resolveSubLocked(side2, side1)
	}
	if !ok {
		return false
	}
	for _, existing := range r.subs {
		if existing == sub {
			return true
		}
	}
	r.subs = append(r.subs, sub)
	return true
}

// Unsubscribe removes the link Subscribe(a, b) would create. It returns
// false when no such subscription exists.
func (r *Registry) Unsubscribe(a, b string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.resolveSubLocked(a, b)
	if !ok {
		sub, ok = r.resolveSubLocked(b, a)
	}
	if !ok {
		return false
	}
	for i, existing := range r.subs {
		if existing == sub {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// resolveSubLocked interprets eventSide as an event/plug and alertSide as an
// alert/alarm, producing the typed subscription.
func (r *Registry) resolveSubLocked(eventSide, alertSide string) (Subscription, bool) {
	eid, pid, evOK := r.resolveEventSideLocked(eventSide)
	aid, mid, alOK := r.resolveAlertSideLocked(alertSide)
	if !evOK || !alOK {
		return Subscription{}, false
	}

	switch {
	case eid != "" && aid != "":
		return Subscription{Kind: SubEventToAlert, Source: eid, Target: aid}, true
	case eid != "" && mid != "":
		return Subscription{Kind: SubEventToAlarm, Source: eid, Target: mid}, true
	case pid != "" && aid != "":
		return Subscription{Kind: SubPlugToAlert, Source: pid, Target: aid}, true
	default:
		return Subscription{Kind: SubPlugToAlarm, Source: pid, Target: mid}, true
	}
}

// resolveEventSideLocked maps a token to either a specific event id or a
// plug id. The event's producer must still be registered.
func (r *Registry) resolveEventSideLocked(token string) (eventID, plugID string, ok bool) {
	if token == "" {
		return "", "", false
	}
	if ev, found := r.events[token]; found {
		if _, alive := r.attachments[ev.Producer]; !alive {
			return "", "", false
		}
		return token, "", true
	}
	if id, found := r.resolveAttachLocked(token); found && r.attachments[id].Kind == KindPlug {
		return "", id, true
	}
	return "", "", false
}

// resolveAlertSideLocked maps a token to either a specific alert id or an
// alarm id. The alert's owner must still be registered.
func (r *Registry) resolveAlertSideLocked(token string) (alertID, alarmID string, ok bool) {
	if token == "" {
		return "", "", false
	}
	if al, found := r.alerts[token]; found {
		if _, alive := r.attachments[al.Owner]; !alive {
			return "", "", false
		}
		return token, "", true
	}
	if id, found := r.resolveAttachLocked(token); found && r.attachments[id].Kind == KindAlarm {
		return "", id, true
	}
	return "", "", false
}

// SubscribedTo expands the subscription store into the alert ids that must
// run when the given event fires.
func (r *Registry) SubscribedTo(eid string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, ok := r.events[eid]
	if !ok {
		return nil
	}

	var out []string
	seen := map[string]struct{}{}
	add := func(aid string) {
		if _, dup := seen[aid]; dup {
			return
		}
		seen[aid] = struct{}{}
		out = append(out, aid)
	}
	addAlarm := func(alarmID string) {
		for _, al := range r.alerts {
			if al.Owner == alarmID {
				add(al.ID)
			}
		}
	}

	for _, s := range r.subs {
		switch s.Kind {
		case SubEventToAlert:
			if s.Source == eid {
				add(s.Target)
			}
		case SubEventToAlarm:
			if s.Source == eid {
				addAlarm(s.Target)
			}
		case SubPlugToAlert:
			if s.Source == ev.Producer {
				add(s.Target)
			}
		case SubPlugToAlarm:
			if s.Source == ev.Producer {
				addAlarm(s.Target)
			}
		}
	}
	return out
}

// Subscriptions expands the subscription store into the event ids a given
// alert listens to.
func (r *Registry) Subscriptions(aid string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	al, ok := r.alerts[aid]
	if !ok {
		return nil
	}

	var out []string
	seen := map[string]struct{}{}
	add := func(eid string) {
		if _, dup := seen[eid]; dup {
			return
		}
		seen[eid] = struct{}{}
		out = append(out, eid)
	}
	addPlug := func(plugID string) {
		for _, ev := range r.events {
			if ev.Producer == plugID {
				add(ev.ID)
			}
		}
	}

	for _, s := range r.subs {
		switch s.Kind {
		case SubEventToAlert:
			if s.Target == aid {
				add(s.Source)
			}
		case SubEventToAlarm:
			if s.Target == al.Owner {
				add(s.Source)
			}
		case SubPlugToAlert:
			if s.Target == aid {
				addPlug(s.Source)
			}
		case SubPlugToAlarm:
			if s.Target == al.Owner {
				addPlug(s.Source)
			}
		}
	}
	return out
}

// Subs returns a snapshot of the raw subscription store.
func (r *Registry) Subs() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Subscription(nil), r.subs...)
}
