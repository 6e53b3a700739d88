package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"emp/internal/logging"
)

// snapshot is the on-disk form of the registry. Interface attachments are
// transient and excluded.
type snapshot struct {
	DaemonID      string         `json:"daemon_id"`
	Attachments   []Attachment   `json:"attachments"`
	Events        []Event        `json:"events"`
	Alerts        []Alert        `json:"alerts"`
	Subscriptions []Subscription `json:"subscriptions"`
}

// Save writes the registry snapshot with backup-then-replace discipline:
// the new content lands in a temp file, the current file is kept as a
// backup, and the backup is restored if the final swap fails. On any error
// the last-good file remains in place.
func (r *Registry) Save() error {
	r.mu.RLock()
	snap := snapshot{DaemonID: r.daemonID}
	for _, a := range r.attachments {
		if a.Kind == KindInterface {
			continue
		}
		snap.Attachments = append(snap.Attachments, a)
	}
	for _, ev := range r.events {
		snap.Events = append(snap.Events, ev)
	}
	for _, al := range r.alerts {
		snap.Alerts = append(snap.Alerts, al)
	}
	snap.Subscriptions = append(snap.Subscriptions, r.subs...)
	r.mu.RUnlock()

	// Deterministic output keeps the file diffable between runs.
	sort.Slice(snap.Attachments, func(i, j int) bool { return snap.Attachments[i].ID < snap.Attachments[j].ID })
	sort.Slice(snap.Events, func(i, j int) bool { return snap.Events[i].ID < snap.Events[j].ID })
	sort.Slice(snap.Alerts, func(i, j int) bool { return snap.Alerts[i].ID < snap.Alerts[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure registry dir: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry temp file: %w", err)
	}

	backup := r.path + ".bak"
	hadPrevious := false
	if _, err := os.Stat(r.path); err == nil {
		hadPrevious = true
		if err := os.Rename(r.path, backup); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("stage registry backup: %w", err)
		}
	}

	if err := os.Rename(tmp, r.path); err != nil {
		if hadPrevious {
			if restoreErr := os.Rename(backup, r.path); restoreErr != nil {
				r.logger.Error("registry backup restore failed",
					logging.Error(restoreErr),
					logging.String(logging.FieldEventType, "registry_restore_failed"),
					logging.String(logging.FieldErrorHint, "recover "+backup+" manually"))
			}
		}
		_ = os.Remove(tmp)
		return fmt.Errorf("replace registry file: %w", err)
	}

	r.logger.Debug("registry saved", logging.String("path", r.path))
	return nil
}

// load reads the snapshot file. A missing file or malformed content is not
// fatal: the registry starts empty and logs what happened.
func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("registry read failed; starting empty",
				logging.Error(err),
				logging.String(logging.FieldEventType, "registry_load_failed"),
				logging.String(logging.FieldErrorHint, "check permissions on "+r.path))
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Warn("registry snapshot malformed; starting empty",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registry_load_failed"),
			logging.String(logging.FieldErrorHint, "remove or repair "+r.path))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.daemonID = snap.DaemonID
	for _, a := range snap.Attachments {
		if a.ID == "" || a.Kind == KindInterface {
			continue
		}
		r.attachments[a.ID] = a
	}
	for _, ev := range snap.Events {
		if ev.ID == "" {
			continue
		}
		r.events[ev.ID] = ev
	}
	for _, al := range snap.Alerts {
		if al.ID == "" {
			continue
		}
		r.alerts[al.ID] = al
	}
	for _, s := range snap.Subscriptions {
		if s.Source == "" || s.Target == "" {
			continue
		}
		r.subs = append(r.subs, s)
	}
	r.logger.Debug("registry loaded",
		logging.Int("attachments", len(r.attachments)),
		logging.Int("events", len(r.events)),
		logging.Int("alerts", len(r.alerts)),
		logging.Int("subscriptions", len(r.subs)))
}
