package registry

import (
	"log/slog"
	"math/rand"
	"sync"

	"emp/internal/logging"
)

// idAlphabet is the fixed alphabet routing ids are drawn from.
const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	idLength   = 10
)

// Registry is the single-writer map of routing identities plus the
// event/alert/subscription bookkeeping the event manager and router resolve
// against. All methods are safe for concurrent use.
type Registry struct {
	path   string
	logger *slog.Logger

	mu          sync.RWMutex
	daemonID    string
	attachments map[string]Attachment
	events      map[string]Event
	alerts      map[string]Alert
	subs        []Subscription
}

// New creates a registry backed by the snapshot file at path and loads any
// existing state. A malformed or missing snapshot starts empty; the daemon
// id is regenerated only when the snapshot did not carry one.
func New(path string, logger *slog.Logger) *Registry {
	r := &Registry{
		path:        path,
		logger:      logging.NewComponentLogger(logger, "registry"),
		attachments: map[string]Attachment{},
		events:      map[string]Event{},
		alerts:      map[string]Alert{},
	}
	r.load()
	r.mu.Lock()
	if r.daemonID == "" {
		r.daemonID = r.newIDLocked()
	}
	r.mu.Unlock()
	return r
}

// DaemonID returns the daemon's stable routing id.
func (r *Registry) DaemonID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.daemonID
}

// RegisterPlug registers a plug, reusing the id of a previously persisted
// attachment with the same module identity so plugs keep their id across
// daemon restarts.
func (r *Registry) RegisterPlug(cmd, module string, ref Registrant) string {
	return r.register(cmd, module, KindPlug, ref)
}

// RegisterAlarm registers an alarm with the same restart-survival contract
// as RegisterPlug.
func (r *Registry) RegisterAlarm(cmd, module string, ref Registrant) string {
	return r.register(cmd, module, KindAlarm, ref)
}

// RegisterInterface registers a transient interface. Interfaces always get
// a fresh id and are never persisted.
func (r *Registry) RegisterInterface(ref Registrant) string {
	return r.register("", "", KindInterface, ref)
}

func (r *Registry) register(cmd, module string, kind Kind, ref Registrant) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	if kind != KindInterface && module != "" {
		for _, a := range r.attachments {
			if a.Module == module && a.Kind == kind {
				id = a.ID
				break
			}
		}
	}
	if id == "" {
		id = r.newIDLocked()
	}

	r.attachments[id] = Attachment{ID: id, Cmd: cmd, Module: module, Kind: kind}
	if ref != nil {
		ref.SetID(id)
	}
	r.logger.Debug("registered", logging.String(logging.FieldAttachID, id),
		logging.String("kind", string(kind)), logging.String("cmd", cmd))
	return id
}

// Deregister removes an attachment by id or command name. Events, alerts,
// and subscriptions owned by it are left for the attachment manager to
// unload explicitly.
func (r *Registry) Deregister(cid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.resolveAttachLocked(cid)
	if !ok {
		return false
	}
	delete(r.attachments, id)
	r.logger.Debug("deregistered", logging.String(logging.FieldAttachID, id))
	return true
}

// IsRegistered reports whether an id or command name is registered. The
// daemon's own id counts as registered.
func (r *Registry) IsRegistered(cid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cid == r.daemonID {
		return true
	}
	_, ok := r.resolveAttachLocked(cid)
	return ok
}

// AttachID resolves an id or command name to the canonical routing id.
func (r *Registry) AttachID(cid string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cid == r.daemonID {
		return cid, true
	}
	return r.resolveAttachLocked(cid)
}

// AttachKind returns the kind of a registered id.
func (r *Registry) AttachKind(id string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == r.daemonID {
		return KindDaemon, true
	}
	a, ok := r.attachments[id]
	if !ok {
		return "", false
	}
	return a.Kind, true
}

// Cmd returns the command name of a registered id, which is empty for
// interfaces.
func (r *Registry) Cmd(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attachments[id]
	if !ok {
		return "", false
	}
	return a.Cmd, true
}

// SetCmd renames the command name of an attachment identified by id or
// current command name.
func (r *Registry) SetCmd(cid, newCmd string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.resolveAttachLocked(cid)
	if !ok {
		return false
	}
	a := r.attachments[id]
	a.Cmd = newCmd
	r.attachments[id] = a
	return true
}

// Attachments returns a snapshot of every registered attachment.
func (r *Registry) Attachments() []Attachment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Attachment, 0, len(r.attachments))
	for _, a := range r.attachments {
		out = append(out, a)
	}
	return out
}

// resolveAttachLocked maps an id or command name to an attachment id.
func (r *Registry) resolveAttachLocked(cid string) (string, bool) {
	if cid == "" {
		return "", false
	}
	if _, ok := r.attachments[cid]; ok {
		return cid, true
	}
	for id, a := range r.attachments {
		if a.Cmd != "" && a.Cmd == cid {
			return id, true
		}
	}
	return "", false
}

func (r *Registry) newIDLocked() string {
	for {
		buf := make([]byte, idLength)
		for i := range buf {
			buf[i] = idAlphabet[rand.Intn(len(idAlphabet))]
		}
		id := string(buf)
		if r.idExistsLocked(id) {
			continue
		}
		return id
	}
}

func (r *Registry) idExistsLocked(id string) bool {
	if id == r.daemonID {
		return true
	}
	if _, ok := r.attachments[id]; ok {
		return true
	}
	if _, ok := r.events[id]; ok {
		return true
	}
	if _, ok := r.alerts[id]; ok {
		return true
	}
	return false
}
