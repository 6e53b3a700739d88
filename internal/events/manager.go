package events

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"emp/internal/history"
	"emp/internal/logging"
	"emp/internal/registry"
)

// idleSleepMax bounds the randomized sleep the queue watcher takes when the
// trigger queue is empty.
const idleSleepMax = 50 * time.Millisecond

// Manager drains the trigger queue and runs subscribed alert handlers. It
// is constructed once at daemon startup and handed to every attachment that
// loads events or alerts.
type Manager struct {
	logger *slog.Logger
	reg    *registry.Registry
	hist   *history.Store

	mu       sync.Mutex
	queue    []string
	eventmap map[string]*Event
	alertmap map[string]*Alert
	decay    map[string]int

	notify  chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewManager wires the manager against the registry. The history store may
// be nil; triggers are then dispatched without being recorded.
func NewManager(reg *registry.Registry, hist *history.Store, logger *slog.Logger) *Manager {
	return &Manager{
		logger:   logging.NewComponentLogger(logger, "events"),
		reg:      reg,
		hist:     hist,
		eventmap: map[string]*Event{},
		alertmap: map[string]*Alert{},
		decay:    map[string]int{},
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start launches the queue watcher and the half-life decay watcher.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(2)
	go m.watchQueue()
	go m.watchList()
}

// Stop halts both watchers and waits for them to exit. Queued triggers that
// were not yet dispatched are discarded.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
}

// LoadEvent registers the event with the registry, stamps its id, and makes
// it dispatchable. Loading the same (name, producer) pair again rebinds the
// existing id.
func (m *Manager) LoadEvent(name, producerID string, ev *Event) (string, error) {
	id, err := m.reg.LoadEvent(name, producerID)
	if err != nil {
		return "", err
	}
	ev.bind(id, m, producerID)
	m.mu.Lock()
	m.eventmap[id] = ev
	m.mu.Unlock()
	return id, nil
}

// UnloadEvent removes the event from the registry together with every
// subscription referencing it, and unbinds the runtime object.
func (m *Manager) UnloadEvent(eid string) bool {
	ok := m.reg.UnloadEvent(eid)
	m.mu.Lock()
	ev := m.eventmap[eid]
	delete(m.eventmap, eid)
	delete(m.decay, eid)
	m.mu.Unlock()
	if ev != nil {
		ev.unbind()
	}
	return ok
}

// LoadAlert registers the alert with the registry and makes it reachable by
// dispatch.
func (m *Manager) LoadAlert(name, ownerID string, al *Alert) (string, error) {
	id, err := m.reg.LoadAlert(name, ownerID)
	if err != nil {
		return "", err
	}
	al.id = id
	al.owner = ownerID
	m.mu.Lock()
	m.alertmap[id] = al
	m.mu.Unlock()
	return id, nil
}

// UnloadAlert removes the alert and its subscriptions.
func (m *Manager) UnloadAlert(aid string) bool {
	ok := m.reg.UnloadAlert(aid)
	m.mu.Lock()
	delete(m.alertmap, aid)
	m.mu.Unlock()
	return ok
}

// Event returns the runtime event registered under eid.
func (m *Manager) Event(eid string) *Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventmap[eid]
}

// Alert returns the runtime alert registered under aid.
func (m *Manager) Alert(aid string) *Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alertmap[aid]
}

// DetriggerEvent returns a triggered event to idle by id.
func (m *Manager) DetriggerEvent(eid string) {
	if ev := m.Event(eid); ev != nil {
		ev.Detrigger()
	}
}

// enqueue appends a trigger to the FIFO queue without blocking the caller.
func (m *Manager) enqueue(eid string) {
	m.mu.Lock()
	m.queue = append(m.queue, eid)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Manager) clearDecay(eid string) {
	m.mu.Lock()
	delete(m.decay, eid)
	m.mu.Unlock()
}

// watchQueue is the dispatch loop: strict FIFO dequeue, one goroutine per
// subscribed alert so a slow handler never stalls the queue.
func (m *Manager) watchQueue() {
	defer m.wg.Done()
	for {
		eid, ok := m.pop()
		if !ok {
			select {
			case <-m.stop:
				return
			case <-m.notify:
			case <-time.After(time.Duration(rand.Int63n(int64(idleSleepMax)))):
			}
			continue
		}
		m.dispatch(eid)
	}
}

func (m *Manager) pop() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return "", false
	}
	eid := m.queue[0]
	m.queue = m.queue[1:]
	return eid, true
}

func (m *Manager) dispatch(eid string) {
	ev := m.Event(eid)
	if ev == nil {
		m.logger.Warn("trigger for unknown event dropped",
			logging.String(logging.FieldEventID, eid),
			logging.String(logging.FieldEventType, "event_dispatch_dropped"))
		return
	}

	subscribers := m.reg.SubscribedTo(eid)
	for _, aid := range subscribers {
		al := m.Alert(aid)
		if al == nil || al.Handler == nil {
			continue
		}
		go m.runAlert(al, ev)
	}
	m.logger.Debug("event dispatched",
		logging.String(logging.FieldEventID, eid),
		logging.String("name", ev.Name()),
		logging.Int("alerts", len(subscribers)))

	if m.hist != nil {
		if err := m.hist.Append(context.Background(), eid, ev.Name(), ev.Producer(), len(subscribers)); err != nil {
			m.logger.Warn("history append failed", logging.Error(err))
		}
	}

	if ev.halfLife > 0 {
		m.mu.Lock()
		m.decay[eid] = ev.halfLife
		m.mu.Unlock()
	}
}

// runAlert shields the dispatch loop from a panicking handler.
func (m *Manager) runAlert(al *Alert, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("alert handler panicked",
				logging.String(logging.FieldAlertID, al.id),
				logging.Any("panic", r))
		}
	}()
	al.Handler(ev)
}

// watchList decrements each decaying event once per wall-clock second and
// detriggers it when the counter reaches zero. The sleep subtracts loop
// overhead so the cadence does not drift.
func (m *Manager) watchList() {
	defer m.wg.Done()
	for {
		start := time.Now()
		for _, eid := range m.tickDecay() {
			m.DetriggerEvent(eid)
		}
		sleep := time.Second - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-m.stop:
			return
		case <-time.After(sleep):
		}
	}
}

func (m *Manager) tickDecay() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for eid, remaining := range m.decay {
		remaining--
		if remaining <= 0 {
			delete(m.decay, eid)
			expired = append(expired, eid)
			continue
		}
		m.decay[eid] = remaining
	}
	return expired
}
