// Package router is the asynchronous dispatcher at the center of the
// daemon. Messages from any goroutine land on one FIFO queue; a single loop
// drains it and hands every delivery to its own goroutine so a slow handler
// never stalls the queue.
package router

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"emp/internal/attach"
	"emp/internal/logging"
	"emp/internal/message"
	"emp/internal/registry"
)

// idleSleepMax bounds the randomized idle sleep of the dispatch loop.
const idleSleepMax = 50 * time.Millisecond

// Routee handles messages delivered directly to its id.
type Routee interface {
	HandleMessage(msg message.Message)
}

// Interface is a transient client connection: a routee that can be closed
// when the daemon shuts down.
type Interface interface {
	Routee
	Close() error
}

// CommandResolver maps a destination id to its command table. The daemon
// answers for its own id and delegates attachment ids to the attachment
// manager.
type CommandResolver interface {
	ResolveCommands(id string) ([]attach.Command, bool)
}

// Router owns the outbound queue and the interface registration table.
type Router struct {
	logger   *slog.Logger
	reg      *registry.Registry
	commands CommandResolver

	mu      sync.Mutex
	queue   []message.Message
	routees map[string]Routee
	running bool

	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New wires a router against the registry and a command resolver.
func New(reg *registry.Registry, commands CommandResolver, logger *slog.Logger) *Router {
	return &Router{
		logger:   logging.NewComponentLogger(logger, "router"),
		reg:      reg,
		commands: commands,
		routees:  map[string]Routee{},
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start launches the dispatch loop.
func (r *Router) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.dispatchLoop()
}

// SendMsg enqueues a message without blocking. Messages sent after Flush
// are dropped.
func (r *Router) SendMsg(msg message.Message) {
	if msg == nil {
		return
	}
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, msg)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// RegisterInterface registers a transient client connection and returns its
// fresh routing id.
func (r *Router) RegisterInterface(iface Interface) string {
	holder := &idHolder{}
	id := r.reg.RegisterInterface(holder)
	r.mu.Lock()
	r.routees[id] = iface
	r.mu.Unlock()
	r.logger.Debug("interface registered", logging.String(logging.FieldAttachID, id))
	return id
}

// DeregisterInterface removes a client connection from routing.
func (r *Router) DeregisterInterface(id string) {
	r.mu.Lock()
	delete(r.routees, id)
	r.mu.Unlock()
	r.reg.Deregister(id)
	r.logger.Debug("interface deregistered", logging.String(logging.FieldAttachID, id))
}

// RegisterRoutee attaches a message handler to an already-registered id,
// such as the daemon's own.
func (r *Router) RegisterRoutee(id string, routee Routee) {
	r.mu.Lock()
	r.routees[id] = routee
	r.mu.Unlock()
}

// Flush discards every queued message, sends each registered interface a
// best-effort shutdown notice, closes them, and stops the dispatch loop.
func (r *Router) Flush() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	dropped := len(r.queue)
	r.queue = nil
	ifaces := map[string]Interface{}
	for id, routee := range r.routees {
		if iface, ok := routee.(Interface); ok {
			ifaces[id] = iface
			delete(r.routees, id)
		}
	}
	r.mu.Unlock()

	close(r.stop)
	r.wg.Wait()

	daemonID := r.reg.DaemonID()
	for id, iface := range ifaces {
		iface.HandleMessage(message.NewBase("daemon shutting down", daemonID, id))
		if err := iface.Close(); err != nil {
			r.logger.Debug("interface close failed", logging.Error(err))
		}
		r.reg.Deregister(id)
	}
	if dropped > 0 {
		r.logger.Info("queue flushed", logging.Int("dropped", dropped))
	}
}

func (r *Router) dispatchLoop() {
	defer r.wg.Done()
	for {
		msg, ok := r.pop()
		if !ok {
			select {
			case <-r.stop:
				return
			case <-r.notify:
			case <-time.After(time.Duration(rand.Int63n(int64(idleSleepMax)))):
			}
			continue
		}
		r.dispatch(msg)
	}
}

func (r *Router) pop() (message.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, true
}

// dispatch resolves one dequeued message. Every delivery runs in its own
// goroutine.
func (r *Router) dispatch(msg message.Message) {
	dest := msg.Dest()

	if dest == "" {
		if alert, ok := msg.(message.Alert); ok {
			r.broadcast(alert)
			return
		}
		dest = r.reg.DaemonID()
	}

	id, known := r.reg.AttachID(dest)
	if !known {
		r.logger.Debug("message for unknown destination dropped",
			logging.String("dest", dest),
			logging.String(logging.FieldEventType, "route_dropped"))
		return
	}

	if cmd, ok := msg.(message.Command); ok {
		go r.runCommand(id, cmd)
		return
	}

	r.mu.Lock()
	routee := r.routees[id]
	r.mu.Unlock()
	if routee == nil {
		r.logger.Debug("destination has no message handler; dropped",
			logging.String("dest", id),
			logging.String("kind", string(msg.Kind())))
		return
	}
	go routee.HandleMessage(msg)
}

// broadcast fans an undirected Alert out to every registered interface and
// nothing else; alarms are reached through event subscriptions only.
func (r *Router) broadcast(alert message.Alert) {
	r.mu.Lock()
	targets := make([]Routee, 0, len(r.routees))
	for id, routee := range r.routees {
		if _, ok := routee.(Interface); !ok {
			continue
		}
		directed := alert
		directed.To = id
		target := routee
		targets = append(targets, target)
		go target.HandleMessage(directed)
	}
	r.mu.Unlock()
	r.logger.Debug("alert broadcast", logging.Int("interfaces", len(targets)),
		logging.String("title", alert.Title))
}

// runCommand executes a command against the destination's command table and
// sends the reply back to the original sender. A missing command or a
// panicking handler becomes an Error reply, never a router fault.
func (r *Router) runCommand(destID string, cmd message.Command) {
	reply := r.executeCommand(destID, cmd)
	if cmd.From == "" || reply == nil {
		return
	}
	r.SendMsg(reply)
}

func (r *Router) executeCommand(destID string, cmd message.Command) (reply message.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command handler panicked",
				logging.String("command", cmd.Name),
				logging.Any("panic", rec))
			reply = message.NewError("Command failed.", destID, cmd.From)
		}
	}()

	table, ok := r.commands.ResolveCommands(destID)
	if ok {
		for _, entry := range table {
			if entry.Name != cmd.Name || entry.Run == nil {
				continue
			}
			value, err := entry.Run(cmd.Args)
			if err != nil {
				return message.NewError(err.Error(), destID, cmd.From)
			}
			return message.NewBase(value, destID, cmd.From)
		}
	}
	return message.NewError("Command does not exist.", destID, cmd.From)
}

type idHolder struct{ id string }

func (h *idHolder) SetID(id string) { h.id = id }
