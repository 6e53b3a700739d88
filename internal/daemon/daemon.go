// Package daemon composes the registry, event manager, attachment manager,
// router, and transport into the empd process and enforces single-instance
// execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"emp/internal/attach"
	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/history"
	"emp/internal/logging"
	"emp/internal/plugins"
	"emp/internal/registry"
	"emp/internal/router"
	"emp/internal/transport"
)

// pollSlice is the largest uninterrupted sleep the poll loop takes, so a
// shutdown request is noticed promptly even with multi-minute intervals.
const pollSlice = 5 * time.Second

// Daemon owns the long-lived subsystems and their start/stop ordering.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	reg    *registry.Registry
	hist   *history.Store
	events *events.Manager
	atch   *attach.Manager
	rt     *router.Router
	server *transport.Server

	lock    *flock.Flock
	started time.Time

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New builds a daemon and its subsystems. The history store is opened here
// so a broken state directory fails fast.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	hist, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	reg := registry.New(cfg.RegistryPath(), logger)
	ev := events.NewManager(reg, hist, logger)
	atch := attach.NewManager(cfg, reg, ev, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		reg:      reg,
		hist:     hist,
		events:   ev,
		atch:     atch,
		lock:     flock.New(cfg.LockPath()),
		stop:     make(chan struct{}),
		shutdown: make(chan struct{}),
	}
	d.rt = router.New(reg, d, logger)
	d.server = transport.NewServer(cfg, d.rt, logger)
	return d, nil
}

// ResolveCommands answers the router's command lookups: the daemon's own
// table for its id, the attachment manager for everything else.
func (d *Daemon) ResolveCommands(id string) ([]attach.Command, bool) {
	if id == d.reg.DaemonID() {
		return d.commandTable(), true
	}
	return d.atch.GetCommands(id)
}

// Start acquires the instance lock, brings every subsystem up, and launches
// the poll loop.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another emp daemon instance is already running")
	}

	d.events.Start()
	d.atch.Collect(plugins.Catalog())
	d.atch.ActivateAttachments()
	if err := d.reg.Save(); err != nil {
		d.logger.Warn("registry save after collect failed", logging.Error(err))
	}

	d.rt.Start()
	if err := d.server.Start(); err != nil {
		d.rt.Flush()
		d.events.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.started = time.Now()
	d.running = true
	d.wg.Add(1)
	go d.pollLoop()

	d.logger.Info("daemon started",
		logging.String("id", d.reg.DaemonID()),
		logging.String("lock", d.cfg.LockPath()))
	return nil
}

// Run starts the daemon and blocks until the context is cancelled or a
// shutdown command arrives, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-d.shutdown:
	}
	d.Stop()
	return nil
}

// Stop tears the subsystems down in reverse order, flushes state to disk,
// and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	d.mu.Unlock()

	d.wg.Wait()
	d.server.Stop()
	d.rt.Flush()
	d.atch.DeactivateAll()
	d.events.Stop()

	if err := d.reg.Save(); err != nil {
		d.logger.Error("registry save failed", logging.Error(err))
	}
	if err := d.cfg.Save(d.atch.Holders()); err != nil {
		d.logger.Warn("config save failed", logging.Error(err))
	}
	if _, err := d.hist.Prune(context.Background(), d.cfg.Daemon.HistoryKeep); err != nil {
		d.logger.Warn("history prune failed", logging.Error(err))
	}
	if err := d.hist.Close(); err != nil {
		d.logger.Warn("history close failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("lock release failed", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}

// Addr returns the transport listen address once started.
func (d *Daemon) Addr() string {
	if addr := d.server.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// pollLoop runs the loop-plug update cycle once per configured interval,
// sleeping in short slices so Stop is observed quickly.
func (d *Daemon) pollLoop() {
	defer d.wg.Done()
	interval := time.Duration(d.cfg.Daemon.PollInterval * float64(time.Minute))
	if interval < time.Minute {
		interval = time.Minute
	}
	for {
		remaining := interval
		for remaining > 0 {
			slice := pollSlice
			if remaining < slice {
				slice = remaining
			}
			select {
			case <-d.stop:
				return
			case <-time.After(slice):
			}
			remaining -= slice
		}
		d.updateCycle()
	}
}

// updateCycle polls every loop plug in importance order.
func (d *Daemon) updateCycle() {
	for _, lp := range d.atch.GetLoopPlugs() {
		lp.Update()
	}
}
