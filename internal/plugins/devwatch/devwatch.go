// Package devwatch is a signal plug that listens for udev netlink events
// and raises events when devices appear or disappear. It runs its own
// goroutine instead of being polled.
package devwatch

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"emp/internal/attach"
	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/logging"
	"emp/internal/registry"
)

const module = "plugins/devwatch"

type Plug struct {
	attach.Base

	subsystem string
	added     *events.Event
	removed   *events.Event

	mu   sync.Mutex
	conn *netlink.UEventConn
	quit chan struct{}
}

func Factory() attach.Factory {
	return attach.Factory{Name: "devwatch", Module: module, New: New}
}

func New(cfg *config.AttachConfig, logger *slog.Logger) attach.Attachment {
	p := &Plug{Base: attach.NewBase("devwatch", module, registry.KindPlug, cfg, logger)}
	p.subsystem = strings.TrimSpace(cfg.GetString("subsystem", "block"))
	return p
}

func (p *Plug) Load(env *attach.Env) error {
	halfLife := p.Config().GetInt("half_life", 2)
	p.added = events.NewEvent("device-added", halfLife)
	p.removed = events.NewEvent("device-removed", halfLife)
	if _, err := env.Events.LoadEvent("device-added", p.ID(), p.added); err != nil {
		return err
	}
	_, err := env.Events.LoadEvent("device-removed", p.ID(), p.removed)
	return err
}

// Activate connects the netlink socket and starts the monitor goroutine. A
// connect failure is not fatal: the plug stays loaded and logs why device
// events will not arrive.
func (p *Plug) Activate() error {
	if !p.BeginActivate() {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		p.Logger().Warn("netlink connect failed; device events unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "run the daemon with access to netlink sockets"))
		return nil
	}

	p.mu.Lock()
	p.conn = conn
	p.quit = make(chan struct{})
	quit := p.quit
	p.mu.Unlock()

	go p.monitorLoop(conn, quit)
	p.Logger().Info("device monitor started", logging.String("subsystem", p.subsystem))
	return nil
}

func (p *Plug) Deactivate() error {
	if !p.BeginDeactivate() {
		return nil
	}
	p.mu.Lock()
	if p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.mu.Unlock()
	return nil
}

func (p *Plug) monitorLoop(conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, p.buildMatcher())

	for {
		select {
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			p.handleEvent(uevent)
		case err := <-errs:
			p.Logger().Warn("netlink monitor error", logging.Error(err))
		}
	}
}

func (p *Plug) buildMatcher() netlink.Matcher {
	addAction := "add"
	removeAction := "remove"
	env := map[string]string{}
	if p.subsystem != "" {
		env["SUBSYSTEM"] = p.subsystem
	}
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{Action: &addAction, Env: env})
	rules.AddRule(netlink.RuleDefinition{Action: &removeAction, Env: env})
	return rules
}

func (p *Plug) handleEvent(uevent netlink.UEvent) {
	devname := uevent.Env["DEVNAME"]
	if devname == "" {
		devname = uevent.KObj
	}
	switch uevent.Action {
	case netlink.ADD:
		p.added.Trigger(devname)
	case netlink.REMOVE:
		p.removed.Trigger(devname)
	}
}

func (p *Plug) Save() {
	p.Config().Set("subsystem", p.subsystem)
	p.Base.Save()
}

func (p *Plug) Commands() []attach.Command {
	return []attach.Command{
		{
			Name: "subsystem",
			Help: "show the watched udev subsystem",
			Run: func([]string) (any, error) {
				return p.subsystem, nil
			},
		},
	}
}
