// Package timer is a loop plug that raises a tick event every configured
// number of poll cycles.
package timer

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"emp/internal/attach"
	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/registry"
)

const module = "plugins/timer"

type Plug struct {
	attach.Base

	mu    sync.Mutex
	every int
	count int
	tick  *events.Event
}

// Factory describes the timer for the attachment catalog.
func Factory() attach.Factory {
	return attach.Factory{Name: "timer", Module: module, New: New}
}

func New(cfg *config.AttachConfig, logger *slog.Logger) attach.Attachment {
	p := &Plug{Base: attach.NewBase("timer", module, registry.KindPlug, cfg, logger)}
	p.every = cfg.GetInt("every", 1)
	if p.every < 1 {
		p.every = 1
	}
	return p
}

func (p *Plug) Load(env *attach.Env) error {
	p.tick = events.NewEvent("tick", p.Config().GetInt("half_life", 1))
	_, err := env.Events.LoadEvent("tick", p.ID(), p.tick)
	return err
}

func (p *Plug) Activate() error {
	p.BeginActivate()
	return nil
}

func (p *Plug) Deactivate() error {
	p.BeginDeactivate()
	return nil
}

// Update counts poll cycles and fires the tick when the interval elapses.
func (p *Plug) Update() {
	if !p.Activated() {
		return
	}
	p.mu.Lock()
	p.count++
	fire := p.count >= p.every
	if fire {
		p.count = 0
	}
	p.mu.Unlock()
	if fire {
		p.tick.Trigger(time.Now().Format(time.RFC3339))
	}
}

func (p *Plug) Importance() float64 {
	return p.Config().GetFloat("importance", 1)
}

func (p *Plug) Save() {
	p.mu.Lock()
	every := p.every
	p.mu.Unlock()
	p.Config().Set("every", every)
	p.Base.Save()
}

func (p *Plug) Commands() []attach.Command {
	return []attach.Command{
		{
			Name: "interval",
			Help: "show or set how many poll cycles pass between ticks",
			Run: func(args []string) (any, error) {
				p.mu.Lock()
				defer p.mu.Unlock()
				if len(args) == 0 {
					return fmt.Sprintf("every %d cycle(s)", p.every), nil
				}
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return nil, fmt.Errorf("interval must be a positive integer, got %q", args[0])
				}
				p.every = n
				p.count = 0
				return fmt.Sprintf("every %d cycle(s)", p.every), nil
			},
		},
		{
			Name: "fire",
			Help: "trigger the tick event immediately",
			Run: func([]string) (any, error) {
				p.tick.Trigger(time.Now().Format(time.RFC3339))
				return "tick fired", nil
			},
		},
	}
}
