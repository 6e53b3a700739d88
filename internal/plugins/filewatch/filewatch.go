// Package filewatch is a loop plug that raises events when watched files
// appear, change, or disappear.
package filewatch

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"emp/internal/attach"
	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/registry"
)

const module = "plugins/filewatch"

type Plug struct {
	attach.Base

	mu     sync.Mutex
	paths  []string
	mtimes map[string]time.Time

	created *events.Event
	changed *events.Event
	missing *events.Event
}

func Factory() attach.Factory {
	return attach.Factory{Name: "filewatch", Module: module, New: New}
}

func New(cfg *config.AttachConfig, logger *slog.Logger) attach.Attachment {
	p := &Plug{
		Base:   attach.NewBase("filewatch", module, registry.KindPlug, cfg, logger),
		mtimes: map[string]time.Time{},
	}
	p.paths = cfg.GetStringList("paths", nil)
	return p
}

func (p *Plug) Load(env *attach.Env) error {
	halfLife := p.Config().GetInt("half_life", 2)
	p.created = events.NewEvent("file-created", halfLife)
	p.changed = events.NewEvent("file-changed", halfLife)
	p.missing = events.NewEvent("file-missing", halfLife)
	if _, err := env.Events.LoadEvent("file-created", p.ID(), p.created); err != nil {
		return err
	}
	if _, err := env.Events.LoadEvent("file-changed", p.ID(), p.changed); err != nil {
		return err
	}
	_, err := env.Events.LoadEvent("file-missing", p.ID(), p.missing)
	return err
}

func (p *Plug) Activate() error {
	if !p.BeginActivate() {
		return nil
	}
	// Prime mtimes so pre-existing content does not fire on the first poll.
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, path := range p.paths {
		if info, err := os.Stat(path); err == nil {
			p.mtimes[path] = info.ModTime()
		}
	}
	return nil
}

func (p *Plug) Deactivate() error {
	p.BeginDeactivate()
	return nil
}

func (p *Plug) Update() {
	if !p.Activated() {
		return
	}
	p.mu.Lock()
	paths := append([]string(nil), p.paths...)
	p.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			p.mu.Lock()
			_, known := p.mtimes[path]
			delete(p.mtimes, path)
			p.mu.Unlock()
			if known {
				p.missing.Trigger(path)
			}
			continue
		}
		p.mu.Lock()
		prev, known := p.mtimes[path]
		p.mtimes[path] = info.ModTime()
		p.mu.Unlock()
		if !known {
			p.created.Trigger(path)
		} else if !info.ModTime().Equal(prev) {
			p.changed.Trigger(path)
		}
	}
}

func (p *Plug) Importance() float64 {
	return p.Config().GetFloat("importance", 2)
}

func (p *Plug) Save() {
	p.mu.Lock()
	paths := append([]string(nil), p.paths...)
	p.mu.Unlock()
	p.Config().Set("paths", paths)
	p.Base.Save()
}

func (p *Plug) Commands() []attach.Command {
	return []attach.Command{
		{
			Name: "paths",
			Help: "list the watched paths",
			Run: func([]string) (any, error) {
				p.mu.Lock()
				defer p.mu.Unlock()
				if len(p.paths) == 0 {
					return "no paths watched", nil
				}
				return strings.Join(p.paths, "\n"), nil
			},
		},
		{
			Name: "watch",
			Help: "add a path to the watch list",
			Run: func(args []string) (any, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("usage: watch <path>")
				}
				path := args[0]
				p.mu.Lock()
				defer p.mu.Unlock()
				for _, existing := range p.paths {
					if existing == path {
						return "already watched", nil
					}
				}
				p.paths = append(p.paths, path)
				if info, err := os.Stat(path); err == nil {
					p.mtimes[path] = info.ModTime()
				}
				return fmt.Sprintf("watching %s", path), nil
			},
		},
		{
			Name: "unwatch",
			Help: "remove a path from the watch list",
			Run: func(args []string) (any, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("usage: unwatch <path>")
				}
				p.mu.Lock()
				defer p.mu.Unlock()
				for i, existing := range p.paths {
					if existing == args[0] {
						p.paths = append(p.paths[:i], p.paths[i+1:]...)
						delete(p.mtimes, args[0])
						return fmt.Sprintf("stopped watching %s", args[0]), nil
					}
				}
				return nil, fmt.Errorf("not watching %s", args[0])
			},
		},
	}
}
