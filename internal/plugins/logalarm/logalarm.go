// Package logalarm is an alarm that appends a line to a log file whenever
// a subscribed event fires.
package logalarm

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"emp/internal/attach"
	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/logging"
	"emp/internal/registry"
)

const module = "plugins/logalarm"

type Alarm struct {
	attach.Base

	mu   sync.Mutex
	path string
}

func Factory() attach.Factory {
	return attach.Factory{Name: "logalarm", Module: module, New: New}
}

func New(cfg *config.AttachConfig, logger *slog.Logger) attach.Attachment {
	a := &Alarm{Base: attach.NewBase("logalarm", module, registry.KindAlarm, cfg, logger)}
	a.path = cfg.GetString("path", "emp-alerts.log")
	return a
}

func (a *Alarm) Load(env *attach.Env) error {
	alert := events.NewAlert("write-log", a.writeLine)
	_, err := env.Events.LoadAlert("write-log", a.ID(), alert)
	return err
}

func (a *Alarm) Activate() error {
	a.BeginActivate()
	return nil
}

func (a *Alarm) Deactivate() error {
	a.BeginDeactivate()
	return nil
}

func (a *Alarm) writeLine(ev *events.Event) {
	if !a.Activated() {
		return
	}
	a.mu.Lock()
	path := a.path
	a.mu.Unlock()

	line := fmt.Sprintf("%s %s %v\n",
		time.Now().Format(time.RFC3339), ev.Name(), ev.Payload())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.Logger().Warn("alert log open failed", logging.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		a.Logger().Warn("alert log write failed", logging.Error(err))
	}
}

func (a *Alarm) Save() {
	a.mu.Lock()
	path := a.path
	a.mu.Unlock()
	a.Config().Set("path", path)
	a.Base.Save()
}

func (a *Alarm) Commands() []attach.Command {
	return []attach.Command{
		{
			Name: "path",
			Help: "show or set the alert log location",
			Run: func(args []string) (any, error) {
				a.mu.Lock()
				defer a.mu.Unlock()
				if len(args) == 1 {
					a.path = args[0]
				}
				return a.path, nil
			},
		},
	}
}
