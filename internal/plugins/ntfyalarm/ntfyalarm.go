// Package ntfyalarm is an alarm that pushes subscribed events to an ntfy
// topic.
package ntfyalarm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"emp/internal/attach"
	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/logging"
	"emp/internal/registry"
)

const (
	module    = "plugins/ntfyalarm"
	userAgent = "emp/0.1.0"
)

type Alarm struct {
	attach.Base

	topic    string
	priority string
	client   *http.Client
}

func Factory() attach.Factory {
	return attach.Factory{Name: "ntfy", Module: module, New: New}
}

func New(cfg *config.AttachConfig, logger *slog.Logger) attach.Attachment {
	a := &Alarm{Base: attach.NewBase("ntfy", module, registry.KindAlarm, cfg, logger)}
	a.topic = strings.TrimSpace(cfg.GetString("topic", ""))
	a.priority = strings.TrimSpace(cfg.GetString("priority", ""))
	timeout := time.Duration(cfg.GetInt("timeout", 10)) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a.client = &http.Client{Timeout: timeout}
	return a
}

func (a *Alarm) Load(env *attach.Env) error {
	alert := events.NewAlert("push", a.push)
	_, err := env.Events.LoadAlert("push", a.ID(), alert)
	return err
}

func (a *Alarm) Activate() error {
	if !a.BeginActivate() {
		return nil
	}
	if a.topic == "" {
		a.Logger().Warn("no ntfy topic configured; pushes will be dropped",
			logging.String(logging.FieldErrorHint, "set attachments.ntfy.topic"))
	}
	return nil
}

func (a *Alarm) Deactivate() error {
	a.BeginDeactivate()
	return nil
}

func (a *Alarm) push(ev *events.Event) {
	if !a.Activated() || a.topic == "" {
		return
	}
	body := fmt.Sprintf("%v", ev.Payload())
	ctx, cancel := context.WithTimeout(context.Background(), a.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.topic, strings.NewReader(body))
	if err != nil {
		a.Logger().Warn("build ntfy request failed", logging.Error(err))
		return
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", "emp: "+ev.Name())
	if a.priority != "" && a.priority != "default" {
		req.Header.Set("Priority", a.priority)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.Logger().Warn("ntfy push failed", logging.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		a.Logger().Warn("ntfy push rejected",
			logging.Int("status", resp.StatusCode),
			logging.String("detail", strings.TrimSpace(string(detail))))
	}
}

func (a *Alarm) Save() {
	a.Config().Set("topic", a.topic)
	a.Config().Set("priority", a.priority)
	a.Base.Save()
}

func (a *Alarm) Commands() []attach.Command {
	return []attach.Command{
		{
			Name: "topic",
			Help: "show or set the ntfy topic URL",
			Run: func(args []string) (any, error) {
				if len(args) == 1 {
					a.topic = strings.TrimSpace(args[0])
				}
				if a.topic == "" {
					return "no topic configured", nil
				}
				return a.topic, nil
			},
		},
	}
}
