package logalarm_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"emp/internal/attach"
	"emp/internal/events"
	"emp/internal/logging"
	"emp/internal/plugins/logalarm"
	"emp/internal/registry"
	"emp/internal/testsupport"
)

type stampable struct{ id string }

func (s *stampable) SetID(id string) { s.id = id }

func TestSubscribedEventIsLogged(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := registry.New(filepath.Join(t.TempDir(), "registry.json"), logging.NewNop())
	ev := events.NewManager(reg, nil, logging.NewNop())
	ev.Start()
	t.Cleanup(ev.Stop)

	logPath := filepath.Join(t.TempDir(), "alerts.log")
	section := cfg.Attach("logalarm")
	section.Set("path", logPath)

	alarm := logalarm.New(section, logging.NewNop())
	reg.RegisterAlarm("logalarm", "plugins/logalarm", alarm)
	if err := alarm.Load(&attach.Env{Registry: reg, Events: ev, Logger: logging.NewNop()}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := alarm.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	pid := reg.RegisterPlug("source", "test/source", &stampable{})
	event := events.NewEvent("something-happened", 0)
	eid, err := ev.LoadEvent("something-happened", pid, event)
	if err != nil {
		t.Fatalf("LoadEvent: %v", err)
	}
	if !reg.Subscribe(eid, "logalarm") {
		t.Fatal("subscribe failed")
	}

	event.Trigger("payload-42")

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := os.ReadFile(logPath)
		if err == nil && strings.Contains(string(data), "something-happened") &&
			strings.Contains(string(data), "payload-42") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("alert line never written; file: %q err: %v", data, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
