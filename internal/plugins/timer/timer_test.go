package timer_test

import (
	"path/filepath"
	"testing"
	"time"

	"emp/internal/attach"
	"emp/internal/events"
	"emp/internal/logging"
	"emp/internal/plugins/timer"
	"emp/internal/registry"
	"emp/internal/testsupport"
)

type stampable struct{ id string }

func (s *stampable) SetID(id string) { s.id = id }

func setup(t *testing.T) (attach.Attachment, *events.Manager, *registry.Registry) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	reg := registry.New(filepath.Join(t.TempDir(), "registry.json"), logging.NewNop())
	ev := events.NewManager(reg, nil, logging.NewNop())
	ev.Start()
	t.Cleanup(ev.Stop)

	section := cfg.Attach("timer")
	section.Set("every", 2)
	plug := timer.New(section, logging.NewNop())
	reg.RegisterPlug("timer", "plugins/timer", plug)
	if err := plug.Load(&attach.Env{Registry: reg, Events: ev, Logger: logging.NewNop()}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return plug, ev, reg
}

func TestTickFiresEveryNthUpdate(t *testing.T) {
	plug, ev, reg := setup(t)

	mid := reg.RegisterAlarm("sink", "test/sink", &stampable{})
	got := make(chan any, 4)
	alert := events.NewAlert("sink", func(e *events.Event) { got <- e.Payload() })
	aid, err := ev.LoadAlert("sink", mid, alert)
	if err != nil {
		t.Fatalf("LoadAlert: %v", err)
	}
	eid, ok := reg.EventID("tick", "timer")
	if !ok {
		t.Fatal("tick event should be loaded")
	}
	if !reg.Subscribe(eid, aid) {
		t.Fatal("subscribe failed")
	}

	if err := plug.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	lp := plug.(attach.LoopPlug)
	lp.Update()
	select {
	case <-got:
		t.Fatal("tick must not fire before the interval elapses")
	case <-time.After(200 * time.Millisecond):
	}

	lp.Update()
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("tick should fire on the second update")
	}
}

func TestUpdateIsInertWhileInactive(t *testing.T) {
	plug, _, _ := setup(t)
	lp := plug.(attach.LoopPlug)
	lp.Update()
	lp.Update()
	lp.Update()
	// No activation, no panic, no tick; the event stays idle.
	if plug.Activated() {
		t.Fatal("plug should be inactive")
	}
}

func TestIntervalCommand(t *testing.T) {
	plug, _, _ := setup(t)
	cmds := plug.Commands()
	var interval attach.Command
	for _, c := range cmds {
		if c.Name == "interval" {
			interval = c
		}
	}
	if interval.Run == nil {
		t.Fatal("interval command missing")
	}
	if _, err := interval.Run([]string{"5"}); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	out, err := interval.Run(nil)
	if err != nil {
		t.Fatalf("get interval: %v", err)
	}
	if out != "every 5 cycle(s)" {
		t.Fatalf("interval = %v", out)
	}
	if _, err := interval.Run([]string{"zero"}); err == nil {
		t.Fatal("non-numeric interval must be rejected")
	}
}
