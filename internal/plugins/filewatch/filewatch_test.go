package filewatch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"emp/internal/attach"
	"emp/internal/events"
	"emp/internal/logging"
	"emp/internal/plugins/filewatch"
	"emp/internal/registry"
	"emp/internal/testsupport"
)

type stampable struct{ id string }

func (s *stampable) SetID(id string) { s.id = id }

func setup(t *testing.T, watched string) (attach.LoopPlug, chan string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	reg := registry.New(filepath.Join(t.TempDir(), "registry.json"), logging.NewNop())
	ev := events.NewManager(reg, nil, logging.NewNop())
	ev.Start()
	t.Cleanup(ev.Stop)

	section := cfg.Attach("filewatch")
	section.Set("paths", []string{watched})
	plug := filewatch.New(section, logging.NewNop()).(attach.LoopPlug)
	reg.RegisterPlug("filewatch", "plugins/filewatch", plug)
	if err := plug.Load(&attach.Env{Registry: reg, Events: ev, Logger: logging.NewNop()}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	fired := make(chan string, 4)
	mid := reg.RegisterAlarm("sink", "test/sink", &stampable{})
	for _, name := range []string{"file-created", "file-changed", "file-missing"} {
		eventName := name
		alert := events.NewAlert("on-"+eventName, func(e *events.Event) { fired <- e.Name() })
		aid, err := ev.LoadAlert("on-"+eventName, mid, alert)
		if err != nil {
			t.Fatalf("LoadAlert: %v", err)
		}
		eid, ok := reg.EventID(eventName, "filewatch")
		if !ok {
			t.Fatalf("event %s not loaded", eventName)
		}
		if !reg.Subscribe(eid, aid) {
			t.Fatalf("subscribe %s failed", eventName)
		}
	}

	if err := plug.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return plug, fired
}

func waitEvent(t *testing.T, fired chan string, want string) {
	t.Helper()
	select {
	case name := <-fired:
		if name != want {
			t.Fatalf("event = %s, want %s", name, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func TestDetectsChangeAndRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	plug, fired := setup(t, path)

	// Unchanged file stays quiet.
	plug.Update()
	select {
	case name := <-fired:
		t.Fatalf("unexpected event %s for unchanged file", name)
	case <-time.After(150 * time.Millisecond):
	}

	// Advance the mtime past the recorded one.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	plug.Update()
	waitEvent(t, fired, "file-changed")

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	plug.Update()
	waitEvent(t, fired, "file-missing")

	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatalf("recreate file: %v", err)
	}
	plug.Update()
	waitEvent(t, fired, "file-created")
}
