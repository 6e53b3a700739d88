package registry_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"emp/internal/logging"
	"emp/internal/registry"
)

type stampable struct {
	id string
}

func (s *stampable) SetID(id string) { s.id = id }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(filepath.Join(t.TempDir(), "registry.json"), logging.NewNop())
}

func TestRegisterStampsAndResolves(t *testing.T) {
	reg := newRegistry(t)
	ref := &stampable{}
	id := reg.RegisterPlug("timer", "plugins/timer", ref)
	if id == "" || ref.id != id {
		t.Fatalf("expected ref stamped with id, got id=%q ref=%q", id, ref.id)
	}
	if !reg.IsRegistered(id) {
		t.Fatal("id should be registered")
	}
	if !reg.IsRegistered("timer") {
		t.Fatal("command name should resolve")
	}
	resolved, ok := reg.AttachID("timer")
	if !ok || resolved != id {
		t.Fatalf("AttachID(timer) = %q, %v; want %q", resolved, ok, id)
	}
	if !reg.IsRegistered(reg.DaemonID()) {
		t.Fatal("daemon id should count as registered")
	}
}

func TestRegisterReusesIDForSameModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := registry.New(path, logging.NewNop())
	first := reg.RegisterPlug("timer", "plugins/timer", &stampable{})
	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := registry.New(path, logging.NewNop())
	second := reloaded.RegisterPlug("timer", "plugins/timer", &stampable{})
	if second != first {
		t.Fatalf("module identity should survive restart: got %q want %q", second, first)
	}
	if reloaded.DaemonID() != reg.DaemonID() {
		t.Fatalf("daemon id should be stable across restarts")
	}
}

func TestInterfacesAlwaysFreshAndTransient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := registry.New(path, logging.NewNop())
	a := reg.RegisterInterface(&stampable{})
	b := reg.RegisterInterface(&stampable{})
	if a == b {
		t.Fatal("interfaces must always get fresh ids")
	}
	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded := registry.New(path, logging.NewNop())
	if reloaded.IsRegistered(a) || reloaded.IsRegistered(b) {
		t.Fatal("interface entries must not be persisted")
	}
}

func TestLoadEventIdempotent(t *testing.T) {
	reg := newRegistry(t)
	pid := reg.RegisterPlug("timer", "plugins/timer", &stampable{})

	first, err := reg.LoadEvent("tick", pid)
	if err != nil {
		t.Fatalf("LoadEvent: %v", err)
	}
	second, err := reg.LoadEvent("tick", pid)
	if err != nil {
		t.Fatalf("LoadEvent again: %v", err)
	}
	if first != second {
		t.Fatalf("loadEvent must be idempotent: %q vs %q", first, second)
	}
	if _, err := reg.LoadEvent("tick", "nope"); err == nil {
		t.Fatal("unknown producer should be rejected")
	}
}

func TestUnloadEventCascadesSubscriptions(t *testing.T) {
	reg := newRegistry(t)
	pid := reg.RegisterPlug("timer", "plugins/timer", &stampable{})
	mid := reg.RegisterAlarm("logger", "plugins/logalarm", &stampable{})
	eid, _ := reg.LoadEvent("tick", pid)
	aid, _ := reg.LoadAlert("write-log", mid)

	if !reg.Subscribe(aid, eid) {
		t.Fatal("subscribe should succeed")
	}
	if got := reg.SubscribedTo(eid); len(got) != 1 || got[0] != aid {
		t.Fatalf("SubscribedTo = %v, want [%s]", got, aid)
	}

	if !reg.UnloadEvent(eid) {
		t.Fatal("unloadEvent should succeed")
	}
	if got := reg.SubscribedTo(eid); len(got) != 0 {
		t.Fatalf("expected no subscribers after unload, got %v", got)
	}
	for _, s := range reg.Subs() {
		if s.Source == eid || s.Target == eid {
			t.Fatalf("dangling subscription after unload: %+v", s)
		}
	}
}

func TestSubscribeTypeResolution(t *testing.T) {
	reg := newRegistry(t)
	pid := reg.RegisterPlug("watch", "plugins/filewatch", &stampable{})
	mid := reg.RegisterAlarm("ntfy", "plugins/ntfyalarm", &stampable{})
	eid, _ := reg.LoadEvent("file-changed", pid)
	aid, _ := reg.LoadAlert("push", mid)
	aid2, _ := reg.LoadAlert("push-loud", mid)
	eid2, _ := reg.LoadEvent("file-deleted", pid)

	// Specific event to whole alarm: both alerts fire.
	if !reg.Subscribe(eid, mid) {
		t.Fatal("event-to-alarm subscribe failed")
	}
	if got := reg.SubscribedTo(eid); len(got) != 2 {
		t.Fatalf("expected both alarm alerts subscribed, got %v", got)
	}
	if !reg.Unsubscribe(mid, eid) {
		t.Fatal("unsubscribe should accept either argument order")
	}

	// Whole plug to a specific alert: any event of the plug reaches it.
	if !reg.Subscribe("watch", aid) {
		t.Fatal("plug-to-alert subscribe by command name failed")
	}
	for _, eventID := range []string{eid, eid2} {
		got := reg.SubscribedTo(eventID)
		if len(got) != 1 || got[0] != aid {
			t.Fatalf("SubscribedTo(%s) = %v, want [%s]", eventID, got, aid)
		}
	}

	// Inverse view.
	if got := reg.Subscriptions(aid); len(got) != 2 {
		t.Fatalf("Subscriptions(%s) = %v, want both plug events", aid, got)
	}
	if got := reg.Subscriptions(aid2); len(got) != 0 {
		t.Fatalf("Subscriptions(%s) = %v, want none", aid2, got)
	}

	// Unresolvable sides are rejected.
	if reg.Subscribe("nope", aid) {
		t.Fatal("unknown event side must be rejected")
	}
	if reg.Subscribe(eid, "nope") {
		t.Fatal("unknown alert side must be rejected")
	}
	if reg.Subscribe(eid, eid2) {
		t.Fatal("two event sides must be rejected")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := registry.New(path, logging.NewNop())
	pid := reg.RegisterPlug("timer", "plugins/timer", &stampable{})
	mid := reg.RegisterAlarm("logger", "plugins/logalarm", &stampable{})
	eid, _ := reg.LoadEvent("tick", pid)
	aid, _ := reg.LoadAlert("write-log", mid)
	reg.Subscribe(aid, eid)

	if err := reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := registry.New(path, logging.NewNop())
	if got, _ := reloaded.LoadEvent("tick", pid); got != eid {
		t.Fatalf("event id not preserved: got %q want %q", got, eid)
	}
	if got := reloaded.SubscribedTo(eid); len(got) != 1 || got[0] != aid {
		t.Fatalf("subscription not preserved: %v", got)
	}
}

func TestSaveKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := registry.New(path, logging.NewNop())
	if err := reg.Save(); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	reg.RegisterPlug("timer", "plugins/timer", &stampable{})
	if err := reg.Save(); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("expected backup file after re-save: %v", err)
	}
	// Both current and backup must be valid JSON.
	for _, p := range []string{path, path + ".bak"} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		var v map[string]any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Fatalf("%s is not valid JSON: %v", p, err)
		}
	}
}

func TestMalformedSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("{{{not json"), 0o644); err != nil {
		t.Fatalf("seed malformed file: %v", err)
	}
	reg := registry.New(path, logging.NewNop())
	if len(reg.Attachments()) != 0 {
		t.Fatal("malformed snapshot must start empty")
	}
	if reg.DaemonID() == "" {
		t.Fatal("daemon id must be generated when snapshot is unreadable")
	}
}

func TestSetCmdRenames(t *testing.T) {
	reg := newRegistry(t)
	id := reg.RegisterPlug("timer", "plugins/timer", &stampable{})
	if !reg.SetCmd("timer", "ticker") {
		t.Fatal("rename by current command name should succeed")
	}
	if resolved, ok := reg.AttachID("ticker"); !ok || resolved != id {
		t.Fatalf("AttachID(ticker) = %q, %v; want %q", resolved, ok, id)
	}
	if _, ok := reg.AttachID("timer"); ok {
		t.Fatal("old command name should no longer resolve")
	}
	if reg.SetCmd("missing", "x") {
		t.Fatal("renaming an unknown attachment should fail")
	}
}

func TestDeregister(t *testing.T) {
	reg := newRegistry(t)
	id := reg.RegisterPlug("timer", "plugins/timer", &stampable{})
	if !reg.Deregister("timer") {
		t.Fatal("deregister by command name should succeed")
	}
	if reg.IsRegistered(id) {
		t.Fatal("id should be gone after deregister")
	}
	if reg.Deregister(id) {
		t.Fatal("second deregister should report not found")
	}
}
