package attach_test

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"emp/internal/attach"
	"emp/internal/config"
	"emp/internal/events"
	"emp/internal/logging"
	"emp/internal/registry"
	"emp/internal/testsupport"
)

type fakePlug struct {
	attach.Base
	importance  float64
	updates     int
	activateErr error
	loadErr     error
	saved       bool
	saveOrder   *[]string
}

func (p *fakePlug) Load(*attach.Env) error { return p.loadErr }

func (p *fakePlug) Activate() error {
	if p.activateErr != nil {
		return p.activateErr
	}
	p.BeginActivate()
	return nil
}

func (p *fakePlug) Deactivate() error {
	if p.saveOrder != nil {
		*p.saveOrder = append(*p.saveOrder, "deactivate")
	}
	p.BeginDeactivate()
	return nil
}

func (p *fakePlug) Save() {
	p.saved = true
	if p.saveOrder != nil {
		*p.saveOrder = append(*p.saveOrder, "save")
	}
}

func (p *fakePlug) Update()             { p.updates++ }
func (p *fakePlug) Importance() float64 { return p.importance }

func (p *fakePlug) Commands() []attach.Command {
	return []attach.Command{{Name: "poke", Run: func([]string) (any, error) { return "ok", nil }}}
}

func plugFactory(name string, build func(base attach.Base) *fakePlug) attach.Factory {
	return attach.Factory{
		Name:   name,
		Module: "plugins/" + name,
		New: func(cfg *config.AttachConfig, logger *slog.Logger) attach.Attachment {
			return build(attach.NewBase(name, "plugins/"+name, registry.KindPlug, cfg, logger))
		},
	}
}

func newManager(t *testing.T) (*attach.Manager, *registry.Registry) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	reg := registry.New(filepath.Join(t.TempDir(), "registry.json"), logging.NewNop())
	ev := events.NewManager(reg, nil, logging.NewNop())
	return attach.NewManager(cfg, reg, ev, logging.NewNop()), reg
}

func TestCollectRegistersAndSkipsFailures(t *testing.T) {
	mgr, reg := newManager(t)
	mgr.Collect([]attach.Factory{
		plugFactory("good", func(b attach.Base) *fakePlug { return &fakePlug{Base: b} }),
		plugFactory("broken", func(b attach.Base) *fakePlug {
			return &fakePlug{Base: b, loadErr: errors.New("no events")}
		}),
	})

	if got := len(mgr.Attachments()); got != 1 {
		t.Fatalf("expected 1 collected attachment, got %d", got)
	}
	if !reg.IsRegistered("good") {
		t.Fatal("good plug should be registered")
	}
	if reg.IsRegistered("broken") {
		t.Fatal("failed plug should have been deregistered")
	}
}

func TestActivationFailureDoesNotBlockSiblings(t *testing.T) {
	mgr, _ := newManager(t)
	mgr.Collect([]attach.Factory{
		plugFactory("first", func(b attach.Base) *fakePlug {
			return &fakePlug{Base: b, activateErr: errors.New("boom")}
		}),
		plugFactory("second", func(b attach.Base) *fakePlug { return &fakePlug{Base: b} }),
	})

	mgr.ActivateAttachments()
	if mgr.GetAttachment("first").Activated() {
		t.Fatal("failing attachment must not report active")
	}
	if !mgr.GetAttachment("second").Activated() {
		t.Fatal("sibling should still activate")
	}
}

func TestMakeActiveFlagSkipsActivation(t *testing.T) {
	mgr, _ := newManager(t)
	mgr.Collect([]attach.Factory{
		plugFactory("sleeper", func(b attach.Base) *fakePlug { return &fakePlug{Base: b} }),
	})
	mgr.GetAttachment("sleeper").SetMakeActive(false)

	mgr.ActivateAttachments()
	if mgr.GetAttachment("sleeper").Activated() {
		t.Fatal("makeactive=false attachments must stay inactive")
	}
}

func TestGetLoopPlugsOrdering(t *testing.T) {
	mgr, _ := newManager(t)
	mgr.Collect([]attach.Factory{
		plugFactory("low", func(b attach.Base) *fakePlug { return &fakePlug{Base: b, importance: 1} }),
		plugFactory("high", func(b attach.Base) *fakePlug { return &fakePlug{Base: b, importance: 5} }),
		plugFactory("tie-a", func(b attach.Base) *fakePlug { return &fakePlug{Base: b, importance: 3} }),
		plugFactory("tie-b", func(b attach.Base) *fakePlug { return &fakePlug{Base: b, importance: 3} }),
	})

	plugs := mgr.GetLoopPlugs()
	var order []string
	for _, p := range plugs {
		order = append(order, p.Name())
	}
	want := []string{"high", "tie-a", "tie-b", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDeactivateSavesFirst(t *testing.T) {
	mgr, _ := newManager(t)
	var order []string
	mgr.Collect([]attach.Factory{
		plugFactory("tracked", func(b attach.Base) *fakePlug {
			return &fakePlug{Base: b, saveOrder: &order}
		}),
	})
	mgr.ActivateAttachments()

	if err := mgr.Deactivate("tracked"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if len(order) != 2 || order[0] != "save" || order[1] != "deactivate" {
		t.Fatalf("save must run before deactivate, got %v", order)
	}
}

func TestGetCommands(t *testing.T) {
	mgr, reg := newManager(t)
	mgr.Collect([]attach.Factory{
		plugFactory("cmdful", func(b attach.Base) *fakePlug { return &fakePlug{Base: b} }),
	})

	id, _ := reg.AttachID("cmdful")
	cmds, ok := mgr.GetCommands(id)
	if !ok || len(cmds) != 1 || cmds[0].Name != "poke" {
		t.Fatalf("GetCommands = %v, %v", cmds, ok)
	}
	if _, ok := mgr.GetCommands("missing"); ok {
		t.Fatal("unknown id must not resolve a command table")
	}
}
