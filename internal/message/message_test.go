package message_test

import (
	"strings"
	"testing"

	"emp/internal/message"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []message.Message{
		message.NewBase("hello", "a1", "b2"),
		message.NewCommand("status", "i3", "", "arg1", "arg2"),
		message.NewAlert("disk-full", "/var is at 98%", "p4", ""),
		message.NewError("Command does not exist.", "p4", "i3"),
	}
	for _, msg := range cases {
		data, err := message.Encode(msg)
		if err != nil {
			t.Fatalf("Encode(%T): %v", msg, err)
		}
		decoded, err := message.Decode(data)
		if err != nil {
			t.Fatalf("Decode(%T): %v", msg, err)
		}
		if decoded.Kind() != msg.Kind() {
			t.Fatalf("kind mismatch: got %q want %q", decoded.Kind(), msg.Kind())
		}
		if decoded.Source() != msg.Source() || decoded.Dest() != msg.Dest() {
			t.Fatalf("addressing mismatch: got (%q,%q) want (%q,%q)",
				decoded.Source(), decoded.Dest(), msg.Source(), msg.Dest())
		}
	}
}

func TestDecodeCommandFields(t *testing.T) {
	wire := `{"message":"cmd","source":"i1","dest":"p2","command":"update","args":["now"],"kill":true}`
	msg, err := message.Decode([]byte(wire))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cmd, ok := msg.(message.Command)
	if !ok {
		t.Fatalf("expected Command, got %T", msg)
	}
	if cmd.Name != "update" || len(cmd.Args) != 1 || cmd.Args[0] != "now" || !cmd.Kill {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	if _, err := message.Decode([]byte(`{"message":"bogus"}`)); err == nil {
		t.Fatal("expected error for unknown kind")
	} else if !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := message.Decode([]byte("not json at all")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
