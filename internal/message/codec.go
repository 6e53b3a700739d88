package message

import (
	"encoding/json"
	"fmt"
)

// envelope is the flat JSON object every variant shares on the wire.
type envelope struct {
	Message Kind     `json:"message"`
	Source  string   `json:"source,omitempty"`
	Dest    string   `json:"dest,omitempty"`
	Value   any      `json:"value,omitempty"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Title   string   `json:"title,omitempty"`
	Code    string   `json:"code,omitempty"`
	Dead    bool     `json:"dead,omitempty"`
	Kill    bool     `json:"kill,omitempty"`
}

// Encode serializes a message into its wire form.
func Encode(m Message) ([]byte, error) {
	var env envelope
	switch v := m.(type) {
	case Base:
		env = envelope{Message: KindBase, Source: v.From, Dest: v.To, Value: v.Value}
	case Command:
		env = envelope{Message: KindCommand, Source: v.From, Dest: v.To, Command: v.Name, Args: v.Args, Kill: v.Kill}
	case Alert:
		env = envelope{Message: KindAlert, Source: v.From, Dest: v.To, Title: v.Title, Value: v.Value, Args: v.Args}
	case Error:
		env = envelope{Message: KindError, Source: v.From, Dest: v.To, Value: v.Value, Code: v.Code, Dead: v.Dead, Kill: v.Kill}
	default:
		return nil, fmt.Errorf("encode message: unknown variant %T", m)
	}
	return json.Marshal(env)
}

// Decode parses the wire form back into a message. Unparseable payloads and
// unrecognized message kinds return an error; callers drop and log them.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch env.Message {
	case KindBase:
		return Base{From: env.Source, To: env.Dest, Value: env.Value}, nil
	case KindCommand:
		return Command{From: env.Source, To: env.Dest, Name: env.Command, Args: env.Args, Kill: env.Kill}, nil
	case KindAlert:
		return Alert{From: env.Source, To: env.Dest, Title: env.Title, Value: env.Value, Args: env.Args}, nil
	case KindError:
		return Error{From: env.Source, To: env.Dest, Value: env.Value, Code: env.Code, Dead: env.Dead, Kill: env.Kill}, nil
	default:
		return nil, fmt.Errorf("decode message: unknown kind %q", env.Message)
	}
}
