package message

// Kind identifies a message variant on the wire.
type Kind string

const (
	KindBase    Kind = "base"
	KindCommand Kind = "cmd"
	KindAlert   Kind = "alrt"
	KindError   Kind = "err"
)

// Message is the closed union of everything the router moves around.
// The four variants are Base, Command, Alert, and Error; dispatch is a type
// switch, never field inspection.
type Message interface {
	Kind() Kind
	// Source is the routing id of the sender, possibly empty for the daemon.
	Source() string
	// Dest is the routing id or command name of the recipient. An empty
	// destination is a defined routing case, not an error: Alerts broadcast
	// to interfaces, everything else goes to the daemon.
	Dest() string

	isMessage()
}

// Base carries a plain value, typically a command reply.
type Base struct {
	From  string
	To    string
	Value any
}

// Command asks the destination to run one of its named commands.
type Command struct {
	From string
	To   string
	Name string
	Args []string
	// Kill tells the daemon the sender will disconnect after the reply.
	Kill bool
}

// Alert announces an event occurrence. An empty destination broadcasts to
// every connected interface.
type Alert struct {
	From  string
	To    string
	Title string
	Value any
	Args  []string
}

// Error reports a failure back to a sender.
type Error struct {
	From  string
	To    string
	Value any
	Code  string
	// Dead marks the source as no longer serviceable.
	Dead bool
	Kill bool
}

func (Base) Kind() Kind    { return KindBase }
func (Command) Kind() Kind { return KindCommand }
func (Alert) Kind() Kind   { return KindAlert }
func (Error) Kind() Kind   { return KindError }

func (m Base) Source() string    { return m.From }
func (m Command) Source() string { return m.From }
func (m Alert) Source() string   { return m.From }
func (m Error) Source() string   { return m.From }

func (m Base) Dest() string    { return m.To }
func (m Command) Dest() string { return m.To }
func (m Alert) Dest() string   { return m.To }
func (m Error) Dest() string   { return m.To }

func (Base) isMessage()    {}
func (Command) isMessage() {}
func (Alert) isMessage()   {}
func (Error) isMessage()   {}

// NewBase builds a Base message.
func NewBase(value any, source, dest string) Base {
	return Base{From: source, To: dest, Value: value}
}

// NewCommand builds a Command message.
func NewCommand(name string, source, dest string, args ...string) Command {
	return Command{From: source, To: dest, Name: name, Args: args}
}

// NewAlert builds an Alert message.
func NewAlert(title string, value any, source, dest string, args ...string) Alert {
	return Alert{From: source, To: dest, Title: title, Value: value, Args: args}
}

// NewError builds an Error message.
func NewError(value any, source, dest string) Error {
	return Error{From: source, To: dest, Value: value}
}
