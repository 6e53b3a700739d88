package registry

// Kind classifies a registered routing identity.
type Kind string

const (
	KindPlug      Kind = "plug"
	KindAlarm     Kind = "alarm"
	KindInterface Kind = "interface"
	KindDaemon    Kind = "daemon"
)

// Attachment is the persisted record of a registered plug, alarm, or
// interface. Interface entries are transient and never written to disk.
type Attachment struct {
	ID     string `json:"id"`
	Cmd    string `json:"cmd,omitempty"`
	Module string `json:"module,omitempty"`
	Kind   Kind   `json:"kind"`
}

// Event is the persisted record of a named event owned by a plug.
type Event struct {
	ID       string `json:"id"`
	Producer string `json:"producer"`
	Name     string `json:"name"`
}

// Alert is the persisted record of a named alert owned by an alarm.
type Alert struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// SubKind identifies which of the four subscription shapes a link has.
type SubKind string

const (
	// SubEventToAlert links one event to one alert.
	SubEventToAlert SubKind = "event-alert"
	// SubEventToAlarm links one event to every alert of an alarm.
	SubEventToAlarm SubKind = "event-alarm"
	// SubPlugToAlert links every event of a plug to one alert.
	SubPlugToAlert SubKind = "plug-alert"
	// SubPlugToAlarm links every event of a plug to every alert of an alarm.
	SubPlugToAlarm SubKind = "plug-alarm"
)

// Subscription links an event side (event or plug id) to an alert side
// (alert or alarm id). The kind records which combination Source and Target
// hold.
type Subscription struct {
	Kind   SubKind `json:"kind"`
	Source string  `json:"source"`
	Target string  `json:"target"`
}

// Registrant is stamped with its routing id at registration time.
type Registrant interface {
	SetID(id string)
}
