package schema

// SessionEvent describes a UI-visible change to a session. Token increases
// with every change so chrome UIs can cheaply detect staleness.
type SessionEvent struct {
	ID                SessionID
	Title             string
	Subtitle          string
	Closed            bool
	InterfaceDisabled bool
	Token             uint64
}
