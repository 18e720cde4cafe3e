package core

import (
	"time"

	"pkt.systems/pslog"
	"pkt.systems/remsh/schema"
)

// Transport is the live connection a session drives. One transport handle
// exists per session lifecycle; reconnect means Disconnect then Connect on
// the same handle, never a new session.
type Transport interface {
	// Configure sets the dial target and connect timeout. Must be called
	// before Connect.
	Configure(host string, port int, timeout time.Duration)
	// Connect establishes the connection, blocking up to the configured
	// timeout. The transport is connected but not yet authenticated.
	Connect() error
	// Disconnect tears the connection down. Safe to call repeatedly.
	Disconnect()
	// Authenticate runs the handshake for the identity's username and
	// authentication material over the established connection.
	Authenticate(identity schema.IdentityRecord) error
	// IsConnected reports whether the connection is up.
	IsConnected() bool
	// IsAuthenticated reports whether the handshake completed.
	IsAuthenticated() bool
	// LastError returns the most recent transport-level error, if any.
	LastError() error
	// RemoteBanner returns the remote endpoint's identification string.
	RemoteBanner() string
	// RequestPickup wakes the interactive session to re-poll pending
	// outbound data and terminal geometry. Non-blocking.
	RequestPickup()
	// RunInteractiveSession pumps the shell until the continuation
	// predicate returns false or the remote ends the channel.
	RunInteractiveSession(hooks InteractiveHooks) error
}

// InteractiveHooks supplies the pump loop's callback surface.
type InteractiveHooks struct {
	// OnOpen fires once when the shell channel is open.
	OnOpen func()
	// Size returns the terminal geometry to use, floor already applied.
	Size func() schema.TerminalSize
	// WriteBuffer returns pending outbound bytes, draining the source.
	WriteBuffer func() string
	// Output delivers inbound bytes. Called synchronously; the transport
	// must not read further until it returns.
	Output func(data []byte)
	// Continue is consulted once per loop iteration.
	Continue func() bool
}

// TransportProvider creates one transport handle per session.
type TransportProvider interface {
	New() Transport
}

// Store exposes the record backing the session engine consumes. The engine
// writes back only the machine's last banner.
type Store interface {
	Machine(id schema.MachineID) (schema.MachineRecord, bool)
	Identity(id schema.IdentityID) (schema.IdentityRecord, bool)
	// AutoAuthCandidates returns identities eligible for unattended trial,
	// in store-defined order.
	AutoAuthCandidates() []schema.IdentityRecord
	ConnectTimeout() time.Duration
	SetLastBanner(id schema.MachineID, banner string) error
}

// DisplaySurface renders session output and diagnostics. Write is only
// ever called from the UI runner.
type DisplaySurface interface {
	Write(text string)
}

// SurfaceBinder is implemented by display surfaces that route input,
// resize, title and bell events back through the registry. Bind tells the
// surface which session id to dispatch under.
type SurfaceBinder interface {
	Bind(id schema.SessionID)
}

// EventSink receives session-changed events from the engine.
type EventSink interface {
	OnSessionChanged(event schema.SessionEvent)
}

// SessionDeps captures the collaborators for the session engine.
type SessionDeps struct {
	Transports TransportProvider
	Store      Store
	Surface    DisplaySurface
	Sink       EventSink
	UI         *UIRunner
	Logger     pslog.Logger
}
