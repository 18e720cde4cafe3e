package schema

// SessionID identifies a live shell session.
type SessionID string

// MachineID identifies a stored machine record.
type MachineID string

// IdentityID identifies a stored identity record.
type IdentityID string

// CommandID identifies a stored command record.
type CommandID string

// RemoteType distinguishes what a session was created from.
type RemoteType string

const (
	// RemoteTypeMachine marks a session created from a machine record.
	RemoteTypeMachine RemoteType = "machine"
	// RemoteTypeCommand marks a session created from a command record.
	RemoteTypeCommand RemoteType = "command"
)

// MinTerminalDim is the smallest width or height ever reported to a transport.
const MinTerminalDim = 8

// TerminalSize is a terminal geometry in character cells.
type TerminalSize struct {
	Width  int
	Height int
}

// DefaultTerminalSize substitutes for degenerate geometry below MinTerminalDim.
var DefaultTerminalSize = TerminalSize{Width: 80, Height: 40}

// BelowFloor reports whether either dimension is under MinTerminalDim.
func (s TerminalSize) BelowFloor() bool {
	return s.Width < MinTerminalDim || s.Height < MinTerminalDim
}
