// Package console is the local-terminal display surface: it renders
// session output on stdout and feeds keystrokes and geometry changes back
// through the session registry. Callbacks carry the bound session id, so
// a released session simply stops receiving dispatches.
package console

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/remsh/core"
	"pkt.systems/remsh/schema"
)

// EscapeByte is the local escape keystroke (Ctrl-]) that closes the
// bound session.
const EscapeByte = 0x1d

// Surface drives one local terminal.
type Surface struct {
	in  *os.File
	out io.Writer
	log pslog.Logger

	mu       sync.Mutex
	registry *core.Registry
	session  schema.SessionID
	restore  func()
	started  bool

	closing atomic.Bool
	winch   chan os.Signal
}

// New constructs a surface over stdin/stdout.
func New(log pslog.Logger) *Surface {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Surface{in: os.Stdin, out: os.Stdout, log: log}
}

// SetRegistry wires the dispatch registry. Must be called before any
// session binds.
func (s *Surface) SetRegistry(registry *core.Registry) {
	s.mu.Lock()
	s.registry = registry
	s.mu.Unlock()
}

// Write renders text. Only ever called from the UI runner.
func (s *Surface) Write(text string) {
	_, _ = io.WriteString(s.out, text)
}

// Bind attaches the surface to a session: raw mode goes on, the reader
// and resize watchers start, and dispatches carry the session id.
func (s *Surface) Bind(id schema.SessionID) {
	s.mu.Lock()
	s.session = id
	registry := s.registry
	started := s.started
	s.started = true
	s.mu.Unlock()
	if started || registry == nil {
		return
	}

	fd := int(s.in.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			s.log.Warn("console raw mode failed", "err", err)
		} else {
			s.mu.Lock()
			s.restore = func() { _ = term.Restore(fd, oldState) }
			s.mu.Unlock()
		}
		if width, height, err := term.GetSize(fd); err == nil {
			registry.DispatchResize(id, schema.TerminalSize{Width: width, Height: height})
		}
	}

	s.winch = make(chan os.Signal, 1)
	signal.Notify(s.winch, unix.SIGWINCH)
	go s.watchResize(fd)
	go s.readInput()
	s.log.Debug("console bound", "session", id)
}

func (s *Surface) watchResize(fd int) {
	for range s.winch {
		if s.closing.Load() {
			return
		}
		width, height, err := term.GetSize(fd)
		if err != nil {
			continue
		}
		registry, id := s.target()
		if registry != nil {
			registry.DispatchResize(id, schema.TerminalSize{Width: width, Height: height})
		}
	}
}

func (s *Surface) readInput() {
	buf := make([]byte, 1024)
	for {
		n, err := s.in.Read(buf)
		if s.closing.Load() {
			return
		}
		registry, id := s.target()
		if n > 0 && registry != nil {
			data := buf[:n]
			for _, b := range data {
				if b == EscapeByte {
					s.log.Info("console escape", "session", id)
					registry.DispatchClose(id)
					return
				}
			}
			registry.DispatchInput(id, string(data))
		}
		if err != nil {
			if registry != nil {
				registry.DispatchClose(id)
			}
			return
		}
	}
}

func (s *Surface) target() (*core.Registry, schema.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry, s.session
}

// Close restores the terminal and stops the watchers.
func (s *Surface) Close() {
	s.closing.Store(true)
	if s.winch != nil {
		signal.Stop(s.winch)
		close(s.winch)
	}
	s.mu.Lock()
	restore := s.restore
	s.restore = nil
	s.mu.Unlock()
	if restore != nil {
		restore()
	}
}
