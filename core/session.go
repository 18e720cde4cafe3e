package core

import (
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/remsh/internal/logx"
	"pkt.systems/remsh/schema"
)

// Session drives one interactive remote-shell connection end to end:
// bootstrap, connect, authenticate, pump, shutdown. All blocking work
// runs on the session's worker; all UI-observable state flows through
// setAndNotify onto the UI runner.
type Session struct {
	id      schema.SessionID
	remote  schema.RemoteType
	machine schema.MachineRecord
	command *schema.CommandRecord

	transport Transport
	store     Store
	surface   DisplaySurface
	sink      EventSink
	ui        *UIRunner
	registry  *Registry
	worker    *worker
	selector  *authSelector
	log       pslog.Logger

	outbuf *outboundBuffer
	size   *sizeNegotiator

	// cont is the continuation decision: the pump loop's predicate, the
	// insert gate, and the source of the derived Closed/InterfaceDisabled
	// properties.
	cont atomic.Bool

	// released is set the moment the owning view lets go. Bootstrap
	// refuses to start once it is up, and shutdown skips the close
	// banner.
	released atomic.Bool

	timeout time.Duration

	mu       sync.Mutex
	title    string
	subtitle string
	token    uint64

	disconnectOnce sync.Once
	releaseOnce    sync.Once
}

func newSession(remote schema.RemoteType, machine schema.MachineRecord, command *schema.CommandRecord, cfg schema.ServiceConfig, deps SessionDeps, registry *Registry) *Session {
	id := schema.SessionID(newID())
	log := logx.WithMachine(deps.Logger.With("session", id), machine)
	s := &Session{
		id:        id,
		remote:    remote,
		machine:   machine,
		command:   command,
		timeout:   cfg.ConnectTimeout,
		transport: deps.Transports.New(),
		store:     deps.Store,
		surface:   deps.Surface,
		sink:      deps.Sink,
		ui:        deps.UI,
		registry:  registry,
		worker:    newWorker(log),
		log:       log,
		title:     machine.DisplayName(),
		subtitle:  machine.Address(),
	}
	s.selector = newAuthSelector(deps.Store, log)
	s.outbuf = newOutboundBuffer(s.Closed, s.notifyPickup)
	s.size = newSizeNegotiator(s.notifyPickup)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() schema.SessionID { return s.id }

// RemoteType reports what the session was created from.
func (s *Session) RemoteType() schema.RemoteType { return s.remote }

// Machine returns the machine descriptor the session connects to.
func (s *Session) Machine() schema.MachineRecord { return s.machine }

// Command returns the originating command record, if any.
func (s *Session) Command() (schema.CommandRecord, bool) {
	if s.command == nil {
		return schema.CommandRecord{}, false
	}
	return *s.command, true
}

// Title returns the session title shown by chrome UIs.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Subtitle returns the session subtitle.
func (s *Session) Subtitle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtitle
}

// InterfaceToken returns the opaque change counter for UI refresh checks.
func (s *Session) InterfaceToken() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ContinueDecision is the pump loop's continuation predicate.
func (s *Session) ContinueDecision() bool { return s.cont.Load() }

// Closed reports whether the session has stopped accepting work.
func (s *Session) Closed() bool { return !s.cont.Load() }

// InterfaceDisabled reports whether input controls should be disabled.
func (s *Session) InterfaceDisabled() bool { return !s.cont.Load() }

// TerminalSize returns the current clamped terminal geometry.
func (s *Session) TerminalSize() schema.TerminalSize { return s.size.Current() }

// RequestClose flips the continuation decision off; the pump loop
// observes it within one iteration and funnels into shutdown.
func (s *Session) RequestClose() {
	s.setContinue(false)
}

// Release drops the session from the registry and shuts it down without
// the close banner. Called when the owning UI view lets go.
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		s.released.Store(true)
		s.registry.remove(s.id)
		s.worker.submit("shutdown", func() { s.shutdown(false) })
	})
}

// setAndNotify mutates UI-observable state, bumps the interface token and
// enqueues the update event on the UI runner. State is never mutated
// directly from the worker (assign-then-observe is replaced by this
// explicit operation).
func (s *Session) setAndNotify(mutate func()) {
	s.mu.Lock()
	if mutate != nil {
		mutate()
	}
	s.token++
	event := schema.SessionEvent{
		ID:                s.id,
		Title:             s.title,
		Subtitle:          s.subtitle,
		Closed:            s.Closed(),
		InterfaceDisabled: s.InterfaceDisabled(),
		Token:             s.token,
	}
	s.mu.Unlock()
	if s.sink == nil {
		return
	}
	s.ui.Async(func() { s.sink.OnSessionChanged(event) })
}

func (s *Session) setContinue(v bool) {
	s.cont.Store(v)
	s.setAndNotify(nil)
}

// diag writes one diagnostic line to the display surface, via the UI
// runner so it interleaves correctly with pumped output.
func (s *Session) diag(line string) {
	s.ui.Async(func() { s.surface.Write(line + "\r\n") })
}

func (s *Session) notifyPickup() {
	s.worker.submit("pickup", s.transport.RequestPickup)
}

// Display callback hooks, dispatched by the registry.

func (s *Session) handleInput(text string) { s.outbuf.Insert(text) }

func (s *Session) handleResize(size schema.TerminalSize) { s.size.Set(size) }

func (s *Session) handleTitle(title string) {
	s.setAndNotify(func() { s.title = title })
}

func (s *Session) handleBell() {
	s.log.Info("bell")
}

// bootstrap runs once per session, on the worker. Every failure funnels
// into shutdown; nothing propagates out of the session.
func (s *Session) bootstrap() {
	if s.released.Load() {
		return
	}
	log := s.log
	log.Info("session bootstrap start", "remote", s.remote, "address", s.machine.Address())

	timeout := s.timeout
	if timeout <= 0 {
		timeout = s.store.ConnectTimeout()
	}
	s.transport.Configure(s.machine.Host, s.machine.Port, timeout)
	s.diag("Creating Connection to " + s.machine.DisplayName() + " (" + s.machine.Address() + ")...")
	s.setContinue(true)

	if binder, ok := s.surface.(SurfaceBinder); ok {
		binder.Bind(s.id)
	}

	if err := s.transport.Connect(); err != nil || !s.transport.IsConnected() {
		if err != nil {
			log.Warn("session connect failed", "err", err)
		}
		s.diag("Could not connect to " + s.machine.Address() + ".")
		s.shutdown(false)
		return
	}

	if err := s.selector.Authenticate(s.transport, s.machine, s.diag); err != nil || !s.transport.IsAuthenticated() {
		if err != nil {
			log.Warn("session auth failed", "err", err)
		}
		s.diag("Failed to authenticate connection.")
		s.diag("Assign an identity to this machine or mark identities for automatic authentication.")
		s.shutdown(false)
		return
	}

	log.Info("session authenticated", "banner", s.transport.RemoteBanner())
	if s.remote == schema.RemoteTypeMachine {
		machineID := s.machine.ID
		banner := s.transport.RemoteBanner()
		s.ui.Async(func() {
			if err := s.store.SetLastBanner(machineID, banner); err != nil {
				log.Warn("banner update failed", "err", err)
			}
		})
	}

	hooks := InteractiveHooks{
		OnOpen:      func() { log.Info("shell channel open") },
		Size:        s.size.Current,
		WriteBuffer: s.outbuf.Drain,
		Output: func(data []byte) {
			// Synchronous rendezvous: the worker blocks here until the UI
			// runner has rendered the chunk.
			s.ui.Sync(func() { s.surface.Write(string(data)) })
		},
		Continue: s.ContinueDecision,
	}
	if err := s.transport.RunInteractiveSession(hooks); err != nil {
		log.Warn("session pump ended", "err", err)
	}
	s.shutdown(true)
}

// shutdown is safe to run more than once. exitFromShell selects the close
// banner, suppressed once the session has been released; the transport's
// queued last error is always surfaced. The disconnect request itself
// happens exactly once, asynchronously.
func (s *Session) shutdown(exitFromShell bool) {
	if exitFromShell && !s.released.Load() {
		s.diag("Connection Closed.")
	}
	if err := s.transport.LastError(); err != nil {
		s.diag(err.Error())
	}
	s.setContinue(false)
	s.disconnectOnce.Do(func() {
		s.worker.submit("disconnect", func() {
			s.transport.Disconnect()
			s.worker.close()
		})
	})
	s.log.Info("session shutdown", "exit_from_shell", exitFromShell)
}
