package core

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/remsh/schema"
)

// Registry tracks live sessions by id. Display callbacks carry a session
// id instead of a session reference; dispatch looks up liveness here, so
// a surface can never keep a released session alive or reach a dead one.
type Registry struct {
	mu       sync.Mutex
	sessions map[schema.SessionID]*Session
	log      pslog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(log pslog.Logger) *Registry {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Registry{
		sessions: make(map[schema.SessionID]*Session),
		log:      log,
	}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
}

func (r *Registry) remove(id schema.SessionID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) lookup(id schema.SessionID) *Session {
	r.mu.Lock()
	s := r.sessions[id]
	r.mu.Unlock()
	if s == nil {
		r.log.Debug("registry dispatch dropped", "session", id)
	}
	return s
}

// Session returns the live session for id, if any.
func (r *Registry) Session(id schema.SessionID) (*Session, bool) {
	r.mu.Lock()
	s := r.sessions[id]
	r.mu.Unlock()
	return s, s != nil
}

// DispatchInput forwards input text to the session's outbound buffer.
func (r *Registry) DispatchInput(id schema.SessionID, text string) {
	if s := r.lookup(id); s != nil {
		s.handleInput(text)
	}
}

// DispatchResize forwards a terminal geometry change.
func (r *Registry) DispatchResize(id schema.SessionID, size schema.TerminalSize) {
	if s := r.lookup(id); s != nil {
		s.handleResize(size)
	}
}

// DispatchTitle forwards a remote title change.
func (r *Registry) DispatchTitle(id schema.SessionID, title string) {
	if s := r.lookup(id); s != nil {
		s.handleTitle(title)
	}
}

// DispatchBell forwards a bell event.
func (r *Registry) DispatchBell(id schema.SessionID) {
	if s := r.lookup(id); s != nil {
		s.handleBell()
	}
}

// DispatchClose asks the session to stop; the pump loop observes the
// flipped continuation flag on its next iteration.
func (r *Registry) DispatchClose(id schema.SessionID) {
	if s := r.lookup(id); s != nil {
		s.RequestClose()
	}
}
