package core

import (
	"strings"
	"sync"
	"time"

	"pkt.systems/remsh/schema"
)

// fakeTransport scripts connect/authenticate outcomes and records calls.
type fakeTransport struct {
	mu            sync.Mutex
	host          string
	port          int
	timeout       time.Duration
	connectErr    error
	connected     bool
	authenticated bool
	lastErr       error
	banner        string
	connects      int
	disconnects   int
	attempts      []string
	pickups       int

	// authFn decides each Authenticate call; nil means always succeed.
	authFn func(identity schema.IdentityRecord) error
	// runFn overrides the default pump, which spins until the
	// continuation predicate goes false.
	runFn func(hooks InteractiveHooks) error
}

func (t *fakeTransport) Configure(host string, port int, timeout time.Duration) {
	t.mu.Lock()
	t.host = host
	t.port = port
	t.timeout = timeout
	t.mu.Unlock()
}

func (t *fakeTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.connectErr != nil {
		t.lastErr = t.connectErr
		t.connected = false
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	t.disconnects++
	t.connected = false
	t.authenticated = false
	t.mu.Unlock()
}

func (t *fakeTransport) Authenticate(identity schema.IdentityRecord) error {
	t.mu.Lock()
	t.attempts = append(t.attempts, identity.Username)
	authFn := t.authFn
	t.mu.Unlock()
	if authFn != nil {
		if err := authFn(identity); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.authenticated = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) IsAuthenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authenticated
}

func (t *fakeTransport) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *fakeTransport) RemoteBanner() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.banner
}

func (t *fakeTransport) RequestPickup() {
	t.mu.Lock()
	t.pickups++
	t.mu.Unlock()
}

func (t *fakeTransport) RunInteractiveSession(hooks InteractiveHooks) error {
	t.mu.Lock()
	runFn := t.runFn
	t.mu.Unlock()
	if runFn != nil {
		return runFn(hooks)
	}
	if hooks.OnOpen != nil {
		hooks.OnOpen()
	}
	for hooks.Continue() {
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (t *fakeTransport) configuredTimeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

func (t *fakeTransport) stats() (connects, disconnects int, attempts []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects, t.disconnects, append([]string(nil), t.attempts...)
}

type fakeProvider struct {
	transport *fakeTransport
}

func (p *fakeProvider) New() Transport { return p.transport }

// fakeStore serves records from maps and records banner write-backs.
type fakeStore struct {
	mu         sync.Mutex
	machines   map[schema.MachineID]schema.MachineRecord
	identities map[schema.IdentityID]schema.IdentityRecord
	candidates []schema.IdentityRecord
	banners    map[schema.MachineID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		machines:   make(map[schema.MachineID]schema.MachineRecord),
		identities: make(map[schema.IdentityID]schema.IdentityRecord),
		banners:    make(map[schema.MachineID]string),
	}
}

func (s *fakeStore) Machine(id schema.MachineID) (schema.MachineRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	return m, ok
}

func (s *fakeStore) Identity(id schema.IdentityID) (schema.IdentityRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.identities[id]
	return rec, ok
}

func (s *fakeStore) AutoAuthCandidates() []schema.IdentityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.IdentityRecord(nil), s.candidates...)
}

func (s *fakeStore) ConnectTimeout() time.Duration { return time.Second }

func (s *fakeStore) SetLastBanner(id schema.MachineID, banner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banners[id] = banner
	return nil
}

func (s *fakeStore) bannerFor(id schema.MachineID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banners[id]
}

// recordSurface accumulates everything written to the display.
type recordSurface struct {
	mu   sync.Mutex
	text strings.Builder
}

func (r *recordSurface) Write(text string) {
	r.mu.Lock()
	r.text.WriteString(text)
	r.mu.Unlock()
}

func (r *recordSurface) contents() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.String()
}

// closeSink signals once a session that came up has closed again.
type closeSink struct {
	mu      sync.Mutex
	sawOpen bool
	fired   bool
	done    chan struct{}
}

func newCloseSink() *closeSink {
	return &closeSink{done: make(chan struct{})}
}

func (s *closeSink) OnSessionChanged(event schema.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return
	}
	if !event.Closed {
		s.sawOpen = true
		return
	}
	if s.sawOpen {
		s.fired = true
		close(s.done)
	}
}

func (s *closeSink) wait(t interface{ Fatalf(string, ...any) }) {
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for session to close")
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t interface{ Fatalf(string, ...any) }, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
