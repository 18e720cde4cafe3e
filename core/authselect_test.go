package core

import (
	"errors"
	"sync"
	"testing"

	"pkt.systems/remsh/schema"
)

type diagRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (d *diagRecorder) add(line string) {
	d.mu.Lock()
	d.lines = append(d.lines, line)
	d.mu.Unlock()
}

func (d *diagRecorder) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

func TestAuthSelectorExplicitSuccess(t *testing.T) {
	store := newFakeStore()
	store.identities["id-1"] = schema.IdentityRecord{
		ID:       "id-1",
		Username: "alice",
		Password: "secret",
	}
	tr := &fakeTransport{connected: true}
	var diag diagRecorder
	sel := newAuthSelector(store, nil)

	err := sel.Authenticate(tr, schema.MachineRecord{IdentityID: "id-1"}, diag.add)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, attempts := tr.stats()
	if len(attempts) != 1 || attempts[0] != "alice" {
		t.Fatalf("expected one attempt for alice, got %v", attempts)
	}
	lines := diag.all()
	if len(lines) != 1 || lines[0] != "Trying identity alice..." {
		t.Fatalf("unexpected diagnostics: %v", lines)
	}
}

func TestAuthSelectorExplicitMissingIdentity(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTransport{connected: true}
	var diag diagRecorder
	sel := newAuthSelector(store, nil)

	err := sel.Authenticate(tr, schema.MachineRecord{IdentityID: "gone"}, diag.add)
	if !errors.Is(err, schema.ErrMalformedMachineRecord) {
		t.Fatalf("expected ErrMalformedMachineRecord, got %v", err)
	}
	if _, _, attempts := tr.stats(); len(attempts) != 0 {
		t.Fatalf("expected no attempts, got %v", attempts)
	}
	lines := diag.all()
	if len(lines) != 1 || lines[0] != "Malformed machine record: associated identity not found." {
		t.Fatalf("unexpected diagnostics: %v", lines)
	}
}

func TestAuthSelectorExplicitEmptyUsername(t *testing.T) {
	store := newFakeStore()
	store.identities["id-1"] = schema.IdentityRecord{ID: "id-1", Username: "   "}
	tr := &fakeTransport{connected: true}
	var diag diagRecorder
	sel := newAuthSelector(store, nil)

	err := sel.Authenticate(tr, schema.MachineRecord{IdentityID: "id-1"}, diag.add)
	if !errors.Is(err, schema.ErrMalformedIdentityRecord) {
		t.Fatalf("expected ErrMalformedIdentityRecord, got %v", err)
	}
	if _, _, attempts := tr.stats(); len(attempts) != 0 {
		t.Fatalf("expected no attempts, got %v", attempts)
	}
	lines := diag.all()
	if len(lines) != 1 || lines[0] != "Malformed identity record: empty username." {
		t.Fatalf("unexpected diagnostics: %v", lines)
	}
}

func TestAuthSelectorExplicitNoFallbackToAuto(t *testing.T) {
	store := newFakeStore()
	store.identities["id-1"] = schema.IdentityRecord{ID: "id-1", Username: "alice", Password: "bad"}
	store.candidates = []schema.IdentityRecord{
		{ID: "id-2", Username: "bob", Password: "good"},
	}
	tr := &fakeTransport{connected: true, authFn: func(schema.IdentityRecord) error {
		return errors.New("permission denied")
	}}
	sel := newAuthSelector(store, nil)

	err := sel.Authenticate(tr, schema.MachineRecord{IdentityID: "id-1"}, func(string) {})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if _, _, attempts := tr.stats(); len(attempts) != 1 {
		t.Fatalf("expected the explicit attempt only, got %v", attempts)
	}
}

func TestAuthSelectorAutoSameUsernameSkipsReconnect(t *testing.T) {
	store := newFakeStore()
	store.candidates = []schema.IdentityRecord{
		{ID: "id-1", Username: "ops", Password: "wrong"},
		{ID: "id-2", Username: "ops", PrivateKeyPEM: "key"},
	}
	tr := &fakeTransport{authFn: func(identity schema.IdentityRecord) error {
		if identity.ID == "id-1" {
			return errors.New("permission denied")
		}
		return nil
	}}
	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sel := newAuthSelector(store, nil)

	if err := sel.Authenticate(tr, schema.MachineRecord{}, func(string) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	connects, disconnects, attempts := tr.stats()
	if len(attempts) != 2 {
		t.Fatalf("expected two attempts, got %v", attempts)
	}
	if disconnects != 0 || connects != 1 {
		t.Fatalf("expected no reconnect between same-username attempts, got connects=%d disconnects=%d", connects, disconnects)
	}
}

func TestAuthSelectorAutoReconnectsOnUsernameChange(t *testing.T) {
	store := newFakeStore()
	store.candidates = []schema.IdentityRecord{
		{ID: "id-1", Username: "alice", Password: "wrong"},
		{ID: "id-2", Username: "bob", Password: "right"},
	}
	tr := &fakeTransport{authFn: func(identity schema.IdentityRecord) error {
		if identity.Username == "alice" {
			return errors.New("permission denied")
		}
		return nil
	}}
	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sel := newAuthSelector(store, nil)

	if err := sel.Authenticate(tr, schema.MachineRecord{}, func(string) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	connects, disconnects, attempts := tr.stats()
	if len(attempts) != 2 {
		t.Fatalf("expected two attempts, got %v", attempts)
	}
	if disconnects != 1 || connects != 2 {
		t.Fatalf("expected one disconnect+reconnect cycle, got connects=%d disconnects=%d", connects, disconnects)
	}
}

func TestAuthSelectorAutoExhaustedFails(t *testing.T) {
	store := newFakeStore()
	store.candidates = []schema.IdentityRecord{
		{ID: "id-1", Username: "alice", Password: "wrong"},
		{ID: "id-2", Username: "bob", Password: "wrong"},
	}
	tr := &fakeTransport{authFn: func(schema.IdentityRecord) error {
		return errors.New("permission denied")
	}}
	if err := tr.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	var diag diagRecorder
	sel := newAuthSelector(store, nil)

	err := sel.Authenticate(tr, schema.MachineRecord{}, diag.add)
	if !errors.Is(err, schema.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if lines := diag.all(); len(lines) != 2 {
		t.Fatalf("expected one diagnostic per candidate, got %v", lines)
	}
}

func TestAuthSelectorAutoNoCandidatesFails(t *testing.T) {
	store := newFakeStore()
	tr := &fakeTransport{connected: true}
	sel := newAuthSelector(store, nil)

	err := sel.Authenticate(tr, schema.MachineRecord{}, func(string) {})
	if !errors.Is(err, schema.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if _, _, attempts := tr.stats(); len(attempts) != 0 {
		t.Fatalf("expected no attempts, got %v", attempts)
	}
}
