package core

import (
	"context"
	"testing"

	"pkt.systems/remsh/schema"
)

func TestRegistryDispatchUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	r.DispatchInput("ghost", "data")
	r.DispatchResize("ghost", schema.TerminalSize{Width: 80, Height: 24})
	r.DispatchTitle("ghost", "title")
	r.DispatchBell("ghost")
	r.DispatchClose("ghost")
	if _, ok := r.Session("ghost"); ok {
		t.Fatalf("expected no session for unknown id")
	}
}

func TestRegistryDispatchReachesSession(t *testing.T) {
	fx := newSessionFixture(t, &fakeTransport{})
	machine := testMachine
	machine.IdentityID = "id-1"
	fx.addMachine(machine)
	fx.store.identities["id-1"] = schema.IdentityRecord{ID: "id-1", Username: "alice", Password: "x"}

	s, err := fx.manager.CreateForMachine(context.Background(), machine.ID)
	if err != nil {
		t.Fatalf("CreateForMachine: %v", err)
	}
	registry := fx.manager.Registry()
	if got, ok := registry.Session(s.ID()); !ok || got != s {
		t.Fatalf("expected registry lookup to return the live session")
	}
	waitFor(t, "pump running", fx.transport.IsAuthenticated)

	registry.DispatchInput(s.ID(), "ls\n")
	if got := s.outbuf.Drain(); got != "ls\n" {
		t.Fatalf("expected dispatched input in the outbound buffer, got %q", got)
	}

	registry.DispatchClose(s.ID())
	fx.sink.wait(t)
	if _, ok := registry.Session(s.ID()); !ok {
		t.Fatalf("closed sessions stay registered until released")
	}
	s.Release()
	if _, ok := registry.Session(s.ID()); ok {
		t.Fatalf("expected session gone after release")
	}
}
