package core

import (
	"testing"

	"pkt.systems/remsh/schema"
)

func TestSizeNegotiatorReturnsStoredSize(t *testing.T) {
	n := newSizeNegotiator(nil)
	n.Set(schema.TerminalSize{Width: 120, Height: 50})
	if got := n.Current(); got.Width != 120 || got.Height != 50 {
		t.Fatalf("unexpected size: %+v", got)
	}
}

func TestSizeNegotiatorSubstitutesDefaultBelowFloor(t *testing.T) {
	n := newSizeNegotiator(nil)
	for _, size := range []schema.TerminalSize{
		{},
		{Width: 7, Height: 50},
		{Width: 120, Height: 7},
		{Width: -1, Height: -1},
	} {
		n.Set(size)
		if got := n.Current(); got != schema.DefaultTerminalSize {
			t.Fatalf("expected default for %+v, got %+v", size, got)
		}
	}
}

func TestSizeNegotiatorFloorBoundary(t *testing.T) {
	n := newSizeNegotiator(nil)
	n.Set(schema.TerminalSize{Width: 8, Height: 8})
	if got := n.Current(); got.Width != 8 || got.Height != 8 {
		t.Fatalf("expected 8x8 to pass the floor, got %+v", got)
	}
}

func TestSizeNegotiatorRequestsPickup(t *testing.T) {
	pickups := 0
	n := newSizeNegotiator(func() { pickups++ })
	n.Set(schema.TerminalSize{Width: 100, Height: 30})
	n.Set(schema.TerminalSize{Width: 90, Height: 30})
	if pickups != 2 {
		t.Fatalf("expected a pickup per set, got %d", pickups)
	}
}
