package core

import (
	"sync"

	"pkt.systems/remsh/schema"
)

// sizeNegotiator tracks requested terminal geometry. Set stores the new
// size and asks the transport to re-read it; Current applies the floor so
// no degenerate size is ever handed to the transport.
type sizeNegotiator struct {
	mu   sync.Mutex
	size schema.TerminalSize

	// pickup signals the transport that geometry should be re-read.
	pickup func()
}

func newSizeNegotiator(pickup func()) *sizeNegotiator {
	return &sizeNegotiator{pickup: pickup}
}

// Set stores the requested geometry and requests a pickup.
func (n *sizeNegotiator) Set(size schema.TerminalSize) {
	n.mu.Lock()
	n.size = size
	n.mu.Unlock()
	if n.pickup != nil {
		n.pickup()
	}
}

// Current returns the last stored size, substituting the default when
// either dimension is below the floor.
func (n *sizeNegotiator) Current() schema.TerminalSize {
	n.mu.Lock()
	size := n.size
	n.mu.Unlock()
	if size.BelowFloor() {
		return schema.DefaultTerminalSize
	}
	return size
}
