package core

import "sync"

// outboundBuffer is the session's write queue to the transport: one
// mutex-guarded string shared between input producers and the pump loop.
// Reads are destructive; Drain returns everything accumulated and clears
// it atomically.
type outboundBuffer struct {
	mu   sync.Mutex
	data string

	// closed gates inserts; once it reports true, inserts are silent
	// no-ops and the data is dropped, not queued.
	closed func() bool
	// notify schedules an async pickup request. Never invoked under mu.
	notify func()
}

func newOutboundBuffer(closed func() bool, notify func()) *outboundBuffer {
	return &outboundBuffer{closed: closed, notify: notify}
}

// Insert appends text to the buffer and requests a transport pickup.
func (b *outboundBuffer) Insert(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	if b.closed != nil && b.closed() {
		b.mu.Unlock()
		return
	}
	b.data += text
	b.mu.Unlock()
	if b.notify != nil {
		b.notify()
	}
}

// Drain returns the accumulated content and resets the buffer.
func (b *outboundBuffer) Drain() string {
	b.mu.Lock()
	out := b.data
	b.data = ""
	b.mu.Unlock()
	return out
}
