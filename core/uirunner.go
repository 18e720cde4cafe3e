package core

import (
	"sync"

	"pkt.systems/pslog"
)

type uiJob struct {
	fn   func()
	done chan struct{}
}

// UIRunner models the UI-affinity thread: a single goroutine that owns all
// display writes and UI-observable state notifications. Sync is the
// bounded rendezvous the pump loop's output consumer blocks on; it is the
// backpressure mechanism that keeps the transport from outrunning the
// renderer.
type UIRunner struct {
	mu     sync.Mutex
	jobs   chan uiJob
	closed bool
	done   chan struct{}
	log    pslog.Logger
}

// NewUIRunner starts the UI goroutine.
func NewUIRunner(log pslog.Logger) *UIRunner {
	// Capacity 1: a producer can stage at most one job ahead of the one
	// being processed.
	r := &UIRunner{
		jobs: make(chan uiJob, 1),
		done: make(chan struct{}),
		log:  log,
	}
	go r.run()
	return r
}

func (r *UIRunner) run() {
	for job := range r.jobs {
		job.fn()
		if job.done != nil {
			close(job.done)
		}
	}
	close(r.done)
}

func (r *UIRunner) enqueue(job uiJob) bool {
	// The mutex is held across the send so Close cannot close the channel
	// under a staged producer. Sends may block until the runner catches
	// up; that is the point.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		if r.log != nil {
			r.log.Debug("ui job dropped", "reason", "closed")
		}
		return false
	}
	r.jobs <- job
	return true
}

// Async enqueues fn on the UI goroutine and returns immediately once the
// job is staged.
func (r *UIRunner) Async(fn func()) {
	r.enqueue(uiJob{fn: fn})
}

// Sync enqueues fn with a completion marker and blocks the caller until
// the UI goroutine has run it.
func (r *UIRunner) Sync(fn func()) {
	done := make(chan struct{})
	if !r.enqueue(uiJob{fn: fn, done: done}) {
		return
	}
	<-done
}

// Close stops the runner after queued jobs drain.
func (r *UIRunner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()
	<-r.done
}
