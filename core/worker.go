package core

import (
	"sync"

	"pkt.systems/pslog"
)

// workerQueueDepth bounds pending jobs. Pickup notifications are
// coalescable, so dropping on overflow loses nothing durable.
const workerQueueDepth = 32

type workerJob struct {
	name string
	fn   func()
}

// worker is the session's background pool. Bootstrap, shutdown,
// disconnect requests and pickup notifications run here as discrete named
// jobs. Two goroutines share the queue: bootstrap occupies one for the
// whole pump, the other keeps pickup and disconnect jobs flowing.
type worker struct {
	mu     sync.Mutex
	jobs   chan workerJob
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
	log    pslog.Logger
}

const workerPoolSize = 2

func newWorker(log pslog.Logger) *worker {
	w := &worker{
		jobs: make(chan workerJob, workerQueueDepth),
		done: make(chan struct{}),
		log:  log,
	}
	w.wg.Add(workerPoolSize)
	for range workerPoolSize {
		go w.run()
	}
	go func() {
		w.wg.Wait()
		close(w.done)
	}()
	return w
}

func (w *worker) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		if w.log != nil {
			w.log.Debug("worker job start", "job", job.name)
		}
		job.fn()
		if w.log != nil {
			w.log.Debug("worker job done", "job", job.name)
		}
	}
}

// submit enqueues a job. Jobs submitted after close, or while the queue is
// full, are dropped.
func (w *worker) submit(name string, fn func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		if w.log != nil {
			w.log.Debug("worker job dropped", "job", name, "reason", "closed")
		}
		return false
	}
	select {
	case w.jobs <- workerJob{name: name, fn: fn}:
		return true
	default:
		if w.log != nil {
			w.log.Warn("worker job dropped", "job", name, "reason", "queue full")
		}
		return false
	}
}

// close stops accepting jobs. Already queued jobs still run; close does
// not wait for them. Safe to call from inside a job.
func (w *worker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.jobs)
}

// wait blocks until the run loop has drained and exited.
func (w *worker) wait() {
	<-w.done
}
