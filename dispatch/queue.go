// Package dispatch provides the serial execution contexts the engine runs on.
//
// A Queue runs closures one at a time, in submission order, on a single
// goroutine. The pool owns one Queue as its worker context, where every
// mutation of pool, connection and session state happens, and by default a
// second one as the completion context, where caller callbacks run.
package dispatch

import "sync"

// Executor runs closures asynchronously. Implementations must never run fn
// on the calling goroutine before Async returns.
type Executor interface {
	Async(fn func())
}

// Queue is an unbounded serial executor.
type Queue struct {
	name string

	mu      sync.Mutex
	tasks   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewQueue starts a queue goroutine. name is only used for diagnostics.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Name returns the diagnostic name given to NewQueue.
func (q *Queue) Name() string { return q.name }

// Async enqueues fn and returns immediately. Tasks submitted after Stop are dropped.
func (q *Queue) Async(fn func()) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Sync runs fn on the queue and waits for it to finish. It reports false if
// the queue was already stopped and fn did not run. Sync must not be called
// from a task running on the same queue.
func (q *Queue) Sync(fn func()) bool {
	ran := make(chan struct{})
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, func() {
		defer close(ran)
		fn()
	})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-ran
	return true
}

// Stop rejects new tasks, lets already queued tasks finish, and waits for
// the queue goroutine to exit. Stop is idempotent; it must not be called
// from a task running on the same queue.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		stopped := q.stopped
		q.mu.Unlock()

		for _, task := range tasks {
			task()
		}

		if len(tasks) > 0 {
			continue
		}
		if stopped {
			return
		}
		<-q.wake
	}
}
