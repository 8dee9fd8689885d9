// Package worker runs pipeline invocations in the background so triggers
// can return immediately.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("worker queue is shut down")

// Task is one background invocation for a subject.
type Task struct {
	Subject string
	Run     func(ctx context.Context) error
}

// Queue executes tasks on a fixed pool of goroutines. At most one task per
// subject is queued or running at any time.
type Queue struct {
	tasks    chan Task
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	progress io.Writer

	mu      sync.Mutex
	active  map[string]bool
	closed  bool
	lastErr map[string]error
}

// NewQueue starts workers goroutines with room for backlog waiting tasks.
func NewQueue(workers, backlog int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if backlog < 0 {
		backlog = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:   make(chan Task, backlog),
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]bool),
		lastErr: make(map[string]error),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.loop()
	}
	return q
}

// SetProgress sets the writer for progress output.
func (q *Queue) SetProgress(w io.Writer) {
	q.progress = w
}

func (q *Queue) logf(format string, args ...interface{}) {
	if q.progress != nil {
		fmt.Fprintf(q.progress, "→ "+format+"\n", args...)
	}
}

// Submit enqueues t. accepted is false, without error, when a task for the
// same subject is already queued or running. A full backlog is an error.
func (q *Queue) Submit(t Task) (accepted bool, err error) {
	if t.Subject == "" || t.Run == nil {
		return false, errors.New("task needs a subject and a run func")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrClosed
	}
	if q.active[t.Subject] {
		return false, nil
	}
	select {
	case q.tasks <- t:
		q.active[t.Subject] = true
		return true, nil
	default:
		return false, fmt.Errorf("worker queue full, %s not queued", t.Subject)
	}
}

// Busy reports whether a task for subject is queued or running.
func (q *Queue) Busy(subject string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active[subject]
}

// LastError returns the error of the most recent finished task for subject.
func (q *Queue) LastError(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr[subject]
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(t)
	}
}

func (q *Queue) run(t Task) {
	defer func() {
		r := recover()
		q.mu.Lock()
		delete(q.active, t.Subject)
		if r != nil {
			q.lastErr[t.Subject] = fmt.Errorf("panic: %v", r)
		}
		q.mu.Unlock()
		if r != nil {
			q.logf("%s panicked: %v", t.Subject, r)
		}
	}()

	q.logf("%s started", t.Subject)
	err := t.Run(q.ctx)
	q.mu.Lock()
	q.lastErr[t.Subject] = err
	q.mu.Unlock()
	if err != nil {
		q.logf("%s failed: %v", t.Subject, err)
		return
	}
	q.logf("%s finished", t.Subject)
}

// Shutdown stops accepting tasks and waits for queued and running ones. If
// ctx ends first, running tasks are cancelled so they can pause cleanly,
// and Shutdown still waits for them to return.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
