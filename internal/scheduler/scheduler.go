// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package scheduler runs periodic and one-shot tasks on a single cooperative loop.
//
// Every task body executes on the loop goroutine, one at a time. A periodic
// task is re-armed only after its body returns, so two runs of the same task
// never overlap. Independent tasks interleave in due-time order.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is the subset of Loop used by coordinators.
type Scheduler interface {
	Every(interval time.Duration, fn func()) *Task
	After(delay time.Duration, fn func()) *Task
	Post(fn func())
	Now() time.Time
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Task is a handle to a scheduled function.
type Task struct {
	loop     *Loop
	fn       func()
	due      time.Time
	interval time.Duration
	seq      uint64
	index    int
	canceled bool
}

// Cancel stops the task. It is safe to call from inside the task body,
// from other goroutines, and more than once.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	l := t.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	t.canceled = true
	if t.index >= 0 {
		heap.Remove(&l.tasks, t.index)
	}
}

// Canceled reports whether Cancel was called.
func (t *Task) Canceled() bool {
	if t == nil {
		return true
	}
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	return t.canceled
}

// Loop is a cooperative single-goroutine scheduler.
type Loop struct {
	mu     sync.Mutex
	clock  Clock
	tasks  taskHeap
	seq    uint64
	posted []func()
	wake   chan struct{}
}

// New creates a loop driven by the wall clock.
func New() *Loop {
	return newLoop(realClock{})
}

func newLoop(c Clock) *Loop {
	return &Loop{
		clock: c,
		wake:  make(chan struct{}, 1),
	}
}

// Every schedules fn every interval; the first run happens one interval from now.
func (l *Loop) Every(interval time.Duration, fn func()) *Task {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return l.schedule(interval, interval, fn)
}

// After schedules fn once after delay.
func (l *Loop) After(delay time.Duration, fn func()) *Task {
	return l.schedule(delay, 0, fn)
}

func (l *Loop) schedule(delay, interval time.Duration, fn func()) *Task {
	l.mu.Lock()
	l.seq++
	t := &Task{
		loop:     l,
		fn:       fn,
		due:      l.clock.Now().Add(delay),
		interval: interval,
		seq:      l.seq,
		index:    -1,
	}
	heap.Push(&l.tasks, t)
	l.mu.Unlock()
	l.notify()
	return t
}

// Post queues fn to run on the loop before the next due task.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.notify()
}

// Call runs fn on the loop and waits for it to finish. fn runs if and only
// if Call returns nil: once ctx is done before the loop reaches fn, fn is
// skipped, and once fn has started Call waits for it regardless of ctx.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	var claimed atomic.Bool
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		if ctx.Err() != nil || !claimed.CompareAndSwap(false, true) {
			return
		}
		fn()
	})
	select {
	case <-done:
		if !claimed.Load() {
			return ctx.Err()
		}
		return nil
	case <-ctx.Done():
		if claimed.CompareAndSwap(false, true) {
			return ctx.Err()
		}
		<-done
		return nil
	}
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time { return l.clock.Now() }

// Pending returns the number of armed tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.runPosted()
		l.runDue(l.clock.Now())

		wait := time.Hour
		if due, ok := l.nextDue(); ok {
			wait = due.Sub(l.clock.Now())
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-l.wake:
		}
	}
}

func (l *Loop) runPosted() {
	for {
		l.mu.Lock()
		if len(l.posted) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.posted
		l.posted = nil
		l.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
	}
}

// runDue runs every task due at or before now, in due order.
func (l *Loop) runDue(now time.Time) {
	for {
		t := l.popDue(now)
		if t == nil {
			return
		}
		t.fn()
		l.rearm(t, l.clock.Now())
	}
}

func (l *Loop) popDue(now time.Time) *Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 || l.tasks[0].due.After(now) {
		return nil
	}
	return heap.Pop(&l.tasks).(*Task)
}

func (l *Loop) rearm(t *Task, now time.Time) {
	if t.interval <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.canceled {
		return
	}
	l.seq++
	t.seq = l.seq
	t.due = now.Add(t.interval)
	heap.Push(&l.tasks, t)
}

func (l *Loop) nextDue() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return time.Time{}, false
	}
	return l.tasks[0].due, true
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
