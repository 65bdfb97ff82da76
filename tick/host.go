// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package tick

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCancelled is returned by Task.Wait when the task is destroyed while
// blocked (the host-level analogue of spec.md's TASK_CANCELLED).
var ErrCancelled = errors.New("tick: task cancelled")

// A Task is the host-level handle for a spawned goroutine: spec.md §4.1's
// spawn_host_task/set_priority/verify/destroy plus the wait-for-any event
// primitive (eventReceive/eventSend) that package synctask's rendezvous is
// built on. It carries no scheduling behavior of its own — priority is
// metadata consulted by synctask for priority inheritance, and nothing in
// this package preempts based on it, same division of labor as the VxWorks
// original (its scheduler, not this library, does the preempting).
type Task struct {
	name     string
	priority int32 // atomic, spec.md user range [101,255], lower = more privileged
	stack    uint32

	alive   int32 // atomic bool: goroutine still running
	killed  int32 // atomic bool: Destroy() was called
	killCh  chan struct{}
	killOne sync.Once

	events uint32 // atomic pending event bitmask
	wake   chan struct{}

	suspendCh chan struct{} // resume signal, buffered 1

	done chan struct{} // closed when the body returns
}

// Spawn starts name's body in a new goroutine and returns its Task handle.
// stackBytes is recorded for attribute fidelity (spec.md's TaskAttr.
// stack_bytes) but otherwise unused: Go goroutines grow their own stacks.
func (c *Clock) Spawn(name string, priority int, stackBytes uint32, body func(h *Task)) *Task {
	t := &Task{
		name:      name,
		stack:     stackBytes,
		alive:     1,
		killCh:    make(chan struct{}),
		wake:      make(chan struct{}, 1),
		suspendCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	atomic.StoreInt32(&t.priority, int32(priority))

	c.tasksLock.Lock()
	c.tasks[t] = struct{}{}
	c.tasksLock.Unlock()

	go func() {
		defer func() {
			atomic.StoreInt32(&t.alive, 0)
			close(t.done)
			c.tasksLock.Lock()
			delete(c.tasks, t)
			c.tasksLock.Unlock()
		}()
		body(t)
	}()
	return t
}

// Name returns the task's name, as given at Spawn time.
func (t *Task) Name() string { return t.name }

// SetPriority changes the task's host-level priority (lower numeric value
// is more privileged, per spec.md §3).
func (t *Task) SetPriority(p int) { atomic.StoreInt32(&t.priority, int32(p)) }

// Priority returns the task's current host-level priority.
func (t *Task) Priority() int { return int(atomic.LoadInt32(&t.priority)) }

// Verify reports whether the task's goroutine is still running and has
// not been destroyed (taskIdVerify in the original).
func (t *Task) Verify() bool {
	return atomic.LoadInt32(&t.alive) != 0 && atomic.LoadInt32(&t.killed) == 0
}

// Destroy forces any pending Wait on this task to return ErrCancelled and
// marks the task dead. Go cannot forcibly kill a goroutine the way
// taskDelete() kills a VxWorks task, so destruction is cooperative at this
// library's own suspension points — which, per spec.md §5, are the only
// suspension points a task body written against this library ever has.
func (t *Task) Destroy() {
	atomic.StoreInt32(&t.killed, 1)
	t.killOne.Do(func() { close(t.killCh) })
}

// Post delivers mask into the task's pending event bitmask and wakes a
// blocked Wait, if any. Safe to call from an Alarm's handler (spec.md §5:
// "callbacks ... may only post an event to a task").
func (t *Task) Post(mask uint32) {
	for {
		cur := atomic.LoadUint32(&t.events)
		if atomic.CompareAndSwapUint32(&t.events, cur, cur|mask) {
			break
		}
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until any bit in mask has been posted (wait-for-any, no
// timeout — spec.md §4.4.1 step 5) or the task is destroyed. On success it
// returns the full pending event bitmask (cleared on receipt, matching
// VxWorks eventReceive semantics) and nil.
func (t *Task) Wait(mask uint32) (uint32, error) {
	for {
		if atomic.LoadInt32(&t.killed) != 0 {
			return 0, ErrCancelled
		}
		cur := atomic.LoadUint32(&t.events)
		if cur&mask != 0 {
			atomic.StoreUint32(&t.events, 0)
			return cur, nil
		}
		select {
		case <-t.wake:
		case <-t.killCh:
		}
	}
}

// Suspend blocks the calling goroutine until Resume is called on this task
// or the task is destroyed (task_suspend's host primitive, spec.md §6).
func (t *Task) Suspend() error {
	select {
	case <-t.suspendCh:
		return nil
	case <-t.killCh:
		return ErrCancelled
	}
}

// Resume wakes a task blocked in Suspend (task_resume). A Resume with no
// pending Suspend is remembered for the next call, same one-shot-pending
// semantics as Post/Wait.
func (t *Task) Resume() {
	select {
	case t.suspendCh <- struct{}{}:
	default:
	}
}
