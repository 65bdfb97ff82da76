// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package synctask

import (
	"time"

	"github.com/retislab/ptask/tick"
)

// TaskContext is handed to a task's body at spawn time: the explicit
// "who am I, in which registry" context that task_self()/task_get() would
// otherwise recover via a global lookup. Using an explicit context instead
// of hidden per-goroutine state is this module's one divergence from the
// original task_self() call shape (spec.md §9 favors explicit handles).
type TaskContext struct {
	reg  *Registry
	self TaskHandle
	host *tick.Task
}

// Self is task_self(): the handle of the task currently executing.
func (tc *TaskContext) Self() TaskHandle { return tc.self }

// Registry returns the registry this context was created against.
func (tc *TaskContext) Registry() *Registry { return tc.reg }

// TaskBody is the entry point of a task spawned by TaskCreate.
type TaskBody func(tc *TaskContext, arg int)

// TaskBodyMulti is the entry point of a task spawned by TaskCreateMulti
// (spec.md §6 task_create_multi, up to 11 integer arguments).
type TaskBodyMulti func(tc *TaskContext, args [11]int)

// TaskCreate allocates a registry slot and spawns a host task running
// body(tc, argInt) (spec.md §3 Lifecycle, §6 task_create). The host task is
// started before the registry slot exists; body only begins running once
// the slot has been installed and a TaskContext handed to it, so body never
// observes a registry in which its own handle is not yet valid.
func (r *Registry) TaskCreate(name string, attr *TaskAttr, body TaskBody, argInt int) (TaskHandle, error) {
	ready := make(chan *TaskContext, 1)
	host := r.clock.Spawn(name, int(attr.BasePriority), attr.StackBytes, func(*tick.Task) {
		tc := <-ready
		body(tc, argInt)
	})

	r.mu.Lock()
	handle, err := r.add(host, attr, name)
	r.mu.Unlock()
	if err != nil {
		host.Destroy()
		return InvalidHandle, err
	}
	ready <- &TaskContext{reg: r, self: handle, host: host}
	return handle, nil
}

// TaskCreateMulti is TaskCreate with up to 11 integer arguments (spec.md §6
// task_create_multi).
func (r *Registry) TaskCreateMulti(name string, attr *TaskAttr, body TaskBodyMulti, args [11]int) (TaskHandle, error) {
	ready := make(chan *TaskContext, 1)
	host := r.clock.Spawn(name, int(attr.BasePriority), attr.StackBytes, func(*tick.Task) {
		tc := <-ready
		body(tc, args)
	})

	r.mu.Lock()
	handle, err := r.add(host, attr, name)
	r.mu.Unlock()
	if err != nil {
		host.Destroy()
		return InvalidHandle, err
	}
	ready <- &TaskContext{reg: r, self: handle, host: host}
	return handle, nil
}

// WaitFor is wait_for(target, event_mask, flags) (spec.md §4.4.1).
func (r *Registry) WaitFor(tc *TaskContext, target TaskHandle, mask uint32, flags Flags) error {
	r.mu.Lock()
	if !r.validLocked(target) || !r.slots[target].hostTask.Verify() {
		r.mu.Unlock()
		return ErrTaskCancelled
	}
	tgt := &r.slots[target]
	waiterAttr := r.slots[tc.self].attr

	if err := tgt.listeners.add(tc.self, waiterAttr.DynPriority, mask); err != nil {
		r.mu.Unlock()
		if err == ErrListeningTaskPresent {
			// step 2: "Present is reported as Fault" -- must not occur
			// under correct usage.
			log.BUG("wait_for: %d already listed on %d\n", tc.self, target)
			return ErrSyncFault
		}
		return err
	}

	if flags&InversionSafe != 0 {
		if hp, ok := tgt.listeners.headPrio(); ok && tgt.attr.DynPriority > hp {
			tgt.attr.DynPriority = hp
			tgt.hostTask.SetPriority(int(hp))
		}
	}
	r.slots[tc.self].waiting = true
	r.mu.Unlock()

	_, werr := tc.host.Wait(mask)

	r.mu.Lock()
	if r.validLocked(tc.self) {
		r.slots[tc.self].waiting = false
	}
	// A wake that did not come through SignalThat (an alarm's direct Post)
	// leaves this waiter listed on target; drop it so the next wait can
	// enqueue again.
	if r.validLocked(target) {
		r.slots[target].listeners.remove(tc.self)
	}
	r.mu.Unlock()

	if werr != nil {
		return ErrTaskCancelled
	}
	return nil
}

// SignalThat is signal_that(target, event_mask, flags) (spec.md §4.4.2).
func (r *Registry) SignalThat(target TaskHandle, mask uint32, flags Flags) error {
	r.mu.Lock()
	if !r.validLocked(target) || !r.slots[target].hostTask.Verify() {
		r.mu.Unlock()
		return ErrTaskCancelled
	}
	tgt := &r.slots[target]

	var deliverErr error
	tgt.listeners.forEachArrivalSafe(func(idx int) bool {
		e := &tgt.listeners.entries[idx]
		if e.eventMask&mask == 0 {
			return true
		}
		waiter := e.waiter
		if !r.validLocked(waiter) {
			deliverErr = ErrHostError
			return false
		}
		r.slots[waiter].hostTask.Post(e.eventMask & mask)
		tgt.listeners.remove(waiter)
		return true
	})
	if deliverErr != nil {
		r.mu.Unlock()
		return deliverErr
	}

	if flags&InversionSafe != 0 {
		if tgt.listeners.count() == 0 {
			tgt.attr.DynPriority = tgt.attr.BasePriority
			tgt.hostTask.SetPriority(int(tgt.attr.BasePriority))
		} else if hp, ok := tgt.listeners.headPrio(); ok && tgt.attr.DynPriority > hp {
			tgt.attr.DynPriority = hp
			tgt.hostTask.SetPriority(int(hp))
		}
	}
	r.mu.Unlock()
	return nil
}

// TaskWait is task_wait(target, mask, flags) = wait_for(target, mask, flags).
func (r *Registry) TaskWait(tc *TaskContext, target TaskHandle, mask uint32, flags Flags) error {
	return r.WaitFor(tc, target, mask, flags)
}

// TaskSignal is task_signal(mask, flags) = signal_that(self, mask, flags).
func (r *Registry) TaskSignal(tc *TaskContext, mask uint32, flags Flags) error {
	return r.SignalThat(tc.self, mask, flags)
}

// TaskJoin is task_join(target) = wait_for(target, CANCELLED, ~INVERSION_SAFE).
func (r *Registry) TaskJoin(tc *TaskContext, target TaskHandle) error {
	return r.WaitFor(tc, target, EvCancelled, 0)
}

// TaskCancel is task_cancel(target) (spec.md §4.4.4). It resolves both
// open questions in spec.md §9: waiting is read, and the listener list
// snapshotted, before the slot is invalidated.
func (r *Registry) TaskCancel(target TaskHandle) error {
	if target < 0 || int(target) >= MaxTasks {
		return ErrTaskCancelled
	}
	r.mu.Lock()
	s := &r.slots[target]
	hostAlive := s.hostTask != nil && s.hostTask.Verify()

	if !s.valid {
		r.mu.Unlock()
		if hostAlive {
			s.hostTask.Destroy()
			return ErrSyncFault
		}
		return ErrTaskCancelled
	}

	if s.waiting {
		r.mu.Unlock()
		return ErrWaiting
	}

	type pending struct {
		waiter TaskHandle
		mask   uint32
	}
	var toSignal []pending
	s.listeners.forEachArrivalSafe(func(idx int) bool {
		e := &s.listeners.entries[idx]
		if e.eventMask&EvCancelled != 0 {
			toSignal = append(toSignal, pending{e.waiter, e.eventMask & EvCancelled})
		}
		return true
	})

	if err := r.remove(target); err != nil {
		r.mu.Unlock()
		return ErrHostError
	}

	if !hostAlive {
		r.mu.Unlock()
		return ErrSyncFault
	}

	for _, p := range toSignal {
		if r.validLocked(p.waiter) {
			r.slots[p.waiter].hostTask.Post(p.mask)
		}
		s.listeners.remove(p.waiter)
	}
	r.mu.Unlock()

	s.hostTask.Destroy()
	return nil
}

// TaskExit is task_exit() = task_cancel(self) (spec.md §3 Lifecycle). The
// calling task's body is expected to return immediately afterwards; the
// host task finishes tearing itself down once the goroutine returns.
func (r *Registry) TaskExit(tc *TaskContext) error {
	return r.TaskCancel(tc.self)
}

// TaskDelay suspends the calling goroutine for us microseconds.
func (r *Registry) TaskDelay(us uint64) error {
	time.Sleep(time.Duration(us) * time.Microsecond)
	return nil
}

// TaskSuspend is task_suspend(): block until TaskResume(tc.Self()) or
// cancellation.
func (r *Registry) TaskSuspend(tc *TaskContext) error {
	if err := tc.host.Suspend(); err != nil {
		return ErrTaskCancelled
	}
	return nil
}

// TaskResume is task_resume(handle): wake a task blocked in TaskSuspend.
func (r *Registry) TaskResume(handle TaskHandle) error {
	r.mu.Lock()
	if !r.validLocked(handle) {
		r.mu.Unlock()
		return ErrSpawnedTaskAbsent
	}
	host := r.slots[handle].hostTask
	r.mu.Unlock()
	host.Resume()
	return nil
}
