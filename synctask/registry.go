// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package synctask

import (
	"sync"

	"github.com/retislab/ptask/internal/wlog"
	"github.com/retislab/ptask/tick"
)

var log = wlog.New("synctask")

// spawnedEntry is one registry slot (spec.md §3 SpawnedEntry). hostTask is
// kept around after valid is cleared so task_cancel can still tell a stale
// registry entry from a genuinely vanished host task, until the slot is
// reused by a later add().
type spawnedEntry struct {
	valid     bool
	hostTask  *tick.Task
	attr      *TaskAttr
	waiting   bool
	listeners listenerSet
}

// Registry is the process-wide task table plus every task's listener set,
// guarded by a single mutex (spec.md §5, §9 "do not split this across
// finer-grained locks"). It is an explicit context handle rather than
// package-level hidden state (spec.md §9: "pass an explicit context handle
// into every library entry point if the language favors it" — idiomatic Go
// does), constructed once by InitSync.
type Registry struct {
	mu    sync.Mutex
	clock *tick.Clock
	slots [MaxTasks]spawnedEntry
	free  int
}

// InitSync constructs the registry bound to clock, which must already be
// running (clock.Start()) or about to be.
func InitSync(clock *tick.Clock) *Registry {
	r := &Registry{clock: clock, free: 0}
	for i := range r.slots {
		r.slots[i].listeners = newListenerSet()
	}
	return r
}

// Clock returns the tick source this registry's tasks are scheduled
// against (used by package ptask).
func (r *Registry) Clock() *tick.Clock { return r.clock }

func (r *Registry) validLocked(h TaskHandle) bool {
	return h >= 0 && int(h) < MaxTasks && r.slots[h].valid
}

func (r *Registry) findFreeLocked() int {
	for i := range r.slots {
		if !r.slots[i].valid {
			return i
		}
	}
	return noIdx
}

func (r *Registry) lookupByNameLocked(name string) TaskHandle {
	for i := range r.slots {
		if r.slots[i].valid && r.slots[i].attr.Name == name {
			return TaskHandle(i)
		}
	}
	return InvalidHandle
}

func (r *Registry) lookupByHostLocked(host *tick.Task) TaskHandle {
	for i := range r.slots {
		if r.slots[i].valid && r.slots[i].hostTask == host {
			return TaskHandle(i)
		}
	}
	return InvalidHandle
}

// add allocates a slot for host/attr/name (spec.md §4.2 add()). Caller
// must hold r.mu.
func (r *Registry) add(host *tick.Task, attr *TaskAttr, name string) (TaskHandle, error) {
	if r.lookupByNameLocked(name) != InvalidHandle {
		return InvalidHandle, ErrSpawnedTaskPresent
	}
	if r.free == noIdx {
		return InvalidHandle, ErrMaxSpawnedTasksReached
	}
	idx := r.free
	s := &r.slots[idx]
	s.valid = true
	s.hostTask = host
	s.attr = attr
	s.waiting = false
	s.listeners = newListenerSet()
	attr.handle = TaskHandle(idx)
	attr.Name = name
	attr.DynPriority = attr.BasePriority
	attr.MissCount = 0
	r.free = r.findFreeLocked()
	log.DBG("add: %q -> handle %d\n", name, idx)
	return TaskHandle(idx), nil
}

// remove invalidates handle's slot (spec.md §4.2 remove()). Caller must
// hold r.mu.
func (r *Registry) remove(handle TaskHandle) error {
	if !r.validLocked(handle) {
		return ErrSpawnedTaskAbsent
	}
	s := &r.slots[handle]
	s.valid = false
	if s.attr.Timer != nil {
		r.clock.Destroy(s.attr.Timer)
		s.attr.Timer = nil
	}
	if r.free == noIdx {
		r.free = int(handle)
	}
	log.DBG("remove: handle %d\n", handle)
	return nil
}

// LookupByName is task_get's underlying primitive.
func (r *Registry) LookupByName(name string) (TaskHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.lookupByNameLocked(name)
	if h == InvalidHandle {
		return InvalidHandle, ErrSpawnedTaskAbsent
	}
	return h, nil
}

// LookupByHostID finds the registry handle for a tick.Task, or
// ErrSpawnedTaskAbsent.
func (r *Registry) LookupByHostID(host *tick.Task) (TaskHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.lookupByHostLocked(host)
	if h == InvalidHandle {
		return InvalidHandle, ErrSpawnedTaskAbsent
	}
	return h, nil
}

// HostIDOf returns the host task backing handle.
func (r *Registry) HostIDOf(handle TaskHandle) (*tick.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.validLocked(handle) {
		return nil, ErrSpawnedTaskAbsent
	}
	return r.slots[handle].hostTask, nil
}

// AttrOf returns handle's attribute record (task_attr).
func (r *Registry) AttrOf(handle TaskHandle) (*TaskAttr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.validLocked(handle) {
		return nil, ErrSpawnedTaskAbsent
	}
	return r.slots[handle].attr, nil
}
