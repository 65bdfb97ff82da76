// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package synctask implements the task registry, listener registry and
// named-event rendezvous (spec.md C3-C5): a process-wide table of spawned
// tasks, each with a bounded set of listeners ordered both by arrival and
// by priority, signaled through wait_for/signal_that with priority
// inheritance to bound inversion.
package synctask

import "github.com/retislab/ptask/tick"

const (
	// MaxTasks bounds the registry (spec.md §3).
	MaxTasks = 256
	// MaxListeners bounds each task's listener set (spec.md §3).
	MaxListeners = 20
	// MaxNameLen is the longest accepted task name, '/' excluded.
	MaxNameLen = 30
	// MaxUserPriority is the most privileged priority an application task
	// may request (spec.md §6); C1 host primitives may use lower values.
	MaxUserPriority = 101
)

// TaskHandle is a small registry index, stable for a task's lifetime and
// reused by later task_create calls once the slot is freed.
type TaskHandle int

// InvalidHandle never names a live task.
const InvalidHandle TaskHandle = -1

// Reserved event bits (spec.md §4.4). Applications are free to use any
// other bit of the 32 available.
const (
	EvActivation uint32 = 1 << iota
	EvCancelled
	EvGeneric
)

// Flags modify wait_for/signal_that/task_wait/task_signal (spec.md §4.4).
type Flags uint32

// InversionSafe requests priority-inheritance bookkeeping on this call.
const InversionSafe Flags = 1 << 0

// TaskAttr is one task's static configuration plus its dynamic runtime
// state (spec.md §3 C2). The creator owns the TaskAttr; the registry slot
// holds a borrowed pointer valid for the task's lifetime.
type TaskAttr struct {
	// Static.
	StackBytes         uint32
	BasePriority       uint16 // user range [MaxUserPriority, 255], lower = more privileged
	PeriodMs           uint32
	RelativeDeadlineMs uint32 // must be <= PeriodMs
	Name               string // <= MaxNameLen, no '/'

	// Dynamic.
	handle               TaskHandle
	DynPriority          uint16 // == BasePriority unless inheritance is active
	MissCount            uint32
	WcetUs               uint64
	Timer                *tick.Alarm
	FirstActivationTick  uint64
	LastStartTick        uint64
	StartDelayTicks      uint64
	LastFinishTick       uint64
	LastElaborationTicks uint64
	AbsDeadlineTick      uint64
	NextActivationTick   uint64
}

// Handle returns the registry slot this attribute record is bound to. Before
// the owning task_create call completes it returns the zero value, 0, which
// is also a valid slot, not InvalidHandle.
func (a *TaskAttr) Handle() TaskHandle { return a.handle }
