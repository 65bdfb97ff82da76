// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package ptask implements the periodic-task driver (spec.md §4.5, C6):
// wait_for_activation, wait_for_period and deadline_miss, layered on
// package tick (the alarm/tick source) and package synctask (the
// rendezvous the activation event travels over).
package ptask

import (
	"sync"

	"github.com/retislab/ptask/internal/wlog"
	"github.com/retislab/ptask/synctask"
	"github.com/retislab/ptask/tick"
)

var log = wlog.New("ptask")

// InitAttr populates attr's static fields the way root.c's initAttr does:
// stack, priority, period, deadline, WCET and miss bookkeeping zeroed
// (spec.md §4.5 init_attr).
func InitAttr(attr *synctask.TaskAttr, stackBytes uint32, priority uint16, periodMs, deadlineMs uint32) {
	attr.StackBytes = stackBytes
	attr.BasePriority = priority
	attr.PeriodMs = periodMs
	attr.RelativeDeadlineMs = deadlineMs
	attr.DynPriority = priority
	attr.MissCount = 0
	attr.WcetUs = 0
}

// activate is the alarm callback armed by WaitForPeriod: it runs on the
// clock's own goroutine and, per spec.md §4.1/§5, only posts ACTIVATION to
// the waiting task -- it never touches the synctask registry mutex.
func activate(arg interface{}) {
	host := arg.(*tick.Task)
	host.Post(synctask.EvActivation)
}

// WaitForActivation is wait_for_activation(attr) (spec.md §4.5): captures
// the task's first activation instant and arms its initial bookkeeping.
// It does not suspend.
func WaitForActivation(clock *tick.Clock, attr *synctask.TaskAttr) {
	now := clock.Now().Val()
	attr.FirstActivationTick = now
	attr.Timer = clock.NewAlarm()
	periodTicks := clock.MsToTicks(uint64(attr.PeriodMs)).Val()
	deadlineTicks := clock.MsToTicks(uint64(attr.RelativeDeadlineMs)).Val()
	attr.AbsDeadlineTick = now + deadlineTicks
	attr.NextActivationTick = now + periodTicks
	attr.LastStartTick = now
	attr.StartDelayTicks = 0
}

// WaitForPeriod is wait_for_period(attr) (spec.md §4.5): the end-of-cycle
// synchronization point. Steps 1-3 (sample now, snap next_activation_tick
// past any overrun, arm the timer) run as one critical section -- per
// spec.md §9's open question, the lock is scoped to exactly that section,
// since tick.Clock.Arm is not itself guaranteed atomic with respect to the
// calling goroutine's other work.
func WaitForPeriod(reg *synctask.Registry, tc *synctask.TaskContext, clock *tick.Clock, attr *synctask.TaskAttr) error {
	periodTicks := clock.MsToTicks(uint64(attr.PeriodMs)).Val()

	taskLock.Lock()
	now := clock.Now().Val()
	na := attr.NextActivationTick
	if now >= na {
		na += (1 + (now-na)/periodTicks) * periodTicks
		attr.NextActivationTick = na
	}
	delay := tick.NewTicks(na - now)
	host, err := reg.HostIDOf(tc.Self())
	if err != nil {
		taskLock.Unlock()
		return synctask.ErrHostError
	}
	armErr := clock.Arm(attr.Timer, delay, activate, host)
	taskLock.Unlock()
	if armErr != nil {
		log.ERR("wait_for_period: arm failed for %q: %v\n", attr.Name, armErr)
		return synctask.ErrHostError
	}

	if err := reg.TaskWait(tc, tc.Self(), synctask.EvActivation, 0); err != nil {
		return synctask.ErrTaskCancelled
	}

	nowAfter := clock.Now().Val()
	attr.LastFinishTick = now
	attr.LastElaborationTicks = now - attr.LastStartTick
	elapsedUs := clock.TicksToUs(tick.NewTicks(attr.LastElaborationTicks))
	if elapsedUs > attr.WcetUs {
		attr.WcetUs = elapsedUs
	}

	oldNext := attr.NextActivationTick
	deadlineTicks := clock.MsToTicks(uint64(attr.RelativeDeadlineMs)).Val()
	attr.AbsDeadlineTick = oldNext + deadlineTicks - periodTicks
	attr.NextActivationTick = oldNext + periodTicks

	attr.LastStartTick = nowAfter
	attr.StartDelayTicks = nowAfter - oldNext
	return nil
}

// Lock and Unlock expose the same critical section WaitForPeriod scopes
// around timer arming, so application code can protect shared state the
// same way dkm2.c's task1 copies a shared frame under taskLock/taskUnlock
// before handing it to the transform.
func Lock()   { taskLock.Lock() }
func Unlock() { taskLock.Unlock() }

// taskLock scopes exactly the now-sample/timer-arm critical section of
// WaitForPeriod across all periodic tasks sharing a clock (spec.md §9:
// "taskLock/taskUnlock ... used both as a consistency guard and as a
// critical section for timer arming").
var taskLock sync.Mutex

// DeadlineMiss is deadline_miss(attr) (spec.md §4.5): counts the miss of
// attr's absolute deadline itself plus every fully elapsed period past it,
// and adds that count to MissCount.
func DeadlineMiss(clock *tick.Clock, attr *synctask.TaskAttr) bool {
	now := clock.Now().Val()
	periodTicks := clock.MsToTicks(uint64(attr.PeriodMs)).Val()
	if now <= attr.AbsDeadlineTick || periodTicks == 0 {
		return false
	}
	k := (now-attr.AbsDeadlineTick-1)/periodTicks + 1
	attr.MissCount += uint32(k)
	return k > 0
}
