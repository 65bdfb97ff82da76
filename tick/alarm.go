// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package tick

// AlarmHandlerF is the callback run when an Alarm expires. Per spec.md
// §4.1/§5, it runs on the clock's internal goroutine (the "interrupt
// context" of the host RTOS this module stands in for) and must not block
// or take the synctask registry mutex; it may only post an event to a task
// and read small integers. Alarms in this module are always one-shot: the
// periodic task driver (package ptask) re-arms explicitly every cycle, so
// there is no re-add/periodic mode here (unlike the teacher's TimerHandlerF).
type AlarmHandlerF func(arg interface{})

const (
	wheelNone  uint8  = 255
	wheelExp   uint8  = 254
	wheelNoIdx uint16 = 65535
)

// flags for alarms
const (
	fHead    = 1 // this is the list head (debugging)
	fActive  = 2 // alarm is armed
	fRunning = 8 // alarm handler is executing
	fRemoved = 16

	fInternalMask = fHead | fActive | fRunning | fRemoved
)

// An Alarm is a one-shot watchdog timer handle: the Ticks-unit analogue of
// spec.md's TimerHandle. Each periodic task owns exactly one (spec.md §3,
// TaskAttr.timer); wait_for_activation allocates it via Clock.NewAlarm and
// wait_for_period re-arms it every cycle via Clock.Arm.
type Alarm struct {
	next   *Alarm
	prev   *Alarm
	expire Ticks
	info   aInfo

	f   AlarmHandlerF
	arg interface{}
}

// Detached reports whether the alarm is not currently linked into any
// wheel list.
func (a *Alarm) Detached() bool {
	return a == a.next || (a.next == nil && a.prev == nil)
}

// Expire returns the absolute tick at which the alarm is set to fire.
func (a *Alarm) Expire() Ticks {
	return a.expire
}
