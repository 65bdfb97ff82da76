// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package tick implements the host substrate that spec.md §4.1 (C1)
// requires of the underlying RTOS: a monotonic tick source, one-shot
// watchdog alarms, and host task primitives (spawn, priority, verify,
// destroy, event post/wait). It has no scheduler of its own — task bodies
// run as goroutines and the Go runtime schedules them, the same role
// VxWorks' preemptive priority scheduler plays for the original (spec.md
// explicitly keeps "design a scheduler" out of scope).
//
// The tick source and alarm engine are a hierarchical timer wheel adapted
// from github.com/intuitivelabs/wtimer, trimmed from re-armable/periodic
// semantics to the one-shot semantics this spec needs (see DESIGN.md).
package tick

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intuitivelabs/timestamp"
	"github.com/retislab/ptask/internal/wlog"
)

var log = wlog.New("tick")

var (
	ErrInvalidParameters = errors.New("tick: invalid parameters")
	ErrActiveAlarm       = errors.New("tick: alarm already armed")
	ErrTicksTooHigh      = errors.New("tick: delta too high")
)

// return the wheel number and the index inside the wheel corresponding to
// a timer expiring at exp. now is the current time in Ticks.
func getWheelPos(exp, now Ticks) (uint8, uint16) {
	delta := exp.Sub(now).Val()
	expire := exp.Val()
	switch {
	case delta < W0Entries:
		if delta == 0 {
			return wheelExp, wheelNoIdx
		}
		return 0, uint16(expire & W0Mask)
	case delta < W0Entries*W1Entries:
		return 1, uint16((expire >> W0Bits) & W1Mask)
	case delta < W0Entries*W1Entries*W2Entries:
		return 2, uint16((expire >> (W0Bits + W1Bits)) & W2Mask)
	}
	return 3, uint16((expire >> (W0Bits + W1Bits + W2Bits)) & W3Mask)
}

type wheel struct {
	no   uint8
	lsts []alarmLst
}

func (w *wheel) init(n uint8, lists []alarmLst) {
	w.no = n
	w.lsts = lists
	for i := range w.lsts {
		w.lsts[i].init(w.no, uint16(i))
	}
}

var wheelEntries = [WheelsNo]uint16{W0Entries, W1Entries, W2Entries, W3Entries}

const wTotalEntries = W0Entries + W1Entries + W2Entries + W3Entries

// Clock is the tick/time source and one-shot alarm engine required by
// spec.md §4.1 (C1). It also owns the host Task registry (spawn, priority,
// verify, destroy) since priority get/set and task spawn are part of the
// same "host primitives" required by C1.
type Clock struct {
	opLock sync.Mutex
	wheels [WheelsNo]wheel
	wlsts  [wTotalEntries]alarmLst
	expired alarmLst

	rate     uint64
	nowTicks uint64 // atomic

	tickDuration time.Duration
	lastTickT    timestamp.TS
	refTS        timestamp.TS
	refTicks     Ticks
	badTime      uint32

	wg     sync.WaitGroup
	cancel chan struct{}

	tasksLock sync.Mutex
	tasks     map[*Task]struct{}
}

// NewClock creates a Clock ticking at rate ticks/sec (spec.md §4.1 rate()).
func NewClock(rate uint64) *Clock {
	if rate == 0 {
		rate = 1000
	}
	c := &Clock{rate: rate, tasks: make(map[*Task]struct{})}
	c.tickDuration = time.Second / time.Duration(rate)
	for i, pos := 0, 0; i < len(c.wheels); i++ {
		sz := int(wheelEntries[i])
		c.wheels[i].init(uint8(i), c.wlsts[pos:pos+sz])
		pos += sz
	}
	c.expired.init(wheelExp, wheelNoIdx)
	return c
}

// Rate returns the configured ticks/sec.
func (c *Clock) Rate() uint64 { return c.rate }

// Now returns the current time in ticks.
func (c *Clock) Now() Ticks {
	return NewTicks(atomic.LoadUint64(&c.nowTicks))
}

func (c *Clock) incTime() {
	atomic.AddUint64(&c.nowTicks, 1)
}

// MsToTicks converts milliseconds to ticks: rate()*ms/1000, integer
// division (floor), per spec.md §4.1.
func (c *Clock) MsToTicks(ms uint64) Ticks {
	return NewTicks(c.rate * ms / 1000)
}

// UsToTicks converts microseconds to ticks, floor division.
func (c *Clock) UsToTicks(us uint64) Ticks {
	return NewTicks(c.rate * us / 1000000)
}

// TicksToUs converts a tick delta to microseconds.
func (c *Clock) TicksToUs(t Ticks) uint64 {
	if c.rate == 0 {
		return 0
	}
	return t.Val() * 1000000 / c.rate
}

func (c *Clock) lock()   { c.opLock.Lock() }
func (c *Clock) unlock() { c.opLock.Unlock() }

// NewAlarm allocates an inert, unarmed Alarm handle.
func (c *Clock) NewAlarm() *Alarm {
	a := &Alarm{}
	a.info.setWheel(wheelNone, wheelNoIdx)
	return a
}

func (c *Clock) appendAlarm(a *Alarm, w uint8, idx uint16) error {
	if w < WheelsNo {
		c.wheels[w].lsts[idx].append(a)
		return nil
	} else if w == wheelExp {
		c.expired.append(a)
		return nil
	}
	log.BUG("invalid wheel no: %d idx %d for %p\n", w, idx, a)
	return ErrInvalidParameters
}

// Arm schedules cb(arg) to run delay ticks from now. a must be detached
// (freshly allocated, or Cancel()ed). The callback runs on the clock's
// internal ticking goroutine and must not block (spec.md §5).
func (c *Clock) Arm(a *Alarm, delay Ticks, cb AlarmHandlerF, arg interface{}) error {
	if cb == nil {
		return ErrInvalidParameters
	}
	if delay.Val() > MaxTicksDiff-1 {
		log.BUG("delay too high: %d > max %d\n", delay.Val(), MaxTicksDiff)
		return ErrTicksTooHigh
	}
	c.lock()
	defer c.unlock()
	if a.info.flags()&fActive != 0 {
		return ErrActiveAlarm
	}
	if !a.Detached() {
		return ErrInvalidParameters
	}
	a.f = cb
	a.arg = arg
	now := c.Now()
	a.expire = now.Add(delay)
	a.info.chgFlags(fActive, fInternalMask)
	w, idx := getWheelPos(a.expire, now)
	return c.appendAlarm(a, w, idx)
}

// Cancel disarms a, if it is still pending. It is a no-op (returns false)
// if the alarm already fired or was never armed.
func (c *Clock) Cancel(a *Alarm) bool {
	c.lock()
	defer c.unlock()
	if a.info.flags()&fActive == 0 || a.Detached() {
		return false
	}
	w, idx := a.info.wheelPos()
	if w < WheelsNo {
		c.wheels[w].lsts[idx].rm(a)
	} else if w == wheelExp {
		c.expired.rm(a)
	} else {
		return false
	}
	a.info.chgFlags(fRemoved, fInternalMask)
	return true
}

// Destroy cancels a and releases it; equivalent to the host RTOS's
// wdDelete() (spec.md §4.2 registry.remove() calls this when a task's
// slot is freed).
func (c *Clock) Destroy(a *Alarm) {
	c.Cancel(a)
}

func (c *Clock) redistAlarm(lst *alarmLst, a *Alarm, now Ticks) {
	expire := a.expire
	if expire.LT(now) {
		expire = now
	}
	w, idx := getWheelPos(expire, now)
	if w == lst.wheelNo && idx == lst.wheelIdx {
		return
	}
	lst.rm(a)
	if err := c.appendAlarm(a, w, idx); err != nil {
		a.info.setFlags(fRemoved)
	}
}

func (c *Clock) redistLst(lst *alarmLst, now Ticks) {
	s := lst.head.next
	for v, nxt := s, s.next; v != &lst.head; v, nxt = nxt, nxt.next {
		c.redistAlarm(lst, v, now)
	}
}

// redistAlarms cascades timers down the wheel hierarchy, same cascading
// rule as the teacher's redistTimers: wheel 0 always runs every tick,
// higher wheels only when their slower-moving "hand" wraps.
func (c *Clock) redistAlarms(now Ticks) {
	t := now.Val()
	idx0 := t & W0Mask
	if idx0 == 0 {
		idx1 := (t >> W0Bits) & W1Mask
		if idx1 == 0 {
			idx2 := (t >> (W0Bits + W1Bits)) & W2Mask
			if idx2 == 0 {
				idx3 := (t >> (W0Bits + W1Bits + W2Bits)) & W3Mask
				c.redistLst(&c.wheels[3].lsts[idx3], now)
			}
			c.redistLst(&c.wheels[2].lsts[idx2], now)
		}
		c.redistLst(&c.wheels[1].lsts[idx1], now)
	}
	c.wheels[0].lsts[idx0].mv(&c.expired)
}

// processExpired runs every alarm handler that reached its expire tick.
// Handlers are restricted (spec.md §5) to non-blocking event posts, so,
// unlike the teacher's multi-run-queue dispatch (built for 100k+ timers
// with arbitrary handler work), they run directly here, inline, still
// under the clock lock dropped only around the call itself.
func (c *Clock) processExpired(now Ticks) {
	for !c.expired.isEmpty() {
		a := c.expired.head.next
		c.expired.rm(a)
		a.next = nil
		a.prev = nil
		a.info.setFlags(fRunning)
		f, arg := a.f, a.arg
		c.unlock()
		f(arg)
		c.lock()
		a.info.chgFlags(fRemoved, fInternalMask)
	}
}

func (c *Clock) run(now Ticks) {
	c.lock()
	c.redistAlarms(now)
	c.processExpired(now)
	c.unlock()
}

// advanceTimeTo moves the clock forward to t tick by tick, running every
// alarm that expires along the way. Must never run concurrently with
// itself (only the ticker goroutine calls it).
func (c *Clock) advanceTimeTo(t Ticks) {
	now := c.Now()
	if now.GT(t) {
		log.BUG("advancing backwards: now %d target %d\n", now.Val(), t.Val())
		return
	}
	for c.Now().NE(t) {
		c.incTime()
		c.run(c.Now())
	}
}

// ticker samples the wall clock and advances ticks accordingly,
// re-synchronizing against timestamp.Now() the way the teacher's ticker
// does, so tick drift from scheduling latency doesn't accumulate.
func (c *Clock) ticker() {
	now := timestamp.Now()
	if now.Before(c.lastTickT) {
		c.badTime++
		if c.badTime > 10 {
			c.lastTickT = now
			c.refTS = now
			c.refTicks = c.Now()
		}
		return
	}
	c.badTime = 0
	diff := now.Sub(c.lastTickT)
	if diff < c.tickDuration {
		return
	}
	ticks := uint64(diff / c.tickDuration)
	rest := diff % c.tickDuration
	c.lastTickT = now.Add(-rest)
	c.advanceTimeTo(c.Now().AddUint64(ticks))
}

// Start begins the background ticking goroutine. No alarm ever fires
// before Start() is called.
func (c *Clock) Start() {
	c.cancel = make(chan struct{})
	c.lastTickT = timestamp.Now()
	c.refTS = c.lastTickT
	c.refTicks = c.Now()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.tickDuration)
		defer t.Stop()
		for {
			select {
			case <-c.cancel:
				return
			case <-t.C:
				c.ticker()
			}
		}
	}()
}

// Stop signals the ticking goroutine to terminate and waits for it to exit.
// Task goroutines spawned on this clock are neither signaled nor waited for.
func (c *Clock) Stop() {
	if c.cancel != nil {
		close(c.cancel)
	}
	c.wg.Wait()
}
