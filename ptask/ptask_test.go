// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package ptask

import (
	"testing"
	"time"

	"github.com/retislab/ptask/synctask"
	"github.com/retislab/ptask/tick"
)

// TestWaitForPeriodMonotone is spec.md §8: with no overruns,
// next_activation_tick advances by exactly period_ticks every cycle.
func TestWaitForPeriodMonotone(t *testing.T) {
	clock := tick.NewClock(1000)
	clock.Start()
	defer clock.Stop()
	reg := synctask.InitSync(clock)

	attr := &synctask.TaskAttr{}
	InitAttr(attr, 4096, 150, 20, 20)

	const cycles = 5
	progress := make(chan uint64, cycles)
	done := make(chan error, 1)

	_, err := reg.TaskCreate("periodic", attr, func(tc *synctask.TaskContext, arg int) {
		WaitForActivation(clock, attr)
		prev := attr.NextActivationTick
		for i := 0; i < cycles; i++ {
			if werr := WaitForPeriod(reg, tc, clock, attr); werr != nil {
				done <- werr
				return
			}
			progress <- attr.NextActivationTick - prev
			prev = attr.NextActivationTick
		}
		done <- nil
	}, 0)
	if err != nil {
		t.Fatalf("create failed: %v\n", err)
	}

	periodTicks := clock.MsToTicks(uint64(attr.PeriodMs)).Val()
	for i := 0; i < cycles; i++ {
		select {
		case delta := <-progress:
			if delta != periodTicks {
				t.Fatalf("cycle %d: next_activation_tick advanced by %d, want %d\n", i, delta, periodTicks)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d never completed\n", i)
		}
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("task body returned %v\n", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("task body never finished\n")
	}
}

// TestDeadlineMissOverrun is spec.md §8 scenario 3: a cycle that runs 2.5
// periods past its absolute deadline adds 3 to miss_count (the miss itself
// plus the 2 fully elapsed periods), and once abs_deadline_tick has moved
// 3 periods ahead the same instant no longer counts as a miss.
func TestDeadlineMissOverrun(t *testing.T) {
	clock := tick.NewClock(1000)
	clock.Start()
	defer clock.Stop()

	attr := &synctask.TaskAttr{}
	InitAttr(attr, 4096, 150, 100, 100)

	now := clock.Now().Val()
	periodTicks := clock.MsToTicks(uint64(attr.PeriodMs)).Val()
	attr.AbsDeadlineTick = now
	attr.NextActivationTick = now + periodTicks

	// simulate an elaboration that overruns into the 3rd period past the
	// deadline (2 full periods elapsed, partway through the 3rd).
	overrun := tick.NewTicks(now + 2*periodTicks + periodTicks/2)
	for clock.Now().LT(overrun) {
		time.Sleep(time.Millisecond)
	}

	if !DeadlineMiss(clock, attr) {
		t.Fatalf("DeadlineMiss should report a miss 2.5 periods past the deadline\n")
	}
	if attr.MissCount != 3 {
		t.Fatalf("MissCount = %d, want 3\n", attr.MissCount)
	}

	// WaitForPeriod would advance abs_deadline_tick past the cycles it
	// just accounted for; once it does, the same instant is no longer a
	// miss.
	attr.AbsDeadlineTick += 3 * periodTicks
	if DeadlineMiss(clock, attr) {
		t.Fatalf("DeadlineMiss should be false once abs_deadline_tick catches up\n")
	}
	if attr.MissCount != 3 {
		t.Fatalf("MissCount changed on a non-miss DeadlineMiss call: got %d\n", attr.MissCount)
	}
}

// TestDeadlineMissNoOverrun checks the common case: no miss before the
// deadline elapses.
func TestDeadlineMissNoOverrun(t *testing.T) {
	clock := tick.NewClock(1000)
	clock.Start()
	defer clock.Stop()

	attr := &synctask.TaskAttr{}
	InitAttr(attr, 4096, 150, 100, 100)
	attr.AbsDeadlineTick = clock.Now().Val() + clock.MsToTicks(uint64(attr.RelativeDeadlineMs)).Val()

	if DeadlineMiss(clock, attr) {
		t.Fatalf("DeadlineMiss should be false before the deadline elapses\n")
	}
	if attr.MissCount != 0 {
		t.Fatalf("MissCount = %d, want 0\n", attr.MissCount)
	}
}
