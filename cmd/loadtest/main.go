// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Command loadtest is the periodic-task load test demo (spec.md §6,
// dkm1.c): three periodic tasks with doubling periods, each occupying the
// CPU for a fixed slice per cycle, run against the library to observe
// activation counts and deadline misses over time.
package main

import (
	"flag"
	"fmt"
	"runtime"

	"github.com/retislab/ptask/ptask"
	"github.com/retislab/ptask/synctask"
	"github.com/retislab/ptask/tick"
)

const (
	numTasks        = 3
	maxUserPriority = synctask.MaxUserPriority
	busyMs          = 300
)

// doNothing busy-loops for ms milliseconds of clock time, same
// tick-polling shape as the source's doNothing (tickGet() spun until it
// advances), yielding the goroutine between samples so the clock's own
// ticking goroutine isn't starved.
func doNothing(clock *tick.Clock, ms uint64) {
	target := clock.MsToTicks(ms).Val()
	start := clock.Now()
	for clock.Now().Sub(start).Val() < target {
		runtime.Gosched()
	}
}

func main() {
	rate := flag.Uint64("rate", 1000, "clock tick rate, ticks/sec")
	flag.Parse()

	clock := tick.NewClock(*rate)
	clock.Start()
	defer clock.Stop()

	reg := synctask.InitSync(clock)

	for i := 0; i < numTasks; i++ {
		period := uint32(1000 * (1 << uint(i)))
		attr := &synctask.TaskAttr{}
		ptask.InitAttr(attr, 1024, uint16(maxUserPriority+i), period, period)

		name := fmt.Sprintf("task%d", i)
		_, err := reg.TaskCreate(name, attr, func(tc *synctask.TaskContext, arg int) {
			ptask.WaitForActivation(clock, attr)
			for {
				doNothing(clock, busyMs)
				if werr := ptask.WaitForPeriod(reg, tc, clock, attr); werr != nil {
					return
				}
			}
		}, i)
		if err != nil {
			fmt.Printf("creation of %s failed: %v\n", name, err)
			continue
		}
		fmt.Printf("creation of %s. status: ok\n", name)
	}

	select {}
}
