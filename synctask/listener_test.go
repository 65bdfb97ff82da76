// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package synctask

import (
	"math/rand"
	"os"
	"testing"
	"time"
)

var seed int64

func TestMain(m *testing.M) {
	seed = time.Now().UnixNano()
	rand.Seed(seed)
	os.Exit(m.Run())
}

// checkInvariants verifies spec.md §3 invariants 1-3 against ls, given
// want, the arrival-ordered slice of TaskHandles believed still present.
func checkInvariants(t *testing.T, ls *listenerSet, want []TaskHandle) {
	t.Helper()

	// Invariant 1: no invalid entry reachable from either ordering.
	for i := ls.aHead; i != noIdx; i = ls.entries[i].aNext {
		if !ls.entries[i].valid {
			t.Fatalf("invariant 1 violated: invalid entry %d reachable from arrival list (seed %d)\n", i, seed)
		}
	}
	for i := ls.pHead; i != noIdx; i = ls.entries[i].pNext {
		if !ls.entries[i].valid {
			t.Fatalf("invariant 1 violated: invalid entry %d reachable from priority list (seed %d)\n", i, seed)
		}
	}

	// Invariant 2: arrival list is a permutation of the valid set in
	// insertion order.
	var got []TaskHandle
	for i := ls.aHead; i != noIdx; i = ls.entries[i].aNext {
		got = append(got, ls.entries[i].waiter)
	}
	if len(got) != len(want) {
		t.Fatalf("invariant 2 violated: arrival list has %d entries, want %d (seed %d)\n", len(got), len(want), seed)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invariant 2 violated: arrival order %v != expected %v (seed %d)\n", got, want, seed)
		}
	}

	// Invariant 3: priority list is non-decreasing (the arrival order of
	// equal priorities is not checked here).
	prevPrio := uint16(0)
	first := true
	for i := ls.pHead; i != noIdx; i = ls.entries[i].pNext {
		p := ls.entries[i].priorityAtEnqueue
		if !first && p < prevPrio {
			t.Fatalf("invariant 3 violated: priority list not non-decreasing (seed %d)\n", seed)
		}
		prevPrio = p
		first = false
	}
	if ls.count() != len(want) {
		t.Fatalf("count() = %d, want %d (seed %d)\n", ls.count(), len(want), seed)
	}
}

func TestListenerSetInvariantsRandom(t *testing.T) {
	ls := newListenerSet()
	var present []TaskHandle

	for i := 0; i < 2000; i++ {
		if len(present) == 0 || rand.Intn(2) == 0 {
			h := TaskHandle(rand.Intn(1000))
			already := false
			for _, p := range present {
				if p == h {
					already = true
					break
				}
			}
			prio := uint16(100 + rand.Intn(50))
			err := ls.add(h, prio, 1)
			if already {
				if err != ErrListeningTaskPresent {
					t.Fatalf("add of duplicate waiter %d should fail with ErrListeningTaskPresent, got %v (seed %d)\n", h, err, seed)
				}
			} else if err == nil {
				present = append(present, h)
			} else if err != ErrMaxListenersReached {
				t.Fatalf("unexpected add error: %v (seed %d)\n", err, seed)
			}
		} else {
			idx := rand.Intn(len(present))
			h := present[idx]
			if err := ls.remove(h); err != nil {
				t.Fatalf("remove of present waiter %d failed: %v (seed %d)\n", h, err, seed)
			}
			present = append(present[:idx], present[idx+1:]...)
		}
		checkInvariants(t, &ls, present)
	}
}

func TestListenerSetCapacity(t *testing.T) {
	ls := newListenerSet()
	for i := 0; i < MaxListeners; i++ {
		if err := ls.add(TaskHandle(i), 150, EvGeneric); err != nil {
			t.Fatalf("add %d/%d failed: %v\n", i, MaxListeners, err)
		}
	}
	if err := ls.add(TaskHandle(MaxListeners), 150, EvGeneric); err != ErrMaxListenersReached {
		t.Fatalf("21st add should fail with ErrMaxListenersReached, got %v\n", err)
	}
}

func TestListenerSetHeadPrioTracksMinimum(t *testing.T) {
	ls := newListenerSet()
	ls.add(1, 150, EvGeneric)
	ls.add(2, 102, EvGeneric)
	ls.add(3, 200, EvGeneric)

	hp, ok := ls.headPrio()
	if !ok || hp != 102 {
		t.Fatalf("headPrio() = (%d,%v), want (102,true)\n", hp, ok)
	}
	ls.remove(2)
	hp, ok = ls.headPrio()
	if !ok || hp != 150 {
		t.Fatalf("after removing the head, headPrio() = (%d,%v), want (150,true)\n", hp, ok)
	}
}
