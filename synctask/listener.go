// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package synctask

// listenerEntry is one waiter on a target task's event set, linked into
// two orderings at once: arrival (FIFO) and priority (lowest first).
type listenerEntry struct {
	valid             bool
	waiter            TaskHandle
	priorityAtEnqueue uint16
	eventMask         uint32

	aNext, aPrev int
	pNext, pPrev int
}

// listenerSet is a target task's bounded set of listeners, stored as a
// fixed array with next/prev indices rather than raw pointers (spec.md §9
// design note: "prefer storing listener entries in a fixed array per
// target ... with next/prev indices ... rather than raw pointers").
type listenerSet struct {
	entries [MaxListeners]listenerEntry
	free    int // first known-free index, or noIdx if full
	cnt     int

	aHead, aTail int
	pHead, pTail int
}

const noIdx = -1

func newListenerSet() listenerSet {
	ls := listenerSet{free: 0, aHead: noIdx, aTail: noIdx, pHead: noIdx, pTail: noIdx}
	for i := range ls.entries {
		ls.entries[i].aNext, ls.entries[i].aPrev = noIdx, noIdx
		ls.entries[i].pNext, ls.entries[i].pPrev = noIdx, noIdx
	}
	return ls
}

func (ls *listenerSet) findFree() int {
	for i := range ls.entries {
		if !ls.entries[i].valid {
			return i
		}
	}
	return noIdx
}

func (ls *listenerSet) indexOf(waiter TaskHandle) int {
	for i := range ls.entries {
		if ls.entries[i].valid && ls.entries[i].waiter == waiter {
			return i
		}
	}
	return noIdx
}

func (ls *listenerSet) count() int { return ls.cnt }

// headPrio returns the priority of the most privileged (lowest-numbered)
// currently queued listener.
func (ls *listenerSet) headPrio() (uint16, bool) {
	if ls.pHead == noIdx {
		return 0, false
	}
	return ls.entries[ls.pHead].priorityAtEnqueue, true
}

func (ls *listenerSet) aAppend(idx int) {
	e := &ls.entries[idx]
	e.aPrev = ls.aTail
	e.aNext = noIdx
	if ls.aTail != noIdx {
		ls.entries[ls.aTail].aNext = idx
	} else {
		ls.aHead = idx
	}
	ls.aTail = idx
}

func (ls *listenerSet) aRemove(idx int) {
	e := &ls.entries[idx]
	if e.aPrev != noIdx {
		ls.entries[e.aPrev].aNext = e.aNext
	} else {
		ls.aHead = e.aNext
	}
	if e.aNext != noIdx {
		ls.entries[e.aNext].aPrev = e.aPrev
	} else {
		ls.aTail = e.aPrev
	}
	e.aNext, e.aPrev = noIdx, noIdx
}

// pInsert splices idx into the priority ordering per the five-step
// algorithm of spec.md §4.3 step 5.
func (ls *listenerSet) pInsert(idx int) error {
	e := &ls.entries[idx]
	prio := e.priorityAtEnqueue
	switch {
	case ls.pHead == noIdx:
		e.pNext, e.pPrev = noIdx, noIdx
		ls.pHead, ls.pTail = idx, idx
		return nil
	case prio < ls.entries[ls.pHead].priorityAtEnqueue:
		e.pNext = ls.pHead
		e.pPrev = noIdx
		ls.entries[ls.pHead].pPrev = idx
		ls.pHead = idx
		return nil
	case prio >= ls.entries[ls.pTail].priorityAtEnqueue:
		e.pPrev = ls.pTail
		e.pNext = noIdx
		ls.entries[ls.pTail].pNext = idx
		ls.pTail = idx
		return nil
	}
	for cur := ls.entries[ls.pHead].pNext; cur != noIdx; cur = ls.entries[cur].pNext {
		if ls.entries[cur].priorityAtEnqueue > prio {
			prev := ls.entries[cur].pPrev
			e.pNext = cur
			e.pPrev = prev
			ls.entries[cur].pPrev = idx
			ls.entries[prev].pNext = idx
			return nil
		}
	}
	return ErrSyncFault
}

func (ls *listenerSet) pRemove(idx int) {
	e := &ls.entries[idx]
	if e.pPrev != noIdx {
		ls.entries[e.pPrev].pNext = e.pNext
	} else {
		ls.pHead = e.pNext
	}
	if e.pNext != noIdx {
		ls.entries[e.pNext].pPrev = e.pPrev
	} else {
		ls.pTail = e.pPrev
	}
	e.pNext, e.pPrev = noIdx, noIdx
}

// add implements spec.md §4.3 add(): reject duplicates, reject when full,
// fill the free slot, splice into both orderings, advance the free cursor.
func (ls *listenerSet) add(waiter TaskHandle, priority uint16, mask uint32) error {
	if ls.indexOf(waiter) != noIdx {
		return ErrListeningTaskPresent
	}
	if ls.free == noIdx {
		return ErrMaxListenersReached
	}
	idx := ls.free
	e := &ls.entries[idx]
	e.valid = true
	e.waiter = waiter
	e.priorityAtEnqueue = priority
	e.eventMask = mask
	ls.aAppend(idx)
	if err := ls.pInsert(idx); err != nil {
		// undo, leave the set exactly as it was before this call
		ls.aRemove(idx)
		e.valid = false
		return err
	}
	ls.cnt++
	ls.free = ls.findFree()
	return nil
}

// remove implements spec.md §4.3 remove(): detach from both orderings,
// clear valid, decrement the count on every successful removal (resolving
// spec.md §9's second open question) and update the free cursor.
func (ls *listenerSet) remove(waiter TaskHandle) error {
	idx := ls.indexOf(waiter)
	if idx == noIdx {
		return ErrListeningTaskAbsent
	}
	wasFull := ls.free == noIdx
	ls.aRemove(idx)
	ls.pRemove(idx)
	ls.entries[idx].valid = false
	ls.cnt--
	if wasFull {
		ls.free = idx
	}
	return nil
}

// forEachArrivalSafe walks the arrival ordering from head, tolerating f
// removing the current entry (the next pointer is captured beforehand,
// same idiom as package tick's wheel-bucket cascading). f returns false to
// stop the walk early.
func (ls *listenerSet) forEachArrivalSafe(f func(idx int) bool) {
	i := ls.aHead
	for i != noIdx {
		nxt := ls.entries[i].aNext
		if !f(i) {
			return
		}
		i = nxt
	}
}
