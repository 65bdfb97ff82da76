// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package tick

import (
	"testing"
	"time"
)

func TestTaskPostWait(t *testing.T) {
	c := NewClock(1000)
	c.Start()
	defer c.Stop()

	const evA = uint32(1 << 0)
	const evB = uint32(1 << 1)

	got := make(chan uint32, 1)
	h := c.Spawn("t", MaxUserPriorityForTest, 4096, func(self *Task) {
		mask, err := self.Wait(evA | evB)
		if err != nil {
			t.Errorf("unexpected Wait error: %v\n", err)
			return
		}
		got <- mask
	})

	h.Post(evB)
	select {
	case mask := <-got:
		if mask&evB == 0 {
			t.Fatalf("received mask %x missing posted bit %x\n", mask, evB)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait never returned\n")
	}
}

func TestTaskDestroyCancelsWait(t *testing.T) {
	c := NewClock(1000)
	c.Start()
	defer c.Stop()

	errCh := make(chan error, 1)
	h := c.Spawn("t", MaxUserPriorityForTest, 4096, func(self *Task) {
		_, err := self.Wait(1)
		errCh <- err
	})

	h.Destroy()
	select {
	case err := <-errCh:
		if err != ErrCancelled {
			t.Fatalf("expected ErrCancelled, got %v\n", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("destroyed task's Wait never returned\n")
	}
	if h.Verify() {
		t.Fatalf("destroyed task should not Verify()\n")
	}
}

func TestTaskSuspendResume(t *testing.T) {
	c := NewClock(1000)
	c.Start()
	defer c.Stop()

	resumed := make(chan struct{}, 1)
	h := c.Spawn("t", MaxUserPriorityForTest, 4096, func(self *Task) {
		if err := self.Suspend(); err != nil {
			return
		}
		resumed <- struct{}{}
	})

	time.Sleep(20 * time.Millisecond)
	h.Resume()
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatalf("Resume never woke the suspended task\n")
	}
}

func TestTaskSetPriority(t *testing.T) {
	c := NewClock(1000)
	ready := make(chan struct{})
	h := c.Spawn("t", 150, 4096, func(self *Task) {
		close(ready)
		self.Wait(1 << 30)
	})
	<-ready
	h.SetPriority(120)
	if h.Priority() != 120 {
		t.Fatalf("SetPriority/Priority round-trip failed: got %d\n", h.Priority())
	}
	h.Destroy()
}

// MaxUserPriorityForTest avoids importing package synctask from tick's own
// tests (which would be a layering inversion); it mirrors
// synctask.MaxUserPriority's numeric value.
const MaxUserPriorityForTest = 101
