// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package tick

import (
	"math/rand"
	"os"
	"testing"
	"time"
	"unsafe"
)

var seed int64

func TestMain(m *testing.M) {
	seed = time.Now().UnixNano()
	rand.Seed(seed)
	res := m.Run()
	os.Exit(res)
}

func TestTicksConst(t *testing.T) {
	var ticks Ticks
	if TicksBits > uint(unsafe.Sizeof(ticks.v))*8 {
		t.Fatalf("bad TicksBits constant, too big\n")
	}
	if TicksBits < 16 {
		t.Fatalf("bad TicksBits constant, too small\n")
	}
	if MaxTicksDiff == 0 || (MaxTicksDiff&(MaxTicksDiff-1) != 0) {
		t.Fatalf("wrong MaxTicksDiff 0x%x, should be 2^k\n", MaxTicksDiff)
	}
}

func tstOp(t *testing.T, p string, v1, v2 uint64) {
	t1 := NewTicks(v1)
	t2 := NewTicks(v2)

	if t1.EQ(t2) != ((v1 & TicksMask) == (v2 & TicksMask)) {
		t.Errorf(p+"EQ for 0x%x <> 0x%x failed (seed %d)\n", v1, v2, seed)
	}
	if v1 == v2 && !t1.EQ(t2) {
		t.Errorf(p+"EQ2 for 0x%x <> 0x%x failed (seed %d)\n", v1, v2, seed)
	}

	sum := t1.Add(t2)
	if sum.Val() != (v1+v2)&TicksMask {
		t.Errorf(p+"Add for 0x%x + 0x%x => 0x%x, expected 0x%x (seed %d)\n",
			v1, v2, sum.Val(), (v1+v2)&TicksMask, seed)
	}
	diff := t1.Sub(t2)
	if diff.Val() != (v1-v2)&TicksMask {
		t.Errorf(p+"Sub for 0x%x - 0x%x => 0x%x, expected 0x%x (seed %d)\n",
			v1, v2, diff.Val(), (v1-v2)&TicksMask, seed)
	}
}

func TestTicksOps(t *testing.T) {
	tstOp(t, "fixed1 ", 0, 0)
	tstOp(t, "fixed2 ", 1, 0)
	tstOp(t, "fixed3 ", 0, 1)
	tstOp(t, "fixed4 ", TicksMask, TicksMask)

	for i := 0; i < 1000; i++ {
		v1 := uint64(rand.Int63()) & TicksMask
		v2 := uint64(rand.Int63()) & TicksMask
		tstOp(t, "random ", v1, v2)
	}
}

func TestTicksMonotone(t *testing.T) {
	base := NewTicks(uint64(rand.Int63()) & TicksMask)
	prev := base
	for i := uint64(1); i < 100; i++ {
		cur := base.AddUint64(i)
		if !cur.GT(prev) {
			t.Fatalf("ticks not monotone: %s should be > %s (seed %d)\n",
				cur, prev, seed)
		}
		prev = cur
	}
}
