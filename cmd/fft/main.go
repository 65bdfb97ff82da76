// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Command fft is the sampled-waveform Fourier transform demo (spec.md §6,
// dkm2.c): task0 acquires a frame from a file and waits for task2 to
// finish forwarding it over UDP; task1 copies the frame under the
// library's critical section, computes its spectrum, and writes it out.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/retislab/ptask/dsp"
	"github.com/retislab/ptask/dspio"
	"github.com/retislab/ptask/ptask"
	"github.com/retislab/ptask/synctask"
	"github.com/retislab/ptask/tick"
)

const (
	numTasks        = 3
	maxUserPriority = synctask.MaxUserPriority
	frameLength     = 256
)

var periodsMs = [numTasks]uint32{40, 80, 40}

// shared holds the state dkm2.c keeps as file-scope globals: the frame
// being acquired, the spectrum computed from it, and the file/socket
// handles each task owns.
type shared struct {
	frameT         []float64
	frameF         []complex128
	inputAvailable bool

	in  *os.File
	out *os.File
	udp *dspio.UDPSender
}

func initActivity(i int, sh *shared, inputFile, outputFile, udpAddr string) {
	switch i {
	case 0:
		f, err := os.Open(inputFile)
		if err != nil {
			fmt.Printf("open %s: %v\n", inputFile, err)
		}
		sh.in = f
	case 1:
		f, err := os.Create(outputFile)
		if err != nil {
			fmt.Printf("create %s: %v\n", outputFile, err)
		}
		sh.out = f
	case 2:
		u, err := dspio.DialUDPSender(udpAddr)
		if err != nil {
			fmt.Printf("dial %s: %v\n", udpAddr, err)
		}
		sh.udp = u
	}
}

func exitActivity(i int, sh *shared) {
	switch i {
	case 0:
		if sh.in != nil {
			sh.in.Close()
		}
	case 1:
		if sh.out != nil {
			sh.out.Close()
		}
	case 2:
		if sh.udp != nil {
			sh.udp.Close()
		}
	}
	fmt.Printf("cancellation of task%d.\n", i)
}

func deadlineMissActivity(i int, attr *synctask.TaskAttr) {
	fmt.Printf("task%d has missed one or more deadlines between %d and %d. total: %d.\n",
		i, attr.FirstActivationTick, attr.NextActivationTick, attr.MissCount)
}

// periodicActivity runs one cycle's work for task i and reports whether
// the task should continue (false triggers exitActivity + task_exit, same
// as the source falling through to exitActivity on EOF/input loss).
func periodicActivity(reg *synctask.Registry, sh *shared, tc *synctask.TaskContext, i int) bool {
	switch i {
	case 0:
		frame, err := dspio.AcquireFromFile(sh.in, frameLength)
		if err != nil {
			sh.inputAvailable = false
			return false
		}
		sh.frameT = frame
		target, lerr := reg.LookupByName("task2")
		if lerr != nil {
			return false
		}
		if werr := reg.TaskWait(tc, target, synctask.EvGeneric, synctask.InversionSafe); werr != nil {
			return false
		}
	case 1:
		if !sh.inputAvailable {
			return false
		}
		ptask.Lock()
		frameCopy := dspio.Frmcpy(sh.frameT)
		ptask.Unlock()
		sh.frameF = dsp.SFT(frameCopy)
		if err := dspio.SendToFile(sh.out, sh.frameF); err != nil {
			fmt.Printf("send to file: %v\n", err)
		}
	case 2:
		if !sh.inputAvailable {
			return false
		}
		if sh.udp != nil {
			if err := sh.udp.Send(sh.frameT); err != nil {
				fmt.Printf("udp sending failed: %v\n", err)
			}
		}
		if err := reg.TaskSignal(tc, synctask.EvGeneric, synctask.InversionSafe); err != nil {
			fmt.Printf("signal failed: %v\n", err)
		}
	}
	return true
}

func taskBody(reg *synctask.Registry, clock *tick.Clock, sh *shared, attr *synctask.TaskAttr,
	inputFile, outputFile, udpAddr string) synctask.TaskBody {
	return func(tc *synctask.TaskContext, i int) {
		ptask.WaitForActivation(clock, attr)
		initActivity(i, sh, inputFile, outputFile, udpAddr)

		for {
			if ok := periodicActivity(reg, sh, tc, i); !ok {
				exitActivity(i, sh)
				reg.TaskExit(tc)
				return
			}
			if ptask.DeadlineMiss(clock, attr) {
				deadlineMissActivity(i, attr)
			}
			if werr := ptask.WaitForPeriod(reg, tc, clock, attr); werr != nil {
				exitActivity(i, sh)
				reg.TaskExit(tc)
				return
			}
		}
	}
}

func main() {
	rate := flag.Uint64("rate", 1000, "clock tick rate, ticks/sec")
	inputFile := flag.String("input", "wave.txt", "waveform input file")
	outputFile := flag.String("output", "spectrum.txt", "spectrum output file")
	udpAddr := flag.String("udp", "127.0.0.1:5002", "UDP endpoint samples are forwarded to")
	flag.Parse()

	clock := tick.NewClock(*rate)
	clock.Start()
	defer clock.Stop()

	reg := synctask.InitSync(clock)

	sh := &shared{frameT: make([]float64, frameLength), inputAvailable: true}

	for i := 0; i < numTasks; i++ {
		attr := &synctask.TaskAttr{}
		ptask.InitAttr(attr, 1024, uint16(maxUserPriority+i), periodsMs[i], periodsMs[i])

		name := fmt.Sprintf("task%d", i)
		_, err := reg.TaskCreate(name, attr, taskBody(reg, clock, sh, attr, *inputFile, *outputFile, *udpAddr), i)
		if err != nil {
			fmt.Printf("creation of %s failed: %v\n", name, err)
			continue
		}
		fmt.Printf("creation of %s. status: ok\n", name)
	}

	select {}
}
