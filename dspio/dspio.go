// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package dspio implements the demonstration pipeline's file and UDP I/O
// (spec.md §6, out of core scope, consumed by cmd/fft): reading waveform
// samples from a file, writing a computed spectrum back out, and sending
// raw samples over UDP.
package dspio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
)

// ErrEOFReached is returned by AcquireFromFile when fewer than n samples
// remain (the source's EOF_REACHED status).
var ErrEOFReached = errors.New("dspio: EOF reached")

// maxAbsoluteValue is the source's MAX_ABSOLUTE_VALUE: above this
// magnitude a spectrum bin is written as NaN rather than a formatted
// float, consistent with the 4-digit precision the format string carries.
const maxAbsoluteValue = 1000

// AcquireFromFile reads n newline-separated decimal samples from r
// (acquireFromFile). It returns ErrEOFReached if r runs out before n
// samples have been read; a read error other than end of input is reported
// as ErrEOFReached wrapped together with that error's text.
func AcquireFromFile(r io.Reader, n int) ([]float64, error) {
	sc := bufio.NewScanner(r)
	frame := make([]float64, n)
	for i := 0; i < n; i++ {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("dspio: %w: %v", ErrEOFReached, err)
			}
			return nil, ErrEOFReached
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(sc.Text()), 64)
		if err != nil {
			return nil, fmt.Errorf("dspio: acquire: %w", err)
		}
		frame[i] = v
	}
	return frame, nil
}

// SendToFile writes one line per bin of frameF: "%+.4f + j(%+.4f)", or
// "NaN" when either the real or imaginary part's magnitude is at least
// maxAbsoluteValue (sendToFile).
func SendToFile(w io.Writer, frameF []complex128) error {
	bw := bufio.NewWriter(w)
	for _, c := range frameF {
		re, im := real(c), imag(c)
		var line string
		if math.Abs(re) >= maxAbsoluteValue || math.Abs(im) >= maxAbsoluteValue {
			line = "NaN"
		} else {
			line = fmt.Sprintf("%+.4f + j(%+.4f)", re, im)
		}
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// UDPSender sends waveform samples as individual datagrams, one "%+.4f"
// line per sample (initUDP/sendToUDP, credited in the source to Daniel
// Casini's ReTiS Lab UDP communication demo).
type UDPSender struct {
	conn *net.UDPConn
}

// DialUDPSender resolves addr (host:port) and readies a sender.
func DialUDPSender(addr string) (*UDPSender, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dspio: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dspio: dial %s: %w", addr, err)
	}
	return &UDPSender{conn: conn}, nil
}

// Send transmits frameT as n datagrams, "%+.4f\n" per sample.
func (s *UDPSender) Send(frameT []float64) error {
	for _, v := range frameT {
		if _, err := fmt.Fprintf(s.conn, "%+.4f\n", v); err != nil {
			return fmt.Errorf("dspio: sendto: %w", err)
		}
	}
	return nil
}

// Close releases the underlying socket.
func (s *UDPSender) Close() error { return s.conn.Close() }

// Frmcpy copies src into a freshly allocated frame (frmcpy): used under
// the rendezvous critical section so the DSP task works on a private copy
// while the acquisition task keeps filling the shared one.
func Frmcpy(src []float64) []float64 {
	dst := make([]float64, len(src))
	copy(dst, src)
	return dst
}
