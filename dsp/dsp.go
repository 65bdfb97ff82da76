// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package dsp implements the demonstration Fourier transform (spec.md §6,
// out of core scope, consumed by cmd/fft).
package dsp

import "math"

// pi is kept at the original demo's five-digit precision rather than
// math.Pi: the transform's output is observable in the demo's written
// spectrum, and a precision-sensitive comparison against it must use the
// same constant.
const pi = 3.14159

// SFT evaluates the Fourier transform of frameT using the algebraic
// (naive, O(n^2)) definition, same as the source's sft(): no FFT
// optimization, by design -- the demo's point is to exercise the periodic
// driver under a known, fixed elaboration cost, not to be fast.
func SFT(frameT []float64) []complex128 {
	n := len(frameT)
	frameF := make([]complex128, n)
	for p := 0; p < n; p++ {
		var re, im float64
		for q := 0; q < n; q++ {
			angle := (2 * pi * float64(p) * float64(q)) / float64(n)
			re += frameT[q] * math.Cos(angle)
			im -= frameT[q] * math.Sin(angle)
		}
		frameF[p] = complex(re, im)
	}
	return frameF
}
