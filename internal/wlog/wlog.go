// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package wlog provides the leveled logging glue shared by the tick,
// synctask and ptask packages, wrapping github.com/intuitivelabs/slog.
package wlog

import (
	"fmt"

	"github.com/intuitivelabs/slog"
)

// New creates a Log instance prefixed with name, at the default level
// (warnings and above enabled, debug disabled).
func New(name string) *Log {
	l := &Log{}
	l.L.Init(name, slog.LWARN, slog.LWARN|slog.LERR|slog.LBUG|slog.LPANIC)
	return l
}

// Log is a thin wrapper around slog.Log exposing the DBG/ERR/BUG/PANIC
// calling convention used throughout this module (and, previously, by
// the teacher package this was adapted from).
type Log struct {
	L slog.Log
}

func (l *Log) DBGon() bool { return l.L.DBGon() }
func (l *Log) ERRon() bool { return l.L.ERRon() }

func (l *Log) DBG(f string, args ...interface{}) {
	l.L.LogMux(slog.LDBG, 2, "", f, args...)
}

func (l *Log) ERR(f string, args ...interface{}) {
	l.L.LogMux(slog.LERR, 2, "", f, args...)
}

func (l *Log) BUG(f string, args ...interface{}) {
	l.L.LogMux(slog.LBUG, 2, "", f, args...)
}

// PANIC logs at the highest level and then panics: used exclusively for
// internal invariant violations that indicate a bug in this module, never
// for externally triggerable conditions (those are reported as errors).
func (l *Log) PANIC(f string, args ...interface{}) {
	l.L.LogMux(slog.LPANIC, 2, "", f, args...)
	panic(fmt.Sprintf(f, args...))
}
