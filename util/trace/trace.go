/*
 * rvsim - Execution trace sink.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package trace is the line-oriented execution trace channel backing --log
// and --csvlog, distinct from slog: slog carries session events (startup,
// shutdown, check failures), this carries the per-retire instruction
// stream. Output is gated by a module bitmask so a run can trace only the
// subsystems under investigation; formatting is skipped entirely when the
// mask does not intersect.
package trace

import (
	"fmt"
	"io"
)

// Module mask bits.
const (
	MaskStep = 1 << iota
	MaskTrap
	MaskWalk
	MaskMcm
	MaskServer
	MaskAll = MaskStep | MaskTrap | MaskWalk | MaskMcm | MaskServer
)

// MaskByName maps the --configfile / debug-option names to mask bits.
var MaskByName = map[string]int{
	"STEP":   MaskStep,
	"TRAP":   MaskTrap,
	"WALK":   MaskWalk,
	"MCM":    MaskMcm,
	"SERVER": MaskServer,
	"ALL":    MaskAll,
}

// Record is one retired-or-trapped instruction boundary.
type Record struct {
	Hart    int
	Index   uint64 // Retire index on this hart, from 0.
	PC      uint64
	NextPC  uint64
	Raw     uint32
	Name    string
	Trapped bool
	Cause   uint64 // Valid when Trapped.
}

// Sink writes gated trace lines to a single writer. Writes are not
// internally locked: hart execution is serialised by the scheduler, so
// records arrive in total retire order already.
type Sink struct {
	out  io.Writer
	mask int
	csv  bool
}

// New builds a Sink over out. With csv set, WriteRecord emits the
// machine-readable comma-separated form the tracereader package parses
// back; otherwise a human-readable line.
func New(out io.Writer, mask int, csv bool) *Sink {
	return &Sink{out: out, mask: mask, csv: csv}
}

// Enabled reports whether any of the given mask bits are being traced, so
// callers can skip building expensive arguments.
func (s *Sink) Enabled(mask int) bool {
	return s != nil && s.out != nil && s.mask&mask != 0
}

// Tracef writes one free-form gated line, prefixed by its module tag.
func (s *Sink) Tracef(module string, mask int, format string, a ...interface{}) {
	if !s.Enabled(mask) {
		return
	}
	fmt.Fprintf(s.out, module+": "+format+"\n", a...)
}

// csvHeader is written once before the first record so a trace file is
// self-describing and the reader can reject files from a different layout.
const csvHeader = "hart,index,pc,nextpc,raw,name,trapped,cause"

// WriteRecord emits one instruction-boundary record, gated by MaskStep
// (or MaskTrap for trapped boundaries).
func (s *Sink) WriteRecord(r Record) {
	mask := MaskStep
	if r.Trapped {
		mask |= MaskTrap
	}
	if !s.Enabled(mask) {
		return
	}
	if s.csv {
		trapped := 0
		if r.Trapped {
			trapped = 1
		}
		fmt.Fprintf(s.out, "%d,%d,%#x,%#x,%#x,%s,%d,%#x\n",
			r.Hart, r.Index, r.PC, r.NextPC, r.Raw, r.Name, trapped, r.Cause)
		return
	}
	if r.Trapped {
		fmt.Fprintf(s.out, "hart %d %6d %08x %08x %-12s trap cause=%#x -> %08x\n",
			r.Hart, r.Index, r.PC, r.Raw, r.Name, r.Cause, r.NextPC)
		return
	}
	fmt.Fprintf(s.out, "hart %d %6d %08x %08x %-12s -> %08x\n",
		r.Hart, r.Index, r.PC, r.Raw, r.Name, r.NextPC)
}

// WriteHeader emits the CSV column header; a no-op for non-CSV sinks.
func (s *Sink) WriteHeader() {
	if s != nil && s.out != nil && s.csv {
		fmt.Fprintln(s.out, csvHeader)
	}
}

// Header returns the CSV column layout, for the reader side.
func Header() string { return csvHeader }
