/*
 * rvsim - Top-level System: owns every Hart, the shared Memory and the
 * global Mcm engine.
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

// Package system assembles the per-hart and global pieces (hart.Hart,
// memory.Memory, mcm.Engine) into the single System a session runs: every
// hart reaches shared Memory and the Mcm engine through a non-owning
// pointer handed to it at construction, so there is no ownership cycle and
// no package-level state, per the core's no-globals discipline.
package system

import (
	"fmt"

	"github.com/virtcore/rvsim/rv/hart"
	"github.com/virtcore/rvsim/rv/mcm"
	"github.com/virtcore/rvsim/rv/memory"
)

// Config describes the hardware shape of a System, as parsed from the CLI
// or the --configfile JSON document.
type Config struct {
	Harts      int
	XLEN       int // 32 or 64.
	MemorySize uint64
	ResetPC    uint64
	Mcm        mcm.Config
	McmEnabled bool
}

// System is every piece of architectural state a session drives: the harts,
// the shared physical memory, and (if enabled) the memory-consistency
// checker. It has no behavior of its own beyond construction and reset; the
// scheduler and server packages drive it.
type System struct {
	Config Config
	Harts  []*hart.Hart
	Memory *memory.Memory
	Mcm    *mcm.Engine // nil unless Config.McmEnabled.
}

// New builds a System with cfg.Harts harts, each reset to cfg.ResetPC, over
// a freshly allocated cfg.MemorySize physical address space.
func New(cfg Config) (*System, error) {
	if cfg.Harts <= 0 {
		return nil, fmt.Errorf("system: hart count must be positive, got %d", cfg.Harts)
	}
	if cfg.XLEN != 32 && cfg.XLEN != 64 {
		return nil, fmt.Errorf("system: unsupported XLEN %d", cfg.XLEN)
	}
	if cfg.MemorySize == 0 {
		return nil, fmt.Errorf("system: memory size must be nonzero")
	}

	s := &System{Config: cfg, Memory: memory.New(cfg.MemorySize)}

	var notifier hart.McmNotifier
	if cfg.McmEnabled {
		s.Mcm = mcm.New(s.Memory, cfg.Mcm)
		notifier = s.Mcm
	} else {
		notifier = noopNotifier{}
	}

	s.Harts = make([]*hart.Hart, cfg.Harts)
	for i := range s.Harts {
		h := hart.New(i, cfg.XLEN, s.Memory, notifier)
		h.Reset(cfg.ResetPC)
		s.Harts[i] = h
	}
	return s, nil
}

// Hart returns the hart at index i, or nil if out of range.
func (s *System) Hart(i int) *hart.Hart {
	if i < 0 || i >= len(s.Harts) {
		return nil
	}
	return s.Harts[i]
}

// Reset restores every hart to its power-on state and resets the PC of
// each to resetPC; memory contents and MCM checker state are untouched, as
// the loader is responsible for re-populating memory after a Reset.
func (s *System) Reset(resetPC uint64) {
	for _, h := range s.Harts {
		h.Reset(resetPC)
	}
}

// noopNotifier backs a System built with Mcm checking disabled.
type noopNotifier struct{}

func (noopNotifier) NotifyFence(hart int, kind string) {}
