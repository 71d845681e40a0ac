/*
 * rvsim - External-control-plane accessors.
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

package hart

import (
	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/virtmem"
)

// This file holds the accessors the external-control Server drives a Hart
// through directly, as opposed to the instruction-execution path in
// execute.go/hart.go. The one exception is translate, which singleStep and
// the load/store handlers also use.

// PeekX/PeekF/PeekV/PeekCSR read architectural state without side-effects,
// for the Peek server command.
func (h *Hart) PeekX(i int) uint64 { return h.X[i&31] }
func (h *Hart) PeekF(i int) uint64 { return h.F[i&31] }

// PeekV returns a copy of vector register i's bytes.
func (h *Hart) PeekV(i int) []byte {
	return append([]byte(nil), h.V[i&31]...)
}

func (h *Hart) PeekCSR(n csr.Number) (uint64, bool) {
	return h.CSR.Read(n, h.ctx())
}

// PokeX/PokeF/PokeCSR write architectural state bypassing write-masks, for
// the Poke server command (test-bench override).
func (h *Hart) PokeX(i int, v uint64) {
	if i == 0 || i < 0 || i > 31 {
		return
	}
	h.X[i] = v
}

func (h *Hart) PokeF(i int, v uint64) {
	if i < 0 || i > 31 {
		return
	}
	h.F[i] = v
}

// PokeV overwrites vector register i's low len(data) bytes; excess input
// bytes beyond the register length are dropped.
func (h *Hart) PokeV(i int, data []byte) {
	if i < 0 || i > 31 {
		return
	}
	copy(h.V[i], data)
}

func (h *Hart) PokeCSR(n csr.Number, v uint64) bool {
	return h.CSR.Poke(n, v, h.ctx())
}

// PokePC forces the program counter, bypassing the normal PC+=size advance.
func (h *Hart) PokePC(pc uint64) { h.PC = pc }

// Translate resolves a virtual address for the given access and the hart's
// current privilege/virtualization context, for the Translate server
// command. It does not consult or update the decode cache.
func (h *Hart) Translate(va uint64, access virtmem.Access) virtmem.Walk {
	return h.translate(va, access, h.vmConfig())
}

// translate is the single choke point every instruction-path and
// control-plane translation goes through, so lastWalk (the PageTableWalk
// server command's data source) always reflects the most recent walk
// regardless of who requested it.
func (h *Hart) translate(va uint64, access virtmem.Access, cfg virtmem.Config) virtmem.Walk {
	walk := h.vm.Translate(va, access, cfg)
	h.lastWalk = walk
	return walk
}

// LastWalk returns the most recent page-table walk performed by this hart,
// for the PageTableWalk server command.
func (h *Hart) LastWalk() virtmem.Walk { return h.lastWalk }

// CancelLr drops any outstanding LR/SC reservation, per the CancelLr
// server command.
func (h *Hart) CancelLr() { h.hasReservation = false }

// CancelDiv is a no-op: this is an instruction-accurate core with no
// modelled long-latency divide pipeline to abort. The command is still
// accepted so a test-bench exercising the full protocol surface does not
// need to special-case this core.
func (h *Hart) CancelDiv() {}

// Nmi injects a non-maskable interrupt, delivered regardless of xIE
// masking on the next singleStep boundary: it is taken immediately,
// ahead of any maskable pending interrupt.
func (h *Hart) Nmi(cause uint64) {
	h.nmiPending = true
	h.nmiCause = cause
}

// ClearNmi withdraws a pending NMI that has not yet been taken.
func (h *Hart) ClearNmi() { h.nmiPending = false }

// InjectException forces the hart to take the given exception as if the
// faulting access had occurred at tval, for the InjectException server
// command. It does not itself retire or execute an instruction.
func (h *Hart) InjectException(cause uint64, tval uint64) {
	h.takeTrap(cause, tval, false)
}

// CheckInterrupt reports whether an interrupt (NMI or ordinary) would be
// taken on the next Step and, if so, its cause and target privilege, for
// the CheckInterrupt server command. It has no side effect.
func (h *Hart) CheckInterrupt() (cause uint64, target csr.Privilege, deliverable bool) {
	if h.nmiPending {
		return h.nmiCause, csr.M, true
	}
	cause, ok := h.pendingInterrupt()
	if !ok {
		return 0, 0, false
	}
	return cause, h.delegationTarget(cause, true), true
}

// Special identifies one of the non-register resources Peek can address:
// the current and previous privilege mode, the accrued FP flags, whether
// the last Step trapped, and the pending-but-masked interrupt set.
type Special int

const (
	SpecialPrivMode Special = iota
	SpecialPrevPrivMode
	SpecialFpFlags
	SpecialTrap
	SpecialDeferredInterrupts
)

// PeekSpecial reads one of the Special resources without side-effects.
func (h *Hart) PeekSpecial(s Special) (uint64, bool) {
	switch s {
	case SpecialPrivMode:
		return uint64(h.Priv), true
	case SpecialPrevPrivMode:
		mstatus, _ := h.CSR.Read(csr.Mstatus, h.ctx())
		return (mstatus >> 11) & 0x3, true
	case SpecialFpFlags:
		fflags, _ := h.CSR.Read(csr.Fflags, h.ctx())
		return fflags, true
	case SpecialTrap:
		if h.lastTrapped {
			return 1, true
		}
		return 0, true
	case SpecialDeferredInterrupts:
		mip, _ := h.CSR.Read(csr.Mip, h.ctx())
		mie, _ := h.CSR.Read(csr.Mie, h.ctx())
		return mip &^ mie, true
	}
	return 0, false
}

// SnapshotState and RestoreState expose the pieces of a Hart's state a
// snapshot must serialize/restore beyond what CSR.Snapshot/Restore already
// covers: integer and FP registers, PC, privilege/virtualization mode, the
// LR/SC reservation, and the CSR file itself.
type SnapshotState struct {
	X, F               [32]uint64
	V                  [32][]byte
	PC                 uint64
	Priv               csr.Privilege
	Virt, DebugMode    bool
	HasReservation     bool
	Reservation        uint64
	NmiPending         bool
	NmiCause           uint64
	Retired, Executed  uint64
	CSRs               map[csr.Number]uint64
}

func (h *Hart) SnapshotState() SnapshotState {
	s := SnapshotState{
		X: h.X, F: h.F, PC: h.PC, Priv: h.Priv, Virt: h.Virt, DebugMode: h.DebugMode,
		HasReservation: h.hasReservation, Reservation: h.reservation,
		NmiPending: h.nmiPending, NmiCause: h.nmiCause,
		Retired: h.retired, Executed: h.executed, CSRs: h.CSR.Snapshot(),
	}
	for i := range h.V {
		s.V[i] = append([]byte(nil), h.V[i]...)
	}
	return s
}

func (h *Hart) RestoreState(s SnapshotState) {
	h.X, h.F, h.PC = s.X, s.F, s.PC
	for i := range h.V {
		if s.V[i] != nil {
			copy(h.V[i], s.V[i])
		}
	}
	h.Priv, h.Virt, h.DebugMode = s.Priv, s.Virt, s.DebugMode
	h.hasReservation, h.reservation = s.HasReservation, s.Reservation
	h.nmiPending, h.nmiCause = s.NmiPending, s.NmiCause
	h.retired, h.executed = s.Retired, s.Executed
	h.CSR.Restore(s.CSRs)
	h.vm.InvalidateAllTLB()
	h.dec.InvalidateAll()
}

// EnterDebug/ExitDebug push/pop debug mode per DCSR semantics: a debugger
// halting the hart does not itself change architectural register state.
func (h *Hart) EnterDebug(cause uint32) {
	h.DebugMode = true
	h.dcsrCause = cause
}

func (h *Hart) ExitDebug() { h.DebugMode = false }
