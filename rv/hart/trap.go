/*
 * rvsim - Trap delivery and delegation.
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

// Exception and interrupt cause codes, architecturally numbered.
const (
	causeInstructionAddrMisaligned = 0
	causeInstructionAccessFault    = 1
	causeIllegalInstruction        = 2
	causeBreakpoint                = 3
	causeLoadAddrMisaligned        = 4
	causeLoadAccessFault           = 5
	causeStoreAddrMisaligned       = 6
	causeStoreAccessFault          = 7
	causeEcallU                    = 8
	causeEcallS                    = 9
	causeEcallVS                   = 10
	causeEcallM                    = 11
	causeInstructionPageFault      = 12
	causeLoadPageFault             = 13
	causeStorePageFault            = 15
	causeInstructionGuestPageFault = 20
	causeLoadGuestPageFault        = 21
	causeVirtualInstruction        = 22
	causeStoreGuestPageFault       = 23
)

const interruptBit = uint64(1) << 63

// nmiVector is a fixed NMI entry point; this core does not model a
// configurable mnmivec CSR.
const nmiVector = 0

func causeForFault(fault virtmem.FaultKind, access virtmem.Access) uint64 {
	switch access {
	case virtmem.Fetch:
		if fault == virtmem.GuestPageFault {
			return causeInstructionGuestPageFault
		}
		return causeInstructionPageFault
	case virtmem.Write:
		if fault == virtmem.GuestPageFault {
			return causeStoreGuestPageFault
		}
		return causeStorePageFault
	default:
		if fault == virtmem.GuestPageFault {
			return causeLoadGuestPageFault
		}
		return causeLoadPageFault
	}
}

// pendingInterrupt reports the highest-priority enabled, pending interrupt:
// interrupts not delegated by mideleg (taken in M-mode, gated by MIE) are
// checked before those mideleg delegates (taken in S-mode, gated by SIE).
// hideleg is not consulted here, so there is no separate VS level.
func (h *Hart) pendingInterrupt() (cause uint64, ok bool) {
	mip, _ := h.CSR.Read(csr.Mip, h.ctx())
	mie, _ := h.CSR.Read(csr.Mie, h.ctx())
	pending := mip & mie
	if pending == 0 {
		return 0, false
	}
	mstatus, _ := h.CSR.Read(csr.Mstatus, h.ctx())
	mideleg, _ := h.CSR.Read(csr.Mideleg, h.ctx())

	globalM := h.Priv != csr.M || mstatus&(1<<3) != 0 // MIE
	if globalM {
		if bit, ok := highestSetBit(pending &^ mideleg); ok {
			return interruptBit | uint64(bit), true
		}
	}

	globalS := h.Priv == csr.U || (h.Priv == csr.S && mstatus&(1<<1) != 0) // SIE
	if globalS {
		if bit, ok := highestSetBit(pending & mideleg); ok {
			return interruptBit | uint64(bit), true
		}
	}
	return 0, false
}

func highestSetBit(bits uint64) (int, bool) {
	priority := []int{11, 3, 7, 9, 1, 5, 13, 12, 10, 2, 6}
	for _, b := range priority {
		if bits&(1<<uint(b)) != 0 {
			return b, true
		}
	}
	return 0, false
}

// takeTrap redirects PC to the delegated trap vector and updates the
// xepc/xcause/xtval/xstatus CSRs of whichever privilege level is taking
// the trap, per the delegation chain medeleg/mideleg (and hedeleg/hideleg
// when virtualized).
func (h *Hart) takeTrap(cause uint64, tval uint64, isInterrupt bool) {
	h.lastTrapped = true
	h.lastCause = cause
	target := h.delegationTarget(cause, isInterrupt)

	epc, causeR, tvecR, statusR := epcFor(target), causeFor(target), tvecFor(target), statusFor(target)

	h.writeCSR(epc, h.lastPC)
	h.writeCSR(causeR, cause)
	h.setTval(target, tval)

	status, _ := h.CSR.Read(statusR, h.ctx())
	status = applyTrapStatus(status, target)
	h.writeCSR(statusR, status)

	tvec, _ := h.CSR.Read(tvecR, h.ctx())
	base := tvec &^ 0x3
	mode := tvec & 0x3
	if mode == 1 && isInterrupt {
		base += 4 * (cause &^ interruptBit)
	}
	h.PC = base
	h.pcUpdatedByExecute = true
	h.Priv = privFor(target)
}

// takeNmi redirects to the fixed NMI vector unconditionally, ignoring
// delegation and xIE masking entirely: an NMI always lands in M-mode.
func (h *Hart) takeNmi(cause uint64) {
	h.lastTrapped = true
	h.lastCause = cause
	h.writeCSR(csr.Mepc, h.lastPC)
	h.writeCSR(csr.Mcause, cause)
	status, _ := h.CSR.Read(csr.Mstatus, h.ctx())
	status = applyTrapStatus(status, csr.M)
	h.writeCSR(csr.Mstatus, status)
	h.PC = nmiVector
	h.pcUpdatedByExecute = true
	h.Priv = csr.M
}

// delegationTarget walks medeleg/mideleg (and hedeleg/hideleg when
// virtualized) to find the lowest privilege the current configuration
// delegates this cause to; it never delegates below the level that is
// currently executing.
func (h *Hart) delegationTarget(cause uint64, isInterrupt bool) csr.Privilege {
	bit := cause &^ interruptBit
	medeleg, _ := h.CSR.Read(csr.Medeleg, h.ctx())
	mideleg, _ := h.CSR.Read(csr.Mideleg, h.ctx())
	deleg := medeleg
	if isInterrupt {
		deleg = mideleg
	}
	if h.Priv == csr.M || deleg&(1<<bit) == 0 {
		return csr.M
	}
	if h.Virt {
		hedeleg, _ := h.CSR.Read(csr.Hedeleg, h.ctx())
		hideleg, _ := h.CSR.Read(csr.Hideleg, h.ctx())
		hdeleg := hedeleg
		if isInterrupt {
			hdeleg = hideleg
		}
		if hdeleg&(1<<bit) != 0 {
			return csr.VS
		}
		return csr.HS
	}
	return csr.S
}

func epcFor(p csr.Privilege) csr.Number {
	switch p {
	case csr.S, csr.HS:
		return csr.Sepc
	case csr.VS:
		return csr.Vsepc
	default:
		return csr.Mepc
	}
}

func causeFor(p csr.Privilege) csr.Number {
	switch p {
	case csr.S, csr.HS:
		return csr.Scause
	case csr.VS:
		return csr.Vscause
	default:
		return csr.Mcause
	}
}

func tvecFor(p csr.Privilege) csr.Number {
	switch p {
	case csr.S, csr.HS:
		return csr.Stvec
	case csr.VS:
		return csr.Vstvec
	default:
		return csr.Mtvec
	}
}

func statusFor(p csr.Privilege) csr.Number {
	switch p {
	case csr.S, csr.HS:
		return csr.Sstatus
	case csr.VS:
		return csr.Vsstatus
	default:
		return csr.Mstatus
	}
}

func privFor(p csr.Privilege) csr.Privilege {
	if p == csr.HS {
		return csr.S
	}
	return p
}

func (h *Hart) setTval(target csr.Privilege, tval uint64) {
	switch target {
	case csr.S, csr.HS:
		h.writeCSR(csr.Stval, tval)
	case csr.VS:
		h.writeCSR(csr.Vstval, tval)
	default:
		h.writeCSR(csr.Mtval, tval)
	}
}

// applyTrapStatus moves xIE into xPIE and clears xIE, per the architected
// trap-entry status update for the target privilege's status register.
func applyTrapStatus(status uint64, target csr.Privilege) uint64 {
	switch target {
	case csr.S, csr.HS, csr.VS:
		ie := (status >> 1) & 1
		status = status &^ (1 << 5)
		status |= ie << 5
		status &^= 1 << 1
	default:
		ie := (status >> 3) & 1
		status = status &^ (1 << 7)
		status |= ie << 7
		status &^= 1 << 3
	}
	return status
}
