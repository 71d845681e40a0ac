/*
 * rvsim - System-instruction and trap-return execution.
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
	"github.com/virtcore/rvsim/rv/decoder"
	"github.com/virtcore/rvsim/rv/instid"
)

func (h *Hart) executeSystem(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	switch inst.ID {
	case instid.Fence:
		h.mcm.NotifyFence(h.ID, "fence")
		return 0, 0, false
	case instid.FenceI:
		h.dec.InvalidateAll()
		h.mcm.NotifyFence(h.ID, "fence.i")
		return 0, 0, false
	case instid.Ecall:
		return h.ecallCause(), 0, true
	case instid.Ebreak:
		return causeBreakpoint, inst.VirtPC, true
	case instid.Mret, instid.Sret, instid.Uret:
		h.trapReturn(inst.ID)
		return 0, 0, false
	case instid.Wfi:
		return 0, 0, false // Modelled as a no-op retire; the scheduler may still yield the hart.
	case instid.SfenceVma:
		h.sfenceVMA(inst)
		return 0, 0, false
	case instid.HfenceVvma:
		h.sfenceVMA(inst)
		return 0, 0, false
	case instid.HfenceGvma:
		h.sfenceVMA(inst)
		return 0, 0, false
	case instid.Csrrw, instid.Csrrs, instid.Csrrc, instid.Csrrwi, instid.Csrrsi, instid.Csrrci:
		return h.executeCSR(inst)
	}
	return causeIllegalInstruction, uint64(inst.Raw), true
}

func (h *Hart) ecallCause() uint64 {
	switch h.Priv {
	case csr.M:
		return causeEcallM
	case csr.HS, csr.S:
		if h.Virt {
			return causeEcallVS
		}
		return causeEcallS
	default:
		return causeEcallU
	}
}

// trapReturn pops the exception stack for the target privilege: it
// restores xIE from xPIE, sets xPIE to 1, lowers privilege to xPP, and
// jumps to xepc.
func (h *Hart) trapReturn(id instid.InstId) {
	var statusR, epcR csr.Number
	var newPriv csr.Privilege
	switch id {
	case instid.Mret:
		statusR, epcR = csr.Mstatus, csr.Mepc
	case instid.Sret:
		statusR, epcR = csr.Sstatus, csr.Sepc
	default:
		statusR, epcR = csr.Sstatus, csr.Sepc // URET: U has no MSTATUS-analogue bits in this model; treated via Sstatus' UPIE/UIE should a future revision add them.
	}

	status, _ := h.CSR.Read(statusR, h.ctx())
	if id == instid.Mret {
		mpie := (status >> 7) & 1
		mpp := (status >> 11) & 0x3
		status = status&^(1<<3) | mpie<<3
		status |= 1 << 7
		status &^= 0x3 << 11
		h.writeCSR(statusR, status)
		newPriv = privFromMPP(mpp)
	} else {
		spie := (status >> 5) & 1
		spp := (status >> 8) & 1
		status = status&^(1<<1) | spie<<1
		status |= 1 << 5
		status &^= 1 << 8
		h.writeCSR(statusR, status)
		newPriv = csr.U
		if spp == 1 {
			newPriv = csr.S
		}
	}
	h.Priv = newPriv
	epc, _ := h.CSR.Read(epcR, h.ctx())
	h.PC = epc
	h.pcUpdatedByExecute = true
}

func privFromMPP(mpp uint64) csr.Privilege {
	switch mpp {
	case 0:
		return csr.U
	case 1:
		return csr.S
	default:
		return csr.M
	}
}

func (h *Hart) sfenceVMA(inst *decoder.DecodedInst) {
	var vaddr uint64
	hasVaddr := false
	if rs1 := int(inst.Operands[0].Value); rs1 != 0 {
		vaddr, hasVaddr = h.X[rs1], true
	}
	var asid uint32
	hasASID := false
	if rs2 := int(inst.Operands[1].Value); rs2 != 0 {
		asid, hasASID = uint32(h.X[rs2]), true
	}
	h.vm.InvalidateVMA(vaddr, hasVaddr, asid, hasASID)
	h.dec.InvalidateAll()
	h.mcm.NotifyFence(h.ID, "sfence.vma")
}

func (h *Hart) executeCSR(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	n := csr.Number(inst.Operands[1].Value)
	rd := int(inst.Operands[0].Value)

	old, ok := h.CSR.Read(n, h.ctx())
	if !ok {
		return causeIllegalInstruction, uint64(inst.Raw), true
	}

	var operand uint64
	if inst.Operands[2].Type == instid.OpImm {
		operand = uint64(inst.Operands[2].Value)
	} else {
		operand = h.xr(inst.Operands[2])
	}

	var newVal uint64
	writes := true
	switch inst.ID {
	case instid.Csrrw, instid.Csrrwi:
		newVal = operand
	case instid.Csrrs, instid.Csrrsi:
		newVal = old | operand
		writes = operand != 0
	case instid.Csrrc, instid.Csrrci:
		newVal = old &^ operand
		writes = operand != 0
	}

	if writes {
		if !h.CSR.Write(n, newVal, h.ctx()) {
			return causeIllegalInstruction, uint64(inst.Raw), true
		}
		h.deltas = append(h.deltas, Delta{Kind: DeltaCSR, Index: int(n), Old: old, New: newVal})
	}
	h.setX(rd, old)
	return 0, 0, false
}
