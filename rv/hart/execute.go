/*
 * rvsim - Instruction execution.
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
	"math"
	"math/bits"

	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/decoder"
	"github.com/virtcore/rvsim/rv/instid"
	"github.com/virtcore/rvsim/rv/virtmem"
)

type rollback struct {
	X      [32]uint64
	F      [32]uint64
	PC     uint64
	Priv   csr.Privilege
	Virt   bool
	csrSeq map[csr.Number]uint64
}

func (h *Hart) snapshotForRollback() rollback {
	return rollback{X: h.X, F: h.F, PC: h.PC, Priv: h.Priv, Virt: h.Virt, csrSeq: h.CSR.Snapshot()}
}

func (h *Hart) restore(r rollback) {
	h.X, h.F, h.PC, h.Priv, h.Virt = r.X, r.F, r.PC, r.Priv, r.Virt
	h.CSR.Restore(r.csrSeq)
	h.deltas = nil
}

func (h *Hart) xr(op decoder.Operand) uint64 { return h.X[op.Value] }
func (h *Hart) fr(op decoder.Operand) uint64 { return h.F[op.Value] }

// execute dispatches the decoded instruction and mutates architectural
// state in place; on a caught fault it returns the cause/tval to raise and
// leaves state rollback to the caller (singleStep restores the
// pre-execute snapshot before calling takeTrap).
func (h *Hart) execute(inst *decoder.DecodedInst) (cause uint64, tval uint64, trapped bool) {
	e := inst.Entry()
	switch {
	// Vector dispatch comes first: vector loads/stores also carry the
	// Load/Store flags for the MCM's benefit but execute here.
	case e.Vector:
		return h.executeVector(inst)
	case e.Load:
		return h.executeLoad(inst)
	case e.Store:
		return h.executeStore(inst)
	case e.AMO:
		return h.executeAMO(inst)
	case e.Branch:
		return h.executeBranch(inst)
	case e.Jump:
		return h.executeJump(inst)
	case e.System:
		return h.executeSystem(inst)
	case e.FP:
		return h.executeFP(inst)
	}

	switch inst.ID {
	case instid.Lui:
		h.setX(int(inst.Operands[0].Value), uint64(inst.Operands[1].Value))
	case instid.Auipc:
		h.setX(int(inst.Operands[0].Value), inst.VirtPC+uint64(inst.Operands[1].Value))
	default:
		return h.executeALU(inst)
	}
	return 0, 0, false
}

func (h *Hart) executeALU(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	rd := int(inst.Operands[0].Value)
	a := h.xr(inst.Operands[1])
	var b uint64
	imm := false
	if inst.Operands[2].Type == instid.OpImm {
		b = uint64(inst.Operands[2].Value)
		imm = true
	} else {
		b = h.xr(inst.Operands[2])
	}

	w32 := func(v int64) uint64 { return uint64(int64(int32(v))) }

	switch inst.ID {
	case instid.Addi, instid.Add:
		h.setX(rd, a+b)
	case instid.Sub:
		h.setX(rd, a-b)
	case instid.Slti:
		h.setX(rd, boolu64(int64(a) < int64(b)))
	case instid.Slt:
		h.setX(rd, boolu64(int64(a) < int64(b)))
	case instid.Sltiu, instid.Sltu:
		h.setX(rd, boolu64(a < b))
	case instid.Xori, instid.Xor:
		h.setX(rd, a^b)
	case instid.Ori, instid.Or:
		h.setX(rd, a|b)
	case instid.Andi, instid.And:
		h.setX(rd, a&b)
	case instid.Slli, instid.Sll:
		shamt := b & shiftMask(h.XLEN)
		h.setX(rd, a<<shamt)
	case instid.Srli, instid.Srl:
		shamt := b & shiftMask(h.XLEN)
		v := a
		if h.XLEN == 32 {
			v = uint64(uint32(a))
		}
		h.setX(rd, v>>shamt)
	case instid.Srai, instid.Sra:
		shamt := b & shiftMask(h.XLEN)
		if h.XLEN == 32 {
			h.setX(rd, w32(int64(int32(a))>>shamt))
		} else {
			h.setX(rd, uint64(int64(a)>>shamt))
		}
	case instid.Addiw, instid.Addw:
		h.setX(rd, w32(int64(int32(a))+int64(int32(b))))
	case instid.Subw:
		h.setX(rd, w32(int64(int32(a))-int64(int32(b))))
	case instid.Slliw, instid.Sllw:
		shamt := b & 0x1f
		h.setX(rd, w32(int64(int32(uint32(a)<<shamt))))
	case instid.Srliw, instid.Srlw:
		shamt := b & 0x1f
		h.setX(rd, w32(int64(int32(uint32(a)>>shamt))))
	case instid.Sraiw, instid.Sraw:
		shamt := b & 0x1f
		h.setX(rd, w32(int64(int32(a)>>shamt)))
	case instid.Mul:
		h.setX(rd, a*b)
	case instid.Mulh:
		h.setX(rd, uint64(mulh(int64(a), int64(b))))
	case instid.Mulhsu:
		h.setX(rd, uint64(mulhsu(int64(a), b)))
	case instid.Mulhu:
		hi, _ := bits.Mul64(a, b)
		h.setX(rd, hi)
	case instid.Div:
		h.setX(rd, divS(int64(a), int64(b)))
	case instid.Divu:
		h.setX(rd, divU(a, b))
	case instid.Rem:
		h.setX(rd, remS(int64(a), int64(b)))
	case instid.Remu:
		h.setX(rd, remU(a, b))
	case instid.Mulw:
		h.setX(rd, w32(int64(int32(a))*int64(int32(b))))
	case instid.Divw:
		h.setX(rd, w32(int64(divS(int64(int32(a)), int64(int32(b))))))
	case instid.Divuw:
		h.setX(rd, w32(int64(int32(divU(uint64(uint32(a)), uint64(uint32(b)))))))
	case instid.Remw:
		h.setX(rd, w32(int64(remS(int64(int32(a)), int64(int32(b))))))
	case instid.Remuw:
		h.setX(rd, w32(int64(int32(remU(uint64(uint32(a)), uint64(uint32(b)))))))
	default:
		_ = imm
	}
	return 0, 0, false
}

func shiftMask(xlen int) uint64 {
	if xlen == 32 {
		return 0x1f
	}
	return 0x3f
}

func boolu64(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func mulh(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	prod := hi
	if a < 0 {
		prod -= uint64(b)
	}
	if b < 0 {
		prod -= uint64(a)
	}
	return int64(prod)
}

func mulhsu(a int64, b uint64) int64 {
	hi, _ := bits.Mul64(uint64(a), b)
	if a < 0 {
		hi -= b
	}
	return int64(hi)
}

func divS(a, b int64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	if a == math.MinInt64 && b == -1 {
		return uint64(a)
	}
	return uint64(a / b)
}

func divU(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remS(a, b int64) uint64 {
	if b == 0 {
		return uint64(a)
	}
	if a == math.MinInt64 && b == -1 {
		return 0
	}
	return uint64(a % b)
}

func remU(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

func (h *Hart) executeBranch(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	a, b := h.xr(inst.Operands[0]), h.xr(inst.Operands[1])
	imm := inst.Operands[2].Value
	var taken bool
	switch inst.ID {
	case instid.Beq:
		taken = a == b
	case instid.Bne:
		taken = a != b
	case instid.Blt:
		taken = int64(a) < int64(b)
	case instid.Bge:
		taken = int64(a) >= int64(b)
	case instid.Bltu:
		taken = a < b
	case instid.Bgeu:
		taken = a >= b
	}
	if taken {
		target := inst.VirtPC + uint64(imm)
		if target&0x1 != 0 {
			return causeInstructionAddrMisaligned, target, true
		}
		h.PC = target
		h.pcUpdatedByExecute = true
	}
	return 0, 0, false
}

func (h *Hart) executeJump(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	rd := int(inst.Operands[0].Value)
	var target uint64
	if inst.ID == instid.Jal {
		target = inst.VirtPC + uint64(inst.Operands[1].Value)
	} else {
		base := h.xr(inst.Operands[1])
		target = (base + uint64(inst.Operands[2].Value)) &^ 1
	}
	if target&0x1 != 0 {
		return causeInstructionAddrMisaligned, target, true
	}
	h.setX(rd, inst.VirtPC+uint64(inst.Size))
	h.PC = target
	h.pcUpdatedByExecute = true
	return 0, 0, false
}

func (h *Hart) executeLoad(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	e := inst.Entry()
	base := h.xr(inst.Operands[1])
	addr := base + uint64(inst.Operands[2].Value)

	access := virtmem.Read
	walk := h.translate(addr, access, h.vmConfig())
	if walk.Fault != virtmem.NoFault {
		return causeForFault(walk.Fault, access), addr, true
	}
	if addr%uint64(e.Size) != 0 && !h.mem.Pmas().Lookup(walk.PA).MisalignedOK {
		return causeLoadAddrMisaligned, addr, true
	}
	v, err := h.mem.Read(walk.PA, int(e.Size))
	if err != nil {
		return causeLoadAccessFault, addr, true
	}
	if e.Signed {
		v = signExtendBytes(v, int(e.Size))
	}
	if e.FP {
		if e.Double {
			h.setF(int(inst.Operands[0].Value), v)
		} else {
			h.setF(int(inst.Operands[0].Value), v|0xffffffff00000000)
		}
	} else {
		h.setX(int(inst.Operands[0].Value), v)
	}
	return 0, 0, false
}

func (h *Hart) executeStore(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	e := inst.Entry()
	base := h.xr(inst.Operands[0])
	addr := base + uint64(inst.Operands[2].Value)

	var v uint64
	if e.FP {
		v = h.fr(inst.Operands[1])
	} else {
		v = h.xr(inst.Operands[1])
	}

	walk := h.translate(addr, virtmem.Write, h.vmConfig())
	if walk.Fault != virtmem.NoFault {
		return causeForFault(walk.Fault, virtmem.Write), addr, true
	}
	if addr%uint64(e.Size) != 0 && !h.mem.Pmas().Lookup(walk.PA).MisalignedOK {
		return causeStoreAddrMisaligned, addr, true
	}
	if err := h.mem.Write(walk.PA, int(e.Size), v); err != nil {
		return causeStoreAccessFault, addr, true
	}
	h.deltas = append(h.deltas, Delta{Kind: DeltaMem, Index: int(walk.PA), New: v})
	return 0, 0, false
}

func signExtendBytes(v uint64, size int) uint64 {
	bits := size * 8
	shift := 64 - bits
	return uint64(int64(v<<shift) >> shift)
}

func (h *Hart) executeAMO(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	e := inst.Entry()
	addr := h.xr(inst.Operands[1])
	rd := int(inst.Operands[0].Value)

	// AMO/LR/SC alignment is unconditional: PMA misaligned-access support
	// does not extend to atomics.
	if addr%uint64(e.Size) != 0 {
		return causeStoreAddrMisaligned, addr, true
	}

	switch inst.ID {
	case instid.LrW, instid.LrD:
		walk := h.translate(addr, virtmem.Read, h.vmConfig())
		if walk.Fault != virtmem.NoFault {
			return causeForFault(walk.Fault, virtmem.Read), addr, true
		}
		v, err := h.mem.Read(walk.PA, int(e.Size))
		if err != nil {
			return causeLoadAccessFault, addr, true
		}
		if e.Size == 4 {
			v = signExtendBytes(v, 4)
		}
		h.setX(rd, v)
		h.reservation, h.hasReservation = walk.PA, true
		return 0, 0, false
	case instid.ScW, instid.ScD:
		if !h.hasReservation || h.reservation != addr {
			h.setX(rd, 1)
			return 0, 0, false
		}
		walk := h.translate(addr, virtmem.Write, h.vmConfig())
		if walk.Fault != virtmem.NoFault {
			return causeForFault(walk.Fault, virtmem.Write), addr, true
		}
		if err := h.mem.Write(walk.PA, int(e.Size), h.xr(inst.Operands[2])); err != nil {
			return causeStoreAccessFault, addr, true
		}
		h.hasReservation = false
		h.setX(rd, 0)
		return 0, 0, false
	}

	walk := h.translate(addr, virtmem.Write, h.vmConfig())
	if walk.Fault != virtmem.NoFault {
		return causeForFault(walk.Fault, virtmem.Write), addr, true
	}
	old, err := h.mem.Read(walk.PA, int(e.Size))
	if err != nil {
		return causeLoadAccessFault, addr, true
	}
	if e.Size == 4 {
		old = signExtendBytes(old, 4)
	}
	operand := h.xr(inst.Operands[2])
	result := amoResult(inst.ID, old, operand)
	if err := h.mem.Write(walk.PA, int(e.Size), result); err != nil {
		return causeStoreAccessFault, addr, true
	}
	h.setX(rd, old)
	h.reservation, h.hasReservation = 0, false
	return 0, 0, false
}

func amoResult(id instid.InstId, old, operand uint64) uint64 {
	switch id {
	case instid.AmoswapW, instid.AmoswapD:
		return operand
	case instid.AmoaddW, instid.AmoaddD:
		return old + operand
	case instid.AmoxorW, instid.AmoxorD:
		return old ^ operand
	case instid.AmoandW, instid.AmoandD:
		return old & operand
	case instid.AmoorW, instid.AmoorD:
		return old | operand
	case instid.AmominW, instid.AmominD:
		if int64(old) < int64(operand) {
			return old
		}
		return operand
	case instid.AmomaxW, instid.AmomaxD:
		if int64(old) > int64(operand) {
			return old
		}
		return operand
	case instid.AmominuW, instid.AmominuD:
		if old < operand {
			return old
		}
		return operand
	case instid.AmomaxuW, instid.AmomaxuD:
		if old > operand {
			return old
		}
		return operand
	}
	return old
}

func (h *Hart) executeFP(inst *decoder.DecodedInst) (uint64, uint64, bool) {
	e := inst.Entry()
	rd := int(inst.Operands[0].Value)

	if e.Double {
		a := math.Float64frombits(h.fr(inst.Operands[1]))
		var b float64
		if len(inst.Operands) > 2 && inst.Operands[2].Type == instid.OpFpReg {
			b = math.Float64frombits(h.fr(inst.Operands[2]))
		}
		switch inst.ID {
		case instid.FaddD:
			h.setF(rd, math.Float64bits(a+b))
		case instid.FsubD:
			h.setF(rd, math.Float64bits(a-b))
		case instid.FmulD:
			h.setF(rd, math.Float64bits(a*b))
		case instid.FdivD:
			h.setF(rd, math.Float64bits(a/b))
		case instid.FsqrtD:
			h.setF(rd, math.Float64bits(math.Sqrt(a)))
		case instid.FminD:
			h.setF(rd, math.Float64bits(math.Min(a, b)))
		case instid.FmaxD:
			h.setF(rd, math.Float64bits(math.Max(a, b)))
		case instid.FeqD:
			h.setX(rd, boolu64(a == b))
		case instid.FltD:
			h.setX(rd, boolu64(a < b))
		case instid.FleD:
			h.setX(rd, boolu64(a <= b))
		case instid.FcvtWD:
			h.setX(rd, uint64(int64(int32(a))))
		case instid.FcvtWuD:
			h.setX(rd, uint64(uint32(a)))
		case instid.FcvtDW:
			h.setF(rd, math.Float64bits(float64(int32(h.xr(inst.Operands[1])))))
		case instid.FcvtDWu:
			h.setF(rd, math.Float64bits(float64(uint32(h.xr(inst.Operands[1])))))
		case instid.FcvtSD:
			h.setF(rd, uint64(math.Float32bits(float32(a)))|0xffffffff00000000)
		case instid.FclassD:
			h.setX(rd, fclass(a))
		case instid.FsgnjD, instid.FsgnjnD, instid.FsgnjxD:
			h.setF(rd, math.Float64bits(fsgnj(a, b, inst.ID)))
		}
		return 0, 0, false
	}

	a := math.Float32frombits(uint32(h.fr(inst.Operands[1])))
	var b float32
	if len(inst.Operands) > 2 && inst.Operands[2].Type == instid.OpFpReg {
		b = math.Float32frombits(uint32(h.fr(inst.Operands[2])))
	}
	nanbox := func(v float32) uint64 { return uint64(math.Float32bits(v)) | 0xffffffff00000000 }
	switch inst.ID {
	case instid.FaddS:
		h.setF(rd, nanbox(a+b))
	case instid.FsubS:
		h.setF(rd, nanbox(a-b))
	case instid.FmulS:
		h.setF(rd, nanbox(a*b))
	case instid.FdivS:
		h.setF(rd, nanbox(a/b))
	case instid.FsqrtS:
		h.setF(rd, nanbox(float32(math.Sqrt(float64(a)))))
	case instid.FminS:
		h.setF(rd, nanbox(float32(math.Min(float64(a), float64(b)))))
	case instid.FmaxS:
		h.setF(rd, nanbox(float32(math.Max(float64(a), float64(b)))))
	case instid.FeqS:
		h.setX(rd, boolu64(a == b))
	case instid.FltS:
		h.setX(rd, boolu64(a < b))
	case instid.FleS:
		h.setX(rd, boolu64(a <= b))
	case instid.FcvtWS:
		h.setX(rd, uint64(int64(int32(a))))
	case instid.FcvtWuS:
		h.setX(rd, uint64(uint32(a)))
	case instid.FcvtSW:
		h.setF(rd, nanbox(float32(int32(h.xr(inst.Operands[1])))))
	case instid.FcvtSWu:
		h.setF(rd, nanbox(float32(uint32(h.xr(inst.Operands[1])))))
	case instid.FcvtDS:
		h.setF(rd, math.Float64bits(float64(a)))
	case instid.FmvXW:
		h.setX(rd, uint64(int64(int32(math.Float32bits(a)))))
	case instid.FmvWX:
		h.setF(rd, nanbox(math.Float32frombits(uint32(h.xr(inst.Operands[1])))))
	case instid.FclassS:
		h.setX(rd, fclass(float64(a)))
	case instid.FsgnjS, instid.FsgnjnS, instid.FsgnjxS:
		h.setF(rd, nanbox(float32(fsgnj(float64(a), float64(b), inst.ID))))
	}
	return 0, 0, false
}

func fsgnj(a, b float64, id instid.InstId) float64 {
	sign := math.Signbit(b)
	switch id {
	case instid.FsgnjnS, instid.FsgnjnD:
		sign = !sign
	case instid.FsgnjxS, instid.FsgnjxD:
		sign = math.Signbit(a) != math.Signbit(b)
	}
	return math.Copysign(a, signVal(sign))
}

func signVal(negative bool) float64 {
	if negative {
		return -1
	}
	return 1
}

func fclass(v float64) uint64 {
	switch {
	case math.IsNaN(v):
		return 1 << 9
	case math.IsInf(v, -1):
		return 1 << 0
	case math.IsInf(v, 1):
		return 1 << 7
	case v == 0 && math.Signbit(v):
		return 1 << 3
	case v == 0:
		return 1 << 4
	case v < 0:
		return 1 << 1
	default:
		return 1 << 6
	}
}
