/*
 * rvsim - Instruction decoder.
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

// Package decoder turns a fetched 16/32-bit opcode into a DecodedInst. The
// dispatch is conceptually two nested switches: opcode-major (low 7 bits)
// picks a handler group, then funct3/funct7/imm12 within that group picks
// the concrete InstId. The decoder never faults; an unrecognized encoding
// decodes to instid.Illegal and the hart raises the architectural
// illegal-instruction exception downstream.
package decoder

import (
	"github.com/virtcore/rvsim/rv/instid"
)

// DecodedInst is immutable after construction.
type DecodedInst struct {
	ID       instid.InstId
	Raw      uint32
	Size     uint8 // 2 or 4 bytes.
	VirtPC   uint64
	PhysPC   uint64
	Operands [4]Operand
}

// Operand carries the resolved register number / csr number / immediate
// value for one operand slot of the decoded instruction.
type Operand struct {
	Type  instid.OperandType
	Mode  instid.OperandMode
	Value int64 // Register/CSR number, or the sign-extended immediate.
}

func (d *DecodedInst) Entry() *instid.Entry { return instid.GetEntry(d.ID) }

// cacheLine memoises the last decode for a PC slot, amortising decode cost
// over loops the way a direct-mapped instruction cache would.
type cacheLine struct {
	valid bool
	pc    uint64
	raw   uint32
	inst  DecodedInst
}

const cacheBits = 10 // 1024-entry direct-mapped decode cache.
const cacheSize = 1 << cacheBits
const cacheMask = cacheSize - 1

// Decoder holds the direct-mapped decode cache. Not shared across harts: a
// hart owns its own Decoder so cache state does not leak between harts with
// overlapping PCs.
type Decoder struct {
	cache [cacheSize]cacheLine
}

// New returns a decoder with an empty cache.
func New() *Decoder {
	return &Decoder{}
}

// Decode resolves a raw fetched word (already read as little-endian) into a
// DecodedInst. virtPC/physPC are recorded for trace purposes only.
func (dec *Decoder) Decode(raw uint32, virtPC, physPC uint64) DecodedInst {
	slot := (virtPC >> 1) & cacheMask
	line := &dec.cache[slot]
	if line.valid && line.pc == virtPC && line.raw == raw {
		inst := line.inst
		inst.VirtPC = virtPC
		inst.PhysPC = physPC
		return inst
	}

	inst := decode(raw)
	inst.VirtPC = virtPC
	inst.PhysPC = physPC

	line.valid = true
	line.pc = virtPC
	line.raw = raw
	line.inst = inst
	return inst
}

// Invalidate drops the cache line for a single PC slot. The hart's fence
// handlers use InvalidateAll instead.
func (dec *Decoder) Invalidate(virtPC uint64) {
	slot := (virtPC >> 1) & cacheMask
	dec.cache[slot].valid = false
}

// InvalidateAll drops the whole cache; called on FENCE.I.
func (dec *Decoder) InvalidateAll() {
	for i := range dec.cache {
		dec.cache[i].valid = false
	}
}

func decode(raw uint32) DecodedInst {
	if raw&0x3 != 0x3 {
		return decodeCompressed(uint16(raw))
	}

	opcode7 := raw & 0x7f
	funct3 := (raw >> 12) & 0x7
	funct7 := (raw >> 25) & 0x7f
	funct5 := (raw >> 27) & 0x1f
	rs2 := (raw >> 20) & 0x1f

	id := instid.Illegal

	switch opcode7 {
	case 0x37:
		id = instid.Lui
	case 0x17:
		id = instid.Auipc
	case 0x6f:
		id = instid.Jal
	case 0x67:
		if funct3 == 0 {
			id = instid.Jalr
		}
	case 0x63:
		id = map[uint32]instid.InstId{
			0x0: instid.Beq, 0x1: instid.Bne, 0x4: instid.Blt,
			0x5: instid.Bge, 0x6: instid.Bltu, 0x7: instid.Bgeu,
		}[funct3]
	case 0x03:
		id = map[uint32]instid.InstId{
			0x0: instid.Lb, 0x1: instid.Lh, 0x2: instid.Lw, 0x3: instid.Ld,
			0x4: instid.Lbu, 0x5: instid.Lhu, 0x6: instid.Lwu,
		}[funct3]
	case 0x23:
		id = map[uint32]instid.InstId{
			0x0: instid.Sb, 0x1: instid.Sh, 0x2: instid.Sw, 0x3: instid.Sd,
		}[funct3]
	case 0x13:
		switch funct3 {
		case 0x0:
			id = instid.Addi
		case 0x2:
			id = instid.Slti
		case 0x3:
			id = instid.Sltiu
		case 0x4:
			id = instid.Xori
		case 0x6:
			id = instid.Ori
		case 0x7:
			id = instid.Andi
		case 0x1:
			id = instid.Slli
		case 0x5:
			if funct7&0x7f == 0x20 {
				id = instid.Srai
			} else {
				id = instid.Srli
			}
		}
	case 0x33:
		id = decodeAluReg(funct3, funct7)
	case 0x1b:
		switch funct3 {
		case 0x0:
			id = instid.Addiw
		case 0x1:
			id = instid.Slliw
		case 0x5:
			if funct7 == 0x20 {
				id = instid.Sraiw
			} else {
				id = instid.Srliw
			}
		}
	case 0x3b:
		id = decodeAluRegW(funct3, funct7)
	case 0x0f:
		if funct3 == 0 {
			id = instid.Fence
		} else if funct3 == 1 {
			id = instid.FenceI
		}
	case 0x73:
		id = decodeSystem(raw, funct3, funct7, rs2)
	case 0x2f:
		id = decodeAMO(funct3, funct5)
	case 0x07:
		switch funct3 {
		case 0:
			// Vector unit-stride byte load: nf/mew/mop/lumop must all be
			// zero; only the vm bit may vary.
			if raw&0xfdf0707f == 0x00000007 {
				id = instid.Vle8V
			}
		case 2:
			id = instid.Flw
		case 3:
			id = instid.Fld
		}
	case 0x27:
		switch funct3 {
		case 0:
			if raw&0xfdf0707f == 0x00000027 {
				id = instid.Vse8V
			}
		case 2:
			id = instid.Fsw
		case 3:
			id = instid.Fsd
		}
	case 0x53:
		id = decodeFP(funct7, rs2, funct3)
	case 0x57:
		if funct3 == 7 && raw>>31 == 0 {
			id = instid.Vsetvli
		} else if funct3 == 0 && funct7>>1 == 0 {
			// OPIVV funct6 0 with either vm value is vadd.vv.
			id = instid.VaddVV
		}
	}

	inst := DecodedInst{ID: id, Raw: raw, Size: 4}
	if id == instid.Illegal {
		return inst
	}
	fillOperands(&inst)
	return inst
}

func decodeAluReg(funct3, funct7 uint32) instid.InstId {
	switch funct7 {
	case 0x00:
		return map[uint32]instid.InstId{
			0x0: instid.Add, 0x1: instid.Sll, 0x2: instid.Slt, 0x3: instid.Sltu,
			0x4: instid.Xor, 0x5: instid.Srl, 0x6: instid.Or, 0x7: instid.And,
		}[funct3]
	case 0x20:
		switch funct3 {
		case 0x0:
			return instid.Sub
		case 0x5:
			return instid.Sra
		}
	case 0x01:
		return map[uint32]instid.InstId{
			0x0: instid.Mul, 0x1: instid.Mulh, 0x2: instid.Mulhsu, 0x3: instid.Mulhu,
			0x4: instid.Div, 0x5: instid.Divu, 0x6: instid.Rem, 0x7: instid.Remu,
		}[funct3]
	}
	return instid.Illegal
}

func decodeAluRegW(funct3, funct7 uint32) instid.InstId {
	switch funct7 {
	case 0x00:
		switch funct3 {
		case 0x0:
			return instid.Addw
		case 0x1:
			return instid.Sllw
		case 0x5:
			return instid.Srlw
		}
	case 0x20:
		switch funct3 {
		case 0x0:
			return instid.Subw
		case 0x5:
			return instid.Sraw
		}
	case 0x01:
		return map[uint32]instid.InstId{
			0x0: instid.Mulw, 0x4: instid.Divw, 0x5: instid.Divuw,
			0x6: instid.Remw, 0x7: instid.Remuw,
		}[funct3]
	}
	return instid.Illegal
}

func decodeAMO(funct3, funct5 uint32) instid.InstId {
	var table32, table64 map[uint32]instid.InstId
	table32 = map[uint32]instid.InstId{
		0x02: instid.LrW, 0x03: instid.ScW, 0x01: instid.AmoswapW, 0x00: instid.AmoaddW,
		0x04: instid.AmoxorW, 0x0c: instid.AmoandW, 0x08: instid.AmoorW,
		0x10: instid.AmominW, 0x14: instid.AmomaxW, 0x18: instid.AmominuW, 0x1c: instid.AmomaxuW,
	}
	table64 = map[uint32]instid.InstId{
		0x02: instid.LrD, 0x03: instid.ScD, 0x01: instid.AmoswapD, 0x00: instid.AmoaddD,
		0x04: instid.AmoxorD, 0x0c: instid.AmoandD, 0x08: instid.AmoorD,
		0x10: instid.AmominD, 0x14: instid.AmomaxD, 0x18: instid.AmominuD, 0x1c: instid.AmomaxuD,
	}
	switch funct3 {
	case 0x2:
		return table32[funct5]
	case 0x3:
		return table64[funct5]
	}
	return instid.Illegal
}

func decodeSystem(raw, funct3, funct7, rs2 uint32) instid.InstId {
	if funct3 != 0 {
		return map[uint32]instid.InstId{
			0x1: instid.Csrrw, 0x2: instid.Csrrs, 0x3: instid.Csrrc,
			0x5: instid.Csrrwi, 0x6: instid.Csrrsi, 0x7: instid.Csrrci,
		}[funct3]
	}
	switch raw {
	case 0x00000073:
		return instid.Ecall
	case 0x00100073:
		return instid.Ebreak
	case 0x00200073:
		return instid.Uret
	case 0x10200073:
		return instid.Sret
	case 0x10500073:
		return instid.Wfi
	case 0x30200073:
		return instid.Mret
	}
	switch funct7 {
	case 0x09:
		return instid.SfenceVma
	case 0x11:
		return instid.HfenceVvma
	case 0x31:
		return instid.HfenceGvma
	}
	return instid.Illegal
}

func decodeFP(funct7, rs2, funct3 uint32) instid.InstId {
	switch funct7 {
	case 0x00:
		return instid.FaddS
	case 0x04:
		return instid.FsubS
	case 0x08:
		return instid.FmulS
	case 0x0c:
		return instid.FdivS
	case 0x01:
		return instid.FaddD
	case 0x05:
		return instid.FsubD
	case 0x09:
		return instid.FmulD
	case 0x0d:
		return instid.FdivD
	case 0x2c:
		return instid.FsqrtS
	case 0x2d:
		return instid.FsqrtD
	case 0x10:
		return map[uint32]instid.InstId{0x0: instid.FsgnjS, 0x1: instid.FsgnjnS, 0x2: instid.FsgnjxS}[funct3]
	case 0x11:
		return map[uint32]instid.InstId{0x0: instid.FsgnjD, 0x1: instid.FsgnjnD, 0x2: instid.FsgnjxD}[funct3]
	case 0x14:
		if funct3 == 0 {
			return instid.FminS
		}
		return instid.FmaxS
	case 0x15:
		if funct3 == 0 {
			return instid.FminD
		}
		return instid.FmaxD
	case 0x60:
		if rs2 == 0 {
			return instid.FcvtWS
		}
		return instid.FcvtWuS
	case 0x61:
		if rs2 == 0 {
			return instid.FcvtWD
		}
		return instid.FcvtWuD
	case 0x68:
		if rs2 == 0 {
			return instid.FcvtSW
		}
		return instid.FcvtSWu
	case 0x69:
		if rs2 == 0 {
			return instid.FcvtDW
		}
		return instid.FcvtDWu
	case 0x20:
		return instid.FcvtSD
	case 0x21:
		return instid.FcvtDS
	case 0x50:
		return map[uint32]instid.InstId{0x2: instid.FeqS, 0x1: instid.FltS, 0x0: instid.FleS}[funct3]
	case 0x51:
		return map[uint32]instid.InstId{0x2: instid.FeqD, 0x1: instid.FltD, 0x0: instid.FleD}[funct3]
	case 0x70:
		if funct3 == 0 {
			return instid.FmvXW
		}
		return instid.FclassS
	case 0x78:
		if funct3 == 0 {
			return instid.FmvWX
		}
	case 0x71:
		return instid.FclassD
	}
	return instid.Illegal
}

// decodeCompressed handles the 16-bit RVC subset. Only C.NOP is modelled as
// a full instruction; everything else that is not configured decodes to
// Illegal, and the hart raises the illegal-instruction exception for it.
// A fuller RVC table expands each compressed form
// to the InstId of its 32-bit equivalent the same way this function does
// for C.NOP's equivalent ADDI x0,x0,0 — additional entries are a matter of
// adding cases here, not restructuring the decoder.
func decodeCompressed(raw uint16) DecodedInst {
	if raw == 0x0001 {
		inst := DecodedInst{ID: instid.CNop, Raw: uint32(raw), Size: 2}
		return inst
	}
	return DecodedInst{ID: instid.Illegal, Raw: uint32(raw), Size: 2}
}

func fillOperands(inst *DecodedInst) {
	raw := inst.Raw
	e := inst.Entry()

	rd := (raw >> 7) & 0x1f
	rs1 := (raw >> 15) & 0x1f
	rs2 := (raw >> 20) & 0x1f

	switch e.Format {
	case instid.FmtR:
		inst.Operands[0] = operandFor(e.Operands[0], int64(rd))
		inst.Operands[1] = operandFor(e.Operands[1], int64(rs1))
		if e.Operands[2].Type != instid.OpNone {
			inst.Operands[2] = operandFor(e.Operands[2], int64(rs2))
		}
	case instid.FmtI:
		imm := signExtend(raw>>20, 12)
		if e.ID == instid.Slli || e.ID == instid.Srli || e.ID == instid.Srai ||
			e.ID == instid.Slliw || e.ID == instid.Srliw || e.ID == instid.Sraiw {
			shamt := (raw >> 20) & 0x3f
			imm = int64(shamt)
		}
		inst.Operands[0] = operandFor(e.Operands[0], int64(rd))
		inst.Operands[1] = operandFor(e.Operands[1], int64(rs1))
		inst.setImm(2, imm)
	case instid.FmtS:
		imm := signExtend(((raw>>25)&0x7f)<<5|((raw>>7)&0x1f), 12)
		inst.Operands[0] = operandFor(e.Operands[0], int64(rs1))
		inst.Operands[1] = operandFor(e.Operands[1], int64(rs2))
		inst.setImm(2, imm)
	case instid.FmtB:
		imm12 := (raw >> 31) & 0x1
		imm10_5 := (raw >> 25) & 0x3f
		imm4_1 := (raw >> 8) & 0xf
		imm11 := (raw >> 7) & 0x1
		raw20 := imm12<<12 | imm11<<11 | imm10_5<<5 | imm4_1<<1
		imm := signExtend(raw20, 13)
		inst.Operands[0] = operandFor(e.Operands[0], int64(rs1))
		inst.Operands[1] = operandFor(e.Operands[1], int64(rs2))
		inst.setImm(2, imm)
	case instid.FmtU:
		imm := int64(int32(raw & 0xfffff000))
		inst.Operands[0] = operandFor(e.Operands[0], int64(rd))
		inst.setImm(1, imm)
	case instid.FmtJ:
		imm20 := (raw >> 31) & 0x1
		imm10_1 := (raw >> 21) & 0x3ff
		imm11 := (raw >> 20) & 0x1
		imm19_12 := (raw >> 12) & 0xff
		raw20 := imm20<<20 | imm19_12<<12 | imm11<<11 | imm10_1<<1
		imm := signExtend(raw20, 21)
		inst.Operands[0] = operandFor(e.Operands[0], int64(rd))
		inst.setImm(1, imm)
	case instid.FmtCsr:
		csrNum := int64(raw >> 20)
		inst.Operands[0] = operandFor(e.Operands[0], int64(rd))
		inst.Operands[1] = Operand{Type: instid.OpCsReg, Mode: instid.ModeReadWrite, Value: csrNum}
		if e.ID == instid.Csrrwi || e.ID == instid.Csrrsi || e.ID == instid.Csrrci {
			inst.setImm(2, int64(rs1)) // rs1 field holds the zero-extended immediate.
		} else {
			inst.Operands[2] = operandFor(e.Operands[2], int64(rs1))
		}
	}
}

func operandFor(spec instid.Operand, value int64) Operand {
	return Operand{Type: spec.Type, Mode: spec.Mode, Value: value}
}

func (d *DecodedInst) setImm(slot int, value int64) {
	d.Operands[slot] = Operand{Type: instid.OpImm, Mode: instid.ModeRead, Value: value}
}

func signExtend(value uint32, bits int) int64 {
	shift := 32 - bits
	return int64(int32(value<<shift)) >> shift
}
