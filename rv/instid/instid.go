/*
 * rvsim - Instruction identifier and static encoding table.
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

// Package instid holds the dense InstId enumeration and the static InstTable
// describing every encoded instruction this core knows: opcode, mask,
// operand layout, and the behavioral flags the hart and MCM checker need
// (load/store/AMO, size, branch, FP rounding). Table order must track InstId
// so GetEntry is O(1).
package instid

// InstId is a dense identifier for a decoded instruction. Illegal is zero so
// a freshly zeroed DecodedInst decodes as illegal by default.
type InstId int

const (
	Illegal InstId = iota

	// RV32I / RV64I base.
	Lui
	Auipc
	Jal
	Jalr
	Beq
	Bne
	Blt
	Bge
	Bltu
	Bgeu
	Lb
	Lh
	Lw
	Lbu
	Lhu
	Lwu
	Ld
	Sb
	Sh
	Sw
	Sd
	Addi
	Slti
	Sltiu
	Xori
	Ori
	Andi
	Slli
	Srli
	Srai
	Add
	Sub
	Sll
	Slt
	Sltu
	Xor
	Srl
	Sra
	Or
	And
	Addiw
	Slliw
	Srliw
	Sraiw
	Addw
	Subw
	Sllw
	Srlw
	Sraw
	Fence
	FenceI
	Ecall
	Ebreak

	// Zicsr.
	Csrrw
	Csrrs
	Csrrc
	Csrrwi
	Csrrsi
	Csrrci

	// Privileged / trap-return.
	Mret
	Sret
	Uret
	Wfi
	SfenceVma
	HfenceVvma
	HfenceGvma

	// M extension.
	Mul
	Mulh
	Mulhsu
	Mulhu
	Div
	Divu
	Rem
	Remu
	Mulw
	Divw
	Divuw
	Remw
	Remuw

	// A extension.
	LrW
	ScW
	AmoswapW
	AmoaddW
	AmoxorW
	AmoandW
	AmoorW
	AmominW
	AmomaxW
	AmominuW
	AmomaxuW
	LrD
	ScD
	AmoswapD
	AmoaddD
	AmoxorD
	AmoandD
	AmoorD
	AmominD
	AmomaxD
	AmominuD
	AmomaxuD

	// F/D extension (single/double precision float).
	Flw
	Fsw
	Fld
	Fsd
	FaddS
	FsubS
	FmulS
	FdivS
	FsqrtS
	FsgnjS
	FsgnjnS
	FsgnjxS
	FminS
	FmaxS
	FcvtWS
	FcvtWuS
	FcvtSW
	FcvtSWu
	FmvXW
	FmvWX
	FeqS
	FltS
	FleS
	FclassS
	FaddD
	FsubD
	FmulD
	FdivD
	FsqrtD
	FsgnjD
	FsgnjnD
	FsgnjxD
	FminD
	FmaxD
	FcvtWD
	FcvtWuD
	FcvtDW
	FcvtDWu
	FcvtSD
	FcvtDS
	FeqD
	FltD
	FleD
	FclassD

	// V extension subset: configuration, unit-stride byte load/store,
	// and vector-vector integer add.
	Vsetvli
	Vle8V
	Vse8V
	VaddVV

	// Compressed (RVC) subset — re-expanded to the id of the base
	// instruction they alias; see decoder for the expansion tables. These
	// carry their own id only where no 32-bit equivalent semantics apply.
	CNop

	// numInstId is not a real instruction; it sizes the table.
	numInstId
)

// OperandType classifies one decoded operand slot.
type OperandType int

const (
	OpNone OperandType = iota
	OpIntReg
	OpFpReg
	OpCsReg
	OpVecReg
	OpImm
)

// OperandMode describes how an operand slot is used by the instruction.
type OperandMode int

const (
	ModeNone OperandMode = iota
	ModeRead
	ModeWrite
	ModeReadWrite
)

// Operand is a single {type, mode} descriptor; the value itself lives on the
// DecodedInst, not here — this table only fixes the shape.
type Operand struct {
	Type OperandType
	Mode OperandMode
}

// Format classifies the encoding shape used to extract operand bit ranges.
type Format int

const (
	FmtNone Format = iota
	FmtR
	FmtI
	FmtS
	FmtB
	FmtU
	FmtJ
	FmtR4 // fused multiply-add float formats (unused by the implemented subset)
	FmtCsr
)

// Entry is the static descriptor for one InstId: everything that does not
// vary per-occurrence of the instruction in a program.
type Entry struct {
	ID       InstId
	Name     string
	Opcode   uint32
	Mask     uint32
	Format   Format
	Ext      string // Extension tag: I, M, A, F, D, Zicsr, Zifencei, Priv, H, V, C.
	Operands [4]Operand

	Load       bool
	Store      bool
	AMO        bool
	Branch     bool
	Jump       bool
	FP         bool
	Double     bool // FP operand is double rather than single precision.
	System     bool // ecall/ebreak/csr/mret/sret/wfi/fence family.
	RoundMode  bool // Reads FRM when rm field is 0b111.
	SetsFFlags bool
	Vector     bool // V-extension op: reads vl/vtype, touches the vector file.
	Size       uint8 // Load/store size in bytes (element size for vector ops); 0 if not a memory op.
	Signed     bool  // Load sign-extends.
}

var table [numInstId]Entry

// GetEntry returns the static descriptor for id. Table order matches InstId
// so this is a direct index, not a search.
func GetEntry(id InstId) *Entry {
	return &table[id]
}

func reg(mode OperandMode) Operand     { return Operand{Type: OpIntReg, Mode: mode} }
func freg(mode OperandMode) Operand    { return Operand{Type: OpFpReg, Mode: mode} }
func csreg(mode OperandMode) Operand   { return Operand{Type: OpCsReg, Mode: mode} }
func vreg(mode OperandMode) Operand    { return Operand{Type: OpVecReg, Mode: mode} }
func imm() Operand                     { return Operand{Type: OpImm, Mode: ModeRead} }

func add(e Entry) {
	table[e.ID] = e
}

func init() {
	// Base integer and control-flow instructions.
	add(Entry{ID: Lui, Name: "lui", Opcode: 0x37, Mask: 0x7f, Format: FmtU, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), imm()}})
	add(Entry{ID: Auipc, Name: "auipc", Opcode: 0x17, Mask: 0x7f, Format: FmtU, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), imm()}})
	add(Entry{ID: Jal, Name: "jal", Opcode: 0x6f, Mask: 0x7f, Format: FmtJ, Ext: "I", Jump: true,
		Operands: [4]Operand{reg(ModeWrite), imm()}})
	add(Entry{ID: Jalr, Name: "jalr", Opcode: 0x67, Mask: 0x707f, Format: FmtI, Ext: "I", Jump: true,
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})

	branch := func(id InstId, name string, funct3 uint32) {
		add(Entry{ID: id, Name: name, Opcode: 0x63 | funct3<<12, Mask: 0x707f, Format: FmtB, Ext: "I", Branch: true,
			Operands: [4]Operand{reg(ModeRead), reg(ModeRead), imm()}})
	}
	branch(Beq, "beq", 0x0)
	branch(Bne, "bne", 0x1)
	branch(Blt, "blt", 0x4)
	branch(Bge, "bge", 0x5)
	branch(Bltu, "bltu", 0x6)
	branch(Bgeu, "bgeu", 0x7)

	load := func(id InstId, name string, funct3 uint32, size uint8, signed bool) {
		add(Entry{ID: id, Name: name, Opcode: 0x03 | funct3<<12, Mask: 0x707f, Format: FmtI, Ext: "I",
			Load: true, Size: size, Signed: signed,
			Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})
	}
	load(Lb, "lb", 0x0, 1, true)
	load(Lh, "lh", 0x1, 2, true)
	load(Lw, "lw", 0x2, 4, true)
	load(Lbu, "lbu", 0x4, 1, false)
	load(Lhu, "lhu", 0x5, 2, false)
	load(Lwu, "lwu", 0x6, 4, false)
	load(Ld, "ld", 0x3, 8, true)

	store := func(id InstId, name string, funct3 uint32, size uint8) {
		add(Entry{ID: id, Name: name, Opcode: 0x23 | funct3<<12, Mask: 0x707f, Format: FmtS, Ext: "I",
			Store: true, Size: size,
			Operands: [4]Operand{reg(ModeRead), reg(ModeRead), imm()}})
	}
	store(Sb, "sb", 0x0, 1)
	store(Sh, "sh", 0x1, 2)
	store(Sw, "sw", 0x2, 4)
	store(Sd, "sd", 0x3, 8)

	aluImm := func(id InstId, name string, funct3 uint32) {
		add(Entry{ID: id, Name: name, Opcode: 0x13 | funct3<<12, Mask: 0x707f, Format: FmtI, Ext: "I",
			Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})
	}
	aluImm(Addi, "addi", 0x0)
	aluImm(Slti, "slti", 0x2)
	aluImm(Sltiu, "sltiu", 0x3)
	aluImm(Xori, "xori", 0x4)
	aluImm(Ori, "ori", 0x6)
	aluImm(Andi, "andi", 0x7)

	add(Entry{ID: Slli, Name: "slli", Opcode: 0x1013, Mask: 0xfc00707f, Format: FmtI, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})
	add(Entry{ID: Srli, Name: "srli", Opcode: 0x5013, Mask: 0xfc00707f, Format: FmtI, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})
	add(Entry{ID: Srai, Name: "srai", Opcode: 0x40005013, Mask: 0xfc00707f, Format: FmtI, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})

	aluReg := func(id InstId, name string, funct3, funct7 uint32) {
		add(Entry{ID: id, Name: name, Opcode: 0x33 | funct3<<12 | funct7<<25, Mask: 0xfe00707f, Format: FmtR, Ext: "I",
			Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), reg(ModeRead)}})
	}
	aluReg(Add, "add", 0x0, 0x00)
	aluReg(Sub, "sub", 0x0, 0x20)
	aluReg(Sll, "sll", 0x1, 0x00)
	aluReg(Slt, "slt", 0x2, 0x00)
	aluReg(Sltu, "sltu", 0x3, 0x00)
	aluReg(Xor, "xor", 0x4, 0x00)
	aluReg(Srl, "srl", 0x5, 0x00)
	aluReg(Sra, "sra", 0x5, 0x20)
	aluReg(Or, "or", 0x6, 0x00)
	aluReg(And, "and", 0x7, 0x00)

	add(Entry{ID: Addiw, Name: "addiw", Opcode: 0x1b, Mask: 0x707f, Format: FmtI, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})
	add(Entry{ID: Slliw, Name: "slliw", Opcode: 0x101b, Mask: 0xfe00707f, Format: FmtI, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})
	add(Entry{ID: Srliw, Name: "srliw", Opcode: 0x501b, Mask: 0xfe00707f, Format: FmtI, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})
	add(Entry{ID: Sraiw, Name: "sraiw", Opcode: 0x4000501b, Mask: 0xfe00707f, Format: FmtI, Ext: "I",
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})

	aluRegW := func(id InstId, name string, funct3, funct7 uint32) {
		add(Entry{ID: id, Name: name, Opcode: 0x3b | funct3<<12 | funct7<<25, Mask: 0xfe00707f, Format: FmtR, Ext: "I",
			Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), reg(ModeRead)}})
	}
	aluRegW(Addw, "addw", 0x0, 0x00)
	aluRegW(Subw, "subw", 0x0, 0x20)
	aluRegW(Sllw, "sllw", 0x1, 0x00)
	aluRegW(Srlw, "srlw", 0x5, 0x00)
	aluRegW(Sraw, "sraw", 0x5, 0x20)

	add(Entry{ID: Fence, Name: "fence", Opcode: 0x0f, Mask: 0x707f, Format: FmtI, Ext: "I", System: true})
	add(Entry{ID: FenceI, Name: "fence.i", Opcode: 0x100f, Mask: 0x707f, Format: FmtI, Ext: "Zifencei", System: true})
	add(Entry{ID: Ecall, Name: "ecall", Opcode: 0x73, Mask: 0xffffffff, Format: FmtI, Ext: "I", System: true})
	add(Entry{ID: Ebreak, Name: "ebreak", Opcode: 0x100073, Mask: 0xffffffff, Format: FmtI, Ext: "I", System: true})

	csr := func(id InstId, name string, funct3 uint32) {
		add(Entry{ID: id, Name: name, Opcode: 0x73 | funct3<<12, Mask: 0x707f, Format: FmtCsr, Ext: "Zicsr", System: true,
			Operands: [4]Operand{reg(ModeWrite), csreg(ModeReadWrite), reg(ModeRead)}})
	}
	csr(Csrrw, "csrrw", 0x1)
	csr(Csrrs, "csrrs", 0x2)
	csr(Csrrc, "csrrc", 0x3)
	csr(Csrrwi, "csrrwi", 0x5)
	csr(Csrrsi, "csrrsi", 0x6)
	csr(Csrrci, "csrrci", 0x7)

	add(Entry{ID: Mret, Name: "mret", Opcode: 0x30200073, Mask: 0xffffffff, Format: FmtI, Ext: "Priv", System: true})
	add(Entry{ID: Sret, Name: "sret", Opcode: 0x10200073, Mask: 0xffffffff, Format: FmtI, Ext: "Priv", System: true})
	add(Entry{ID: Uret, Name: "uret", Opcode: 0x00200073, Mask: 0xffffffff, Format: FmtI, Ext: "Priv", System: true})
	add(Entry{ID: Wfi, Name: "wfi", Opcode: 0x10500073, Mask: 0xffffffff, Format: FmtI, Ext: "Priv", System: true})
	add(Entry{ID: SfenceVma, Name: "sfence.vma", Opcode: 0x12000073, Mask: 0xfe007fff, Format: FmtR, Ext: "Priv", System: true,
		Operands: [4]Operand{reg(ModeRead), reg(ModeRead)}})
	add(Entry{ID: HfenceVvma, Name: "hfence.vvma", Opcode: 0x22000073, Mask: 0xfe007fff, Format: FmtR, Ext: "H", System: true,
		Operands: [4]Operand{reg(ModeRead), reg(ModeRead)}})
	add(Entry{ID: HfenceGvma, Name: "hfence.gvma", Opcode: 0x62000073, Mask: 0xfe007fff, Format: FmtR, Ext: "H", System: true,
		Operands: [4]Operand{reg(ModeRead), reg(ModeRead)}})

	// M extension.
	mext := func(id InstId, name string, funct3 uint32, w bool) {
		opcode := uint32(0x33) | funct3<<12 | 0x01<<25
		if w {
			opcode = 0x3b | funct3<<12 | 0x01<<25
		}
		add(Entry{ID: id, Name: name, Opcode: opcode, Mask: 0xfe00707f, Format: FmtR, Ext: "M",
			Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), reg(ModeRead)}})
	}
	mext(Mul, "mul", 0x0, false)
	mext(Mulh, "mulh", 0x1, false)
	mext(Mulhsu, "mulhsu", 0x2, false)
	mext(Mulhu, "mulhu", 0x3, false)
	mext(Div, "div", 0x4, false)
	mext(Divu, "divu", 0x5, false)
	mext(Rem, "rem", 0x6, false)
	mext(Remu, "remu", 0x7, false)
	mext(Mulw, "mulw", 0x0, true)
	mext(Divw, "divw", 0x4, true)
	mext(Divuw, "divuw", 0x5, true)
	mext(Remw, "remw", 0x6, true)
	mext(Remuw, "remuw", 0x7, true)

	// A extension: opcode funct5 field in bits [31:27], funct3 in [14:12]
	// selects W (010) or D (011) width; aq/rl bits [26:25] are masked out
	// of the matching predicate (any combination matches).
	amo := func(id InstId, name string, funct5, funct3 uint32, size uint8) {
		add(Entry{ID: id, Name: name, Opcode: 0x2f | funct3<<12 | funct5<<27, Mask: 0xf800707f, Format: FmtR, Ext: "A",
			AMO: true, Size: size,
			Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), reg(ModeRead)}})
	}
	amoW := func(id InstId, name string, funct5 uint32) { amo(id, name, funct5, 0x2, 4) }
	amoD := func(id InstId, name string, funct5 uint32) { amo(id, name, funct5, 0x3, 8) }
	amoW(LrW, "lr.w", 0x02)
	amoW(ScW, "sc.w", 0x03)
	amoW(AmoswapW, "amoswap.w", 0x01)
	amoW(AmoaddW, "amoadd.w", 0x00)
	amoW(AmoxorW, "amoxor.w", 0x04)
	amoW(AmoandW, "amoand.w", 0x0c)
	amoW(AmoorW, "amoor.w", 0x08)
	amoW(AmominW, "amomin.w", 0x10)
	amoW(AmomaxW, "amomax.w", 0x14)
	amoW(AmominuW, "amominu.w", 0x18)
	amoW(AmomaxuW, "amomaxu.w", 0x1c)
	amoD(LrD, "lr.d", 0x02)
	amoD(ScD, "sc.d", 0x03)
	amoD(AmoswapD, "amoswap.d", 0x01)
	amoD(AmoaddD, "amoadd.d", 0x00)
	amoD(AmoxorD, "amoxor.d", 0x04)
	amoD(AmoandD, "amoand.d", 0x0c)
	amoD(AmoorD, "amoor.d", 0x08)
	amoD(AmominD, "amomin.d", 0x10)
	amoD(AmomaxD, "amomax.d", 0x14)
	amoD(AmominuD, "amominu.d", 0x18)
	amoD(AmomaxuD, "amomaxu.d", 0x1c)

	// F/D extension.
	add(Entry{ID: Flw, Name: "flw", Opcode: 0x2007, Mask: 0x707f, Format: FmtI, Ext: "F", Load: true, Size: 4, FP: true,
		Operands: [4]Operand{freg(ModeWrite), reg(ModeRead), imm()}})
	add(Entry{ID: Fsw, Name: "fsw", Opcode: 0x2027, Mask: 0x707f, Format: FmtS, Ext: "F", Store: true, Size: 4, FP: true,
		Operands: [4]Operand{reg(ModeRead), freg(ModeRead), imm()}})
	add(Entry{ID: Fld, Name: "fld", Opcode: 0x3007, Mask: 0x707f, Format: FmtI, Ext: "D", Load: true, Size: 8, FP: true, Double: true,
		Operands: [4]Operand{freg(ModeWrite), reg(ModeRead), imm()}})
	add(Entry{ID: Fsd, Name: "fsd", Opcode: 0x3027, Mask: 0x707f, Format: FmtS, Ext: "D", Store: true, Size: 8, FP: true, Double: true,
		Operands: [4]Operand{reg(ModeRead), freg(ModeRead), imm()}})

	fop := func(id InstId, name string, funct7 uint32, double bool, roundMode bool) {
		add(Entry{ID: id, Name: name, Opcode: 0x53 | funct7<<25, Mask: 0xfe00007f, Format: FmtR, Ext: "F",
			FP: true, Double: double, RoundMode: roundMode, SetsFFlags: true,
			Operands: [4]Operand{freg(ModeWrite), freg(ModeRead), freg(ModeRead)}})
	}
	fop(FaddS, "fadd.s", 0x00, false, true)
	fop(FsubS, "fsub.s", 0x04, false, true)
	fop(FmulS, "fmul.s", 0x08, false, true)
	fop(FdivS, "fdiv.s", 0x0c, false, true)
	fop(FaddD, "fadd.d", 0x01, true, true)
	fop(FsubD, "fsub.d", 0x05, true, true)
	fop(FmulD, "fmul.d", 0x09, true, true)
	fop(FdivD, "fdiv.d", 0x0d, true, true)

	add(Entry{ID: FsqrtS, Name: "fsqrt.s", Opcode: 0x58000053, Mask: 0xfff0007f, Format: FmtR, Ext: "F", FP: true, RoundMode: true, SetsFFlags: true,
		Operands: [4]Operand{freg(ModeWrite), freg(ModeRead)}})
	add(Entry{ID: FsqrtD, Name: "fsqrt.d", Opcode: 0x5a000053, Mask: 0xfff0007f, Format: FmtR, Ext: "D", FP: true, Double: true, RoundMode: true, SetsFFlags: true,
		Operands: [4]Operand{freg(ModeWrite), freg(ModeRead)}})

	fsgnj := func(id InstId, name string, funct3, funct7 uint32, double bool) {
		add(Entry{ID: id, Name: name, Opcode: 0x53 | funct3<<12 | funct7<<25, Mask: 0xfe00707f, Format: FmtR, Ext: "F", FP: true, Double: double,
			Operands: [4]Operand{freg(ModeWrite), freg(ModeRead), freg(ModeRead)}})
	}
	fsgnj(FsgnjS, "fsgnj.s", 0x0, 0x10, false)
	fsgnj(FsgnjnS, "fsgnjn.s", 0x1, 0x10, false)
	fsgnj(FsgnjxS, "fsgnjx.s", 0x2, 0x10, false)
	fsgnj(FminS, "fmin.s", 0x0, 0x14, false)
	fsgnj(FmaxS, "fmax.s", 0x1, 0x14, false)
	fsgnj(FsgnjD, "fsgnj.d", 0x0, 0x11, true)
	fsgnj(FsgnjnD, "fsgnjn.d", 0x1, 0x11, true)
	fsgnj(FsgnjxD, "fsgnjx.d", 0x2, 0x11, true)
	fsgnj(FminD, "fmin.d", 0x0, 0x15, true)
	fsgnj(FmaxD, "fmax.d", 0x1, 0x15, true)

	fcmp := func(id InstId, name string, funct3, funct7 uint32, double bool) {
		add(Entry{ID: id, Name: name, Opcode: 0x53 | funct3<<12 | funct7<<25, Mask: 0xfe00707f, Format: FmtR, Ext: "F", FP: true, Double: double, SetsFFlags: true,
			Operands: [4]Operand{reg(ModeWrite), freg(ModeRead), freg(ModeRead)}})
	}
	fcmp(FeqS, "feq.s", 0x2, 0x50, false)
	fcmp(FltS, "flt.s", 0x1, 0x50, false)
	fcmp(FleS, "fle.s", 0x0, 0x50, false)
	fcmp(FeqD, "feq.d", 0x2, 0x51, true)
	fcmp(FltD, "flt.d", 0x1, 0x51, true)
	fcmp(FleD, "fle.d", 0x0, 0x51, true)

	fcvtToInt := func(id InstId, name string, rs2, funct7 uint32, double bool) {
		add(Entry{ID: id, Name: name, Opcode: 0x53 | rs2<<20 | funct7<<25, Mask: 0xfff0007f, Format: FmtR, Ext: "F",
			FP: true, Double: double, RoundMode: true, SetsFFlags: true,
			Operands: [4]Operand{reg(ModeWrite), freg(ModeRead)}})
	}
	fcvtToInt(FcvtWS, "fcvt.w.s", 0x00, 0x60, false)
	fcvtToInt(FcvtWuS, "fcvt.wu.s", 0x01, 0x60, false)
	fcvtToInt(FcvtWD, "fcvt.w.d", 0x00, 0x61, true)
	fcvtToInt(FcvtWuD, "fcvt.wu.d", 0x01, 0x61, true)

	fcvtFromInt := func(id InstId, name string, rs2, funct7 uint32, double bool) {
		add(Entry{ID: id, Name: name, Opcode: 0x53 | rs2<<20 | funct7<<25, Mask: 0xfff0007f, Format: FmtR, Ext: "F",
			FP: true, Double: double, RoundMode: true, SetsFFlags: true,
			Operands: [4]Operand{freg(ModeWrite), reg(ModeRead)}})
	}
	fcvtFromInt(FcvtSW, "fcvt.s.w", 0x00, 0x68, false)
	fcvtFromInt(FcvtSWu, "fcvt.s.wu", 0x01, 0x68, false)
	fcvtFromInt(FcvtDW, "fcvt.d.w", 0x00, 0x69, true)
	fcvtFromInt(FcvtDWu, "fcvt.d.wu", 0x01, 0x69, true)

	add(Entry{ID: FcvtSD, Name: "fcvt.s.d", Opcode: 0x40100053, Mask: 0xfff0007f, Format: FmtR, Ext: "F", FP: true, RoundMode: true, SetsFFlags: true,
		Operands: [4]Operand{freg(ModeWrite), freg(ModeRead)}})
	add(Entry{ID: FcvtDS, Name: "fcvt.d.s", Opcode: 0x42000053, Mask: 0xfff0007f, Format: FmtR, Ext: "D", FP: true, Double: true, SetsFFlags: true,
		Operands: [4]Operand{freg(ModeWrite), freg(ModeRead)}})

	add(Entry{ID: FmvXW, Name: "fmv.x.w", Opcode: 0xe0000053, Mask: 0xfff0707f, Format: FmtR, Ext: "F", FP: true,
		Operands: [4]Operand{reg(ModeWrite), freg(ModeRead)}})
	add(Entry{ID: FmvWX, Name: "fmv.w.x", Opcode: 0xf0000053, Mask: 0xfff0707f, Format: FmtR, Ext: "F", FP: true,
		Operands: [4]Operand{freg(ModeWrite), reg(ModeRead)}})
	add(Entry{ID: FclassS, Name: "fclass.s", Opcode: 0xe0001053, Mask: 0xfff0707f, Format: FmtR, Ext: "F", FP: true,
		Operands: [4]Operand{reg(ModeWrite), freg(ModeRead)}})
	add(Entry{ID: FclassD, Name: "fclass.d", Opcode: 0xe2001053, Mask: 0xfff0707f, Format: FmtR, Ext: "D", FP: true, Double: true,
		Operands: [4]Operand{reg(ModeWrite), freg(ModeRead)}})

	// V extension subset. vsetvli's zimm11 rides in the I-format
	// immediate field; the loads/stores keep their operands in the R-format
	// register positions with the nf/mop/lumop bits fixed at unit-stride.
	add(Entry{ID: Vsetvli, Name: "vsetvli", Opcode: 0x00007057, Mask: 0x8000707f, Format: FmtI, Ext: "V", Vector: true,
		Operands: [4]Operand{reg(ModeWrite), reg(ModeRead), imm()}})
	add(Entry{ID: Vle8V, Name: "vle8.v", Opcode: 0x00000007, Mask: 0xfdf0707f, Format: FmtR, Ext: "V", Vector: true, Load: true, Size: 1,
		Operands: [4]Operand{vreg(ModeWrite), reg(ModeRead)}})
	add(Entry{ID: Vse8V, Name: "vse8.v", Opcode: 0x00000027, Mask: 0xfdf0707f, Format: FmtR, Ext: "V", Vector: true, Store: true, Size: 1,
		Operands: [4]Operand{vreg(ModeRead), reg(ModeRead)}})
	add(Entry{ID: VaddVV, Name: "vadd.vv", Opcode: 0x00000057, Mask: 0xfc00707f, Format: FmtR, Ext: "V", Vector: true,
		Operands: [4]Operand{vreg(ModeWrite), vreg(ModeRead), vreg(ModeRead)}})

	add(Entry{ID: CNop, Name: "c.nop", Opcode: 0x0001, Mask: 0xffff, Format: FmtNone, Ext: "C"})
}

// AllEntries returns every defined entry, skipping Illegal, for callers
// (e.g. a disassembler or a CLI instruction-set dump) that want to walk the
// whole table instead of indexing by id.
func AllEntries() []*Entry {
	out := make([]*Entry, 0, numInstId-1)
	for i := Illegal + 1; i < numInstId; i++ {
		out = append(out, &table[i])
	}
	return out
}
