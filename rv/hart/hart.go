/*
 * rvsim - Per-hart architectural state and the singleStep engine.
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

// Package hart implements one RISC-V hardware thread: integer, floating
// point and CSR state, the privilege/virtualization mode, and the
// fetch/translate/decode/execute/commit/trace singleStep contract. A Hart
// owns its own register file and CSR file and reaches shared Memory and the
// Mcm notifier through non-owning pointers handed to it at construction —
// there is no package-level CPU state.
package hart

import (
	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/decoder"
	"github.com/virtcore/rvsim/rv/instid"
	"github.com/virtcore/rvsim/rv/memory"
	"github.com/virtcore/rvsim/rv/virtmem"
)

// Outcome is the typed reason singleStep returned without retiring further.
type Outcome int

const (
	Retired Outcome = iota
	Trapped
	InterruptTaken
	HitMaxRetired
	HitMaxExecuted
	HitStopPC
	HitToHost
	Debug
)

func (o Outcome) String() string {
	switch o {
	case Retired:
		return "retired"
	case Trapped:
		return "trapped"
	case InterruptTaken:
		return "interrupt"
	case HitMaxRetired:
		return "max-retired"
	case HitMaxExecuted:
		return "max-executed"
	case HitStopPC:
		return "stop-pc"
	case HitToHost:
		return "tohost"
	case Debug:
		return "debug"
	}
	return "unknown"
}

// Delta is one piece of architectural state a Step changed, reported back
// to the external controller via ChangeCount/Change.
type Delta struct {
	Kind  DeltaKind
	Index int // Register number or CSR number, meaning depends on Kind.
	Old   uint64
	New   uint64
}

type DeltaKind int

const (
	DeltaXReg DeltaKind = iota
	DeltaFReg
	DeltaCSR
	DeltaPC
	DeltaMem
	DeltaVReg // Old/New carry the register's low 8 bytes; Peek fetches the rest.
)

// McmNotifier is the subset of the memory-consistency checker a Hart drives
// directly: fence/CMO instructions invalidate TLB entries and must tell the
// checker about the ordering event.
type McmNotifier interface {
	NotifyFence(hart int, kind string)
}

// Limits bound a run of Step calls; a zero MaxRetired or MaxExecuted means
// "no limit", and StopPC/ToHostAddr apply only when their Has flag is set.
type Limits struct {
	MaxRetired  uint64
	MaxExecuted uint64
	StopPC      uint64
	HasStopPC   bool
	ToHostAddr  uint64
	HasToHost   bool
}

// Hart is one RISC-V hardware thread.
type Hart struct {
	ID   int
	XLEN int // 32 or 64.

	X [32]uint64
	F [32]uint64 // NaN-boxed when holding a 32-bit value.
	V [32][]byte // Vector registers, VLenBytes each, little-endian elements.

	PC     uint64
	lastPC uint64

	Priv    csr.Privilege
	Virt    bool
	DebugMode bool

	CSR *csr.File
	mem *memory.Memory
	vm  *virtmem.Walker
	mcm McmNotifier
	dec *decoder.Decoder

	reservation     uint64
	hasReservation  bool

	retired  uint64
	executed uint64

	deltas []Delta

	seiPin bool

	nmiPending bool
	nmiCause   uint64
	dcsrCause  uint32

	lastTrapped bool
	lastCause   uint64
	lastRaw     uint32
	lastName    string

	lastWalk virtmem.Walk

	// pcUpdatedByExecute is set by branch/jump/trap-return handlers that
	// already redirected PC; singleStep skips the PC+=Size default in
	// that case.
	pcUpdatedByExecute bool
}

// VLenBytes is the vector register byte length (VLEN/8). 32 bytes gives a
// 256-bit VLEN; the vlenb CSR reports it to guest software.
const VLenBytes = 32

// New constructs a Hart with a fresh CSR file reset for hartID, wired to
// the shared memory and a private page-table walker and decode cache.
func New(hartID int, xlen int, mem *memory.Memory, mcm McmNotifier) *Hart {
	misa := misaValue(xlen)
	h := &Hart{
		ID:   hartID,
		XLEN: xlen,
		CSR:  csr.New(uint64(hartID), misa, VLenBytes),
		mem:  mem,
		vm:   virtmem.New(mem),
		mcm:  mcm,
		dec:  decoder.New(),
		Priv: csr.M,
	}
	for i := range h.V {
		h.V[i] = make([]byte, VLenBytes)
	}
	return h
}

func misaValue(xlen int) uint64 {
	const (
		extI = 1 << 8
		extM = 1 << 12
		extA = 1 << 0
		extF = 1 << 5
		extD = 1 << 3
		extC = 1 << 2
		extS = 1 << 18
		extU = 1 << 20
		extH = 1 << 7
		extV = 1 << 21
	)
	mxl := uint64(1)
	if xlen == 64 {
		mxl = 2
	}
	return mxl<<62 | extI | extM | extA | extF | extD | extC | extS | extU | extH | extV
}

func (h *Hart) ctx() csr.VirtContext {
	return csr.VirtContext{Priv: h.Priv, Virt: h.Virt, SeiPin: h.seiPin}
}

// SetSeiPin forces or releases the external-interrupt pin, per the
// InjectException/SeiPin server command.
func (h *Hart) SetSeiPin(v bool) { h.seiPin = v }

// Reset restores architectural state to its power-on values and sets PC to
// resetPC.
func (h *Hart) Reset(resetPC uint64) {
	h.X = [32]uint64{}
	h.F = [32]uint64{}
	h.PC = resetPC
	h.lastPC = resetPC
	h.Priv = csr.M
	h.Virt = false
	h.DebugMode = false
	h.hasReservation = false
	h.CSR = csr.New(uint64(h.ID), misaValue(h.XLEN), VLenBytes)
	for i := range h.V {
		h.V[i] = make([]byte, VLenBytes)
	}
	h.retired, h.executed = 0, 0
	h.deltas = nil
}

// LastPC returns the PC of the most recently retired or trapped instruction.
func (h *Hart) LastPC() uint64 { return h.lastPC }

// Retired returns the cumulative retired-instruction count since Reset.
func (h *Hart) Retired() uint64 { return h.retired }

// Deltas returns the architectural changes from the most recent Step, for
// the ChangeCount/Change server commands.
func (h *Hart) Deltas() []Delta { return h.deltas }

// LastInst returns the raw encoding and name of the instruction the most
// recent Step fetched; zero/"" when the step took an interrupt before
// fetching.
func (h *Hart) LastInst() (raw uint32, name string) { return h.lastRaw, h.lastName }

// LastTrap reports whether the most recent Step trapped and with what
// cause, for the trace writer and the Trap special resource.
func (h *Hart) LastTrap() (trapped bool, cause uint64) { return h.lastTrapped, h.lastCause }

func (h *Hart) setX(i int, v uint64) {
	if i == 0 {
		return
	}
	old := h.X[i]
	if h.XLEN == 32 {
		v = uint64(uint32(v))
	}
	h.X[i] = v
	h.deltas = append(h.deltas, Delta{Kind: DeltaXReg, Index: i, Old: old, New: v})
}

func (h *Hart) setF(i int, v uint64) {
	old := h.F[i]
	h.F[i] = v
	h.deltas = append(h.deltas, Delta{Kind: DeltaFReg, Index: i, Old: old, New: v})
}

// noteVWrite records a vector register write in the delta buffer after the
// register's bytes have been updated in place.
func (h *Hart) noteVWrite(i int, oldLow uint64) {
	var newLow uint64
	for b := 0; b < 8; b++ {
		newLow |= uint64(h.V[i][b]) << (8 * b)
	}
	h.deltas = append(h.deltas, Delta{Kind: DeltaVReg, Index: i, Old: oldLow, New: newLow})
}

func (h *Hart) vLow(i int) uint64 {
	var v uint64
	for b := 0; b < 8; b++ {
		v |= uint64(h.V[i][b]) << (8 * b)
	}
	return v
}

func (h *Hart) writeCSR(n csr.Number, v uint64) bool {
	old, _ := h.CSR.Read(n, h.ctx())
	if !h.CSR.Write(n, v, h.ctx()) {
		return false
	}
	new, _ := h.CSR.Read(n, h.ctx())
	h.deltas = append(h.deltas, Delta{Kind: DeltaCSR, Index: int(n), Old: old, New: new})
	return true
}

// Step advances one architectural instruction boundary and reports why it
// stopped: Retired on the common path, or a trap/interrupt/limit outcome
// that the caller (the external-control Step command or the scheduler)
// maps to its own status reporting.
func (h *Hart) Step(limits Limits) Outcome {
	return h.singleStep(limits)
}

// singleStep advances exactly one architectural instruction boundary: it
// resets the per-instruction delta buffer, takes a pending interrupt if one
// is enabled, otherwise fetches, decodes, executes and commits, rolling
// back partial register writes and redirecting to the trap vector on fault.
func (h *Hart) singleStep(limits Limits) Outcome {
	h.deltas = nil
	h.lastTrapped = false
	h.lastRaw, h.lastName = 0, ""

	if limits.MaxExecuted != 0 && h.executed >= limits.MaxExecuted {
		return HitMaxExecuted
	}
	if limits.MaxRetired != 0 && h.retired >= limits.MaxRetired {
		return HitMaxRetired
	}
	if limits.HasStopPC && h.PC == limits.StopPC {
		return HitStopPC
	}

	if h.nmiPending {
		h.nmiPending = false
		h.takeNmi(h.nmiCause)
		return InterruptTaken
	}

	if cause, ok := h.pendingInterrupt(); ok {
		h.takeTrap(cause, 0, true)
		return InterruptTaken
	}

	h.lastPC = h.PC
	h.executed++

	walk := h.translate(h.PC, virtmem.Fetch, h.vmConfig())
	if walk.Fault != virtmem.NoFault {
		h.takeTrap(causeForFault(walk.Fault, virtmem.Fetch), h.PC, false)
		return Trapped
	}
	raw, err := h.mem.Read(walk.PA, 4)
	if err != nil {
		h.takeTrap(causeInstructionAccessFault, h.PC, false)
		return Trapped
	}

	inst := h.dec.Decode(uint32(raw), h.PC, walk.PA)
	h.lastRaw, h.lastName = inst.Raw, inst.Entry().Name
	if inst.ID == instid.Illegal {
		h.takeTrap(causeIllegalInstruction, uint64(inst.Raw), false)
		return Trapped
	}

	snapshot := h.snapshotForRollback()
	trapCause, trapVal, trapped := h.execute(&inst)
	if trapped {
		h.restore(snapshot)
		h.takeTrap(trapCause, trapVal, false)
		return Trapped
	}

	if !h.pcUpdatedByExecute {
		h.PC += uint64(inst.Size)
	}
	h.pcUpdatedByExecute = false
	h.retired++

	if limits.HasToHost {
		for _, d := range h.deltas {
			if d.Kind == DeltaMem && uint64(d.Index) == limits.ToHostAddr {
				return HitToHost
			}
		}
	}
	return Retired
}

func (h *Hart) vmConfig() virtmem.Config {
	satp, _ := h.CSR.Read(csr.Satp, h.ctx())
	mode := virtmem.Bare
	if m := satp >> 60; h.XLEN == 64 && m != 0 {
		switch m {
		case 8:
			mode = virtmem.Sv39
		case 9:
			mode = virtmem.Sv48
		case 10:
			mode = virtmem.Sv57
		}
	} else if h.XLEN == 32 && satp>>31 == 1 {
		mode = virtmem.Sv32
	}
	priv := 0
	if h.Priv == csr.M {
		priv = 2
	} else if h.Priv == csr.S || h.Priv == csr.HS {
		priv = 1
	}
	mstatus, _ := h.CSR.Read(csr.Mstatus, h.ctx())
	root := (satp & 0xfffffffffff) << 12
	asid := uint32((satp >> 44) & 0xffff)
	if h.XLEN == 32 {
		root = (satp & 0x3fffff) << 12
		asid = uint32((satp >> 22) & 0x1ff)
	}
	cfg := virtmem.Config{
		Mode: mode,
		Root: root,
		ASID: asid,
		Priv: priv,
		MXR:  mstatus&(1<<19) != 0,
		SUM:  mstatus&(1<<18) != 0,
	}

	if h.Virt {
		// hgatp is read with an internal M context: the executing guest
		// cannot reach it, but the walker needs the G-stage root.
		hgatp, _ := h.CSR.Read(csr.Hgatp, csr.VirtContext{Priv: csr.M})
		if gm := hgatp >> 60; gm != 0 {
			cfg.TwoStage = true
			cfg.GRoot = (hgatp & 0xfffffffffff) << 12
			cfg.VMID = uint32((hgatp >> 44) & 0x3fff)
			switch gm {
			case 8:
				cfg.GMode = virtmem.Sv39
			case 9:
				cfg.GMode = virtmem.Sv48
			case 10:
				cfg.GMode = virtmem.Sv57
			}
		}
	}
	return cfg
}
