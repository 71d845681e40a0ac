/*
 * rvsim - Control and Status Register file.
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

// Package csr implements the CSR file: masked reads/writes, VS/HS aliasing
// under virtualization, sticky cross-CSR bits via post-write callbacks, and
// an indirect trigger sub-file. A File is owned by exactly one Hart.
package csr

// Privilege is the effective privilege mode used to gate CSR accessibility.
type Privilege int

const (
	U Privilege = iota
	S
	HS
	VS
	M
)

// Number is a 12-bit CSR address.
type Number uint16

// Well-known CSR numbers this core models.
const (
	Fflags    Number = 0x001
	Frm       Number = 0x002
	Fcsr      Number = 0x003
	Vstart    Number = 0x008
	Vl        Number = 0xc20
	Vtype     Number = 0xc21
	Vlenb     Number = 0xc22
	Sstatus   Number = 0x100
	Sie       Number = 0x104
	Stvec     Number = 0x105
	Scounteren Number = 0x106
	Sscratch  Number = 0x140
	Sepc      Number = 0x141
	Scause    Number = 0x142
	Stval     Number = 0x143
	Sip       Number = 0x144
	Satp      Number = 0x180

	Vsstatus Number = 0x200
	Vsie     Number = 0x204
	Vstvec   Number = 0x205
	Vsscratch Number = 0x240
	Vsepc    Number = 0x241
	Vscause  Number = 0x242
	Vstval   Number = 0x243
	Vsip     Number = 0x244
	Vsatp    Number = 0x280

	Hstatus  Number = 0x600
	Hedeleg  Number = 0x602
	Hideleg  Number = 0x603
	Hie      Number = 0x604
	Hgatp    Number = 0x680

	Mstatus   Number = 0x300
	Misa      Number = 0x301
	Medeleg   Number = 0x302
	Mideleg   Number = 0x303
	Mie       Number = 0x304
	Mtvec     Number = 0x305
	Mcounteren Number = 0x306
	Mscratch  Number = 0x340
	Mepc      Number = 0x341
	Mcause    Number = 0x342
	Mtval     Number = 0x343
	Mip       Number = 0x344
	Mvip      Number = 0x345
	Mhartid   Number = 0xf14
	Mcycle    Number = 0xb00
	Minstret  Number = 0xb02

	Tselect Number = 0x7a0
	Tdata1  Number = 0x7a1
	Tdata2  Number = 0x7a2
	Tdata3  Number = 0x7a3
	Tinfo   Number = 0x7a4
)

// Callback runs after a masked write commits, for sticky/aliased bits that
// a single read/write-mask pair cannot express (MIP software-interrupt bits
// shared with MVIP, SEIP forcing, …). old and new are the pre- and
// post-write values of the addressed CSR.
type Callback func(f *File, old, new uint64)

type entry struct {
	value    uint64
	reset    uint64
	wmask    uint64
	rmask    uint64 // Applied on read only; bits outside rmask read as 0.
	pokeMask uint64 // Poke bypasses wmask but still honors pokeMask.
	minPriv  Privilege
	peer     Number // VS-mode aliasing target; 0 means "no peer".
	hasPeer  bool
	onWrite  Callback
	exists   bool
}

// File is one hart's full CSR space, indexed directly by Number (a 4096
// entry array costs 4096*~80 bytes but keeps read/write O(1) with no map
// lookup on the hot path).
type File struct {
	regs     [4096]entry
	triggers triggerFile
}

// New builds a CSR file with every modelled register reset to its
// architectural reset value and write-mask. vlenb is the vector register
// byte length the read-only vlenb CSR reports.
func New(hartID uint64, misaValue uint64, vlenb uint64) *File {
	f := &File{}
	f.triggers = newTriggerFile()

	def := func(n Number, reset, wmask, rmask uint64, minPriv Privilege) {
		f.regs[n] = entry{value: reset, reset: reset, wmask: wmask, rmask: rmask, pokeMask: ^uint64(0), minPriv: minPriv, exists: true}
	}
	def(Mhartid, hartID, 0, ^uint64(0), M)
	def(Misa, misaValue, 0, ^uint64(0), M)
	def(Mstatus, 0, mstatusWmask, ^uint64(0), M)
	def(Medeleg, 0, 0xffff, ^uint64(0), M)
	def(Mideleg, 0, 0xffff, ^uint64(0), M)
	def(Mie, 0, mieWmask, ^uint64(0), M)
	def(Mip, 0, mipWmask, ^uint64(0), M)
	def(Mvip, 0, mipWmask, ^uint64(0), M)
	def(Mtvec, 0, ^uint64(0)&^uint64(2), ^uint64(0), M)
	def(Mcounteren, 0, 0xffffffff, ^uint64(0), M)
	def(Mscratch, 0, ^uint64(0), ^uint64(0), M)
	def(Mepc, 0, ^uint64(0)&^uint64(1), ^uint64(0), M)
	def(Mcause, 0, ^uint64(0), ^uint64(0), M)
	def(Mtval, 0, ^uint64(0), ^uint64(0), M)
	def(Mcycle, 0, ^uint64(0), ^uint64(0), M)
	def(Minstret, 0, ^uint64(0), ^uint64(0), M)

	def(Sstatus, 0, sstatusWmask, ^uint64(0), S)
	def(Sie, 0, mieWmask&0x333, ^uint64(0), S)
	def(Stvec, 0, ^uint64(0)&^uint64(2), ^uint64(0), S)
	def(Scounteren, 0, 0xffffffff, ^uint64(0), S)
	def(Sscratch, 0, ^uint64(0), ^uint64(0), S)
	def(Sepc, 0, ^uint64(0)&^uint64(1), ^uint64(0), S)
	def(Scause, 0, ^uint64(0), ^uint64(0), S)
	def(Stval, 0, ^uint64(0), ^uint64(0), S)
	def(Sip, 0, mipWmask&0x333, ^uint64(0), S)
	def(Satp, 0, ^uint64(0), ^uint64(0), S)

	def(Vsstatus, 0, sstatusWmask, ^uint64(0), VS)
	def(Vsie, 0, mieWmask&0x333, ^uint64(0), VS)
	def(Vstvec, 0, ^uint64(0)&^uint64(2), ^uint64(0), VS)
	def(Vsscratch, 0, ^uint64(0), ^uint64(0), VS)
	def(Vsepc, 0, ^uint64(0)&^uint64(1), ^uint64(0), VS)
	def(Vscause, 0, ^uint64(0), ^uint64(0), VS)
	def(Vstval, 0, ^uint64(0), ^uint64(0), VS)
	def(Vsip, 0, mipWmask&0x333, ^uint64(0), VS)
	def(Vsatp, 0, ^uint64(0), ^uint64(0), VS)

	def(Hstatus, 0, hstatusWmask, ^uint64(0), HS)
	def(Hedeleg, 0, 0xffff, ^uint64(0), HS)
	def(Hideleg, 0, 0xffff, ^uint64(0), HS)
	def(Hie, 0, mieWmask, ^uint64(0), HS)
	def(Hgatp, 0, ^uint64(0), ^uint64(0), HS)

	def(Fflags, 0, 0x1f, 0x1f, U)
	def(Frm, 0, 0x7, 0x7, U)
	def(Fcsr, 0, 0xff, 0xff, U)

	// Vector state: vl/vtype/vlenb are read-only to software and updated
	// through Poke by the vsetvli handler; vstart is writable.
	def(Vstart, 0, ^uint64(0), ^uint64(0), U)
	def(Vl, 0, 0, ^uint64(0), U)
	def(Vtype, 0, 0, ^uint64(0), U)
	def(Vlenb, vlenb, 0, ^uint64(0), U)

	def(Tselect, 0, ^uint64(0), ^uint64(0), M)
	def(Tdata1, 0, 0, ^uint64(0), M)
	def(Tdata2, 0, ^uint64(0), ^uint64(0), M)
	def(Tdata3, 0, ^uint64(0), ^uint64(0), M)
	def(Tinfo, 0x4, 0, ^uint64(0), M)

	f.wirePeers()
	f.wireSticky()
	return f
}

const (
	mstatusWmask = 0x8000003f007e19aa
	sstatusWmask = 0x80000003000de122
	hstatusWmask = 0x0000000000e3ffc6
	mieWmask     = 0x0000000000000fff
	mipWmask     = 0x0000000000000333
)

func (f *File) wirePeers() {
	pair := func(a, b Number) {
		f.regs[a].peer, f.regs[a].hasPeer = b, true
		f.regs[b].peer, f.regs[b].hasPeer = a, true
	}
	pair(Sstatus, Vsstatus)
	pair(Sie, Vsie)
	pair(Stvec, Vstvec)
	pair(Sscratch, Vsscratch)
	pair(Sepc, Vsepc)
	pair(Scause, Vscause)
	pair(Stval, Vstval)
	pair(Sip, Vsip)
	pair(Satp, Vsatp)
}

// wireSticky installs the post-write callbacks for bits that are shared
// between two independently-addressable CSRs: MIP's supervisor pending bits
// are aliased into MVIP (and vice versa), so poking one cannot
// desynchronise the other's observable value.
func (f *File) wireSticky() {
	f.regs[Mip].onWrite = func(file *File, old, new uint64) {
		const sw = uint64(0x222) // SSIP, STIP and SEIP (bits 1, 5, 9), mirrored into MVIP.
		mvip := file.regs[Mvip].value
		mvip = (mvip &^ sw) | (new & sw)
		file.regs[Mvip].value = mvip
	}
	f.regs[Mvip].onWrite = func(file *File, old, new uint64) {
		const sw = uint64(0x222)
		mip := file.regs[Mip].value
		mip = (mip &^ sw) | (new & sw)
		file.regs[Mip].value = mip
	}
}

// VirtContext is the addressing context a CSR access is made under.
type VirtContext struct {
	Priv    Privilege
	Virt    bool // V bit: executing in VS/VU under a hypervisor.
	SeiPin  bool // External SEI pin forced high by the controller (InjectException-adjacent server command).
}

// Read applies the read-mask and VS-peer redirection. ok is false for a
// non-existent CSR or one illegal at the current privilege/virtualization
// context; the caller maps that to an illegal-instruction exception.
func (f *File) Read(n Number, ctx VirtContext) (value uint64, ok bool) {
	if n == Tselect {
		return uint64(f.triggers.Select()), true
	}
	if reg, isTrigger := triggerReg(n); isTrigger {
		return f.triggers.read(-1, reg)
	}
	e, target := f.resolve(n, ctx)
	if e == nil || !f.accessible(n, ctx) {
		return 0, false
	}
	v := target.value
	if n == Mip && ctx.SeiPin {
		v |= 0x200 // SEIP forced; does not affect the stored value, only what is observed.
	}
	return v & e.rmask, true
}

// Write applies the write-mask, runs sticky callbacks, and mirrors into the
// VS peer when addressed under virtualization — the externally visible CSR
// number is unchanged so trace/test-bench still see the architected name.
func (f *File) Write(n Number, value uint64, ctx VirtContext) bool {
	if n == Tselect {
		return f.triggers.SetSelect(int(value))
	}
	if reg, isTrigger := triggerReg(n); isTrigger {
		return f.triggers.write(-1, reg, value)
	}
	e, target := f.resolve(n, ctx)
	if e == nil || !f.accessible(n, ctx) {
		return false
	}
	old := target.value
	target.value = (old &^ e.wmask) | (value & e.wmask)
	if e.onWrite != nil {
		e.onWrite(f, old, target.value)
	}
	return true
}

// Poke bypasses the write-mask entirely (test-bench override) but still
// respects pokeMask and VS-peer redirection.
func (f *File) Poke(n Number, value uint64, ctx VirtContext) bool {
	if n == Tselect {
		return f.triggers.SetSelect(int(value))
	}
	if reg, isTrigger := triggerReg(n); isTrigger {
		return f.triggers.write(-1, reg, value)
	}
	e, target := f.resolve(n, ctx)
	if e == nil {
		return false
	}
	old := target.value
	target.value = (old &^ e.pokeMask) | (value & e.pokeMask)
	if e.onWrite != nil {
		e.onWrite(f, old, target.value)
	}
	return true
}

// resolve returns the static descriptor for n and a pointer to the entry
// that actually stores the value — the peer's entry when virtualization
// redirects the access.
func (f *File) resolve(n Number, ctx VirtContext) (*entry, *entry) {
	e := &f.regs[n]
	if !e.exists {
		return nil, nil
	}
	if ctx.Virt && e.hasPeer && (ctx.Priv == S || ctx.Priv == HS) {
		return e, &f.regs[e.peer]
	}
	return e, e
}

func (f *File) accessible(n Number, ctx VirtContext) bool {
	e := &f.regs[n]
	if !e.exists {
		return false
	}
	if int(ctx.Priv) < int(e.minPriv) && !(ctx.Priv == VS && e.minPriv == S) {
		// VS-mode code may reach S-mode-tagged CSRs that have a VS peer;
		// anything else must meet the CSR's minimum privilege.
		if !(e.hasPeer && ctx.Priv == VS) {
			return false
		}
	}
	return true
}

// ReadTrigger / WriteTrigger expose the indirect tselect-addressed trigger
// sub-file.
func (f *File) ReadTrigger(which int, reg int) (uint64, bool) {
	return f.triggers.read(which, reg)
}

func (f *File) WriteTrigger(which int, reg int, value uint64) bool {
	return f.triggers.write(which, reg, value)
}

// Snapshot returns a copy of every existing CSR's current value, numbered,
// for the snapshot writer.
func (f *File) Snapshot() map[Number]uint64 {
	out := make(map[Number]uint64)
	for n := range f.regs {
		if f.regs[n].exists {
			out[Number(n)] = f.regs[n].value
		}
	}
	return out
}

// Restore overwrites CSR values from a snapshot produced by Snapshot,
// bypassing masks — the snapshot holds post-mask architectural state.
func (f *File) Restore(values map[Number]uint64) {
	for n, v := range values {
		if f.regs[n].exists {
			f.regs[n].value = v
		}
	}
}

// triggerReg maps a CSR number to its trigger sub-file register index, if
// it addresses one of tdata1/tdata2/tdata3.
func triggerReg(n Number) (int, bool) {
	switch n {
	case Tdata1:
		return regTdata1, true
	case Tdata2:
		return regTdata2, true
	case Tdata3:
		return regTdata3, true
	}
	return 0, false
}
