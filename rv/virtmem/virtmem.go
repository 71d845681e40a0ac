/*
 * rvsim - Single- and two-stage page-table walker.
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

// Package virtmem implements the Sv32/Sv39/Sv48/Sv57 single-stage page-table
// walker, the G-stage (two-stage, hgatp-rooted) nested walker used under
// hypervisor virtualization, and a small fully-associative TLB. A Walker is
// owned by exactly one Hart and reaches physical memory through the Memory
// it is constructed with; it has no global state of its own.
package virtmem

import (
	"fmt"

	"github.com/virtcore/rvsim/rv/memory"
)

// Access is the kind of reference being translated.
type Access int

const (
	Fetch Access = iota
	Read
	Write
)

// Mode selects the paging scheme in effect (from satp/hgatp's MODE field).
type Mode int

const (
	Bare Mode = iota
	Sv32
	Sv39
	Sv48
	Sv57
)

// FaultKind distinguishes the three page-fault causes the core raises;
// Hart maps these to the matching xcause code for the access type.
type FaultKind int

const (
	NoFault FaultKind = iota
	PageFault
	GuestPageFault
	AccessFault
)

// PteAccess records one page-table-entry read (and, for an A/D-bit update,
// the rewritten value) during a walk, in program order, for PageTableWalk.
type PteAccess struct {
	Stage   int // 1 = the VA->GPA or VA->PA walk, 2 = the GPA->PA G-stage walk.
	Level   int
	Addr    uint64 // Physical address the PTE word was read from.
	Value   uint64 // Value observed (post A/D update, if any).
	Updated bool   // True if this walk step wrote back A/D bits.
}

// Walk is the full record of a translation: every PTE touched, in both
// stages if two-stage, terminated by either a resolved physical address or
// a fault.
type Walk struct {
	Ptes   []PteAccess
	PA     uint64
	Size   uint64 // Page/superpage size in bytes backing PA, for TLB insertion.
	Pbmt   memory.Pbmt
	Fault  FaultKind
	Cause  string // Human-readable fault reason, for trace/debug output.
}

// Config is the per-walk root/ASID/mode context, derived by the Hart from
// satp/hgatp and the current privilege/virtualization state.
type Config struct {
	Mode     Mode
	Root     uint64 // PPN of the root page table, already shifted into an address by the caller.
	ASID     uint32
	TwoStage bool
	GMode    Mode
	GRoot    uint64
	VMID     uint32
	Priv     int // 0=U,1=S,2=M — M-mode bypasses single-stage translation entirely.
	MXR      bool // mstatus.MXR: readable implies executable.
	SUM      bool // mstatus.SUM: S-mode may access U-mode pages.
	HUVM     bool // hstatus.SPVP-derived: VS access treated as U for stage-1 permission checks.
	Svadu    bool // Hardware A/D bit update is enabled.
}

// pteSizeFor returns the PTE width: 4 bytes for Sv32, 8 for every
// 64-bit scheme.
func pteSizeFor(mode Mode) uint64 {
	if mode == Sv32 {
		return 4
	}
	return 8
}

var levelsFor = map[Mode]int{
	Sv32: 2,
	Sv39: 3,
	Sv48: 4,
	Sv57: 5,
}

func vpnBits(mode Mode) int {
	if mode == Sv32 {
		return 10
	}
	return 9
}

// Walker performs page-table walks against a Memory and caches results in a
// TLB.
type Walker struct {
	mem *memory.Memory
	tlb *tlb
}

// New returns a Walker over mem with an empty TLB.
func New(mem *memory.Memory) *Walker {
	return &Walker{mem: mem, tlb: newTLB(64)}
}

// Translate resolves va for the given access and config, consulting the TLB
// first and falling back to a full walk (recorded into the returned Walk)
// on a miss. A successful translation is inserted into the TLB before
// return.
func (w *Walker) Translate(va uint64, access Access, cfg Config) Walk {
	if cfg.Priv == 2 || (cfg.Mode == Bare && !cfg.TwoStage) {
		return Walk{PA: va, Size: 1 << 12, Fault: NoFault}
	}
	if cfg.Mode == Bare {
		// Stage 1 off, G-stage on: the VA is already a guest-physical
		// address and only the hgatp-rooted walk applies.
		if e, ok := w.tlb.lookup(cfg.ASID, cfg.VMID, va, true, access); ok {
			return Walk{PA: e.pa(va), Size: e.size, Pbmt: e.pbmt, Fault: NoFault}
		}
		walk := w.walkStage2(va, access, cfg)
		if walk.Fault == NoFault {
			w.tlb.insert(cfg.ASID, cfg.VMID, va, walk.PA, walk.Size, walk.Pbmt, true, access)
		}
		return walk
	}
	if e, ok := w.tlb.lookup(cfg.ASID, cfg.VMID, va, cfg.TwoStage, access); ok {
		return Walk{PA: e.pa(va), Size: e.size, Pbmt: e.pbmt, Fault: NoFault}
	}

	walk := w.walkStage1(va, access, cfg)
	if walk.Fault == NoFault {
		w.tlb.insert(cfg.ASID, cfg.VMID, va, walk.PA, walk.Size, walk.Pbmt, cfg.TwoStage, access)
	}
	return walk
}

// walkStage1 performs the VA->(GPA|PA) walk, dispatching each intermediate
// dereference of a guest-physical address through the stage-2 walker when
// cfg.TwoStage is set.
func (w *Walker) walkStage1(va uint64, access Access, cfg Config) Walk {
	levels, ok := levelsFor[cfg.Mode]
	if !ok {
		return Walk{Fault: AccessFault, Cause: "unsupported paging mode"}
	}
	vBits := vpnBits(cfg.Mode)
	pteSize := pteSizeFor(cfg.Mode)
	var walk Walk

	root := cfg.Root
	for level := levels - 1; level >= 0; level-- {
		vpn := vpnAt(va, level, vBits, cfg.Mode)
		pteAddr := root + vpn*pteSize

		pteAddrPA := pteAddr
		if cfg.TwoStage {
			gwalk := w.walkStage2(pteAddr, Read, cfg)
			walk.Ptes = append(walk.Ptes, gwalk.Ptes...)
			if gwalk.Fault != NoFault {
				walk.Fault, walk.Cause = GuestPageFault, gwalk.Cause
				return walk
			}
			pteAddrPA = gwalk.PA
		}
		pte, err := w.mem.Read(pteAddrPA, int(pteSize))
		if err != nil {
			walk.Fault, walk.Cause = AccessFault, err.Error()
			return walk
		}

		walk.Ptes = append(walk.Ptes, PteAccess{Stage: 1, Level: level, Addr: pteAddrPA, Value: pte})
		if !pteValid(pte) {
			walk.Fault, walk.Cause = PageFault, fmt.Sprintf("invalid PTE at level %d", level)
			return walk
		}

		if !pteIsLeaf(pte) {
			root = pteToPPN(pte) << 12
			continue
		}

		if fault := checkPermissions(pte, access, cfg); fault != "" {
			walk.Fault, walk.Cause = PageFault, fault
			return walk
		}

		size := pageSize(level, vBits)
		if !superpageAligned(pte, level, vBits, cfg.Mode) {
			walk.Fault, walk.Cause = PageFault, "misaligned superpage"
			return walk
		}

		updated, newPte := updateAD(pte, access, cfg.Svadu)
		if updated == adFault {
			walk.Fault, walk.Cause = PageFault, "A/D bit update required, Svadu disabled"
			return walk
		}
		if updated == adWritten {
			if err := w.mem.Write(pteAddrPA, int(pteSize), newPte); err != nil {
				walk.Fault, walk.Cause = AccessFault, err.Error()
				return walk
			}
			walk.Ptes[len(walk.Ptes)-1].Value = newPte
			walk.Ptes[len(walk.Ptes)-1].Updated = true
			pte = newPte
		}

		offset := va & (size - 1)
		walk.PA = (pteToPPN(pte) << 12) + offset
		walk.Size = size
		walk.Pbmt = pbmtOf(pte)
		walk.Fault = NoFault

		// Under two-stage translation the leaf output is a guest-physical
		// address and must itself pass through the G-stage walk.
		if cfg.TwoStage {
			g := w.walkStage2(walk.PA, access, cfg)
			walk.Ptes = append(walk.Ptes, g.Ptes...)
			if g.Fault != NoFault {
				walk.Fault, walk.Cause = GuestPageFault, g.Cause
				return walk
			}
			walk.PA = g.PA
			if g.Size < walk.Size {
				walk.Size = g.Size
			}
			if g.Pbmt != memory.PbmtNone {
				walk.Pbmt = g.Pbmt
			}
		}
		return walk
	}
	walk.Fault, walk.Cause = PageFault, "walk exceeded maximum depth"
	return walk
}

// walkStage2 performs the GPA->PA walk rooted at hgatp, used both to
// dereference stage-1 PTE addresses and to translate the final
// stage-1 output when TwoStage is set.
func (w *Walker) walkStage2(gpa uint64, access Access, cfg Config) Walk {
	stage2 := Config{Mode: cfg.GMode, Root: cfg.GRoot, Priv: 0, MXR: cfg.MXR, SUM: true, Svadu: cfg.Svadu}
	levels, ok := levelsFor[stage2.Mode]
	if !ok {
		return Walk{Fault: AccessFault, Cause: "unsupported G-stage mode"}
	}
	vBits := vpnBits(stage2.Mode)
	pteSize := pteSizeFor(stage2.Mode)
	var walk Walk
	root := stage2.Root
	for level := levels - 1; level >= 0; level-- {
		vpn := vpnAt(gpa, level, vBits, stage2.Mode)
		pteAddr := root + vpn*pteSize
		pte, err := w.mem.Read(pteAddr, int(pteSize))
		if err != nil {
			walk.Fault, walk.Cause = AccessFault, err.Error()
			return walk
		}
		walk.Ptes = append(walk.Ptes, PteAccess{Stage: 2, Level: level, Addr: pteAddr, Value: pte})
		if !pteValid(pte) {
			walk.Fault, walk.Cause = GuestPageFault, fmt.Sprintf("invalid G-stage PTE at level %d", level)
			return walk
		}

		if !pteIsLeaf(pte) {
			root = pteToPPN(pte) << 12
			continue
		}
		if fault := checkPermissions(pte, access, stage2); fault != "" {
			walk.Fault, walk.Cause = GuestPageFault, fault
			return walk
		}
		size := pageSize(level, vBits)
		updated, newPte := updateAD(pte, access, stage2.Svadu)
		if updated == adFault {
			walk.Fault, walk.Cause = GuestPageFault, "A/D bit update required, Svadu disabled"
			return walk
		}
		if updated == adWritten {
			if err := w.mem.Write(pteAddr, int(pteSize), newPte); err != nil {
				walk.Fault, walk.Cause = AccessFault, err.Error()
				return walk
			}
			walk.Ptes[len(walk.Ptes)-1].Value = newPte
			walk.Ptes[len(walk.Ptes)-1].Updated = true
			pte = newPte
		}
		offset := gpa & (size - 1)
		walk.PA = (pteToPPN(pte) << 12) + offset
		walk.Size = size
		walk.Pbmt = pbmtOf(pte)
		walk.Fault = NoFault
		return walk
	}
	walk.Fault, walk.Cause = GuestPageFault, "G-stage walk exceeded maximum depth"
	return walk
}

// InvalidateAllTLB drops every cached translation. The TLB is purely a
// performance cache over Translate's full walk, so a snapshot restore does
// not need to serialize its contents — flushing it here is sufficient to
// keep post-restore translations correct; the next access just re-walks.
func (w *Walker) InvalidateAllTLB() {
	w.tlb.entries = nil
	w.tlb.next = 0
}

// InvalidateVMA implements SFENCE.VMA: hasVaddr false matches all
// addresses, hasASID false matches all ASIDs; global entries survive any
// address- or ASID-scoped flush and are dropped only by a full flush.
func (w *Walker) InvalidateVMA(vaddr uint64, hasVaddr bool, asid uint32, hasASID bool) {
	w.tlb.invalidate(vaddr, hasVaddr, asid, hasASID, false)
}

// InvalidateGVMA implements HFENCE.GVMA, scoped by VMID instead of ASID.
func (w *Walker) InvalidateGVMA(gaddr uint64, hasGaddr bool, vmid uint32, hasVMID bool) {
	w.tlb.invalidate(gaddr, hasGaddr, vmid, hasVMID, true)
}
