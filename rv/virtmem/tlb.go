/*
 * rvsim - Translation lookaside buffer.
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

package virtmem

import "github.com/virtcore/rvsim/rv/memory"

// tlbEntry caches one resolved translation, keyed loosely by its owning
// (asid, vmid) pair plus the virtual page number and access kind — a real
// TLB also distinguishes read/write/execute permission sets, which this
// core approximates by keying on the access type that populated the entry
// and re-walking on any other access to the same page.
type tlbEntry struct {
	asid, vmid uint32
	twoStage   bool
	access     Access
	vpn        uint64
	ppn        uint64
	size       uint64
	pbmt       memory.Pbmt
	global     bool
}

func (e *tlbEntry) pa(va uint64) uint64 {
	offset := va & (e.size - 1)
	return (e.ppn << 12) + offset
}

// tlb is a small fully-associative cache with round-robin replacement;
// with few enough entries the linear scan beats a set-indexed design.
type tlb struct {
	entries []tlbEntry
	cap     int
	next    int // Next slot to evict under round-robin replacement.
}

func newTLB(capacity int) *tlb {
	return &tlb{cap: capacity}
}

func (t *tlb) lookup(asid, vmid uint32, va uint64, twoStage bool, access Access) (*tlbEntry, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.twoStage != twoStage || e.access != access {
			continue
		}
		if !e.global && (e.asid != asid || e.vmid != vmid) {
			continue
		}
		vpn := va &^ (e.size - 1)
		if vpn == e.vpn {
			return e, true
		}
	}
	return nil, false
}

func (t *tlb) insert(asid, vmid uint32, va, pa, size uint64, pbmt memory.Pbmt, twoStage bool, access Access) {
	entry := tlbEntry{
		asid: asid, vmid: vmid, twoStage: twoStage, access: access,
		vpn: va &^ (size - 1), ppn: (pa &^ (size - 1)) >> 12, size: size, pbmt: pbmt,
	}
	if len(t.entries) < t.cap {
		t.entries = append(t.entries, entry)
		return
	}
	t.entries[t.next] = entry
	t.next = (t.next + 1) % t.cap
}

// invalidate implements the SFENCE.VMA/HFENCE.GVMA matching rules: an
// unspecified address matches every page; an unspecified ASID/VMID matches
// every address space; global entries are skipped unless both the address
// and the ID are unspecified (a full flush).
func (t *tlb) invalidate(addr uint64, hasAddr bool, id uint32, hasID bool, twoStage bool) {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.twoStage != twoStage {
			kept = append(kept, e)
			continue
		}
		matchAddr := !hasAddr || (addr&^(e.size-1)) == e.vpn
		matchID := !hasID || e.asid == id || e.vmid == id
		if matchAddr && matchID && !(e.global && (hasAddr || hasID)) {
			continue // Evict.
		}
		kept = append(kept, e)
	}
	t.entries = kept
}
