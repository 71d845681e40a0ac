/*
 * rvsim - Page-walk test cases.
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

import (
	"testing"

	"github.com/virtcore/rvsim/rv/memory"
)

func makeSv39Leaf(ppn uint64, flags uint64) uint64 {
	return (ppn << 10) | pteV | flags
}

func TestBareModeIdentityMap(t *testing.T) {
	mem := memory.New(1 << 20)
	w := New(mem)
	walk := w.Translate(0x1234, Read, Config{Mode: Bare})
	if walk.Fault != NoFault || walk.PA != 0x1234 {
		t.Fatalf("bare mode should identity-map, got %+v", walk)
	}
}

func TestSv39SinglePageTranslate(t *testing.T) {
	mem := memory.New(1 << 24)
	const root = 0x1000
	const leafTable = 0x2000
	const dataPage = 0x3000

	// Root table: vpn[2]=0 -> points at leafTable (non-leaf PTE).
	nonLeaf := uint64((leafTable>>12)<<10) | pteV
	mustWrite(t, mem, root+0*8, nonLeaf)
	// Level 1 table: vpn[1]=0 -> also non-leaf to a level-0 table at leafTable+0x1000.
	nonLeaf2 := uint64((leafTable+0x1000)>>12<<10) | pteV
	mustWrite(t, mem, leafTable+0*8, nonLeaf2)
	// Level 0 table: vpn[0]=0 -> leaf RWX page at dataPage.
	leaf := makeSv39Leaf(dataPage>>12, pteR|pteW|pteX|pteU|pteA|pteD)
	mustWrite(t, mem, leafTable+0x1000+0*8, leaf)

	w := New(mem)
	cfg := Config{Mode: Sv39, Root: root, Priv: 0}
	walk := w.Translate(0x55, Read, cfg)
	if walk.Fault != NoFault {
		t.Fatalf("unexpected fault: %s", walk.Cause)
	}
	if walk.PA != dataPage+0x55 {
		t.Fatalf("PA = %#x, want %#x", walk.PA, dataPage+0x55)
	}
}

func TestSv39PageFaultOnInvalidPTE(t *testing.T) {
	mem := memory.New(1 << 20)
	w := New(mem)
	cfg := Config{Mode: Sv39, Root: 0x1000, Priv: 0}
	walk := w.Translate(0x1000, Read, cfg)
	if walk.Fault != PageFault {
		t.Fatalf("expected page fault on empty root table, got %v", walk.Fault)
	}
	if len(walk.Ptes) != 1 || walk.Ptes[0].Addr != 0x1000 {
		t.Fatalf("expected single PTE access at root+0, got %+v", walk.Ptes)
	}
}

func TestAccessDirtyFaultWithoutSvadu(t *testing.T) {
	mem := memory.New(1 << 20)
	const root = 0x1000
	leaf := makeSv39Leaf(0, pteR|pteW|pteU) // Aligned 1G superpage, no A or D bit set.
	mustWrite(t, mem, root, leaf)

	w := New(mem)
	cfg := Config{Mode: Sv39, Root: root, Priv: 0, Svadu: false}
	walk := w.Translate(0, Write, cfg)
	if walk.Fault != PageFault {
		t.Fatalf("expected A/D page fault, got %v", walk.Fault)
	}
}

func TestAccessDirtyUpdatedWithSvadu(t *testing.T) {
	mem := memory.New(1 << 20)
	const root = 0x1000
	leaf := makeSv39Leaf(0, pteR|pteW|pteU)
	mustWrite(t, mem, root, leaf)

	w := New(mem)
	cfg := Config{Mode: Sv39, Root: root, Priv: 0, Svadu: true}
	walk := w.Translate(0, Write, cfg)
	if walk.Fault != NoFault {
		t.Fatalf("expected success with Svadu, got fault %s", walk.Cause)
	}
	updated, err := mem.Read(root, 8)
	if err != nil {
		t.Fatal(err)
	}
	if updated&pteA == 0 || updated&pteD == 0 {
		t.Fatalf("A/D bits not written back: %#x", updated)
	}
}

func TestSfenceVmaInvalidatesMatchingEntry(t *testing.T) {
	mem := memory.New(1 << 20)
	const root = 0x1000
	leaf := makeSv39Leaf(0, pteR|pteW|pteU|pteA|pteD)
	mustWrite(t, mem, root, leaf)

	w := New(mem)
	cfg := Config{Mode: Sv39, Root: root, Priv: 0}
	w.Translate(0, Read, cfg)
	if _, ok := w.tlb.lookup(0, 0, 0, false, Read); !ok {
		t.Fatal("expected TLB fill after translate")
	}
	w.InvalidateVMA(0, true, 0, false)
	if _, ok := w.tlb.lookup(0, 0, 0, false, Read); ok {
		t.Fatal("expected TLB entry evicted by SFENCE.VMA")
	}
}

func mustWrite(t *testing.T, mem *memory.Memory, addr, value uint64) {
	t.Helper()
	if err := mem.Write(addr, 8, value); err != nil {
		t.Fatal(err)
	}
}
