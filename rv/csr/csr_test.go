/*
 * rvsim - CSR file test cases.
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

package csr

import "testing"

func TestWriteMaskInvariant(t *testing.T) {
	f := New(0, 0, 32)
	ctx := VirtContext{Priv: M}

	before, ok := f.Read(Mscratch, ctx)
	if !ok {
		t.Fatal("mscratch should be readable")
	}

	const v = uint64(0x12345678_deadbeef)
	if !f.Write(Mscratch, v, ctx) {
		t.Fatal("write failed")
	}
	after, _ := f.Read(Mscratch, ctx)
	wmask := f.regs[Mscratch].wmask
	want := (before &^ wmask) | (v & wmask)
	if after != want {
		t.Fatalf("after=%#x want=%#x", after, want)
	}
}

func TestMstatusWPRIBitsStayAtReset(t *testing.T) {
	f := New(0, 0, 32)
	ctx := VirtContext{Priv: M}

	if !f.Write(Mstatus, ^uint64(0), ctx) {
		t.Fatal("write failed")
	}
	got, _ := f.Read(Mstatus, ctx)
	want := f.regs[Mstatus].reset | (^uint64(0) & mstatusWmask)
	if got != want {
		t.Fatalf("mstatus = %#x, want %#x", got, want)
	}
}

func TestMipMvipSoftwareBitsStaySynced(t *testing.T) {
	f := New(0, 0, 32)
	ctx := VirtContext{Priv: M}

	if !f.Write(Mvip, 0x222, ctx) {
		t.Fatal("write to mvip failed")
	}
	mip, _ := f.Read(Mip, ctx)
	if mip&0x222 != 0x222 {
		t.Fatalf("mip software bits not mirrored from mvip: %#x", mip)
	}

	if !f.Write(Mip, 0, ctx) {
		t.Fatal("write to mip failed")
	}
	mvip, _ := f.Read(Mvip, ctx)
	if mvip&0x222 != 0 {
		t.Fatalf("mvip software bits not cleared from mip write: %#x", mvip)
	}
}

func TestNonexistentCSRFails(t *testing.T) {
	f := New(0, 0, 32)
	ctx := VirtContext{Priv: M}
	if _, ok := f.Read(Number(0x7ff), ctx); ok {
		t.Fatal("expected read of unmodelled CSR to fail")
	}
}

func TestPrivilegeGating(t *testing.T) {
	f := New(0, 0, 32)
	if _, ok := f.Read(Mscratch, VirtContext{Priv: S}); ok {
		t.Fatal("S-mode should not reach mscratch")
	}
	if _, ok := f.Read(Sscratch, VirtContext{Priv: S}); !ok {
		t.Fatal("S-mode should reach sscratch")
	}
}

func TestVSPeerAliasing(t *testing.T) {
	f := New(0, 0, 32)
	vctx := VirtContext{Priv: S, Virt: true}

	if !f.Write(Sepc, 0x4000, vctx) {
		t.Fatal("write under virt failed")
	}
	v, ok := f.Read(Vsepc, VirtContext{Priv: VS})
	if !ok || v != 0x4000 {
		t.Fatalf("vsepc = %#x, ok=%v, want 0x4000", v, ok)
	}

	hv, _ := f.Read(Sepc, VirtContext{Priv: M})
	if hv == 0x4000 {
		t.Fatal("write under virt should not have hit the non-virtualized sepc entry")
	}
}

func TestTriggerLegalityFilter(t *testing.T) {
	f := New(0, 0, 32)
	f.triggers.SetSelect(0)
	if !f.triggers.write(-1, regTdata1, uint64(triggerICount)<<60) {
		t.Fatal("legal trigger type write rejected")
	}
	if f.triggers.triggers[0].kind != triggerICount {
		t.Fatalf("trigger type = %v, want icount", f.triggers.triggers[0].kind)
	}

	// An illegal type value leaves the trigger unchanged.
	f.triggers.write(-1, regTdata1, uint64(0xf)<<60)
	if f.triggers.triggers[0].kind != triggerICount {
		t.Fatalf("illegal type write should not change trigger kind, got %v", f.triggers.triggers[0].kind)
	}
}
