/*
 * rvsim - Control dispatch test cases.
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

package server

import (
	"encoding/binary"
	"testing"

	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/hart"
	"github.com/virtcore/rvsim/rv/mcm"
	"github.com/virtcore/rvsim/rv/system"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	sys, err := system.New(system.Config{
		Harts: 1, XLEN: 64, MemorySize: 1 << 16,
		McmEnabled: true, Mcm: mcm.Config{LineSize: 64},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &Dispatcher{Sys: sys}
}

func TestPokePeekXReg(t *testing.T) {
	d := newTestDispatcher(t)
	rep := d.Handle(Request{Type: TypePoke, Resource: ResourceXReg, Address: 5, Value: 0xabcd})
	if rep.Type != TypePoke {
		t.Fatalf("poke reply type = %v", rep.Type)
	}
	rep = d.Handle(Request{Type: TypePeek, Resource: ResourceXReg, Address: 5})
	if rep.Value != 0xabcd {
		t.Fatalf("peek x5 = %#x, want 0xabcd", rep.Value)
	}
}

func TestPeekX0AlwaysZero(t *testing.T) {
	d := newTestDispatcher(t)
	d.Handle(Request{Type: TypePoke, Resource: ResourceXReg, Address: 0, Value: 99})
	rep := d.Handle(Request{Type: TypePeek, Resource: ResourceXReg, Address: 0})
	if rep.Value != 0 {
		t.Fatalf("x0 = %d, want 0", rep.Value)
	}
}

func TestPeekNonexistentCSRIsInvalid(t *testing.T) {
	d := newTestDispatcher(t)
	rep := d.Handle(Request{Type: TypePeek, Resource: ResourceCSR, Address: 0x5ff})
	if rep.Type != TypeInvalid {
		t.Fatalf("reply type = %v, want TypeInvalid", rep.Type)
	}
}

func TestInvalidRequestEchoesCorrelation(t *testing.T) {
	d := newTestDispatcher(t)
	req := Request{Hart: 0, Type: TypePeek, Resource: ResourceCSR, Address: 0x5ff, InstrTag: 77}
	copy(req.Tag[:], []byte("corr"))
	rep := d.Handle(req)
	if rep.InstrTag != 77 || rep.Tag != req.Tag {
		t.Error("invalid reply does not echo correlation fields")
	}
}

func TestUnknownHartIsInvalid(t *testing.T) {
	d := newTestDispatcher(t)
	rep := d.Handle(Request{Hart: 9, Type: TypePeek, Resource: ResourcePC})
	if rep.Type != TypeInvalid {
		t.Fatalf("reply type = %v, want TypeInvalid", rep.Type)
	}
}

func TestStepRetiresOneInstruction(t *testing.T) {
	d := newTestDispatcher(t)
	// addi x1, x0, 5 at pc 0.
	if err := d.Sys.Memory.Write(0, 4, 0x00500093); err != nil {
		t.Fatal(err)
	}
	rep := d.Handle(Request{Type: TypeStep})
	if rep.Type != TypeStep {
		t.Fatalf("reply type = %v", rep.Type)
	}
	if rep.Address != 4 {
		t.Fatalf("post-step pc = %#x, want 4", rep.Address)
	}
	if rep.Value != 0x00500093 {
		t.Fatalf("step opcode = %#x, want the addi encoding", rep.Value)
	}
	if rep.Size == 0 {
		t.Fatal("step reported no deltas; the x1 write should be one")
	}
}

func TestChangePaginatesDeltas(t *testing.T) {
	d := newTestDispatcher(t)
	if err := d.Sys.Memory.Write(0, 4, 0x00500093); err != nil { // addi x1, x0, 5
		t.Fatal(err)
	}
	d.Handle(Request{Type: TypeStep})

	count := d.Handle(Request{Type: TypeChangeCount})
	if count.Value == 0 {
		t.Fatal("no deltas reported")
	}
	found := false
	for i := uint64(0); i < count.Value; i++ {
		ch := d.Handle(Request{Type: TypeChange, Address: i})
		if ch.Type == TypeInvalid {
			t.Fatalf("change %d invalid", i)
		}
		if Resource(hart.DeltaXReg) == ch.Resource && ch.Address == 1 && ch.Value == 5 {
			found = true
		}
	}
	if !found {
		t.Error("x1=5 delta not reported by Change")
	}
	out := d.Handle(Request{Type: TypeChange, Address: count.Value})
	if out.Type != TypeInvalid {
		t.Error("out-of-range Change index should be invalid")
	}
}

func TestTranslateBareMode(t *testing.T) {
	d := newTestDispatcher(t)
	rep := d.Handle(Request{Type: TypeTranslate, Address: 0x1234, Flags: 1})
	if rep.Type == TypeInvalid {
		t.Fatal("translate failed")
	}
	if rep.Value != 0x1234 {
		t.Fatalf("bare translate %#x -> %#x, want identity", 0x1234, rep.Value)
	}
}

func TestMcmInsertThenMbWrite(t *testing.T) {
	d := newTestDispatcher(t)
	ins := Request{Type: TypeMcmInsert, InstrTag: 1, Address: 0x100, Size: 4, Value: 0xdead}
	if rep := d.Handle(ins); rep.Type == TypeInvalid {
		t.Fatal("insert rejected")
	}
	mb := Request{Type: TypeMcmMbWrite, Address: 0x100, Value: 0xdead}
	binary.LittleEndian.PutUint64(mb.Payload[:8], 0xffffffff)
	if rep := d.Handle(mb); rep.Type == TypeInvalid {
		t.Fatal("matching merge-buffer drain rejected")
	}
	v, err := d.Sys.Memory.Read(0x100, 4)
	if err != nil || v != 0xdead {
		t.Fatalf("drained value = %#x (%v), want 0xdead", v, err)
	}
}

func TestMcmMbWriteMismatchIsInvalid(t *testing.T) {
	d := newTestDispatcher(t)
	d.Handle(Request{Type: TypeMcmInsert, InstrTag: 1, Address: 0x100, Size: 4, Value: 0xdead})
	mb := Request{Type: TypeMcmMbWrite, Address: 0x100, Value: 0xbeef}
	binary.LittleEndian.PutUint64(mb.Payload[:8], 0xffffffff)
	if rep := d.Handle(mb); rep.Type != TypeInvalid {
		t.Error("mismatched drain should be invalid")
	}
}

func TestSpecialResources(t *testing.T) {
	d := newTestDispatcher(t)
	rep := d.Handle(Request{Type: TypePeek, Resource: ResourceSpecial, Address: uint64(hart.SpecialPrivMode)})
	if rep.Type == TypeInvalid {
		t.Fatal("priv-mode peek rejected")
	}
	if rep.Value != uint64(csr.M) {
		t.Fatalf("reset privilege = %d, want M", rep.Value)
	}
	rep = d.Handle(Request{Type: TypePeek, Resource: ResourceSpecial, Address: uint64(hart.SpecialTrap)})
	if rep.Value != 0 {
		t.Fatal("fresh hart reports a trap")
	}
}

func TestLoadFinishedValidates(t *testing.T) {
	d := newTestDispatcher(t)
	if rep := d.Handle(Request{Type: TypeLoadFinished}); rep.Type == TypeInvalid {
		t.Fatal("load-finished rejected on a sane system")
	}
	// A reset PC outside physical memory must be rejected.
	d.Sys.Harts[0].PokePC(1 << 40)
	if rep := d.Handle(Request{Type: TypeLoadFinished}); rep.Type != TypeInvalid {
		t.Error("load-finished accepted an out-of-range reset PC")
	}
}

func TestQuitSetsFlag(t *testing.T) {
	d := newTestDispatcher(t)
	d.Handle(Request{Type: TypeQuit})
	if !d.Quit() {
		t.Error("quit flag not set")
	}
}

func TestSeiPinForcesSEIPInMipReads(t *testing.T) {
	d := newTestDispatcher(t)
	rep := d.Handle(Request{Type: TypePeek, Resource: ResourceCSR, Address: uint64(csr.Mip)})
	if rep.Value&(1<<9) != 0 {
		t.Fatal("SEIP set before the pin was raised")
	}
	d.Handle(Request{Type: TypeSeiPin, Value: 1})
	rep = d.Handle(Request{Type: TypePeek, Resource: ResourceCSR, Address: uint64(csr.Mip)})
	if rep.Value&(1<<9) == 0 {
		t.Fatal("raised SEI pin not observable in mip")
	}
	d.Handle(Request{Type: TypeSeiPin, Value: 0})
	rep = d.Handle(Request{Type: TypePeek, Resource: ResourceCSR, Address: uint64(csr.Mip)})
	if rep.Value&(1<<9) != 0 {
		t.Fatal("released SEI pin still observable in mip")
	}
}

func TestVecRegPeekPoke(t *testing.T) {
	d := newTestDispatcher(t)
	req := Request{Type: TypePoke, Resource: ResourceVecReg, Address: 2, Size: 4}
	copy(req.Payload[:], []byte{1, 2, 3, 4})
	if rep := d.Handle(req); rep.Type == TypeInvalid {
		t.Fatal("vector poke rejected")
	}

	rep := d.Handle(Request{Type: TypePeek, Resource: ResourceVecReg, Address: 2})
	if rep.Type == TypeInvalid {
		t.Fatal("vector peek rejected")
	}
	if rep.Size != hart.VLenBytes {
		t.Fatalf("peek size = %d, want %d", rep.Size, hart.VLenBytes)
	}
	if rep.Value != 0x04030201 {
		t.Fatalf("peek low bytes = %#x, want 0x04030201", rep.Value)
	}

	if rep := d.Handle(Request{Type: TypePeek, Resource: ResourceVecReg, Address: 32}); rep.Type != TypeInvalid {
		t.Error("out-of-range vector register accepted")
	}
}
