/*
 * rvsim - Hart step-engine test cases.
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
	"testing"

	"github.com/virtcore/rvsim/rv/csr"
	"github.com/virtcore/rvsim/rv/memory"
)

type noopMcm struct{ notified []string }

func (n *noopMcm) NotifyFence(hart int, kind string) { n.notified = append(n.notified, kind) }

func encodeI(opcode uint32, rd, rs1 uint32, funct3 uint32, imm int32) uint32 {
	return (uint32(imm) << 20 & 0xfff00000) | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeR(opcode uint32, rd, rs1, rs2, funct3, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func newTestHart(t *testing.T) (*Hart, *memory.Memory) {
	t.Helper()
	mem := memory.New(1 << 16)
	h := New(0, 64, mem, &noopMcm{})
	h.Reset(0)
	return h, mem
}

func TestAddiRetiresAndAdvancesPC(t *testing.T) {
	h, mem := newTestHart(t)
	// addi x1, x0, 5
	inst := encodeI(0x13, 1, 0, 0x0, 5)
	if err := mem.Write(0, 4, uint64(inst)); err != nil {
		t.Fatal(err)
	}
	if out := h.Step(Limits{}); out != Retired {
		t.Fatalf("outcome = %v, want Retired", out)
	}
	if h.X[1] != 5 {
		t.Fatalf("x1 = %d, want 5", h.X[1])
	}
	if h.PC != 4 {
		t.Fatalf("PC = %#x, want 4", h.PC)
	}
}

func TestAddThenSubRegisterOps(t *testing.T) {
	h, mem := newTestHart(t)
	h.X[1], h.X[2] = 10, 3
	// add x3, x1, x2 ; sub x4, x1, x2
	mustWrite32(t, mem, 0, encodeR(0x33, 3, 1, 2, 0x0, 0x00))
	mustWrite32(t, mem, 4, encodeR(0x33, 4, 1, 2, 0x0, 0x20))

	h.Step(Limits{})
	h.Step(Limits{})
	if h.X[3] != 13 {
		t.Fatalf("x3 = %d, want 13", h.X[3])
	}
	if h.X[4] != 7 {
		t.Fatalf("x4 = %d, want 7", h.X[4])
	}
}

func TestStoreThenLoadRoundTrip(t *testing.T) {
	h, mem := newTestHart(t)
	h.X[1] = 0x2000 // base address
	h.X[2] = 0xcafef00d

	// sw x2, 0(x1)
	storeRaw := encodeS(0x23, 1, 2, 0x2, 0)
	mustWrite32(t, mem, 0, storeRaw)

	// lw x3, 0(x1)
	loadRaw := encodeI(0x03, 3, 1, 0x2, 0)
	mustWrite32(t, mem, 4, loadRaw)

	h.Step(Limits{})
	h.Step(Limits{})
	// lw sign-extends the loaded word on RV64.
	if h.X[3] != 0xffffffffcafef00d {
		t.Fatalf("x3 = %#x, want 0xffffffffcafef00d", h.X[3])
	}
}

func encodeS(opcode uint32, rs1, rs2, funct3 uint32, imm int32) uint32 {
	u := uint32(imm)
	imm11_5 := (u >> 5) & 0x7f
	imm4_0 := u & 0x1f
	return imm11_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | imm4_0<<7 | opcode
}

func mustWrite32(t *testing.T, mem *memory.Memory, addr uint64, v uint32) {
	t.Helper()
	if err := mem.Write(addr, 4, uint64(v)); err != nil {
		t.Fatal(err)
	}
}

func TestEcallTrapsToMachineMode(t *testing.T) {
	h, mem := newTestHart(t)
	mustWrite32(t, mem, 0, 0x00000073) // ecall
	if out := h.Step(Limits{}); out != Trapped {
		t.Fatalf("outcome = %v, want Trapped", out)
	}
	mcause, _ := h.CSR.Read(csr.Mcause, h.ctx())
	if mcause != causeEcallM {
		t.Fatalf("mcause = %d, want %d", mcause, causeEcallM)
	}
	mepc, _ := h.CSR.Read(csr.Mepc, h.ctx())
	if mepc != 0 {
		t.Fatalf("mepc = %#x, want 0", mepc)
	}
}

func TestCsrrwRoundTrip(t *testing.T) {
	h, mem := newTestHart(t)
	h.X[1] = 0x1234
	// csrrw x2, mscratch, x1
	inst := encodeI(0x73, 2, 1, 0x1, int32(csr.Mscratch))
	mustWrite32(t, mem, 0, inst)
	if out := h.Step(Limits{}); out != Retired {
		t.Fatalf("outcome = %v, want Retired", out)
	}
	v, _ := h.CSR.Read(csr.Mscratch, h.ctx())
	if v != 0x1234 {
		t.Fatalf("mscratch = %#x, want 0x1234", v)
	}
}

func TestFenceINotifiesMcm(t *testing.T) {
	h, mem := newTestHart(t)
	mcm := &noopMcm{}
	h.mcm = mcm
	mustWrite32(t, mem, 0, 0x0000100f) // fence.i
	if out := h.Step(Limits{}); out != Retired {
		t.Fatalf("outcome = %v, want Retired", out)
	}
	if len(mcm.notified) != 1 || mcm.notified[0] != "fence.i" {
		t.Fatalf("mcm not notified: %+v", mcm.notified)
	}
}

func TestMaxRetiredLimitStopsBeforeExecuting(t *testing.T) {
	h, mem := newTestHart(t)
	mustWrite32(t, mem, 0, encodeI(0x13, 1, 0, 0x0, 1))
	h.retired = 3
	if out := h.Step(Limits{MaxRetired: 3}); out != HitMaxRetired {
		t.Fatalf("outcome = %v, want HitMaxRetired", out)
	}
	if h.X[1] != 0 {
		t.Fatal("instruction should not have executed past the retired limit")
	}
}

func TestMisalignedLoadTraps(t *testing.T) {
	h, mem := newTestHart(t)
	// lw x1, 1(x0) — address 1, not 4-byte aligned, and the default PMA
	// does not allow misaligned access.
	mustWrite32(t, mem, 0, encodeI(0x03, 1, 0, 0x2, 1))
	if out := h.Step(Limits{}); out != Trapped {
		t.Fatalf("outcome = %v, want Trapped", out)
	}
	mcause, _ := h.CSR.Read(csr.Mcause, h.ctx())
	if mcause != causeLoadAddrMisaligned {
		t.Fatalf("mcause = %d, want %d", mcause, causeLoadAddrMisaligned)
	}
	mtval, _ := h.CSR.Read(csr.Mtval, h.ctx())
	if mtval != 1 {
		t.Fatalf("mtval = %#x, want 1", mtval)
	}
	if h.X[1] != 0 {
		t.Fatal("x1 changed by a faulting load")
	}
}

func TestLastInstAndTrapReporting(t *testing.T) {
	h, mem := newTestHart(t)
	mustWrite32(t, mem, 0, encodeI(0x13, 1, 0, 0x0, 5)) // addi x1, x0, 5
	mustWrite32(t, mem, 4, 0x00100073)                  // ebreak

	h.Step(Limits{})
	raw, name := h.LastInst()
	if name != "addi" || raw != encodeI(0x13, 1, 0, 0x0, 5) {
		t.Fatalf("LastInst = %#x %q, want addi", raw, name)
	}
	if trapped, _ := h.LastTrap(); trapped {
		t.Fatal("addi reported as trapped")
	}

	h.Step(Limits{})
	trapped, cause := h.LastTrap()
	if !trapped || cause != causeBreakpoint {
		t.Fatalf("LastTrap = %v %d, want breakpoint", trapped, cause)
	}
}

func TestPeekSpecialResources(t *testing.T) {
	h, _ := newTestHart(t)
	if v, ok := h.PeekSpecial(SpecialPrivMode); !ok || v != uint64(csr.M) {
		t.Fatalf("priv mode = %d, want M", v)
	}
	if _, ok := h.PeekSpecial(Special(99)); ok {
		t.Error("unknown special resource should fail")
	}
}

func TestVectorLoadAddStoreRoundTrip(t *testing.T) {
	h, mem := newTestHart(t)
	for i := 0; i < 8; i++ {
		if err := mem.WriteByte(0x1000+uint64(i), byte(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	h.X[2] = 8      // AVL
	h.X[3] = 0x1000 // load base
	h.X[4] = 0x2000 // store base

	mustWrite32(t, mem, 0, 0x000170d7)  // vsetvli x1, x2, e8
	mustWrite32(t, mem, 4, 0x02018087)  // vle8.v v1, (x3)
	mustWrite32(t, mem, 8, 0x021081d7)  // vadd.vv v3, v1, v1
	mustWrite32(t, mem, 12, 0x020201a7) // vse8.v v3, (x4)

	for i := 0; i < 4; i++ {
		if out := h.Step(Limits{}); out != Retired {
			t.Fatalf("step %d outcome = %v, want Retired", i, out)
		}
	}
	if h.X[1] != 8 {
		t.Fatalf("vsetvli wrote vl=%d to x1, want 8", h.X[1])
	}
	vl, _ := h.CSR.Read(csr.Vl, h.ctx())
	if vl != 8 {
		t.Fatalf("vl CSR = %d, want 8", vl)
	}
	for i := 0; i < 8; i++ {
		if h.V[1][i] != byte(i+1) {
			t.Fatalf("v1[%d] = %d, want %d", i, h.V[1][i], i+1)
		}
		b, err := mem.ReadByte(0x2000 + uint64(i))
		if err != nil || b != byte(2*(i+1)) {
			t.Fatalf("stored byte %d = %d (%v), want %d", i, b, err, 2*(i+1))
		}
	}
}

func TestPeekPokeVectorRegister(t *testing.T) {
	h, _ := newTestHart(t)
	h.PokeV(5, []byte{0xaa, 0xbb})
	got := h.PeekV(5)
	if len(got) != VLenBytes || got[0] != 0xaa || got[1] != 0xbb || got[2] != 0 {
		t.Fatalf("v5 = % x", got[:4])
	}
	// The returned slice is a copy; mutating it must not touch the hart.
	got[0] = 0xff
	if h.V[5][0] != 0xaa {
		t.Fatal("PeekV leaked the backing slice")
	}
}
