/*
 * rvsim - Memory-consistency checker test cases.
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

package mcm

import (
	"testing"

	"github.com/virtcore/rvsim/rv/memory"
)

func TestBypassStoreSatisfiesReadWithoutDrain(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	if v := e.McmInsert(0, 1, 0x100, 8, 0x42); v != nil {
		t.Fatalf("unexpected violation on insert: %+v", v)
	}
	if v := e.McmBypass(0, 2, 1, 0x100, 8, 0x42); v != nil {
		t.Fatalf("unexpected violation on bypass: %+v", v)
	}
	if v := e.McmRead(0, 2, 0x100, 8, 0x42); v != nil {
		t.Fatalf("bypassed read should not fault: %+v", v)
	}
}

func TestReadBeforeDrainFlagsViolation(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	e.McmInsert(0, 1, 0x200, 8, 0xdeadbeef)
	if v := e.McmRead(1, 2, 0x200, 8, 0xdeadbeef); v == nil {
		t.Fatal("expected violation: read observed a non-visible store")
	}
}

func TestDrainCommitsToMemoryAndClearsViolation(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	e.McmInsert(0, 1, 0x300, 8, 0x1122334455667788)
	if v := e.McmMbWrite(0, 0x300, 0x1122334455667788, ^uint64(0), false); v != nil {
		t.Fatalf("unexpected drain violation: %+v", v)
	}
	if v := e.McmRead(1, 2, 0x300, 8, 0x1122334455667788); v != nil {
		t.Fatalf("read after drain should succeed: %+v", v)
	}
	got, err := mem.Read(0x300, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x1122334455667788 {
		t.Fatalf("memory = %#x, want 0x1122334455667788", got)
	}
}

func TestDrainMismatchIsViolation(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	e.McmInsert(0, 1, 0x400, 4, 0xaaaaaaaa)
	if v := e.McmMbWrite(0, 0x400, 0xbbbbbbbb, 0xff, false); v == nil {
		t.Fatal("expected drain data mismatch violation")
	}
}

func TestSkipReadChkSuppressesCheck(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})
	e.McmSkipReadChk(0x500, 4, 0)

	e.McmInsert(0, 1, 0x500, 4, 0x1)
	if v := e.McmRead(1, 2, 0x500, 4, 0x99); v != nil {
		t.Fatalf("skipped range should not fault: %+v", v)
	}
}

func TestDisabledRuleSuppressesReadCheck(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64, Rules: map[int]bool{RuleSameAddrVisibility: false}})

	e.McmInsert(0, 1, 0x200, 8, 0xdeadbeef)
	if v := e.McmRead(1, 2, 0x200, 8, 0xdeadbeef); v != nil {
		t.Fatalf("disabled rule still flagged: %+v", v)
	}
}

func TestDisabledRuleSuppressesDrainCompare(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64, Rules: map[int]bool{RuleDrainCompare: false}})

	e.McmInsert(0, 1, 0x400, 4, 0xaaaaaaaa)
	if v := e.McmMbWrite(0, 0x400, 0xbbbbbbbb, 0xff, false); v != nil {
		t.Fatalf("disabled drain compare still flagged: %+v", v)
	}
}

func TestBypassDataMismatchFailsOnceWithBothTags(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	e.McmInsert(0, 7, 0x100, 4, 0xdead)
	v := e.McmBypass(0, 9, 7, 0x100, 4, 0xbeef)
	if v == nil {
		t.Fatal("expected a bypass data mismatch violation")
	}
	if v.Tag != 9 || v.SrcTag != 7 {
		t.Fatalf("violation tags = %d/%d, want 9/7", v.Tag, v.SrcTag)
	}
}

func TestBypassFromWrongStoreTagFails(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	e.McmInsert(0, 7, 0x100, 4, 0xdead)
	if v := e.McmBypass(0, 9, 8, 0x100, 4, 0xdead); v == nil {
		t.Fatal("expected a violation for a bypass naming the wrong store")
	}
}

func TestFenceRequiresEarlierStoresDrained(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	e.McmInsert(0, 1, 0x100, 4, 0xdead)
	e.NotifyFence(0, "fence")
	if v := e.McmInsert(0, 2, 0x200, 4, 0xbeef); v == nil {
		t.Fatal("expected violation: pre-fence store not yet drained")
	}
}

func TestFenceSatisfiedAfterDrain(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	e.McmInsert(0, 1, 0x100, 4, 0xdead)
	e.NotifyFence(0, "fence")
	if v := e.McmMbWrite(0, 0x100, 0xdead, 0xffffffff, false); v != nil {
		t.Fatalf("drain failed: %+v", v)
	}
	if v := e.McmInsert(0, 2, 0x200, 4, 0xbeef); v != nil {
		t.Fatalf("post-drain op should pass the fence rule: %+v", v)
	}
}

func TestFenceDoesNotOrderOtherHarts(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64})

	e.McmInsert(0, 1, 0x100, 4, 0xdead)
	e.NotifyFence(1, "fence")
	if v := e.McmInsert(1, 2, 0x200, 4, 0xbeef); v != nil {
		t.Fatalf("hart 1's fence must not order hart 0's stores: %+v", v)
	}
}

func TestDisabledFenceRule(t *testing.T) {
	mem := memory.New(4096)
	e := New(mem, Config{LineSize: 64, Rules: map[int]bool{RuleFenceOrder: false}})

	e.McmInsert(0, 1, 0x100, 4, 0xdead)
	e.NotifyFence(0, "fence")
	if v := e.McmInsert(0, 2, 0x200, 4, 0xbeef); v != nil {
		t.Fatalf("disabled fence rule still flagged: %+v", v)
	}
}
