/*
 * rvsim - Memory and PMA test cases.
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

package memory

import "testing"

func TestReadWriteRoundTrip(t *testing.T) {
	m := New(4096)
	if err := m.Write(0x100, 4, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	v, err := m.Read(0x100, 4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xdeadbeef {
		t.Fatalf("got %#x, want 0xdeadbeef", v)
	}
}

func TestOutOfRange(t *testing.T) {
	m := New(16)
	if _, err := m.Read(16, 4); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := m.Write(14, 4, 0); err == nil {
		t.Fatal("expected out-of-range error on straddling write")
	}
}

func TestPmaDefaultAndOverride(t *testing.T) {
	mgr := NewPmaMgr(0x10000)
	mgr.AddRegion(Pma{Base: 0x2000, Size: 0x1000, IoRegion: true})

	if p := mgr.Lookup(0x100); p.IoRegion {
		t.Fatal("expected default region outside the device window")
	}
	if p := mgr.Lookup(0x2500); !p.IoRegion {
		t.Fatal("expected io region inside the device window")
	}

	overridden := Override(mgr.Lookup(0x100), PbmtIO)
	if !overridden.IoRegion || overridden.Cacheable {
		t.Fatalf("PBMT override not applied: %+v", overridden)
	}
}
