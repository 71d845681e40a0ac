/*
 * rvsim - Instruction-table test cases.
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

package instid

import "testing"

func TestTablePositionalConsistency(t *testing.T) {
	for i := Illegal + 1; i < numInstId; i++ {
		e := GetEntry(i)
		if e.ID != i {
			t.Fatalf("table[%d] has ID %d, want %d (%s)", i, e.ID, i, e.Name)
		}
		if e.Name == "" {
			t.Fatalf("table[%d] has no name", i)
		}
	}
}

func TestNoDuplicateOpcodeUnderSharedMask(t *testing.T) {
	// Entries with identical (mask, opcode) pairs would be ambiguous to
	// decode; this does not catch narrower-vs-wider mask overlaps (the
	// decoder resolves those by dispatch order), only exact duplicates.
	seen := map[[2]uint32]InstId{}
	for i := Illegal + 1; i < numInstId; i++ {
		e := GetEntry(i)
		key := [2]uint32{e.Mask, e.Opcode}
		if other, ok := seen[key]; ok {
			t.Fatalf("%s and %s share mask=%#x opcode=%#x", e.Name, GetEntry(other).Name, e.Mask, e.Opcode)
		}
		seen[key] = i
	}
}

func TestLoadStoreSizeAnnotated(t *testing.T) {
	for i := Illegal + 1; i < numInstId; i++ {
		e := GetEntry(i)
		if (e.Load || e.Store || e.AMO) && e.Size == 0 {
			t.Fatalf("%s is a memory op with no Size set", e.Name)
		}
	}
}
