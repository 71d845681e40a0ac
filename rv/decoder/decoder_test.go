/*
 * rvsim - Decoder test cases.
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

package decoder

import (
	"testing"

	"github.com/virtcore/rvsim/rv/instid"
)

func encodeI(opcode, funct3, rd, rs1 uint32, imm int64) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func TestDecodeAddi(t *testing.T) {
	dec := New()
	// addi x1, x0, 5
	raw := encodeI(0x13, 0, 1, 0, 5)
	inst := dec.Decode(raw, 0x1000, 0x1000)
	if inst.ID != instid.Addi {
		t.Fatalf("got %v, want Addi", inst.ID)
	}
	if inst.Operands[0].Value != 1 || inst.Operands[1].Value != 0 || inst.Operands[2].Value != 5 {
		t.Fatalf("bad operands: %+v", inst.Operands)
	}
}

func TestDecodeCacheHit(t *testing.T) {
	dec := New()
	raw := encodeI(0x13, 0, 2, 1, 7)
	first := dec.Decode(raw, 0x1004, 0x1004)
	second := dec.Decode(raw, 0x1004, 0x1004)
	if first.ID != second.ID || second.ID != instid.Addi {
		t.Fatalf("cache hit produced different decode: %+v vs %+v", first, second)
	}
}

func TestDecodeBranchImmSignExtends(t *testing.T) {
	dec := New()
	// beq x0,x0,-4  -> imm bits: all branch fields set for -4 offset.
	raw := uint32(0xfe000ee3)
	inst := dec.Decode(raw, 0x2000, 0x2000)
	if inst.ID != instid.Beq {
		t.Fatalf("got %v, want Beq", inst.ID)
	}
	if inst.Operands[2].Value != -4 {
		t.Fatalf("branch imm = %d, want -4", inst.Operands[2].Value)
	}
}

func TestDecodeIllegalOnUnknownOpcode(t *testing.T) {
	dec := New()
	inst := dec.Decode(0x0000007f, 0x3000, 0x3000)
	if inst.ID != instid.Illegal {
		t.Fatalf("got %v, want Illegal", inst.ID)
	}
}

func TestDecodeEbreak(t *testing.T) {
	dec := New()
	inst := dec.Decode(0x00100073, 0x3004, 0x3004)
	if inst.ID != instid.Ebreak {
		t.Fatalf("got %v, want Ebreak", inst.ID)
	}
}
