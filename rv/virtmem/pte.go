/*
 * rvsim - Page-table-entry field helpers.
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

const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteG = 1 << 5
	pteA = 1 << 6
	pteD = 1 << 7
)

func pteValid(pte uint64) bool {
	if pte&pteV == 0 {
		return false
	}
	if pte&pteW != 0 && pte&pteR == 0 {
		return false // W=1,R=0 is reserved.
	}
	return true
}

func pteIsLeaf(pte uint64) bool {
	return pte&(pteR|pteW|pteX) != 0
}

func pteToPPN(pte uint64) uint64 {
	return (pte >> 10) & ((1 << 44) - 1)
}

// vpnAt extracts the level-th VPN field (9 bits per level for Sv39/48/57,
// 10 bits for Sv32) from a virtual or guest-physical address.
func vpnAt(va uint64, level int, bits int, mode Mode) uint64 {
	shift := 12 + level*bits
	mask := uint64(1)<<bits - 1
	return (va >> shift) & mask
}

func pageSize(level int, bits int) uint64 {
	return 1 << uint(12+level*bits)
}

func superpageAligned(pte uint64, level int, bits int, mode Mode) bool {
	if level == 0 {
		return true
	}
	ppn := pteToPPN(pte)
	lowBits := uint(level * bits)
	return ppn&((1<<lowBits)-1) == 0
}

// checkPermissions validates a leaf PTE's R/W/X/U bits against the access
// type and privilege/MXR/SUM context.
func checkPermissions(pte uint64, access Access, cfg Config) string {
	u := pte&pteU != 0
	if cfg.Priv == 0 && !u {
		return "user access to supervisor page"
	}
	if cfg.Priv == 1 && u && !cfg.SUM {
		return "supervisor access to user page without SUM"
	}
	switch access {
	case Fetch:
		if pte&pteX == 0 {
			return "fetch from non-executable page"
		}
	case Read:
		if pte&pteR == 0 && !(cfg.MXR && pte&pteX != 0) {
			return "read from non-readable page"
		}
	case Write:
		if pte&pteW == 0 {
			return "write to non-writable page"
		}
	}
	return ""
}

type adOutcome int

const (
	adNoChange adOutcome = iota
	adWritten
	adFault
)

// updateAD applies the A-bit-on-any-access, D-bit-on-store architectural
// rule: with Svadu enabled the bits are set in place; otherwise a missing
// bit is a page fault rather than a silent no-op, per the walk algorithm.
func updateAD(pte uint64, access Access, svadu bool) (adOutcome, uint64) {
	needA := pte&pteA == 0
	needD := access == Write && pte&pteD == 0
	if !needA && !needD {
		return adNoChange, pte
	}
	if !svadu {
		return adFault, pte
	}
	if needA {
		pte |= pteA
	}
	if needD {
		pte |= pteD
	}
	return adWritten, pte
}

// pbmtOf extracts the PBMT field from the reserved-for-Svpbmt bits (61:62)
// of a leaf PTE.
func pbmtOf(pte uint64) memory.Pbmt {
	switch (pte >> 61) & 0x3 {
	case 1:
		return memory.PbmtNC
	case 2:
		return memory.PbmtIO
	default:
		return memory.PbmtNone
	}
}
